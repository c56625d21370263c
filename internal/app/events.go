package app

import (
	"context"

	"alarmd/internal/eventbus"
	"alarmd/internal/job"
	"alarmd/internal/scheduler"
	logx "alarmd/pkg/logx"
)

// logEvents turns job lifecycle events into log lines. Failures are the
// operator-facing signal, so they log at WARN.
func (a *App) logEvents(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			snap, ok := e.Data.(job.Snapshot)
			if !ok {
				a.log.Debug("event", logx.String("type", e.Type))
				continue
			}
			fields := []logx.Field{
				logx.String("event", e.Type),
				logx.String("job_id", snap.ID),
				logx.String("recipient", snap.Recipient),
				logx.Time("due_at", snap.DueAt),
			}
			switch e.Type {
			case scheduler.EventFailed:
				a.log.Warn("reminder delivery failed", append(fields, logx.String("error", snap.Result))...)
			case scheduler.EventRejected:
				a.log.Info("reminder rejected", append(fields, logx.String("reason", snap.Result))...)
			case scheduler.EventDelivered:
				a.log.Info("reminder delivered", fields...)
			default:
				a.log.Debug("reminder event", fields...)
			}
		}
	}
}
