package scheduler

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/cockroachdb/errors"

	"alarmd/internal/eventbus"
	"alarmd/internal/job"
	"alarmd/internal/notifier"
	"alarmd/internal/storage"
	logx "alarmd/pkg/logx"
)

// fire runs on the timer's goroutine once the job is due.
func (s *Service) fire(e *entry) {
	s.mu.Lock()
	now := s.clock.Now()
	// Commit point: after this, Cancel can no longer win.
	if err := e.job.Transition(job.StateFiring, now, ""); err != nil {
		s.mu.Unlock()
		return
	}
	s.pending--
	s.firing.Add(1)
	timeout := s.cfg.DeliveryTimeout
	base := s.ctx
	n := s.notifier
	s.mu.Unlock()
	defer s.firing.Done()

	j := e.job
	log := s.log.With(logx.String("id", j.ID()))
	log.Debug("job firing", logx.Duration("lag", now.Sub(j.DueAt())))
	s.publish(EventFiring, j.Snapshot())

	err := s.deliver(base, timeout, n, j)

	state, event, reason := job.StateDelivered, EventDelivered, ""
	if err != nil {
		state, event, reason = job.StateFailed, EventFailed, err.Error()
	}
	if terr := j.Transition(state, s.clock.Now(), reason); terr != nil {
		log.Error("job finish rejected", logx.Err(terr))
		return
	}

	s.mu.Lock()
	if err != nil {
		s.failed++
	} else {
		s.delivered++
	}
	s.mu.Unlock()

	if err != nil {
		log.Warn("job delivery failed", logx.Err(err))
	} else {
		log.Info("job delivered")
	}
	s.settled(event, j)
}

// deliver calls the notifier on its own goroutine so that a notifier which
// ignores ctx, blocks, or panics cannot hold the job past timeout or take
// the process down.
func (s *Service) deliver(base context.Context, timeout time.Duration, n notifier.Notifier, j *job.Job) error {
	if n == nil {
		return notifier.NotConfigured("scheduler", "no notifier")
	}
	if base == nil {
		base = context.Background()
	}
	// Throttling delays a send; only the send itself counts against timeout.
	if p, ok := n.(notifier.Pacer); ok {
		if err := p.Pace(base); err != nil {
			return err
		}
		base = notifier.Paced(base)
	}
	ctx, cancel := context.WithTimeout(base, timeout)
	defer cancel()

	subject, body := notifier.Render(j.Message())
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("notifier panicked", logx.String("id", j.ID()), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
				done <- errors.Mark(errors.Newf("notifier panic: %v", r), notifier.ErrDelivery)
			}
		}()
		done <- n.Deliver(ctx, j.Recipient(), subject, body)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return notifier.DeliveryFailed(ctx.Err(), "delivery did not finish within %s", timeout)
	}
}

// settled publishes a terminal event and journals the outcome.
func (s *Service) settled(event string, j *job.Job) {
	snap := j.Snapshot()
	s.publish(event, snap)
	s.journal(snap)
}

func (s *Service) publish(typ string, snap job.Snapshot) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: s.clock.Now(), Data: snap})
}

func (s *Service) journal(snap job.Snapshot) {
	if s.store == nil {
		return
	}
	o := storage.Outcome{
		JobID:     snap.ID,
		Recipient: snap.Recipient,
		State:     snap.State.String(),
		DueAt:     snap.DueAt,
		CreatedAt: snap.CreatedAt,
		Error:     snap.Result,
	}
	if snap.FinishedAt != nil {
		o.At = *snap.FinishedAt
	}
	if snap.FiredAt != nil {
		o.FiredAt = *snap.FiredAt
		o.LagMS = snap.FiredAt.Sub(snap.DueAt).Milliseconds()
		if snap.FinishedAt != nil {
			o.TookMS = snap.FinishedAt.Sub(*snap.FiredAt).Milliseconds()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.store.AppendOutcome(ctx, o); err != nil {
		s.log.Warn("outcome journal append failed", logx.String("id", snap.ID), logx.Err(err))
	}
}
