package scheduler

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"alarmd/internal/job"
	logx "alarmd/pkg/logx"
)

// Submit registers a notification for dueAt and returns without waiting.
//
// A dueAt that is not strictly after now yields ErrPastDue; the job is still
// recorded as Rejected and the returned Handle identifies it. No timer is
// armed for a rejected job.
func (s *Service) Submit(ctx context.Context, dueAt time.Time, recipient, message string) (Handle, error) {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return Handle{}, err
		}
	}

	now := s.clock.Now()
	j := job.New(dueAt, recipient, message, now)
	h := Handle{ID: j.ID(), DueAt: dueAt}
	delay := dueAt.Sub(now)

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return Handle{}, ErrStopped
	}

	if delay <= 0 {
		_ = j.Transition(job.StateRejected, now, "due time is not in the future")
		s.jobs[j.ID()] = &entry{job: j}
		s.submitted++
		s.mu.Unlock()

		s.log.Debug("job rejected", logx.String("id", j.ID()), logx.Time("due_at", dueAt), logx.Duration("late_by", -delay))
		s.settled(EventRejected, j)
		return h, errors.Wrapf(ErrPastDue, "due %s, now %s", dueAt.Format(time.RFC3339), now.Format(time.RFC3339))
	}

	if limit := s.cfg.MaxPending; limit > 0 && s.pending >= limit {
		s.mu.Unlock()
		return Handle{}, errors.Wrapf(ErrCapacity, "%d pending", limit)
	}

	e := &entry{job: j}
	s.jobs[j.ID()] = e
	s.pending++
	s.submitted++
	e.timer = s.clock.AfterFunc(delay, func() { s.fire(e) })
	s.mu.Unlock()

	s.log.Debug("job scheduled", logx.String("id", j.ID()), logx.Time("due_at", dueAt), logx.Duration("delay", delay))
	s.publish(EventScheduled, j.Snapshot())
	return h, nil
}

// Cancel stops a Pending job. It reports false when the job is unknown or
// has already started firing or finished.
func (s *Service) Cancel(id string) bool {
	s.mu.Lock()
	e, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	if err := e.job.Transition(job.StateCancelled, s.clock.Now(), "cancelled by request"); err != nil {
		s.mu.Unlock()
		return false
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	s.pending--
	s.mu.Unlock()

	s.log.Debug("job cancelled", logx.String("id", id))
	s.settled(EventCancelled, e.job)
	return true
}

// Status returns a point-in-time copy of a job.
func (s *Service) Status(id string) (job.Snapshot, bool) {
	s.mu.Lock()
	e, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return job.Snapshot{}, false
	}
	return e.job.Snapshot(), true
}

// Get is Status with an error for unknown ids.
func (s *Service) Get(id string) (job.Snapshot, error) {
	snap, ok := s.Status(id)
	if !ok {
		return job.Snapshot{}, errors.Wrapf(ErrNotFound, "id %s", id)
	}
	return snap, nil
}

// List returns jobs matching f ordered by due time.
func (s *Service) List(f Filter) []job.Snapshot {
	s.mu.Lock()
	jobs := make([]*job.Job, 0, len(s.jobs))
	for _, e := range s.jobs {
		jobs = append(jobs, e.job)
	}
	s.mu.Unlock()

	out := make([]job.Snapshot, 0, len(jobs))
	for _, j := range jobs {
		if f.Recipient != "" && !strings.EqualFold(j.Recipient(), f.Recipient) {
			continue
		}
		snap := j.Snapshot()
		if f.State != job.StateUnknown && snap.State != f.State {
			continue
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].DueAt.Equal(out[k].DueAt) {
			return out[i].CreatedAt.Before(out[k].CreatedAt)
		}
		return out[i].DueAt.Before(out[k].DueAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Running:   s.running,
		Jobs:      len(s.jobs),
		ByState:   map[string]int{},
		Submitted: s.submitted,
		Delivered: s.delivered,
		Failed:    s.failed,
		Swept:     s.swept,
		LastSweep: s.lastSweep,
		Config: ConfigView{
			DeliveryTimeout: s.cfg.DeliveryTimeout.String(),
			Retention:       s.cfg.Retention.String(),
			SweepInterval:   s.cfg.SweepInterval.String(),
			MaxPending:      s.cfg.MaxPending,
		},
	}
	for _, e := range s.jobs {
		snap.ByState[e.job.State().String()]++
	}
	s.mu.Unlock()
	return snap
}
