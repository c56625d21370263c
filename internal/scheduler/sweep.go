package scheduler

import (
	"context"
	"time"

	logx "alarmd/pkg/logx"
)

// Sweep drops terminal jobs that finished more than Retention ago and prunes
// the outcome journal. It returns the number of jobs dropped from memory.
func (s *Service) Sweep(ctx context.Context) int {
	s.mu.Lock()
	now := s.clock.Now()
	cutoff := now.Add(-s.cfg.Retention)
	journalRetention := s.cfg.JournalRetention
	n := 0
	for id, e := range s.jobs {
		fin := e.job.FinishedAt()
		if fin.IsZero() || fin.After(cutoff) {
			continue
		}
		delete(s.jobs, id)
		n++
	}
	s.swept += uint64(n)
	s.lastSweep = now
	st := s.store
	s.mu.Unlock()

	if n > 0 {
		s.log.Debug("swept terminal jobs", logx.Int("count", n))
	}
	if st != nil && journalRetention > 0 {
		pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pruned, err := st.Prune(pctx, now.Add(-journalRetention))
		cancel()
		if err != nil {
			s.log.Warn("outcome journal prune failed", logx.Err(err))
		} else if pruned > 0 {
			s.log.Debug("outcome journal pruned", logx.Int("count", pruned))
		}
	}
	return n
}
