package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"alarmd/internal/clock"
	"alarmd/internal/eventbus"
	"alarmd/internal/job"
	"alarmd/internal/notifier"
	"alarmd/internal/storage"
	logx "alarmd/pkg/logx"
)

type entry struct {
	job   *job.Job
	timer clock.Timer // guarded by Service.mu
}

// Service is the job scheduler. It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log      logx.Logger
	clock    clock.Clock
	notifier notifier.Notifier
	bus      eventbus.Bus
	store    storage.Store

	cfg  Config
	jobs map[string]*entry

	running bool
	ctx     context.Context // parent of every delivery context
	cancel  context.CancelFunc
	firing  sync.WaitGroup

	cron    *cron.Cron
	sweepID cron.EntryID

	pending   int
	submitted uint64
	delivered uint64
	failed    uint64
	swept     uint64
	lastSweep time.Time
}

// New builds a stopped scheduler. bus and store may be nil.
func New(cfg Config, clk clock.Clock, n notifier.Notifier, log logx.Logger, bus eventbus.Bus, store storage.Store) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &Service{
		log:      log,
		clock:    clk,
		notifier: n,
		bus:      bus,
		store:    store,
		cfg:      cfg.withDefaults(),
		jobs:     map[string]*entry{},
	}
}

// Apply swaps tunables at runtime. In-flight deliveries keep the timeout
// they started with.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg = cfg.withDefaults()
	old := s.cfg
	s.cfg = cfg
	if s.cron != nil && old.SweepInterval != cfg.SweepInterval {
		s.cron.Remove(s.sweepID)
		s.scheduleSweepLocked()
	}
}

// Config returns the tunables in effect, defaults applied.
func (s *Service) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start accepts submissions and arms the retention sweeper. Deliveries run
// under a context detached from ctx's cancellation so a shutdown signal does
// not abort them before Stop's drain deadline.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.running = true

	s.cron = cron.New(cron.WithLocation(time.UTC))
	s.scheduleSweepLocked()
	s.cron.Start()

	s.log.Info("scheduler started",
		logx.Duration("delivery_timeout", s.cfg.DeliveryTimeout),
		logx.Duration("retention", s.cfg.Retention),
		logx.Int("max_pending", s.cfg.MaxPending))
}

func (s *Service) scheduleSweepLocked() {
	spec := "@every " + s.cfg.SweepInterval.String()
	id, err := s.cron.AddFunc(spec, func() { s.Sweep(context.Background()) })
	if err != nil {
		s.log.Error("sweeper register failed", logx.String("spec", spec), logx.Err(err))
		return
	}
	s.sweepID = id
}

// Stop refuses new submissions, cancels every pending job and waits for
// firing jobs until ctx expires. On expiry in-flight deliveries are aborted
// and recorded as failed.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	c := s.cron
	s.cron = nil
	cancel := s.cancel

	now := s.clock.Now()
	var cancelled []*job.Job
	for _, e := range s.jobs {
		if e.job.Transition(job.StateCancelled, now, "scheduler stopped") != nil {
			continue
		}
		if e.timer != nil {
			e.timer.Stop()
		}
		s.pending--
		cancelled = append(cancelled, e.job)
	}
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	for _, j := range cancelled {
		s.settled(EventCancelled, j)
	}

	done := make(chan struct{})
	go func() {
		s.firing.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("stop deadline reached, aborting in-flight deliveries")
		cancel()
		<-done
	}
	cancel()

	s.log.Info("scheduler stopped", logx.Int("cancelled", len(cancelled)), logx.Duration("took", time.Since(start)))
}
