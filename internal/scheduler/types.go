package scheduler

import (
	"time"

	"github.com/cockroachdb/errors"

	"alarmd/internal/job"
)

var (
	// ErrPastDue rejects a job whose due time is not after now.
	ErrPastDue  = errors.New("scheduler: due time is not in the future")
	ErrStopped  = errors.New("scheduler: not running")
	ErrCapacity = errors.New("scheduler: too many pending jobs")
	ErrNotFound = errors.New("scheduler: job not found")
)

// Config controls the scheduler. The app layer maps config.scheduler into it.
type Config struct {
	// DeliveryTimeout bounds one Notifier call. Default 30s.
	DeliveryTimeout time.Duration
	// Retention keeps terminal jobs queryable for this long. Default 24h.
	Retention time.Duration
	// SweepInterval is how often terminal jobs past Retention are dropped. Default 1m.
	SweepInterval time.Duration
	// JournalRetention prunes outcome journal records older than this.
	// 0 keeps them forever.
	JournalRetention time.Duration
	// MaxPending caps concurrently pending jobs. 0 means unlimited.
	MaxPending int
}

func (c Config) withDefaults() Config {
	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = 30 * time.Second
	}
	if c.Retention <= 0 {
		c.Retention = 24 * time.Hour
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	if c.JournalRetention < 0 {
		c.JournalRetention = 0
	}
	if c.MaxPending < 0 {
		c.MaxPending = 0
	}
	return c
}

// Handle identifies a submitted job.
type Handle struct {
	ID    string    `json:"id"`
	DueAt time.Time `json:"due_at"`
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	State     job.State
	Recipient string
	Limit     int
}

// Event types published on the bus. Data is a job.Snapshot.
const (
	EventScheduled = "job.scheduled"
	EventRejected  = "job.rejected"
	EventCancelled = "job.cancelled"
	EventFiring    = "job.firing"
	EventDelivered = "job.delivered"
	EventFailed    = "job.failed"
)

// Snapshot is an operational view of the scheduler.
type Snapshot struct {
	Running   bool           `json:"running"`
	Jobs      int            `json:"jobs"`
	ByState   map[string]int `json:"by_state"`
	Submitted uint64         `json:"submitted"`
	Delivered uint64         `json:"delivered"`
	Failed    uint64         `json:"failed"`
	Swept     uint64         `json:"swept"`
	LastSweep time.Time      `json:"last_sweep,omitempty"`
	Config    ConfigView     `json:"config"`
}

type ConfigView struct {
	DeliveryTimeout string `json:"delivery_timeout"`
	Retention       string `json:"retention"`
	SweepInterval   string `json:"sweep_interval"`
	MaxPending      int    `json:"max_pending"`
}
