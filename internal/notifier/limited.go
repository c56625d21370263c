package notifier

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config controls delivery throttling.
type Config struct {
	// RatePerSec <= 0 disables throttling.
	RatePerSec float64
	Burst      int
	// HistorySize caps the in-memory record of recent sends.
	HistorySize int
}

type HistoryItem struct {
	At        time.Time `json:"at"`
	Recipient string    `json:"recipient"`
	Error     string    `json:"error,omitempty"`
}

// Limited wraps a Notifier with a token bucket and a small history ring.
//
// It is safe for concurrent use; Apply swaps the limiter without
// disturbing in-flight sends.
type Limited struct {
	next Notifier

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	hmu     sync.Mutex
	history []HistoryItem
}

func NewLimited(next Notifier, cfg Config) *Limited {
	l := &Limited{next: next}
	l.applyLocked(cfg)
	return l
}

func (l *Limited) Apply(cfg Config) {
	l.mu.Lock()
	l.applyLocked(cfg)
	l.mu.Unlock()
}

func (l *Limited) applyLocked(cfg Config) {
	if cfg.Burst <= 0 {
		cfg.Burst = max(1, int(cfg.RatePerSec))
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 200
	}
	l.cfg = cfg
	if cfg.RatePerSec <= 0 {
		l.limiter = nil
		return
	}
	l.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst)
}

// Pacer is implemented by notifiers that throttle sends. A caller that bounds
// each send with a deadline waits on Pace first, outside that deadline, and
// passes the send context through Paced so the token is not taken twice.
type Pacer interface {
	Pace(ctx context.Context) error
}

type pacedKey struct{}

// Paced marks ctx as already paced.
func Paced(ctx context.Context) context.Context {
	return context.WithValue(ctx, pacedKey{}, true)
}

func isPaced(ctx context.Context) bool {
	v, _ := ctx.Value(pacedKey{}).(bool)
	return v
}

// Pace blocks until the limiter admits one send or ctx is done.
func (l *Limited) Pace(ctx context.Context) error {
	l.mu.Lock()
	lim := l.limiter
	l.mu.Unlock()

	if lim == nil {
		return nil
	}
	return DeliveryFailed(lim.Wait(ctx), "rate limit wait")
}

func (l *Limited) Deliver(ctx context.Context, recipient, subject, body string) error {
	if !isPaced(ctx) {
		if err := l.Pace(ctx); err != nil {
			l.record(recipient, err)
			return err
		}
	}
	err := l.next.Deliver(ctx, recipient, subject, body)
	l.record(recipient, err)
	return err
}

func (l *Limited) record(recipient string, err error) {
	it := HistoryItem{At: time.Now(), Recipient: recipient}
	if err != nil {
		it.Error = err.Error()
	}

	l.mu.Lock()
	size := l.cfg.HistorySize
	l.mu.Unlock()

	l.hmu.Lock()
	l.history = append(l.history, it)
	if len(l.history) > size {
		l.history = l.history[len(l.history)-size:]
	}
	l.hmu.Unlock()
}

// History returns recent sends, oldest first.
func (l *Limited) History() []HistoryItem {
	l.hmu.Lock()
	out := append([]HistoryItem(nil), l.history...)
	l.hmu.Unlock()
	return out
}
