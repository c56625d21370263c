package notifier

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	t.Parallel()

	subject, body := Render("Take out the trash")
	assert.Equal(t, "Your Scheduled Reminder!", subject)
	assert.Equal(t, "Hello,\n\nThis is your reminder:\n\nTake out the trash\n\nBest regards,\nYour Alarm System", body)
}

func TestIsPlaceholder(t *testing.T) {
	t.Parallel()

	for _, v := range []string{"", "  ", "your_email@example.com", "YOUR_EMAIL_APP_PASSWORD"} {
		assert.True(t, IsPlaceholder(v), v)
	}
	assert.False(t, IsPlaceholder("ops@example.org"))
}

func TestNotConfiguredMarks(t *testing.T) {
	t.Parallel()

	err := NotConfigured("smtp", "sender missing")
	require.True(t, errors.Is(err, ErrNotConfigured))
	require.True(t, errors.Is(err, ErrDelivery))
	assert.Contains(t, err.Error(), "smtp: sender missing")

	assert.NoError(t, DeliveryFailed(nil, "x"))
	wrapped := DeliveryFailed(errors.New("dial tcp: refused"), "send to %s", "a@x.com")
	assert.True(t, errors.Is(wrapped, ErrDelivery))
	assert.False(t, errors.Is(wrapped, ErrNotConfigured))
}

type recorder struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (r *recorder) Deliver(_ context.Context, recipient, _, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recipient)
	return r.err
}

func TestRouter(t *testing.T) {
	t.Parallel()

	email, tg := &recorder{}, &recorder{}
	r := NewRouter().Handle(SchemeEmail, email).Handle(SchemeTelegram, tg)
	assert.Equal(t, []Scheme{SchemeEmail, SchemeTelegram}, r.Schemes())

	ctx := context.Background()
	require.NoError(t, r.Deliver(ctx, "a@x.com", "s", "b"))
	require.NoError(t, r.Deliver(ctx, "Telegram:12345", "s", "b"))
	assert.Equal(t, []string{"a@x.com"}, email.calls)
	assert.Equal(t, []string{"Telegram:12345"}, tg.calls)

	r.Handle(SchemeTelegram, nil)
	err := r.Deliver(ctx, "telegram:1", "s", "b")
	require.True(t, errors.Is(err, ErrUnroutable))
	require.True(t, errors.Is(err, ErrDelivery))
}

func TestSchemeHelpers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, SchemeEmail, SchemeOf("a@x.com"))
	assert.Equal(t, SchemeTelegram, SchemeOf(" telegram:42"))
	assert.Equal(t, "42", TelegramChat("TELEGRAM: 42"))
	assert.Equal(t, "a@x.com", TelegramChat("a@x.com"))
}

func TestLimitedThrottlesAndRecords(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	l := NewLimited(rec, Config{RatePerSec: 20, Burst: 1, HistorySize: 2})

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Deliver(context.Background(), "a@x.com", "s", "b"))
	}
	// burst 1 at 20/s: the 2nd and 3rd sends wait ~50ms each.
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	assert.Len(t, rec.calls, 3)
	assert.Len(t, l.History(), 2)
}

func TestLimitedWaitHonorsContext(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	l := NewLimited(rec, Config{RatePerSec: 0.01, Burst: 1})
	require.NoError(t, l.Deliver(context.Background(), "a@x.com", "s", "b"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Deliver(ctx, "a@x.com", "s", "b")
	require.True(t, errors.Is(err, ErrDelivery))
	assert.Len(t, rec.calls, 1)

	h := l.History()
	require.Len(t, h, 2)
	assert.True(t, strings.Contains(h[1].Error, "rate limit"))
}

func TestLimitedPacedSendSkipsWait(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	l := NewLimited(rec, Config{RatePerSec: 0.01, Burst: 1})
	var _ Pacer = l

	require.NoError(t, l.Pace(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.NoError(t, l.Deliver(Paced(ctx), "a@x.com", "s", "b"))
	assert.Equal(t, []string{"a@x.com"}, rec.calls)

	// The bucket is empty and the next token is far past ctx's deadline.
	err := l.Pace(ctx)
	require.True(t, errors.Is(err, ErrDelivery))
}

func TestLimitedUnthrottled(t *testing.T) {
	t.Parallel()

	rec := &recorder{err: errors.New("boom")}
	l := NewLimited(rec, Config{})
	err := l.Deliver(context.Background(), "a@x.com", "s", "b")
	require.EqualError(t, err, "boom")

	l.Apply(Config{RatePerSec: 5})
	rec.err = nil
	require.NoError(t, l.Deliver(context.Background(), "b@x.com", "s", "b"))
}
