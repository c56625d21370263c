package intake

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alarmd/internal/clock"
	"alarmd/internal/job"
	"alarmd/internal/notifier"
	"alarmd/internal/scheduler"
	logx "alarmd/pkg/logx"
)

func kolkata(t *testing.T) *time.Location {
	t.Helper()
	loc, err := LoadLocation("")
	require.NoError(t, err)
	require.Equal(t, "Asia/Kolkata", loc.String())
	return loc
}

func TestParseLocalizesInZone(t *testing.T) {
	t.Parallel()
	loc := kolkata(t)

	sub, err := Parse(Request{Date: "2025-06-01", Time: "09:30", Recipient: " A@X.com ", Message: " stand-up "}, loc)
	require.NoError(t, err)
	// IST is UTC+5:30.
	assert.Equal(t, time.Date(2025, 6, 1, 4, 0, 0, 0, time.UTC), sub.DueAt.UTC())
	assert.Equal(t, "A@X.com", sub.Recipient)
	assert.Equal(t, " stand-up ", sub.Message)

	sub, err = Parse(Request{Date: "2025-06-01", Time: "09:30:15", Recipient: "a@x.com", Message: "m"}, loc)
	require.NoError(t, err)
	assert.Equal(t, 15, sub.DueAt.Second())
}

func TestParseMissingFields(t *testing.T) {
	t.Parallel()

	_, err := Parse(Request{Time: "10:00"}, time.UTC)
	require.True(t, errors.Is(err, ErrMissingField))
	require.True(t, errors.Is(err, ErrValidation))

	var mf *MissingFieldsError
	require.True(t, errors.As(err, &mf))
	assert.Equal(t, []string{"date", "email", "message"}, mf.Fields)
}

func TestParseKeepsMessageVerbatim(t *testing.T) {
	t.Parallel()

	for _, msg := range []string{"  indented\n", "   "} {
		sub, err := Parse(Request{Date: "2025-06-01", Time: "10:00", Recipient: "a@x.com", Message: msg}, time.UTC)
		require.NoError(t, err, "%q", msg)
		assert.Equal(t, msg, sub.Message)
	}
}

func TestParseInvalidFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  Request
		want string
	}{
		{"bad date", Request{Date: "01/06/2025", Time: "10:00", Recipient: "a@x.com", Message: "m"}, "date"},
		{"impossible date", Request{Date: "2025-02-30", Time: "10:00", Recipient: "a@x.com", Message: "m"}, "date"},
		{"bad time", Request{Date: "2025-06-01", Time: "25:00", Recipient: "a@x.com", Message: "m"}, "time"},
		{"bad email", Request{Date: "2025-06-01", Time: "10:00", Recipient: "not-an-email", Message: "m"}, "email"},
		{"bad chat", Request{Date: "2025-06-01", Time: "10:00", Recipient: "telegram:me", Message: "m"}, "telegram chat id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse(tt.req, time.UTC)
			require.True(t, errors.Is(err, ErrInvalidField), "%v", err)
			require.True(t, errors.Is(err, ErrValidation))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseTelegramRecipient(t *testing.T) {
	t.Parallel()

	sub, err := Parse(Request{Date: "2025-06-01", Time: "10:00", Recipient: "Telegram: 42", Message: "m"}, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "telegram:42", sub.Recipient)
	assert.Equal(t, notifier.SchemeTelegram, notifier.SchemeOf(sub.Recipient))
}

func TestParseMessageTooLong(t *testing.T) {
	t.Parallel()

	long := make([]rune, MaxMessageLen+1)
	for i := range long {
		long[i] = 'é'
	}
	_, err := Parse(Request{Date: "2025-06-01", Time: "10:00", Recipient: "a@x.com", Message: string(long)}, time.UTC)
	require.True(t, errors.Is(err, ErrInvalidField))
}

func TestLoadLocationUnknown(t *testing.T) {
	t.Parallel()

	_, err := LoadLocation("Mars/Olympus_Mons")
	require.Error(t, err)
}

func TestServiceSubmit(t *testing.T) {
	t.Parallel()
	loc := kolkata(t)

	now := time.Date(2025, 6, 1, 9, 0, 0, 0, loc)
	clk := clock.NewMockClock(now)
	sched := scheduler.New(scheduler.Config{}, clk, notifier.Func(func(context.Context, string, string, string) error { return nil }), logx.Nop(), nil, nil)
	sched.Start(context.Background())
	t.Cleanup(func() { sched.Stop(context.Background()) })

	svc := NewService(sched, loc, logx.Nop())

	snap, err := svc.Submit(context.Background(), Request{Date: "2025-06-01", Time: "09:00:02", Recipient: "a@x.com", Message: "m"})
	require.NoError(t, err)
	assert.Equal(t, job.StatePending, snap.State)
	assert.True(t, snap.DueAt.Equal(now.Add(2*time.Second)))

	snap, err = svc.Submit(context.Background(), Request{Date: "2025-06-01", Time: "08:59:59", Recipient: "a@x.com", Message: "m"})
	require.True(t, errors.Is(err, scheduler.ErrPastDue))
	assert.Equal(t, job.StateRejected, snap.State)

	_, err = svc.Submit(context.Background(), Request{Date: "2025-06-01"})
	require.True(t, errors.Is(err, ErrValidation))

	clk.Add(2 * time.Second)
	assert.Equal(t, 1, sched.Snapshot().ByState["delivered"])
}

func TestServiceSetLocation(t *testing.T) {
	t.Parallel()

	svc := NewService(nil, nil, logx.Nop())
	assert.Equal(t, time.UTC, svc.Location())

	loc := kolkata(t)
	svc.SetLocation(loc)
	svc.SetLocation(nil)
	assert.Equal(t, loc, svc.Location())
}
