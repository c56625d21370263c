package scheduler

import (
	"context"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alarmd/internal/clock"
	"alarmd/internal/job"
	"alarmd/internal/notifier"
	logx "alarmd/pkg/logx"
)

const tolerance = 100 * time.Millisecond

func startReal(t *testing.T, n *recordingNotifier) *Service {
	t.Helper()
	svc := New(Config{}, clock.NewRealClock(), n, logx.Nop(), nil, nil)
	svc.Start(context.Background())
	t.Cleanup(func() { svc.Stop(context.Background()) })
	return svc
}

func waitDeliveries(t *testing.T, n *recordingNotifier, want int, within time.Duration) []delivery {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if got := n.deliveries(); len(got) >= want {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	got := n.deliveries()
	require.Len(t, got, want)
	return got
}

func TestFiresWithinTolerance(t *testing.T) {
	t.Parallel()
	n := &recordingNotifier{}
	svc := startReal(t, n)

	due := time.Now().Add(200 * time.Millisecond)
	_, err := svc.Submit(context.Background(), due, "a@x.com", "m")
	require.NoError(t, err)

	got := waitDeliveries(t, n, 1, 2*time.Second)
	lag := got[0].At.Sub(due)
	assert.GreaterOrEqual(t, lag, time.Duration(0))
	assert.Less(t, lag, tolerance)
}

func TestJobsFireIndependently(t *testing.T) {
	t.Parallel()
	n := &recordingNotifier{}
	release := make(chan struct{})
	n.fn = func(_ context.Context, recipient string) error {
		if recipient == "slow@x.com" {
			<-release
		}
		return nil
	}
	svc := startReal(t, n)
	t.Cleanup(func() { close(release) })

	now := time.Now()
	slowDue := now.Add(100 * time.Millisecond)
	fastDue := now.Add(200 * time.Millisecond)
	_, err := svc.Submit(context.Background(), slowDue, "slow@x.com", "m")
	require.NoError(t, err)
	fast, err := svc.Submit(context.Background(), fastDue, "fast@x.com", "m")
	require.NoError(t, err)

	got := waitDeliveries(t, n, 2, 2*time.Second)
	var fastAt time.Time
	for _, d := range got {
		if d.Recipient == "fast@x.com" {
			fastAt = d.At
		}
	}
	require.False(t, fastAt.IsZero())
	assert.Less(t, fastAt.Sub(fastDue), tolerance)

	require.Eventually(t, func() bool {
		snap, _ := svc.Status(fast.ID)
		return snap.State.Terminal()
	}, time.Second, 5*time.Millisecond)
}

func TestThousandJobs(t *testing.T) {
	if testing.Short() {
		t.Skip("fires 1000 jobs over 1-5s")
	}
	t.Parallel()

	n := &recordingNotifier{}
	svc := startReal(t, n)

	const total = 1000
	base := runtime.NumGoroutine()
	now := time.Now()
	due := make(map[string]time.Time, total)
	for i := 0; i < total; i++ {
		d := now.Add(time.Second + time.Duration(i)*4*time.Millisecond)
		recipient := "user" + strconv.Itoa(i) + "@x.com"
		_, err := svc.Submit(context.Background(), d, recipient, "m")
		require.NoError(t, err)
		due[recipient] = d
	}

	// Waiting jobs hold timers, not goroutines.
	assert.Less(t, runtime.NumGoroutine()-base, 50)

	got := waitDeliveries(t, n, total, 10*time.Second)
	late := 0
	for _, d := range got {
		lag := d.At.Sub(due[d.Recipient])
		require.GreaterOrEqual(t, lag, time.Duration(0), d.Recipient)
		if lag >= tolerance {
			late++
		}
	}
	assert.Zero(t, late)
	assert.Equal(t, total, svc.Snapshot().ByState["delivered"])
}

func TestThrottledBurstIsDelayedNotFailed(t *testing.T) {
	t.Parallel()

	n := &recordingNotifier{}
	// 40 sends at 200/s take ~200ms, far past the 20ms per-send budget.
	limited := notifier.NewLimited(n, notifier.Config{RatePerSec: 200, Burst: 1})
	svc := New(Config{DeliveryTimeout: 20 * time.Millisecond}, clock.NewRealClock(), limited, logx.Nop(), nil, nil)
	svc.Start(context.Background())
	t.Cleanup(func() { svc.Stop(context.Background()) })

	const total = 40
	due := time.Now().Add(50 * time.Millisecond)
	ids := make([]string, 0, total)
	for i := 0; i < total; i++ {
		h, err := svc.Submit(context.Background(), due, "user"+strconv.Itoa(i)+"@x.com", "m")
		require.NoError(t, err)
		ids = append(ids, h.ID)
	}

	waitDeliveries(t, n, total, 5*time.Second)
	require.Eventually(t, func() bool {
		return svc.Snapshot().ByState["delivered"] == total
	}, time.Second, 5*time.Millisecond)
	for _, id := range ids {
		snap, ok := svc.Status(id)
		require.True(t, ok)
		assert.Equal(t, job.StateDelivered, snap.State, snap.Result)
	}
}
