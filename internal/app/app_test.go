package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alarmd/internal/clock"
	"alarmd/internal/config"
)

const testConfig = `
logging:
  level: error
  console: false
scheduler:
  timezone: UTC
  delivery_timeout: 2s
notifier:
  smtp:
    sender: your_email@example.com
    password: your_email_app_password
  telegram:
    token: your_bot_token
storage:
  driver: file
  path: %s
http:
  addr: 127.0.0.1:0
`

var epoch = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestApp(t *testing.T) (*App, *clock.MockClock, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "alarmd.yaml")
	body := []byte(fmt.Sprintf(testConfig, filepath.Join(dir, "journal")))
	require.NoError(t, os.WriteFile(path, body, 0o600))

	clk := clock.NewMockClock(epoch)
	a, err := New(path, WithClock(clk), WithEnv(nil))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, a.Start(ctx))
	t.Cleanup(func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		_ = a.Stop(stopCtx, StopShutdown)
		cancel()
	})
	return a, clk, path
}

func call(t *testing.T, a *App, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.Handler().ServeHTTP(w, req)
	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w.Code, out
}

func TestPlaceholderCredentialsFailClosed(t *testing.T) {
	a, clk, _ := newTestApp(t)

	code, body := call(t, a, http.MethodPost, "/set-alarm",
		`{"date":"2025-06-01","time":"09:05","email":"someone@example.com","message":"call mom"}`)
	require.Equal(t, http.StatusOK, code, body)
	id := body["id"].(string)

	clk.Add(6 * time.Minute)

	assert.Eventually(t, func() bool {
		_, got := call(t, a, http.MethodGet, "/alarms/"+id, "")
		return got["state"] == "failed"
	}, 3*time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		_, out := call(t, a, http.MethodGet, "/outcomes", "")
		return out["count"] == float64(1)
	}, 3*time.Second, 10*time.Millisecond)
}

func TestPastDueRejected(t *testing.T) {
	a, _, _ := newTestApp(t)

	code, body := call(t, a, http.MethodPost, "/set-alarm",
		`{"date":"2025-06-01","time":"08:59","email":"someone@example.com","message":"too late"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, false, body["success"])
}

func TestHealthzAfterStop(t *testing.T) {
	a, _, _ := newTestApp(t)

	code, _ := call(t, a, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, code)

	require.NoError(t, a.Stop(context.Background(), StopShutdown))
	<-a.Done()

	code, _ = call(t, a, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestReloadSwapsTimezone(t *testing.T) {
	a, _, path := newTestApp(t)
	require.Equal(t, "UTC", a.intake.Location().String())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	b = bytes.Replace(b, []byte("timezone: UTC"), []byte("timezone: Asia/Kolkata"), 1)
	require.NoError(t, os.WriteFile(path, b, 0o600))

	changed, err := a.cfgm.Reload()
	require.NoError(t, err)
	require.True(t, changed)

	assert.Eventually(t, func() bool {
		return a.intake.Location().String() == "Asia/Kolkata"
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2*time.Second, a.sched.Config().DeliveryTimeout)
}

func TestMapSchedulerRejectsBadDuration(t *testing.T) {
	_, err := mapScheduler(&config.Config{Scheduler: config.SchedulerConfig{Retention: "forever"}})
	assert.Error(t, err)

	sc, err := mapScheduler(&config.Config{Scheduler: config.SchedulerConfig{Retention: "1h", MaxPending: 3}})
	require.NoError(t, err)
	assert.Equal(t, time.Hour, sc.Retention)
	assert.Equal(t, 3, sc.MaxPending)
}

func TestMapStorageDisabled(t *testing.T) {
	_, enabled, err := mapStorage(&config.Config{})
	require.NoError(t, err)
	assert.False(t, enabled)

	_, enabled, err = mapStorage(&config.Config{Storage: &config.StorageConfig{Driver: "none"}})
	require.NoError(t, err)
	assert.False(t, enabled)
}
