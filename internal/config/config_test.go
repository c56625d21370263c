package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
logging:
  level: debug
  console: true
  file:
    enabled: false
scheduler:
  timezone: Asia/Kolkata
  delivery_timeout: 20s
  retention: 12h
  max_pending: 100
notifier:
  rate_per_sec: 5
  burst: 2
  smtp:
    host: smtp.example.com
    port: 465
    sender: your_email@example.com
    password: your_email_app_password
storage:
  driver: file
  path: ./data/alarmd
http:
  addr: 127.0.0.1:8080
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func noEnv() (Env, error) { return Env{}, nil }

func TestLoadYAML(t *testing.T) {
	m := NewManager(writeFile(t, t.TempDir(), "alarmd.yaml", sampleYAML))
	m.SetEnvSource(noEnv)

	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "20s", cfg.Scheduler.DeliveryTimeout)
	assert.Equal(t, 100, cfg.Scheduler.MaxPending)
	assert.InDelta(t, 5.0, cfg.Notifier.RatePerSec, 0.001)
	require.NotNil(t, cfg.Storage)
	assert.Equal(t, "file", cfg.Storage.Driver)
	assert.Same(t, cfg, m.Get())
}

func TestLoadJSON(t *testing.T) {
	m := NewManager(writeFile(t, t.TempDir(), "alarmd.json", `{"http":{"addr":":9000"}}`))
	m.SetEnvSource(noEnv)

	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Nil(t, cfg.Storage)
}

func TestLoadRejectsUnknownField(t *testing.T) {
	m := NewManager(writeFile(t, t.TempDir(), "alarmd.yaml", "scheduler:\n  workers: 4\n"))
	m.SetEnvSource(noEnv)

	_, err := m.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workers")
}

func TestLoadRejectsTrailingJSON(t *testing.T) {
	m := NewManager(writeFile(t, t.TempDir(), "alarmd.json", `{} {}`))
	m.SetEnvSource(noEnv)

	_, err := m.Load()
	require.Error(t, err)
}

func TestEmptyYAMLIsDefaults(t *testing.T) {
	m := NewManager(writeFile(t, t.TempDir(), "alarmd.yaml", ""))
	m.SetEnvSource(noEnv)

	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, Config{}, *cfg)
}

func TestEnvOverlay(t *testing.T) {
	t.Setenv("SENDER_EMAIL", "me@example.com")
	t.Setenv("SENDER_PASSWORD", "app-secret")
	t.Setenv("ALARM_TIMEZONE", "UTC")
	t.Setenv("TELEGRAM_TOKEN", "")
	t.Setenv("ALARMD_HTTP_ADDR", ":7000")
	t.Setenv("ALARMD_LOG_LEVEL", "")

	m := NewManager(writeFile(t, t.TempDir(), "alarmd.yaml", sampleYAML))
	cfg, err := m.Load()
	require.NoError(t, err)

	assert.Equal(t, "me@example.com", cfg.Notifier.SMTP.Sender)
	assert.Equal(t, "app-secret", cfg.Notifier.SMTP.Password)
	assert.Equal(t, "UTC", cfg.Scheduler.Timezone)
	assert.Equal(t, ":7000", cfg.HTTP.Addr)
	// Empty variables leave the file value alone.
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadDotenv(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, ".env", "ALARMD_HTTP_ADDR=:7100\n")

	// Register cleanup, then clear so the file value is not shadowed.
	t.Setenv("ALARMD_HTTP_ADDR", "")
	require.NoError(t, os.Unsetenv("ALARMD_HTTP_ADDR"))

	require.NoError(t, LoadDotenv(filepath.Join(dir, "missing.env"), p))
	e, err := ReadEnv()
	require.NoError(t, err)
	assert.Equal(t, ":7100", e.HTTPAddr)
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Logging:   LoggingConfig{Level: "loud", File: LoggingFile{Enabled: true}},
		Scheduler: SchedulerConfig{Timezone: "Mars/Olympus", DeliveryTimeout: "soon", MaxPending: -1},
		Notifier:  NotifierConfig{RatePerSec: -1, SMTP: SMTPConfig{Port: 70000}},
		Storage:   &StorageConfig{Driver: "mongo"},
		HTTP:      HTTPConfig{ReadTimeout: "-1s"},
	}
	err := Validate(cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
	for _, want := range []string{
		"logging.level", "logging.file.path", "scheduler.timezone", "scheduler.delivery_timeout",
		"scheduler.max_pending", "notifier.rate_per_sec", "notifier.smtp.port", "storage.driver",
		"http.read_timeout",
	} {
		assert.Contains(t, err.Error(), want)
	}

	require.NoError(t, Validate(&Config{}))
}

func TestParseDurationOrDefault(t *testing.T) {
	d, err := ParseDurationOrDefault("x", "", 3*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, d)

	d, err = ParseDurationOrDefault("x", "250ms", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)

	_, err = ParseDurationOrDefault("x", "nope", time.Second)
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	old := &Config{HTTP: HTTPConfig{Addr: ":8080"}}
	cur := &Config{
		HTTP:     HTTPConfig{Addr: ":9090"},
		Logging:  LoggingConfig{Level: "debug"},
		Notifier: NotifierConfig{SMTP: SMTPConfig{Password: "secret"}},
		Storage:  &StorageConfig{Driver: "file", Path: "x"},
	}
	changed, attrs := Summarize(old, cur)
	assert.Equal(t, []string{"http", "logging", "notifier", "storage"}, changed)
	assert.NotEmpty(t, attrs)
	assert.Equal(t, []string{"http", "storage"}, RestartRequired(changed))

	changed, _ = Summarize(cur, cur)
	assert.Empty(t, changed)
}

func TestReloadSkipsUnchanged(t *testing.T) {
	p := writeFile(t, t.TempDir(), "alarmd.yaml", sampleYAML)
	m := NewManager(p)
	m.SetEnvSource(noEnv)
	_, err := m.Load()
	require.NoError(t, err)

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	changed, err := m.Reload()
	require.NoError(t, err)
	assert.False(t, changed)

	require.NoError(t, os.WriteFile(p, []byte(sampleYAML+"\n  read_timeout: 5s\n"), 0o600))
	changed, err = m.Reload()
	require.NoError(t, err)
	assert.True(t, changed)
	got := <-ch
	assert.Equal(t, "5s", got.HTTP.ReadTimeout)
}

func TestReloadKeepsLastGoodOnInvalid(t *testing.T) {
	p := writeFile(t, t.TempDir(), "alarmd.yaml", sampleYAML)
	m := NewManager(p)
	m.SetEnvSource(noEnv)
	before, err := m.Load()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(p, []byte("scheduler:\n  retention: forever\n"), 0o600))
	_, err = m.Reload()
	require.Error(t, err)
	assert.Same(t, before, m.Get())
}

func TestWatchPublishesChanges(t *testing.T) {
	p := writeFile(t, t.TempDir(), "alarmd.yaml", sampleYAML)
	m := NewManager(p)
	m.SetEnvSource(noEnv)
	_, err := m.Load()
	require.NoError(t, err)

	ch := m.Subscribe(4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(p, []byte(sampleYAML+"\n  write_timeout: 7s\n"), 0o600))

	select {
	case cfg := <-ch:
		assert.Equal(t, "7s", cfg.HTTP.WriteTimeout)
	case <-time.After(5 * time.Second):
		t.Fatal("no config published")
	}

	cancel()
	require.NoError(t, <-done)
	m.Unsubscribe(ch)
}
