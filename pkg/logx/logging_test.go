package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZeroLoggerIsNop(t *testing.T) {
	t.Parallel()

	var l Logger
	require.True(t, l.IsZero())
	l.Info("dropped", String("k", "v"))
	require.False(t, l.With(String("a", "b")).IsZero())
}

func TestWriterLoggerFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := NewWriter(&buf, "debug").With(String("comp", "scheduler"))
	l.Warn("job failed", String("id", "j1"), Err(errors.New("boom")), Int("n", 3))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "warn", rec["level"])
	assert.Equal(t, "job failed", rec["message"])
	assert.Equal(t, "scheduler", rec["comp"])
	assert.Equal(t, "j1", rec["id"])
	assert.Equal(t, "boom", rec["err"])
	assert.EqualValues(t, 3, rec["n"])
	assert.Contains(t, rec["caller"], "logging_test.go:")
}

func TestWriterLoggerLevelFilter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := NewWriter(&buf, "warn")
	l.Info("hidden")
	require.Zero(t, buf.Len())
	require.False(t, l.Enabled(LevelDebug))
	require.True(t, l.Enabled(LevelError))
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]Level{
		"trace":    LevelTrace,
		" DEBUG ":  LevelDebug,
		"warning":  LevelWarn,
		"error":    LevelError,
		"":         LevelInfo,
		"nonsense": LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in, LevelInfo); got != want {
			t.Fatalf("ParseLevel(%q)=%v want %v", in, got, want)
		}
	}
}

func TestServiceApplyFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alarmd.log")

	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}})
	t.Cleanup(func() { _ = svc.Close() })

	log.Info("first")
	svc.Apply(Config{Level: "error", File: FileConfig{Enabled: true, Path: path}})
	log.Info("suppressed after reload")
	log.Error("second")
	require.NoError(t, svc.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "first")
	assert.Contains(t, string(b), "second")
	assert.NotContains(t, string(b), "suppressed")
	assert.Equal(t, "error", svc.Config().Level)
}
