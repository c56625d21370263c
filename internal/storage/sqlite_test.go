//go:build sqlite

package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "alarmd/pkg/logx"
)

func TestSQLiteStore(t *testing.T) {
	t.Parallel()

	st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "alarmd.db"), BusyTimeout: time.Second}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	failed := outcome("a", base)
	failed.State = "failed"
	failed.Error = "smtp: dial: refused"
	failed.FiredAt = base
	require.NoError(t, st.AppendOutcome(ctx, failed))
	require.NoError(t, st.AppendOutcome(ctx, outcome("b", base.Add(time.Hour))))

	got, err := st.RecentOutcomes(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].JobID)
	assert.Equal(t, "smtp: dial: refused", got[1].Error)
	assert.True(t, got[1].FiredAt.Equal(base))

	n, err := st.Prune(ctx, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
