package tasks

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/pollbot/internal/database"
)

func newDeps(t *testing.T, clock clockwork.Clock) TaskDeps {
	t.Helper()

	db, err := database.Open(context.Background(), filepath.Join(t.TempDir(), "tasks.sqlite"), database.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return TaskDeps{Logger: slog.New(slog.NewTextHandler(io.Discard, nil)), DB: db}
}

func TestRegisterAllTasks(t *testing.T) {
	t.Parallel()

	tasks := RegisterAllTasks(newDeps(t, clockwork.NewRealClock()))
	assert.Len(t, tasks, 2)
	assert.Contains(t, tasks, "sql_maintenance")
	assert.Contains(t, tasks, "kv_expire")
}

func TestKVExpireTask(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	clock := clockwork.NewFakeClock()
	deps := newDeps(t, clock)

	conn, err := deps.DB.Conn(ctx)
	require.NoError(t, err)
	defer conn.Close()

	kv := conn.KV()
	require.True(t, kv.SetString(ctx, "temp", "x", time.Minute))
	require.True(t, kv.SetString(ctx, "keep", "y", 0))

	task := newKVExpireTask(deps)
	require.NoError(t, task(ctx))
	assert.Equal(t, int64(2), conn.SelectInt(ctx, "SELECT COUNT(*) FROM KeyValue"))

	clock.Advance(time.Hour)
	require.NoError(t, task(ctx))
	assert.Equal(t, int64(1), conn.SelectInt(ctx, "SELECT COUNT(*) FROM KeyValue"))
}

func TestSQLMaintenanceTask(t *testing.T) {
	t.Parallel()

	deps := newDeps(t, clockwork.NewRealClock())
	assert.NoError(t, newSQLMaintenanceTask(deps)(context.Background()))

	require.NoError(t, deps.DB.Close())
	assert.Error(t, newSQLMaintenanceTask(deps)(context.Background()))
}
