package database_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/edgard/pollbot/internal/database"
)

var epoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func openTestDB(t *testing.T, opts ...database.Option) (*database.DB, *clockwork.FakeClock) {
	t.Helper()

	clock := clockwork.NewFakeClockAt(epoch)
	opts = append([]database.Option{database.WithClock(clock)}, opts...)

	db, err := database.Open(context.Background(), filepath.Join(t.TempDir(), "test.sqlite"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, clock
}

func openTestConn(t *testing.T, db *database.DB) *database.Conn {
	t.Helper()

	conn, err := db.Conn(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}
