package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
)

// ErrClosed is returned when a query is issued on a closed connection.
var ErrClosed = errors.New("connection is closed")

// Conn is a single connection owned by one task. It is not safe for
// concurrent use.
type Conn struct {
	conn   *sqlx.Conn
	clock  clockwork.Clock
	logger *slog.Logger
}

// Close returns the connection to the pool. Closing twice is a no-op.
func (c *Conn) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	return nil
}

// KV returns the key-value store bound to this connection.
func (c *Conn) KV() KV {
	return KV{conn: c}
}

// Optimize runs SQLite's query planner maintenance on this connection.
func (c *Conn) Optimize(ctx context.Context) error {
	var cur Cursor
	defer cur.Close()

	if _, err := c.Run(ctx, &cur, "PRAGMA optimize"); err != nil {
		return fmt.Errorf("optimize failed: %w", err)
	}
	for cur.Next() {
	}
	return nil
}
