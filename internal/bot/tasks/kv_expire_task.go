package tasks

import (
	"context"
	"fmt"
)

// newKVExpireTask removes expired key-value entries.
func newKVExpireTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "kv_expire")

	return func(ctx context.Context) error {
		conn, err := deps.DB.Conn(ctx)
		if err != nil {
			return fmt.Errorf("kv expire: %w", err)
		}
		defer conn.Close()

		removed := conn.KV().Sweep(ctx)
		if removed > 0 {
			log.InfoContext(ctx, "Removed expired keys", "count", removed)
		} else {
			log.DebugContext(ctx, "No expired keys")
		}
		return nil
	}
}
