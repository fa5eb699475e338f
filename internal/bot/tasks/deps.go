// Package tasks implements the wall-clock scheduled maintenance tasks.
package tasks

import (
	"log/slog"

	"github.com/edgard/pollbot/internal/database"
)

// TaskDeps contains the dependencies shared by scheduled tasks.
type TaskDeps struct {
	Logger *slog.Logger
	DB     *database.DB
}
