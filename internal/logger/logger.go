// Package logger provides structured logging for the bot.
// It uses Go's slog package with configurable levels and formats.
package logger

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/edgard/pollbot/internal/database"
	"github.com/edgard/pollbot/internal/dispatcher"
	"github.com/edgard/pollbot/internal/request"
)

// NewLogger creates a new slog Logger with the specified level and format.
// If jsonOutput is true, logs will be formatted as JSON, otherwise as text.
func NewLogger(levelStr string, jsonOutput bool) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// Middleware wraps a request handler with logging. Each request gets a
// request_id so the start and finish lines can be correlated.
func Middleware(log *slog.Logger, next dispatcher.Handler) dispatcher.Handler {
	return dispatcher.HandlerFunc(func(ctx context.Context, conn *database.Conn, req *request.Request) {
		startTime := time.Now()

		logEntry := log.With(
			"request_id", uuid.NewString(),
			"kind", req.Kind.String(),
			"chat_id", req.ChatID,
			"message_id", req.MessageID,
			"sender", req.SenderName,
			"args", len(req.Arguments),
			"text_preview", truncateString(req.Text, 50),
		)
		if req.HasAttachment() {
			logEntry = logEntry.With("attachment", req.Attachment.Kind.String())
		}

		logEntry.InfoContext(ctx, "Processing request")

		next.Handle(ctx, conn, req)

		duration := time.Since(startTime)
		logEntry.InfoContext(ctx, "Finished processing request", "duration", duration)
	})
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return string(r[:maxLen-3]) + "..."
}
