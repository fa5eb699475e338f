// Package handlers contains the sample request handlers and the router
// that runs them for each dispatched request.
package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/edgard/pollbot/internal/dispatcher"
	"github.com/edgard/pollbot/internal/telegram"
)

// Messenger is the outbound side of the chat service.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string, replyTo int) (telegram.SentMessage, bool)
	EditMessageText(ctx context.Context, chatID int64, messageID int, text string) bool
	GetFile(ctx context.Context, fileID, target string) bool
}

// HandlerDeps provides dependencies for request handlers.
type HandlerDeps struct {
	Logger    *slog.Logger
	Messenger Messenger
	Clock     clockwork.Clock
	// Stats reports dispatcher counters for the !stats command.
	Stats func() dispatcher.Stats
	// EditDelay is how long the echo handler waits before editing its reply.
	EditDelay time.Duration
	// DownloadDir receives downloaded voice notes.
	DownloadDir string
}
