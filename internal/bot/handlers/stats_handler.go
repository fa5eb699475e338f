package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/edgard/pollbot/internal/database"
	"github.com/edgard/pollbot/internal/dispatcher"
	"github.com/edgard/pollbot/internal/request"
)

// NewStatsHandler returns a handler for the !stats command.
func NewStatsHandler(deps HandlerDeps) dispatcher.Handler {
	return dispatcher.HandlerFunc(statsHandler{deps}.Handle)
}

type statsHandler struct {
	deps HandlerDeps
}

func (h statsHandler) Handle(ctx context.Context, _ *database.Conn, req *request.Request) {
	if h.deps.Stats == nil {
		return
	}
	stats := h.deps.Stats()
	uptime := h.deps.Clock.Since(stats.StartTime).Truncate(time.Second)

	text := fmt.Sprintf("Up for %s. Requests received: %d, in flight: %d.", uptime, stats.Received, stats.InFlight)
	if _, ok := h.deps.Messenger.SendMessage(ctx, req.ChatID, text, 0); !ok {
		h.deps.Logger.WarnContext(ctx, "Failed to send stats", "chat_id", req.ChatID)
	}
}
