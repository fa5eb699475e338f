package handlers

import (
	"context"
	"fmt"

	"github.com/edgard/pollbot/internal/database"
	"github.com/edgard/pollbot/internal/dispatcher"
	"github.com/edgard/pollbot/internal/request"
)

// NewEchoHandler returns a handler that acknowledges every request and
// edits the acknowledgement after a short delay.
func NewEchoHandler(deps HandlerDeps) dispatcher.Handler {
	return dispatcher.HandlerFunc(echoHandler{deps}.Handle)
}

// echoHandler processes every request using injected dependencies.
type echoHandler struct {
	deps HandlerDeps
}

func (h echoHandler) Handle(ctx context.Context, _ *database.Conn, req *request.Request) {
	log := h.deps.Logger.With("handler", "echo", "chat_id", req.ChatID)

	where := "publicly"
	if req.IsPrivate() {
		where = "privately"
	}

	sent, ok := h.deps.Messenger.SendMessage(ctx, req.ChatID, fmt.Sprintf("I just %s received: %s", where, req.Text), 0)
	if !ok {
		log.WarnContext(ctx, "Failed to send acknowledgement")
		return
	}
	log.DebugContext(ctx, "Sent acknowledgement", "sent_chat_id", sent.ChatID, "sent_message_id", sent.MessageID)

	if h.deps.EditDelay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-h.deps.Clock.After(h.deps.EditDelay):
		}
	}

	if !h.deps.Messenger.EditMessageText(ctx, sent.ChatID, sent.MessageID, fmt.Sprintf("I just %s received: %s :D", where, req.Text)) {
		log.WarnContext(ctx, "Failed to edit acknowledgement", "message_id", sent.MessageID)
	}

	log.DebugContext(ctx, "Request details",
		"args", req.Arguments,
		"mentions", req.Mentions,
		"mentions_bot", req.MentionsBot,
	)
}
