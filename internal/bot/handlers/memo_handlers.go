package handlers

import (
	"context"
	"strings"

	"github.com/edgard/pollbot/internal/database"
	"github.com/edgard/pollbot/internal/dispatcher"
	"github.com/edgard/pollbot/internal/request"
)

const rememberedReply = "Ok, I'll remember."

// NewRememberHandler returns a handler that stores "X is Y" messages under
// the key X.
func NewRememberHandler(deps HandlerDeps) dispatcher.Handler {
	return dispatcher.HandlerFunc(rememberHandler{deps}.Handle)
}

type rememberHandler struct {
	deps HandlerDeps
}

func (h rememberHandler) Handle(ctx context.Context, conn *database.Conn, req *request.Request) {
	if len(req.Arguments) < 3 || !strings.EqualFold(req.Arguments[1], "is") {
		return
	}
	log := h.deps.Logger.With("handler", "remember", "chat_id", req.ChatID)

	key := req.Arguments[0]
	if !conn.KV().SetString(ctx, key, req.Text, 0) {
		log.ErrorContext(ctx, "Failed to store fact", "key", key)
		return
	}
	log.InfoContext(ctx, "Stored fact", "key", key)

	if _, ok := h.deps.Messenger.SendMessage(ctx, req.ChatID, rememberedReply, int(req.MessageID)); !ok {
		log.WarnContext(ctx, "Failed to confirm stored fact")
	}
}

// NewRecallHandler returns a handler that answers "X?" with the fact
// stored under X, if any.
func NewRecallHandler(deps HandlerDeps) dispatcher.Handler {
	return dispatcher.HandlerFunc(recallHandler{deps}.Handle)
}

type recallHandler struct {
	deps HandlerDeps
}

func (h recallHandler) Handle(ctx context.Context, conn *database.Conn, req *request.Request) {
	if len(req.Arguments) != 1 || !strings.HasSuffix(req.Text, "?") {
		return
	}
	log := h.deps.Logger.With("handler", "recall", "chat_id", req.ChatID)

	key := strings.TrimSuffix(req.Text, "?")
	fact, ok := conn.KV().GetString(ctx, key)
	if !ok {
		log.DebugContext(ctx, "No fact stored", "key", key)
		return
	}

	if _, ok := h.deps.Messenger.SendMessage(ctx, req.ChatID, fact, 0); !ok {
		log.WarnContext(ctx, "Failed to send fact", "key", key)
	}
}
