package handlers

import (
	"context"

	"github.com/edgard/pollbot/internal/database"
	"github.com/edgard/pollbot/internal/dispatcher"
	"github.com/edgard/pollbot/internal/request"
)

// PrivateOnly creates a middleware that only lets requests from private
// chats through. Other requests are dropped silently.
func PrivateOnly(deps HandlerDeps) Middleware {
	return func(next dispatcher.Handler) dispatcher.Handler {
		return dispatcher.HandlerFunc(func(ctx context.Context, conn *database.Conn, req *request.Request) {
			if !req.IsPrivate() {
				deps.Logger.DebugContext(ctx, "Ignoring command outside a private chat", "chat_id", req.ChatID, "kind", req.Kind.String())
				return
			}
			next.Handle(ctx, conn, req)
		})
	}
}
