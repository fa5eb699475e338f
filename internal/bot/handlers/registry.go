package handlers

import (
	"context"
	"log/slog"

	"github.com/edgard/pollbot/internal/database"
	"github.com/edgard/pollbot/internal/dispatcher"
	"github.com/edgard/pollbot/internal/glob"
	"github.com/edgard/pollbot/internal/request"
)

// Middleware wraps a handler.
type Middleware func(dispatcher.Handler) dispatcher.Handler

// RegisteredHandler binds a handler to the glob pattern its request text
// must match (case-insensitively).
type RegisteredHandler struct {
	Name       string
	Pattern    string
	Handler    dispatcher.Handler
	Middleware []Middleware
}

// RegisterAllHandlers returns the sample handlers in the order they run.
func RegisterAllHandlers(deps HandlerDeps) []RegisteredHandler {
	return []RegisteredHandler{
		{Name: "echo", Pattern: "*", Handler: NewEchoHandler(deps)},
		{Name: "voice", Pattern: "*", Handler: NewVoiceHandler(deps)},
		{Name: "remember", Pattern: "* is *", Handler: NewRememberHandler(deps)},
		{Name: "recall", Pattern: `*\?`, Handler: NewRecallHandler(deps)},
		{
			Name:       "stats",
			Pattern:    "!stats",
			Handler:    NewStatsHandler(deps),
			Middleware: []Middleware{PrivateOnly(deps)},
		},
	}
}

// applyMiddleware wraps a handler with a slice of middleware.
// Middleware are applied in reverse order so the first one in the slice is the outermost.
func applyMiddleware(handler dispatcher.Handler, mw []Middleware) dispatcher.Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		handler = mw[i](handler)
	}
	return handler
}

type route struct {
	name    string
	pattern string
	handler dispatcher.Handler
}

// router runs every registered handler whose pattern matches the request
// text, in registration order.
type router struct {
	logger *slog.Logger
	routes []route
}

// NewRouter builds the dispatcher handler for the registered handlers.
func NewRouter(logger *slog.Logger, registered []RegisteredHandler) dispatcher.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "handler_registry")

	r := &router{logger: log}
	for _, reg := range registered {
		if reg.Handler == nil {
			log.Warn("Skipping registration for nil handler", "name", reg.Name)
			continue
		}
		r.routes = append(r.routes, route{
			name:    reg.Name,
			pattern: reg.Pattern,
			handler: applyMiddleware(reg.Handler, reg.Middleware),
		})
		log.Debug("Registered handler", "name", reg.Name, "pattern", reg.Pattern, "middleware_count", len(reg.Middleware))
	}
	log.Info("Registered request handlers", "count", len(r.routes))
	return r
}

func (r *router) Handle(ctx context.Context, conn *database.Conn, req *request.Request) {
	for _, rt := range r.routes {
		if !glob.Match(rt.pattern, req.Text, true) {
			continue
		}
		r.logger.DebugContext(ctx, "Running handler", "name", rt.name, "chat_id", req.ChatID)
		rt.handler.Handle(ctx, conn, req)
	}
}
