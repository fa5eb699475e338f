// Package dispatcher runs the long-polling loop: it fetches update batches,
// advances the offset watermark, filters messages through trigger patterns
// and hands each accepted request to a handler on its own goroutine with
// its own database connection.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/edgard/pollbot/internal/database"
	"github.com/edgard/pollbot/internal/glob"
	"github.com/edgard/pollbot/internal/request"
	"github.com/edgard/pollbot/internal/selector"
)

// UpdateSource fetches a batch of updates starting at offset, blocking for
// at most timeout when none are pending. The result is the decoded response
// tree with the batch under ".result".
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration, allowed []string) (any, error)
}

// Handler processes one accepted request. The connection belongs to the
// request task and is closed when Handle returns.
type Handler interface {
	Handle(ctx context.Context, conn *database.Conn, req *request.Request)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, conn *database.Conn, req *request.Request)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, conn *database.Conn, req *request.Request) {
	f(ctx, conn, req)
}

// CronFunc is called once per poll cycle with the loop's own connection.
type CronFunc func(ctx context.Context, conn *database.Conn)

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	StartTime time.Time
	Received  int64
	InFlight  int64
	Watermark int64
}

// Dispatcher owns the poll / filter / spawn loop.
type Dispatcher struct {
	source  UpdateSource
	db      *database.DB
	handler Handler
	cron    CronFunc
	clock   clockwork.Clock
	logger  *slog.Logger

	triggers       []string
	pollTimeout    time.Duration
	idleSleep      time.Duration
	staleAfter     time.Duration
	allowedUpdates []string
	maxInFlight    int
	botUsername    string

	startTime time.Time
	watermark atomic.Int64
	received  atomic.Int64
	inFlight  atomic.Int64
	tasks     errgroup.Group
}

// New creates a dispatcher polling source and dispatching to handler.
func New(source UpdateSource, db *database.DB, handler Handler, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		source:         source,
		db:             db,
		handler:        handler,
		clock:          clockwork.NewRealClock(),
		logger:         slog.Default(),
		pollTimeout:    time.Second,
		idleSleep:      100 * time.Millisecond,
		staleAfter:     5 * time.Minute,
		allowedUpdates: []string{"message"},
	}
	d.watermark.Store(-100)
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "dispatcher")
	if d.maxInFlight > 0 {
		d.tasks.SetLimit(d.maxInFlight)
	}
	d.startTime = d.clock.Now()
	return d
}

// Run polls until ctx is cancelled. The cron function, if any, runs after
// every cycle. When a cycle makes no progress the loop sleeps for the idle
// interval before polling again.
func (d *Dispatcher) Run(ctx context.Context) error {
	var ambient *database.Conn
	if d.cron != nil {
		conn, err := d.db.Conn(ctx)
		if err != nil {
			return fmt.Errorf("failed to open dispatcher connection: %w", err)
		}
		defer conn.Close()
		ambient = conn
	}

	d.logger.InfoContext(ctx, "Dispatcher started",
		"triggers", len(d.triggers),
		"poll_timeout", d.pollTimeout,
		"max_in_flight", d.maxInFlight,
	)

	for {
		if ctx.Err() != nil {
			d.logger.InfoContext(ctx, "Dispatcher stopping", "watermark", d.watermark.Load())
			return nil
		}

		before := d.watermark.Load()
		after := d.ProcessUpdates(ctx)

		if d.cron != nil {
			d.cron(ctx, ambient)
		}

		if after == before {
			select {
			case <-ctx.Done():
			case <-d.clock.After(d.idleSleep):
			}
		}
	}
}

// ProcessUpdates performs one poll cycle and returns the watermark after
// it. Fetch failures leave the watermark unchanged.
func (d *Dispatcher) ProcessUpdates(ctx context.Context) int64 {
	offset := d.watermark.Load() + 1

	tree, err := d.source.GetUpdates(ctx, offset, d.pollTimeout, d.allowedUpdates)
	if err != nil {
		if ctx.Err() == nil {
			d.logger.WarnContext(ctx, "Failed to fetch updates", "offset", offset, "error", err)
		}
		return d.watermark.Load()
	}

	updates, ok := selector.Array(tree, ".result:a")
	if !ok {
		d.logger.WarnContext(ctx, "Update batch has no result array", "offset", offset)
		return d.watermark.Load()
	}

	for _, update := range updates {
		d.processUpdate(ctx, update)
	}
	return d.watermark.Load()
}

func (d *Dispatcher) processUpdate(ctx context.Context, update any) {
	id, ok := selector.Int(update, ".update_id:n")
	if !ok {
		d.logger.DebugContext(ctx, "Skipping update without update_id")
		return
	}
	if id > d.watermark.Load() {
		d.watermark.Store(id)
	}

	msg, ok := selector.Select(update, ".message:o")
	if !ok {
		msg, ok = selector.Select(update, ".channel_post:o")
	}
	if !ok {
		return
	}

	req, err := parseMessage(msg, d.botUsername)
	if err != nil {
		d.logger.DebugContext(ctx, "Skipping malformed update", "error", err)
		return
	}

	if age := d.clock.Since(req.Timestamp); age > d.staleAfter {
		d.logger.DebugContext(ctx, "Skipping stale message", "chat_id", req.ChatID, "age", age)
		return
	}

	if !req.IsPrivate() {
		if req.Text == "" || !glob.MatchAny(d.triggers, req.Text, true) {
			return
		}
	}

	d.dispatch(ctx, req)
}

func (d *Dispatcher) dispatch(ctx context.Context, req *request.Request) {
	d.received.Add(1)

	task := func() error {
		d.runTask(ctx, req)
		return nil
	}
	if d.maxInFlight > 0 {
		if !d.tasks.TryGo(task) {
			d.logger.WarnContext(ctx, "Too many requests in flight, dropping request",
				"chat_id", req.ChatID, "message_id", req.MessageID)
		}
		return
	}
	d.tasks.Go(task)
}

func (d *Dispatcher) runTask(ctx context.Context, req *request.Request) {
	ctx = context.WithoutCancel(ctx)
	d.inFlight.Add(1)
	defer d.inFlight.Add(-1)

	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "Request handler panicked",
				"chat_id", req.ChatID, "panic", r, "stack", string(debug.Stack()))
		}
	}()

	conn, err := d.db.Conn(ctx)
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to open request connection", "chat_id", req.ChatID, "error", err)
		return
	}
	defer conn.Close()

	req.Tokenize()
	d.handler.Handle(ctx, conn, req)
}

// Wait blocks until every request task started so far has returned.
func (d *Dispatcher) Wait() {
	_ = d.tasks.Wait()
}

// Watermark returns the highest update id seen.
func (d *Dispatcher) Watermark() int64 {
	return d.watermark.Load()
}

// Stats returns a snapshot of the dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		StartTime: d.startTime,
		Received:  d.received.Load(),
		InFlight:  d.inFlight.Load(),
		Watermark: d.watermark.Load(),
	}
}
