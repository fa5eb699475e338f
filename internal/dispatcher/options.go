package dispatcher

import (
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTriggers sets the glob patterns a non-private message must match.
// With no triggers only private messages are dispatched.
func WithTriggers(patterns ...string) Option {
	return func(d *Dispatcher) { d.triggers = append([]string(nil), patterns...) }
}

// WithCron sets the function called once per poll cycle.
func WithCron(fn CronFunc) Option {
	return func(d *Dispatcher) { d.cron = fn }
}

// WithClock sets the clock used for staleness checks and idle sleeps.
func WithClock(c clockwork.Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithPollTimeout sets the long-poll timeout passed to the update source.
func WithPollTimeout(t time.Duration) Option {
	return func(d *Dispatcher) { d.pollTimeout = t }
}

// WithIdleSleep sets the pause after a cycle that did not advance the
// watermark.
func WithIdleSleep(t time.Duration) Option {
	return func(d *Dispatcher) { d.idleSleep = t }
}

// WithStaleAfter sets the age beyond which messages are ignored.
func WithStaleAfter(t time.Duration) Option {
	return func(d *Dispatcher) { d.staleAfter = t }
}

// WithInitialOffset sets the starting watermark. The first poll asks for
// offset+1, so a negative value fetches recent backlog.
func WithInitialOffset(offset int64) Option {
	return func(d *Dispatcher) { d.watermark.Store(offset) }
}

// WithMaxInFlight bounds concurrent request tasks. Requests arriving while
// the bound is reached are dropped. Zero means unbounded.
func WithMaxInFlight(n int) Option {
	return func(d *Dispatcher) { d.maxInFlight = n }
}

// WithAllowedUpdates sets the update types requested from the source.
func WithAllowedUpdates(kinds ...string) Option {
	return func(d *Dispatcher) { d.allowedUpdates = append([]string(nil), kinds...) }
}

// WithBotUsername sets the name used to detect mentions of the bot.
func WithBotUsername(name string) Option {
	return func(d *Dispatcher) { d.botUsername = name }
}
