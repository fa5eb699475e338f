// Package bot wires the dispatcher and the maintenance scheduler together
// and manages their lifecycle.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/edgard/pollbot/internal/dispatcher"
)

// Bot represents the main bot application and manages its components' lifecycle.
type Bot struct {
	logger     *slog.Logger
	dispatcher *dispatcher.Dispatcher
	scheduler  *Scheduler
}

// NewBot creates a bot running disp and sched.
func NewBot(logger *slog.Logger, disp *dispatcher.Dispatcher, sched *Scheduler) *Bot {
	return &Bot{
		logger:     logger.With("component", "bot_orchestrator"),
		dispatcher: disp,
		scheduler:  sched,
	}
}

// Run starts the dispatcher and the scheduler and blocks until ctx is
// cancelled or a component fails. Before returning it waits for request
// tasks that are still running.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Starting bot orchestrator...")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b.logger.Info("Starting dispatcher...")

		if err := b.dispatcher.Run(gCtx); err != nil {
			return fmt.Errorf("dispatcher failed: %w", err)
		}
		b.logger.Info("Dispatcher stopped.")

		if gCtx.Err() == nil {
			b.logger.Warn("Dispatcher stopped unexpectedly without context cancellation.")
			return fmt.Errorf("dispatcher stopped unexpectedly")
		}
		return nil
	})

	g.Go(func() error {
		b.logger.Info("Starting scheduler...")
		if err := b.scheduler.Start(); err != nil {
			b.logger.Error("Failed to start scheduler", "error", err)
			return fmt.Errorf("failed to start scheduler: %w", err)
		}

		<-gCtx.Done()
		b.logger.Info("Shutdown signal received, stopping scheduler...")

		if err := b.scheduler.Stop(); err != nil {
			b.logger.Error("Error stopping scheduler", "error", err)
		}

		return nil
	})

	b.logger.Info("Bot orchestrator running. Waiting for shutdown signal or error...")
	err := g.Wait()

	stats := b.dispatcher.Stats()
	b.logger.Info("Waiting for in-flight requests...", "in_flight", stats.InFlight)
	b.dispatcher.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Bot orchestrator stopped due to error", "error", err)
		return err
	}

	b.logger.Info("Bot orchestrator stopped gracefully.", "received", stats.Received)
	return nil
}
