// Package main contains the entrypoint for the long-polling Telegram bot.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/pflag"

	"github.com/edgard/pollbot/internal/bot"
	"github.com/edgard/pollbot/internal/bot/handlers"
	"github.com/edgard/pollbot/internal/bot/tasks"
	"github.com/edgard/pollbot/internal/config"
	"github.com/edgard/pollbot/internal/database"
	"github.com/edgard/pollbot/internal/dispatcher"
	"github.com/edgard/pollbot/internal/logger"
	"github.com/edgard/pollbot/internal/telegram"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx, os.Args[1:])
	stop() // Ensure context cancellation is signaled before exit
	os.Exit(exitCode)
}

// run initializes and starts all application components (config, logger, db,
// telegram client, dispatcher, scheduler), handles graceful shutdown, and
// returns an exit code (0 for success, 1 for failure).
func run(ctx context.Context, args []string) int {
	flags := pflag.NewFlagSet("pollbot", pflag.ContinueOnError)
	config.RegisterFlags(flags)
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, config.Usage)
		return 1
	}

	cfg, err := config.Load(flags)
	if err != nil {
		if errors.Is(err, config.ErrMissingToken) {
			fmt.Fprintln(os.Stderr, config.Usage)
			fmt.Fprintln(os.Stderr, "Provide the bot token with --apikey, POLLBOT_TELEGRAM_TOKEN or the token file.")
			return 1
		}
		slog.Error("Failed to load configuration", "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	clock := clockwork.NewRealClock()

	db, err := database.Open(ctx, cfg.Database.Path,
		database.WithClock(clock),
		database.WithLogger(log),
		database.WithMaxOpenConns(cfg.Database.MaxOpenConns),
		database.WithBusyTimeout(cfg.Database.BusyTimeout),
	)
	if err != nil {
		log.Error("Failed to open database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", "error", err)
		}
	}()

	tg, err := telegram.NewClient(cfg.Telegram.Token, telegram.Options{
		ServerURL:      cfg.Telegram.ServerURL,
		RequestTimeout: cfg.Telegram.RequestTimeout,
		TraceBodies:    cfg.Telegram.TraceBodies,
	}, log)
	if err != nil {
		log.Error("Failed to create Telegram client", "error", err)
		return 1
	}

	username, err := tg.Username(ctx)
	if err != nil {
		log.Error("Failed to get bot info", "error", err)
		return 1
	}

	var disp *dispatcher.Dispatcher
	hDeps := handlers.HandlerDeps{
		Logger:      log,
		Messenger:   tg,
		Clock:       clock,
		Stats:       func() dispatcher.Stats { return disp.Stats() },
		EditDelay:   time.Second,
		DownloadDir: ".",
	}
	router := handlers.NewRouter(log, handlers.RegisterAllHandlers(hDeps))

	disp = dispatcher.New(tg, db, logger.Middleware(log, router),
		dispatcher.WithLogger(log),
		dispatcher.WithClock(clock),
		dispatcher.WithTriggers(cfg.Dispatcher.Triggers...),
		dispatcher.WithPollTimeout(cfg.Dispatcher.PollTimeout),
		dispatcher.WithIdleSleep(cfg.Dispatcher.IdleSleep),
		dispatcher.WithStaleAfter(cfg.Dispatcher.StaleAfter),
		dispatcher.WithInitialOffset(cfg.Dispatcher.InitialOffset),
		dispatcher.WithMaxInFlight(cfg.Dispatcher.MaxInFlight),
		dispatcher.WithAllowedUpdates(cfg.Dispatcher.AllowedUpdates...),
		dispatcher.WithBotUsername(username),
	)

	tDeps := tasks.TaskDeps{
		Logger: log,
		DB:     db,
	}
	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps), clock)
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}
	app := bot.NewBot(log, disp, sched)

	log.Info("Starting bot...", "username", username, "triggers", cfg.Dispatcher.Triggers)
	runErr := app.Run(ctx) // Run blocks until context is cancelled or an error occurs
	log.Info("Bot run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		return 1
	}

	log.Info("Bot stopped gracefully.")
	return 0
}
