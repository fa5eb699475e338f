// Package telegram is the update source and outbound collaborator for the
// dispatcher. Outbound calls go through the go-telegram/bot client; the
// long-poll fetch is a raw GET so the dispatcher receives the parsed JSON
// tree it walks with selectors.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot"
)

const defaultServerURL = "https://api.telegram.org"

// Options configures the client.
type Options struct {
	ServerURL      string
	RequestTimeout time.Duration
	// TraceBodies logs raw getUpdates responses at debug level.
	TraceBodies bool
	HTTPClient  *http.Client
}

// Client talks to the Telegram Bot API.
type Client struct {
	api         *bot.Bot
	httpClient  *http.Client
	serverURL   string
	token       string
	timeout     time.Duration
	traceBodies bool
	logger      *slog.Logger

	mu       sync.Mutex
	username string
}

// NewClient creates a Telegram client. No network call is made; the bot
// identity is resolved lazily by Username.
func NewClient(token string, opts Options, logger *slog.Logger) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "telegram_client")

	if opts.ServerURL == "" {
		opts.ServerURL = defaultServerURL
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	serverURL := strings.TrimRight(opts.ServerURL, "/")

	b, err := bot.New(token,
		bot.WithSkipGetMe(),
		bot.WithServerURL(serverURL),
		bot.WithHTTPClient(opts.RequestTimeout, httpClient),
	)
	if err != nil {
		log.Error("Failed to create Telegram bot instance", "error", err)
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	log.Info("Telegram client created", "token_prefix", tokenPrefix(token), "server_url", serverURL)
	return &Client{
		api:         b,
		httpClient:  httpClient,
		serverURL:   serverURL,
		token:       token,
		timeout:     opts.RequestTimeout,
		traceBodies: opts.TraceBodies,
		logger:      log,
	}, nil
}

// Username returns the bot's own username, fetched once with getMe.
func (c *Client) Username(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.username != "" {
		return c.username, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	me, err := c.api.GetMe(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get bot identity: %w", err)
	}
	if me.Username == "" {
		return "", fmt.Errorf("bot identity has no username")
	}

	c.username = me.Username
	c.logger.Info("Resolved bot identity", "username", me.Username, "id", me.ID)
	return c.username, nil
}

func tokenPrefix(token string) string {
	if len(token) <= 8 {
		return "..."
	}
	return token[:8] + "..."
}
