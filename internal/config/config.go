// Package config loads the bot configuration from defaults, an optional
// YAML file, POLLBOT_* environment variables and command line flags.
package config

import (
	"errors"
	"time"
)

// ErrMissingToken is returned when no bot token is available from any
// source, including the token file.
var ErrMissingToken = errors.New("no telegram bot token configured")

// Config is the full application configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
}

type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token" validate:"required"`
	// TokenFile is read when Token is empty. Only its first line is used.
	TokenFile      string        `mapstructure:"token_file"`
	ServerURL      string        `mapstructure:"server_url"      validate:"required,url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"min=1s"`
	TraceBodies    bool          `mapstructure:"trace_bodies"`
}

type DatabaseConfig struct {
	Path         string        `mapstructure:"path"           validate:"required"`
	MaxOpenConns int           `mapstructure:"max_open_conns" validate:"min=1"`
	BusyTimeout  time.Duration `mapstructure:"busy_timeout"   validate:"min=0"`
}

// DispatcherConfig controls the poll loop. Triggers are glob patterns a
// non-private message must match to be dispatched.
type DispatcherConfig struct {
	Triggers       []string      `mapstructure:"triggers"`
	PollTimeout    time.Duration `mapstructure:"poll_timeout"    validate:"min=0"`
	IdleSleep      time.Duration `mapstructure:"idle_sleep"      validate:"min=0"`
	StaleAfter     time.Duration `mapstructure:"stale_after"     validate:"min=1s"`
	InitialOffset  int64         `mapstructure:"initial_offset"`
	MaxInFlight    int           `mapstructure:"max_in_flight"   validate:"min=0"`
	AllowedUpdates []string      `mapstructure:"allowed_updates" validate:"dive,required"`
}

type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks" validate:"dive"`
}

// TaskConfig enables a scheduled task. Schedule is a cron expression with
// a leading seconds field.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule" validate:"required_if=Enabled true"`
}

// ApplyVerbosity raises logging detail for each -v given on the command
// line: one enables debug logging, two also logs raw API responses.
func (c *Config) ApplyVerbosity(count int) {
	if count >= 1 {
		c.Logger.Level = "debug"
	}
	if count >= 2 {
		c.Telegram.TraceBodies = true
	}
}
