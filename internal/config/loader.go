package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	envPrefix         = "POLLBOT"
	defaultConfigPath = "config.yaml"
)

// Usage is printed when the bot cannot start for lack of a token.
const Usage = "Usage: pollbot [-v|--verbose ...] [--apikey <apikey>] [--dbfile <filename>] [--config <file>]"

// RegisterFlags defines the command line flags understood by Load.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("config", defaultConfigPath, "path to the YAML configuration file")
	flags.String("apikey", "", "Telegram bot token (overrides telegram.token)")
	flags.String("dbfile", "", "SQLite database file (overrides database.path)")
	flags.CountP("verbose", "v", "increase verbosity; repeat to log raw API responses")
}

// Load builds the configuration. Precedence, highest first: flags,
// environment, config file, defaults. A missing config file is only an
// error when its path was given explicitly.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path, explicit := defaultConfigPath, false
	if flags != nil {
		if f := flags.Lookup("config"); f != nil {
			path, explicit = f.Value.String(), f.Changed
		}
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
			slog.Debug("Config file not found, using defaults and environment", "path", path)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if flags != nil {
		if count, err := flags.GetCount("verbose"); err == nil {
			cfg.ApplyVerbosity(count)
		}
	}

	if cfg.Telegram.Token == "" {
		token, err := readTokenFile(cfg.Telegram.TokenFile)
		if err != nil {
			return nil, err
		}
		cfg.Telegram.Token = token
	}
	if cfg.Telegram.Token == "" {
		return nil, ErrMissingToken
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for key, name := range map[string]string{
		"telegram.token": "apikey",
		"database.path":  "dbfile",
	} {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return nil
}

// readTokenFile returns the trimmed first line of path, or "" when the
// file does not exist.
func readTokenFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to open token file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if sc.Scan() {
		return strings.TrimSpace(sc.Text()), nil
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	return "", nil
}
