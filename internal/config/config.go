// Package config loads and validates ledgerline configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Backend names.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// DefaultDatabasePath is used when database.path is unset.
const DefaultDatabasePath = "$HOME/.local/share/ledgerline/ledgerline.db"

// Config is the typed view of the viper configuration.
type Config struct {
	Database DatabaseConfig
	Feed     FeedConfig
	Logging  LoggingConfig
	Cache    CacheConfig
}

// DatabaseConfig selects and locates the ledger store.
type DatabaseConfig struct {
	Backend string
	Path    string
}

// FeedConfig enables cross-process change notifications. An empty URL
// keeps the feed in-process.
type FeedConfig struct {
	AMQPURL  string
	Exchange string
}

// LoggingConfig controls the global slog handler.
type LoggingConfig struct {
	Level  string
	Format string
}

// CacheConfig sizes the active budget cache.
type CacheConfig struct {
	Size int
	TTL  time.Duration
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.backend", BackendSQLite)
	v.SetDefault("database.path", DefaultDatabasePath)
	v.SetDefault("feed.amqp_url", "")
	v.SetDefault("feed.exchange", "ledgerline.changes")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("cache.size", 1024)
	v.SetDefault("cache.ttl", 5*time.Minute)
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are ignored; existing variables win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the typed configuration from v.
func Load(v *viper.Viper) *Config {
	return &Config{
		Database: DatabaseConfig{
			Backend: strings.ToLower(v.GetString("database.backend")),
			Path:    ExpandPath(v.GetString("database.path")),
		},
		Feed: FeedConfig{
			AMQPURL:  v.GetString("feed.amqp_url"),
			Exchange: v.GetString("feed.exchange"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
		Cache: CacheConfig{
			Size: v.GetInt("cache.size"),
			TTL:  v.GetDuration("cache.ttl"),
		},
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var problems []string

	switch c.Database.Backend {
	case BackendSQLite:
		if c.Database.Path == "" {
			problems = append(problems, "database.path cannot be empty when using the sqlite backend")
		}
	case BackendMemory:
	default:
		problems = append(problems, fmt.Sprintf("invalid database.backend '%s': must be one of [%s %s]",
			c.Database.Backend, BackendSQLite, BackendMemory))
	}

	if c.Feed.AMQPURL != "" {
		if parsed, err := url.Parse(c.Feed.AMQPURL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid feed.amqp_url: %v", err))
		} else if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
			problems = append(problems, fmt.Sprintf("invalid feed.amqp_url scheme '%s': must be 'amqp' or 'amqps'", parsed.Scheme))
		}
		if c.Feed.Exchange == "" {
			problems = append(problems, "feed.exchange cannot be empty when feed.amqp_url is set")
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("invalid logging.level '%s'", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("invalid logging.format '%s'", c.Logging.Format))
	}

	if c.Cache.Size < 1 {
		problems = append(problems, fmt.Sprintf("invalid cache.size %d: must be at least 1", c.Cache.Size))
	}
	if c.Cache.TTL < 0 {
		problems = append(problems, fmt.Sprintf("invalid cache.ttl %v: must not be negative", c.Cache.TTL))
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

// ExpandPath resolves a leading ~ to the home directory and expands
// $VAR references.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	return os.ExpandEnv(path)
}
