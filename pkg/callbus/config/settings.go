package config

import (
	"fmt"
	"log/slog"
	"runtime"
	"strings"
)

// Store drivers understood by record.Open.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverBolt   = "bolt"
)

// Settings is the typed configuration consumed by the bus and the CLI.
type Settings struct {
	// Workers is the size of the async callback worker pool.
	Workers int

	// QueueSize bounds the async task queue.
	QueueSize int

	// RecorderBuffer bounds the persistence write queue.
	RecorderBuffer int

	// StoreDriver selects the record backend ("memory", "sqlite", "bolt").
	// Empty disables persistence.
	StoreDriver string

	// StorePath is the database file for sqlite and bolt.
	StorePath string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	// Metrics enables OpenTelemetry metrics.
	Metrics bool

	// Tracing enables OpenTelemetry tracing.
	Tracing bool
}

// DefaultSettings returns the settings used when a key is absent.
func DefaultSettings() Settings {
	return Settings{
		Workers:        runtime.NumCPU(),
		QueueSize:      1024,
		RecorderBuffer: 1024,
		LogLevel:       "info",
	}
}

// SettingsFrom extracts Settings from a Config, falling back to defaults.
func SettingsFrom(c Config) (Settings, error) {
	def := DefaultSettings()
	store := c.Sub("store")

	s := Settings{
		Workers:        c.Int("workers", def.Workers),
		QueueSize:      c.Int("queue_size", def.QueueSize),
		RecorderBuffer: c.Sub("recorder").Int("buffer", def.RecorderBuffer),
		StoreDriver:    strings.ToLower(store.String("driver", def.StoreDriver)),
		StorePath:      store.String("path", def.StorePath),
		LogLevel:       strings.ToLower(c.Sub("log").String("level", def.LogLevel)),
		Metrics:        c.Sub("metrics").Bool("enabled", def.Metrics),
		Tracing:        c.Sub("tracing").Bool("enabled", def.Tracing),
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Load reads a config file and extracts Settings from it.
func Load(path string) (Settings, error) {
	c, err := FromFile(path)
	if err != nil {
		return Settings{}, err
	}
	return SettingsFrom(c)
}

// Validate reports the first invalid field.
func (s Settings) Validate() error {
	if s.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", s.Workers)
	}
	if s.QueueSize <= 0 {
		return fmt.Errorf("queue_size must be positive, got %d", s.QueueSize)
	}
	if s.RecorderBuffer <= 0 {
		return fmt.Errorf("recorder.buffer must be positive, got %d", s.RecorderBuffer)
	}
	switch s.StoreDriver {
	case "", DriverMemory:
	case DriverSQLite, DriverBolt:
		if s.StorePath == "" {
			return fmt.Errorf("store.path is required for driver %s", s.StoreDriver)
		}
	default:
		return fmt.Errorf("unknown store driver: %s", s.StoreDriver)
	}
	switch s.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level: %s", s.LogLevel)
	}
	return nil
}

// SlogLevel maps LogLevel onto slog levels.
func (s Settings) SlogLevel() slog.Level {
	switch s.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
