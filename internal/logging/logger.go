// Package logging builds the zerolog logger shared by every component.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Level is the minimum log level.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format selects console or JSON output.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// Config holds logger configuration
type Config struct {
	Level  Level  `mapstructure:"level"`
	Format Format `mapstructure:"format"`
	App    string `mapstructure:"app"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{Level: LevelInfo, Format: FormatConsole, App: "digital-human"}
}

// New creates a logger writing to stdout.
func New(cfg Config) zerolog.Logger {
	return NewWithWriter(cfg, os.Stdout)
}

// NewWithWriter creates a logger writing to out.
func NewWithWriter(cfg Config, out io.Writer) zerolog.Logger {
	if cfg.App == "" {
		cfg.App = DefaultConfig().App
	}

	writer := out
	if cfg.Format != FormatJSON {
		writer = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	return zerolog.New(writer).
		Level(ParseLevel(string(cfg.Level))).
		With().
		Timestamp().
		Str("app", cfg.App).
		Logger()
}

// ParseLevel maps a level name to zerolog; unknown names mean info.
func ParseLevel(raw string) zerolog.Level {
	switch Level(strings.ToLower(strings.TrimSpace(raw))) {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Component returns a sub-logger tagged with the component name.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}
