// Package log wraps log/slog with component-tagged loggers and the
// field-name constants used across the application.
package log

import (
	"log/slog"
	"os"
)

// Logger is a slog.Logger whose records always carry a component field.
// The field is bound once at construction, so the standard level methods
// inherited from slog.Logger need no overrides.
type Logger struct {
	*slog.Logger
	base      *slog.Logger
	component string
}

// Config holds logger configuration.
type Config struct {
	Level     slog.Level
	Component string
	Handler   slog.Handler
}

// DefaultConfig returns sensible defaults for logging.
func DefaultConfig() Config {
	return Config{
		Level:     slog.LevelInfo,
		Component: ComponentApp,
	}
}

// New creates a logger from config, falling back to a text handler on
// stdout when no handler is given.
func New(config Config) *Logger {
	handler := config.Handler
	if handler == nil {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.Level,
		})
	}
	base := slog.New(handler)
	return &Logger{
		Logger:    base.With(FieldComponent, config.Component),
		base:      base,
		component: config.Component,
	}
}

// With returns a logger carrying the given extra attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger:    l.Logger.With(args...),
		base:      l.base,
		component: l.component,
	}
}

// WithComponent returns a logger tagged with a different component name.
// The new logger drops attributes added through With.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger:    l.base.With(FieldComponent, component),
		base:      l.base,
		component: component,
	}
}

// Component returns the logger's component name.
func (l *Logger) Component() string {
	return l.component
}

// SetDefault installs the logger as the process-wide slog default so
// package-level slog calls inherit its handler.
func SetDefault(logger *Logger) {
	slog.SetDefault(logger.Logger)
}
