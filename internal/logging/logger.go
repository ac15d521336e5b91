// Package logging builds the zerolog loggers every component receives.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Config holds logger configuration
type Config struct {
	Level       string `json:"level"`
	Output      string `json:"output"` // "stdout", "stderr", or file path
	Component   string `json:"component"`
	IncludeFile bool   `json:"include_file"` // Include file and line number
	JSONFormat  bool   `json:"json_format"`  // false switches to the console writer
}

// ParseLevel converts a string to a zerolog level. Unknown input is INFO.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	case "FATAL":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// New creates a logger with the given configuration. A file output that
// cannot be opened falls back to stdout.
func New(cfg Config) zerolog.Logger {
	var output io.Writer = os.Stdout

	if cfg.Output == "stderr" {
		output = os.Stderr
	} else if cfg.Output != "" && cfg.Output != "stdout" {
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err == nil {
			output = file
		}
	}

	return NewWithWriter(cfg, output)
}

// NewWithWriter is New with an explicit destination
func NewWithWriter(cfg Config, output io.Writer) zerolog.Logger {
	if !cfg.JSONFormat {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "2006-01-02 15:04:05"}
	}

	ctx := zerolog.New(output).Level(ParseLevel(cfg.Level)).With().Timestamp()
	if cfg.IncludeFile {
		ctx = ctx.Caller()
	}
	if cfg.Component != "" {
		ctx = ctx.Str("component", cfg.Component)
	}
	return ctx.Logger()
}

// WithComponent returns a child logger tagged with a component name
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}
