// Package logging configures the process-wide zerolog logger and hands out
// component-scoped children.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

var (
	mu     sync.RWMutex
	Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
)

// Setup configures the global logger. format is "json" (default) or
// "console" for human-readable output.
func Setup(level, format string) {
	SetupWriter(level, format, os.Stdout)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(level, format string, w io.Writer) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	out := w
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	mu.Lock()
	Logger = zerolog.New(out).With().Timestamp().Logger()
	zlog.Logger = Logger
	mu.Unlock()
}

// WithComponent returns a child logger tagged with component.
func WithComponent(component string) *zerolog.Logger {
	mu.RLock()
	l := Logger.With().Str("component", component).Logger()
	mu.RUnlock()
	return &l
}
