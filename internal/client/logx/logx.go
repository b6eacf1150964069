// Package logx builds the client logger. The TUI owns the terminal, so logs
// go to a file; without LOULT_DEBUG set the logger is a no-op.
package logx

import (
	"os"

	"github.com/rs/zerolog"
)

// New returns a logger writing JSON lines to debug.log in the current
// directory when enabled, or a disabled logger otherwise.
func New(enabled bool) zerolog.Logger {
	if !enabled {
		return zerolog.Nop()
	}

	f, err := os.OpenFile("debug.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return zerolog.Nop()
	}

	return zerolog.New(f).Level(zerolog.DebugLevel).With().Timestamp().Logger()
}
