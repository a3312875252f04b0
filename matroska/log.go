package matroska

import (
	"log/slog"
	"sync/atomic"
)

var customLogger atomic.Pointer[slog.Logger]

// SetLogger replaces the logger used by the package. Passing nil restores the
// default logger.
func SetLogger(l *slog.Logger) {
	customLogger.Store(l)
}

func logger() *slog.Logger {
	if l := customLogger.Load(); l != nil {
		return l
	}
	return slog.With("component", "matroska")
}
