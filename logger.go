package plato

import (
	"log/slog"
	"sync/atomic"

	"github.com/OGKevin/plato/internal/logging"
)

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(logging.Nop())
}

// SetLogger installs the logger used by sessions that were not given
// one with WithLogger. Passing nil restores the silent default.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = logging.Nop()
	}
	loggerPtr.Store(l)
}

// Logger returns the package-level logger.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
