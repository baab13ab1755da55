package lib

import (
	"os"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Runtime-internal trace logging. Disabled by default so the absence of an
// observability consumer never changes behavior; enable with SetTrace(true)
// or the VESSEL_TRACE environment variable.

var (
	trace  int32
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Logger()
)

func init() {
	if os.Getenv("VESSEL_TRACE") != "" {
		SetTrace(true)
	}
}

// SetTrace enables/disables runtime trace logging.
func SetTrace(enable bool) {
	if enable {
		atomic.StoreInt32(&trace, 1)
		return
	}
	atomic.StoreInt32(&trace, 0)
}

// Trace writes a debug record if tracing is enabled.
func Trace(format string, args ...any) {
	if atomic.LoadInt32(&trace) == 0 {
		return
	}
	logger.Debug().Msgf(format, args...)
}

// Warning writes a warning record. Always enabled.
func Warning(format string, args ...any) {
	logger.Warn().Msgf(format, args...)
}

// Logger returns the underlying zerolog logger for the runtime.
func Logger() zerolog.Logger {
	return logger
}
