package logger

import corelogger "github.com/kilianp07/cnp-delivery/core/logger"

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// NopLogger discards everything.
type NopLogger = corelogger.NopLogger

// New returns a Logger for the given component. The output format is
// selected by APP_ENV and the level by LOG_LEVEL.
func New(component string) Logger {
	return NewZerologLogger(component)
}
