package fiberio

import (
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the structured logger the Scheduler uses to report fiber
// creation (debug level) and task and fiber panics (error level). The I/O
// manager has no logging calls of its own, and the timer manager does not
// log.
type Logger = logiface.Logger[*stumpy.Event]

// NewLogger builds a Logger that writes newline-delimited JSON via stumpy.
// With no options, it writes to os.Stderr.
func NewLogger(options ...stumpy.Option) *Logger {
	return stumpy.L.New(stumpy.L.WithStumpy(options...))
}

// NewNoopLogger returns a Logger with logging disabled, used as the
// Runtime default when no WithLogger option is supplied.
func NewNoopLogger() *Logger {
	return stumpy.L.New(
		stumpy.L.WithStumpy(),
		stumpy.L.WithLevel(logiface.LevelDisabled),
	)
}
