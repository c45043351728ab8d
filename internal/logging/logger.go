// Package logging provides a logging abstraction layer that decouples the sync core
// from a specific logging framework, so components can be tested with a capturing logger.
package logging

import "io"

// Logger defines the interface for structured logging throughout the application.
type Logger interface {
	// Debug logs a debug-level message with optional fields
	Debug(msg string, fields ...Field)

	// Info logs an info-level message with optional fields
	Info(msg string, fields ...Field)

	// Warn logs a warning-level message with optional fields
	Warn(msg string, fields ...Field)

	// Error logs an error-level message with optional fields
	Error(msg string, fields ...Field)

	// WithError returns a new logger with an error field attached
	WithError(err error) Logger

	// WithField returns a new logger with a single field attached
	WithField(key string, value interface{}) Logger

	// WithFields returns a new logger with multiple fields attached
	WithFields(fields ...Field) Logger
}

// Field represents a key-value pair for structured logging.
type Field struct {
	Key   string
	Value interface{}
}

// F is shorthand for building a Field inline.
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Op returns the fields that identify a queued operation, so one operation
// can be followed from enqueue to drain.
func Op(id string, opType interface{}, entity string) []Field {
	return []Field{F(FieldOpID, id), F(FieldOpType, opType), F(FieldEntity, entity)}
}

// Nop returns a logger that discards everything. Useful as a default when a
// component is constructed without a logger.
func Nop() Logger {
	return NewLogrusAdapterWithOutput("panic", "text", io.Discard)
}
