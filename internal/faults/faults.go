// Package faults defines the error taxonomy shared by the PLC session,
// signal codec, signal operations and monitor supervisor layers.
package faults

import "fmt"

// Kind enumerates the structural error categories the core can raise.
// Kinds are not error names — a Kind maps to a dotted error_code via
// internal/metadata, not the other way around.
type Kind string

const (
	ConnectionFailed  Kind = "connection_failed"
	OperationFailed   Kind = "operation_failed"
	Busy              Kind = "busy"
	UnknownMachine    Kind = "unknown_machine"
	UnknownSignal     Kind = "unknown_signal"
	InvalidDescriptor Kind = "invalid_descriptor"
	Arity             Kind = "arity"
	TypeUnsupported   Kind = "type_unsupported"
	ValueOutOfRange   Kind = "value_out_of_range"
	CodecError        Kind = "codec_error"
)

// Error is the structured error type every core layer returns instead
// of raising ad-hoc errors. Op names the failing operation (e.g.
// "read_int", "write_string"); Attempts is only meaningful for
// OperationFailed/ConnectionFailed.
type Error struct {
	Kind     Kind
	Op       string
	Attempts int
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		if e.Attempts > 0 {
			return fmt.Sprintf("%s: %s failed after %d attempts: %v", e.Kind, e.Op, e.Attempts, e.Cause)
		}
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Op)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a plain Error with no cause or attempt count.
func New(kind Kind, op string) *Error {
	return &Error{Kind: kind, Op: op}
}

// Wrap builds an Error carrying a cause.
func Wrap(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Cause: cause}
}

// WrapAttempts builds an Error recording how many attempts were made
// before giving up (ConnectionFailed/OperationFailed).
func WrapAttempts(kind Kind, op string, attempts int, cause error) *Error {
	return &Error{Kind: kind, Op: op, Attempts: attempts, Cause: cause}
}

// KindOf extracts the Kind from err if it (or something it wraps) is
// an *Error, and reports whether one was found.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			fe = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if fe == nil {
		return "", false
	}
	return fe.Kind, true
}
