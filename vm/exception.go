package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Exception: the runtime failure signal
// ---------------------------------------------------------------------------

// ExceptionKind classifies runtime failures surfaced to embedders.
type ExceptionKind uint8

const (
	// ExcOutOfMemory: an allocating operation could not reclaim enough
	// heap even after a collection.
	ExcOutOfMemory ExceptionKind = iota
	// ExcImportFailure: the CommonJS module table of a unit could not be
	// imported into its domain.
	ExcImportFailure
	// ExcCompileFailure: lazy compilation of a deferred function failed.
	ExcCompileFailure
)

// String returns the kind name for diagnostics.
func (k ExceptionKind) String() string {
	switch k {
	case ExcOutOfMemory:
		return "out of memory"
	case ExcImportFailure:
		return "import failure"
	case ExcCompileFailure:
		return "compile failure"
	default:
		return fmt.Sprintf("ExceptionKind(%d)", uint8(k))
	}
}

// Exception is the error signal raised by allocating runtime operations.
// It is the only failure a script author can observe from module
// loading; programming-invariant violations panic instead.
type Exception struct {
	Kind ExceptionKind
	Msg  string
	Err  error // wrapped cause, may be nil
}

// Error implements error.
func (e *Exception) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("vm: %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("vm: %s: %s", e.Kind, e.Msg)
}

// Unwrap exposes the cause for errors.Is/As chains.
func (e *Exception) Unwrap() error { return e.Err }

// NewException builds an Exception with an optional wrapped cause.
func NewException(kind ExceptionKind, msg string, cause error) *Exception {
	return &Exception{Kind: kind, Msg: msg, Err: cause}
}

// AsException unwraps err into an *Exception when one is in the chain.
func AsException(err error) (*Exception, bool) {
	var exc *Exception
	if errors.As(err, &exc) {
		return exc, true
	}
	return nil, false
}
