// Package themiserr defines the error taxonomy the coordinator raises:
// Kind-classified errors wrapped with github.com/pingcap/errors so call
// sites can both match on Kind() and get a captured stack via
// errors.AddStack.
package themiserr

import (
	"fmt"

	"github.com/pingcap/errors"
)

// Kind classifies a coordinator error so callers can decide whether to
// retry the whole transaction, surface it unchanged, or treat it as fatal.
type Kind int

const (
	// KindInvalidRequest: a user-supplied get/put/delete/scan named no column.
	KindInvalidRequest Kind = iota
	// KindInvalidState: commit() could not select a primary column.
	KindInvalidState
	// KindLockConflict: the lock cleaner could not resolve a conflicting
	// lock after the single permitted retry. Retrying the whole
	// transaction may succeed.
	KindLockConflict
	// KindLockCleaned: this transaction's primary lock was erased by a
	// peer's cleaner; the transaction has been rolled back behind its back.
	KindLockCleaned
	// KindFatal: an invariant was violated by the server or a collaborator.
	// Non-recoverable.
	KindFatal
	// KindIO: a transport-level RPC failure.
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindInvalidRequest:
		return "invalid_request"
	case KindInvalidState:
		return "invalid_state"
	case KindLockConflict:
		return "lock_conflict"
	case KindLockCleaned:
		return "lock_cleaned"
	case KindFatal:
		return "fatal"
	case KindIO:
		return "io"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with the Kind the coordinator classified
// it as. It satisfies the standard error interface and unwraps to cause so
// errors.Is/As and github.com/pingcap/errors.Cause both work.
type Error struct {
	kind  Kind
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

// Unwrap exposes the underlying cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// Kind returns the error's classification.
func (e *Error) Kind() Kind { return e.kind }

// New creates a Kind-classified error with a plain message, stack-annotated
// via github.com/pingcap/errors so the stack survives further wrapping.
func New(kind Kind, msg string) error {
	return errors.AddStack(&Error{kind: kind, msg: msg})
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(kind Kind, format string, args ...interface{}) error {
	return errors.AddStack(&Error{kind: kind, msg: fmt.Sprintf(format, args...)})
}

// Wrap annotates cause with kind and msg, preserving cause for Unwrap.
func Wrap(kind Kind, cause error, msg string) error {
	if cause == nil {
		return nil
	}
	return errors.AddStack(&Error{kind: kind, msg: msg, cause: cause})
}

// Is reports whether err was classified (directly, or via an errors.Cause
// chain) with kind.
func Is(err error, kind Kind) bool {
	for err != nil {
		if te, ok := errors.Cause(err).(*Error); ok {
			if te.kind == kind {
				return true
			}
			err = te.cause
			continue
		}
		return false
	}
	return false
}
