// Package apperrors defines astrotask's error taxonomy (spec §7): a small
// set of sentinel errors plus two structs that carry extra diagnostic
// payload while still unwrapping to their sentinel via errors.Is/As.
//
// The teacher's own storage adapter never reaches for a third-party
// errors package (github.com/pkg/errors shows up only as an indirect
// transitive of a TUI dependency) — it sticks to errors.New and
// fmt.Errorf("...: %w", err). Astrotask follows that idiom rather than
// the pack's incidental breadth.
package apperrors

import "errors"

var (
	// ErrValidation means the input violates a schema or id-format rule.
	ErrValidation = errors.New("validation")
	// ErrNotFound means a referenced id does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict means the operation would violate an invariant
	// (self-dependency, cycle, duplicate id, delete-with-children).
	ErrConflict = errors.New("conflict")
	// ErrBusy means the file advisory lock is held by another process.
	ErrBusy = errors.New("busy")
	// ErrStorage means the underlying SQL engine or migration failed.
	ErrStorage = errors.New("storage")
	// ErrReconciliation means a flush failed partway; the tracking
	// overlay's pending operations were not cleared and may be retried.
	ErrReconciliation = errors.New("reconciliation")
	// ErrGeneration is surfaced verbatim from a TaskGenerator collaborator.
	ErrGeneration = errors.New("generation")
	// ErrUnsupportedBackend means the database URL names a backend the
	// grammar recognises but this build does not implement.
	ErrUnsupportedBackend = errors.New("unsupported backend")
)

// LockHolder describes the process currently holding the advisory lock.
type LockHolder struct {
	PID       int
	Host      string
	Process   string
	Timestamp int64 // epoch-ms
}

// BusyError wraps ErrBusy with the holder's identity so the caller can
// decide whether to wait or abort.
type BusyError struct {
	Path   string
	Holder LockHolder
}

func (e *BusyError) Error() string {
	return "busy: database " + e.Path + " is locked by another process"
}

func (e *BusyError) Unwrap() error { return ErrBusy }

// ConflictError wraps ErrConflict with the cycle path that would have
// been created, when the conflict is a dependency cycle.
type ConflictError struct {
	Reason string
	Cycle  []string // empty unless the conflict is a cycle
}

func (e *ConflictError) Error() string {
	if len(e.Cycle) > 0 {
		return "conflict: " + e.Reason
	}
	return "conflict: " + e.Reason
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// ReconciliationError wraps ErrReconciliation with the operations that
// did not apply, so the caller's tracking overlay can retry them.
type ReconciliationError struct {
	Reason             string
	UnappliedTreeOps   int
	UnappliedGraphOps  int
	Cause              error
}

func (e *ReconciliationError) Error() string {
	if e.Cause != nil {
		return "reconciliation: " + e.Reason + ": " + e.Cause.Error()
	}
	return "reconciliation: " + e.Reason
}

func (e *ReconciliationError) Unwrap() error { return ErrReconciliation }
