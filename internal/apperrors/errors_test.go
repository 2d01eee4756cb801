package apperrors_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/marktoda/astrotask/internal/apperrors"
)

func TestBusyErrorUnwraps(t *testing.T) {
	err := &apperrors.BusyError{Path: "/tmp/x.db", Holder: apperrors.LockHolder{PID: 42}}
	if !errors.Is(err, apperrors.ErrBusy) {
		t.Error("BusyError should unwrap to ErrBusy")
	}
	var target *apperrors.BusyError
	if !errors.As(err, &target) || target.Holder.PID != 42 {
		t.Error("errors.As should recover the BusyError with its holder payload")
	}
}

func TestConflictErrorUnwraps(t *testing.T) {
	err := &apperrors.ConflictError{Reason: "would create a cycle", Cycle: []string{"A", "B", "A"}}
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Error("ConflictError should unwrap to ErrConflict")
	}
	var target *apperrors.ConflictError
	if !errors.As(err, &target) || len(target.Cycle) != 3 {
		t.Error("errors.As should recover the ConflictError with its cycle payload")
	}
}

func TestReconciliationErrorUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := &apperrors.ReconciliationError{Reason: "flushing", UnappliedTreeOps: 2, Cause: cause}
	if !errors.Is(err, apperrors.ErrReconciliation) {
		t.Error("ReconciliationError should unwrap to ErrReconciliation")
	}
	if got := err.Error(); !strings.Contains(got, cause.Error()) {
		t.Errorf("Error() = %q, want it to mention the cause %q", got, cause.Error())
	}
}
