package lock_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/marktoda/astrotask/internal/apperrors"
	"github.com/marktoda/astrotask/internal/lock"
)

func TestAcquireAndRelease(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	l, err := lock.Acquire(dbPath, "astrotask-test")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if l.Record().PID == 0 {
		t.Error("acquired lock should record a non-zero PID")
	}
	if err := l.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
}

func TestAcquireFailsWhenAlreadyHeldByLiveProcess(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	first, err := lock.Acquire(dbPath, "holder")
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer first.Release()

	_, err = lock.Acquire(dbPath, "contender")
	if err == nil {
		t.Fatal("expected the second Acquire to fail while the first still holds the lock")
	}
	var busy *apperrors.BusyError
	if !errors.As(err, &busy) {
		t.Errorf("expected a *apperrors.BusyError, got %T: %v", err, err)
	}
	if !errors.Is(err, apperrors.ErrBusy) {
		t.Error("error should unwrap to apperrors.ErrBusy")
	}
}

func TestForceUnlockOnUnlockedPathIsANoop(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "never-locked.db")
	if err := lock.ForceUnlock(dbPath); err != nil {
		t.Errorf("ForceUnlock on a path with no lock file: %v", err)
	}
}

func TestForceUnlockThenReacquire(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	first, err := lock.Acquire(dbPath, "holder")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	// Simulate an operator force-unlocking a crashed holder's stale lock
	// file without going through Release.
	if err := lock.ForceUnlock(dbPath); err != nil {
		t.Fatalf("ForceUnlock: %v", err)
	}
	_ = first

	second, err := lock.Acquire(dbPath, "new-holder")
	if err != nil {
		t.Fatalf("Acquire after ForceUnlock: %v", err)
	}
	defer second.Release()
}
