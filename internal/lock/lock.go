// Package lock implements the cooperative, cross-process advisory lock
// that guards a file-backed database (spec §4.1, §6). It is grounded on
// the teacher's use of github.com/gofrs/flock for the sync-branch mutex
// in cmd/bd/sync.go, generalized here to carry a JSON holder record
// instead of a bare mutex, and to recognise and take over a stale lock
// left behind by a crashed process.
package lock

import (
	"encoding/json"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/marktoda/astrotask/internal/apperrors"
)

// Record is the JSON content written into the sibling .lock file.
type Record struct {
	PID       int    `json:"pid"`
	Host      string `json:"host"`
	Process   string `json:"process"`
	Timestamp int64  `json:"timestamp"` // epoch-ms
}

// Lock is a held advisory lock on a database path. The zero value is not
// usable; construct with Acquire.
type Lock struct {
	path     string
	flock    *flock.Flock
	record   Record
}

// lockSuffix is appended to the database path to form the sentinel file.
const lockSuffix = ".lock"

// PathFor returns the sibling lock-file path for a database path.
func PathFor(dbPath string) string {
	return dbPath + lockSuffix
}

// Acquire creates path's sibling lock file with an exclusive advisory
// lock and a JSON holder record. If the file already exists and names a
// process that is still alive on this host, Acquire fails with a
// *apperrors.BusyError carrying the holder's record. If the named
// process is not alive, the lock is deemed stale and taken over.
func Acquire(dbPath, processName string) (*Lock, error) {
	lockPath := PathFor(dbPath)
	f := flock.New(lockPath)

	locked, err := f.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock %s: %w", lockPath, err)
	}
	if !locked {
		holder, readErr := readRecord(lockPath)
		if readErr == nil && processAlive(holder) {
			return nil, &apperrors.BusyError{Path: dbPath, Holder: apperrors.LockHolder(holder)}
		}
		// Stale lock: the holder named in the file is gone, but another
		// live goroutine/process still owns the OS-level flock, which
		// can only mean the record is stale relative to reality. Retry
		// once; if it still fails the lock is genuinely contended.
		locked, err = f.TryLock()
		if err != nil {
			return nil, fmt.Errorf("acquiring lock %s: %w", lockPath, err)
		}
		if !locked {
			return nil, &apperrors.BusyError{Path: dbPath, Holder: apperrors.LockHolder(holder)}
		}
	}

	rec := Record{
		PID:       os.Getpid(),
		Host:      hostname(),
		Process:   processName,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := writeRecord(lockPath, rec); err != nil {
		_ = f.Unlock()
		return nil, fmt.Errorf("writing lock record %s: %w", lockPath, err)
	}

	return &Lock{path: dbPath, flock: f, record: rec}, nil
}

// ForceUnlock removes a lock file unconditionally, for operational
// recovery when an operator is certain no live process holds it.
func ForceUnlock(dbPath string) error {
	lockPath := PathFor(dbPath)
	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("force-unlocking %s: %w", lockPath, err)
	}
	return nil
}

// Release drops the lock and removes the lock file. Idempotent.
func (l *Lock) Release() error {
	if l == nil || l.flock == nil {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("releasing lock %s: %w", l.path, err)
	}
	_ = os.Remove(PathFor(l.path))
	return nil
}

// Record returns the holder record written at acquisition time.
func (l *Lock) Record() Record { return l.record }

func readRecord(lockPath string) (Record, error) {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("parsing lock record: %w", err)
	}
	return rec, nil
}

func writeRecord(lockPath string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding lock record: %w", err)
	}
	return os.WriteFile(lockPath, data, 0o644)
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

func processAlive(holder Record) bool {
	if holder.Host != hostname() {
		// Cannot check liveness of a process on another host; assume
		// the lock is legitimately held.
		return true
	}
	if holder.PID <= 0 {
		return false
	}
	proc, err := os.FindProcess(holder.PID)
	if err != nil {
		return false
	}
	// On Unix, FindProcess always succeeds; Signal(0) probes liveness
	// without affecting the process.
	return proc.Signal(syscall.Signal(0)) == nil
}
