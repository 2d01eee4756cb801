// Package ids implements astrotask's canonical task-id format and
// validation (spec §6), adapted from the teacher's hash-based id scheme
// in internal/storage/sqlite/ids.go. Astrotask's ids are not content
// hashes: a root task id is an upper-case letter run, and a subtask id
// is its parent's id, a dash, and another upper-case letter run
// ("ABCD", "ABCD-EFGH", "ABCD-EFGH-IJKL").
package ids

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/marktoda/astrotask/internal/types"
)

const segmentAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// defaultSegmentLen is how many letters a freshly minted segment has.
// GenerateChildID grows this on collision, mirroring the teacher's
// adaptive-length retry loop in GenerateIssueID.
const defaultSegmentLen = 4

// IsValidSegment reports whether s is a bare [A-Z]+ segment.
func IsValidSegment(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}

// Valid reports whether id is a well-formed task id: either the project
// root sentinel, a single [A-Z]+ segment, or a dash-joined chain of
// them. The sentinel is accepted only as an exact match.
func Valid(id string) bool {
	if id == types.ProjectRootID {
		return true
	}
	if id == "" || strings.Contains(id, types.ProjectRootID) {
		return false
	}
	for _, seg := range strings.Split(id, "-") {
		if !IsValidSegment(seg) {
			return false
		}
	}
	return true
}

// IsRoot reports whether id has no dash, i.e. it is a top-level task
// under the synthetic project root.
func IsRoot(id string) bool {
	return id != types.ProjectRootID && !strings.Contains(id, "-")
}

// ParentOf returns the id of the task that segment-wise precedes id, and
// true, unless id is a root id or the sentinel, in which case it returns
// ("", false).
func ParentOf(id string) (string, bool) {
	if id == types.ProjectRootID {
		return "", false
	}
	i := strings.LastIndex(id, "-")
	if i == -1 {
		return "", false
	}
	return id[:i], true
}

// IsValidTempID reports whether id carries the tracking-overlay
// temporary-id prefix. The store must reject these as permanent ids.
func IsValidTempID(id string) bool {
	return types.IsTempID(id)
}

func randomSegment(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating random segment: %w", err)
	}
	out := make([]byte, length)
	for i, b := range buf {
		out[i] = segmentAlphabet[int(b)%len(segmentAlphabet)]
	}
	return string(out), nil
}

// GenerateRootID mints a fresh top-level id, retrying against exists
// up to 20 times and returning an error if every candidate is taken
// (mirroring the teacher's nonce-retry loop in
// GenerateIssueID, simplified since astrotask segments are not content
// hashes and collisions are not expected to be frequent).
func GenerateRootID(exists func(id string) (bool, error)) (string, error) {
	return generateUnique("", exists)
}

// GenerateChildID mints a fresh id under parentID.
func GenerateChildID(parentID string, exists func(id string) (bool, error)) (string, error) {
	if parentID == types.ProjectRootID {
		return generateUnique("", exists)
	}
	return generateUnique(parentID, exists)
}

func generateUnique(parentID string, exists func(id string) (bool, error)) (string, error) {
	const maxAttempts = 20
	length := defaultSegmentLen
	for attempt := 0; attempt < maxAttempts; attempt++ {
		seg, err := randomSegment(length)
		if err != nil {
			return "", err
		}
		candidate := seg
		if parentID != "" {
			candidate = parentID + "-" + seg
		}
		found, err := exists(candidate)
		if err != nil {
			return "", fmt.Errorf("checking id collision: %w", err)
		}
		if !found {
			return candidate, nil
		}
		// Widen the segment after a handful of collisions at this
		// length, same escalation the teacher uses.
		if attempt > 0 && attempt%5 == 0 && length < 8 {
			length++
		}
	}
	return "", fmt.Errorf("could not allocate a unique id after %d attempts", maxAttempts)
}
