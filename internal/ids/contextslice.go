package ids

import "github.com/google/uuid"

// NewContextSliceID mints a standard 8-4-4-4-12 hex identifier for a
// ContextSlice (spec §6). google/uuid is the only hex-UUID generator
// present anywhere in the retrieved corpus (denkhaus-knot imports it
// directly; it is also a transitive of the teacher's own dependency
// graph), so astrotask adopts it rather than hand-rolling crypto/rand
// hex formatting.
func NewContextSliceID() string {
	return uuid.New().String()
}

// ValidContextSliceID reports whether id parses as a UUID.
func ValidContextSliceID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
