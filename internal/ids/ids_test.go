package ids_test

import (
	"testing"

	"github.com/marktoda/astrotask/internal/ids"
	"github.com/marktoda/astrotask/internal/types"
)

func TestValid(t *testing.T) {
	cases := map[string]bool{
		types.ProjectRootID: true,
		"ABCD":              true,
		"ABCD-EFGH":         true,
		"ABCD-EFGH-IJKL":    true,
		"":                  false,
		"abcd":              false,
		"ABCD-":             false,
		"ABC1":              false,
		"__PROJECT_ROOT__-ABCD": false,
	}
	for id, want := range cases {
		if got := ids.Valid(id); got != want {
			t.Errorf("Valid(%q) = %v, want %v", id, got, want)
		}
	}
}

func TestIsRoot(t *testing.T) {
	if !ids.IsRoot("ABCD") {
		t.Error("ABCD should be root")
	}
	if ids.IsRoot("ABCD-EFGH") {
		t.Error("ABCD-EFGH should not be root")
	}
	if ids.IsRoot(types.ProjectRootID) {
		t.Error("the project root sentinel is not itself a root task")
	}
}

func TestParentOf(t *testing.T) {
	if parent, ok := ids.ParentOf("ABCD-EFGH"); !ok || parent != "ABCD" {
		t.Errorf("ParentOf(ABCD-EFGH) = (%q, %v), want (ABCD, true)", parent, ok)
	}
	if _, ok := ids.ParentOf("ABCD"); ok {
		t.Error("ParentOf on a root id should report false")
	}
	if _, ok := ids.ParentOf(types.ProjectRootID); ok {
		t.Error("ParentOf on the sentinel should report false")
	}
}

func TestGenerateChildIDUnderProjectRoot(t *testing.T) {
	id, err := ids.GenerateChildID(types.ProjectRootID, func(string) (bool, error) { return false, nil })
	if err != nil {
		t.Fatalf("GenerateChildID: %v", err)
	}
	if !ids.IsRoot(id) || !ids.Valid(id) {
		t.Errorf("GenerateChildID under the project root produced %q, want a bare root segment", id)
	}
}

func TestGenerateChildIDUnderParent(t *testing.T) {
	id, err := ids.GenerateChildID("ABCD", func(string) (bool, error) { return false, nil })
	if err != nil {
		t.Fatalf("GenerateChildID: %v", err)
	}
	if parent, ok := ids.ParentOf(id); !ok || parent != "ABCD" {
		t.Errorf("GenerateChildID(ABCD, ...) = %q, want a child of ABCD", id)
	}
}

func TestGenerateChildIDRetriesOnCollision(t *testing.T) {
	calls := 0
	exists := func(id string) (bool, error) {
		calls++
		return calls == 1, nil // first candidate always reported taken
	}
	id, err := ids.GenerateChildID(types.ProjectRootID, exists)
	if err != nil {
		t.Fatalf("GenerateChildID: %v", err)
	}
	if calls < 2 {
		t.Errorf("expected at least one retry, got %d exists() calls", calls)
	}
	if !ids.Valid(id) {
		t.Errorf("GenerateChildID produced invalid id %q", id)
	}
}

func TestContextSliceID(t *testing.T) {
	id := ids.NewContextSliceID()
	if !ids.ValidContextSliceID(id) {
		t.Errorf("NewContextSliceID produced %q, which does not parse as a UUID", id)
	}
	if ids.ValidContextSliceID("not-a-uuid") {
		t.Error("ValidContextSliceID accepted a non-UUID string")
	}
}
