package audit_test

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/marktoda/astrotask/internal/audit"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestAppendCreatesFileAndWritesOneLine(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, audit.DirName), 0o750); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	chdir(t, dir)

	id, err := audit.Append(&audit.Entry{Actor: "generator", TaskID: "A", Prompt: "p", Response: "r"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if id == "" {
		t.Error("Append should mint an id when none is supplied")
	}

	path, err := audit.Path()
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines int
	var entry audit.Entry
	for scanner.Scan() {
		lines++
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
	}
	if lines != 1 {
		t.Fatalf("wrote %d lines, want 1", lines)
	}
	if entry.Kind != "generation_call" {
		t.Errorf("Kind = %q, want generation_call default", entry.Kind)
	}
	if entry.TaskID != "A" {
		t.Errorf("TaskID = %q, want A", entry.TaskID)
	}
}

func TestAppendIsCumulative(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, audit.DirName), 0o750); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	chdir(t, dir)

	for i := 0; i < 3; i++ {
		if _, err := audit.Append(&audit.Entry{Actor: "generator"}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	path, err := audit.Path()
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	var lines int
	for scanner.Scan() {
		lines++
	}
	if lines != 3 {
		t.Errorf("wrote %d lines, want 3", lines)
	}
}

func TestPathErrorsOutsideAProject(t *testing.T) {
	chdir(t, t.TempDir())
	if _, err := audit.Path(); err == nil {
		t.Error("Path should fail when no .astrotask directory exists up the tree")
	}
}
