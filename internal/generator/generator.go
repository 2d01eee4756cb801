// Package generator defines the abstract task-producing collaborator
// the core accepts output from (spec §4.7, component J): the core
// itself never decides how tasks are generated from free text — it
// only consumes whatever a TaskGenerator hands back, then flushes it
// through the usual tracking-overlay contract. The concrete
// implementation in this package (Anthropic) is a reference
// collaborator the teacher's own internal/compact.HaikuClient inspired,
// not a core responsibility.
package generator

import (
	"context"

	"github.com/marktoda/astrotask/internal/tracking"
	"github.com/marktoda/astrotask/internal/types"
)

// Input is the material a TaskGenerator works from.
type Input struct {
	// Content is the free-text source to turn into a task tree (a PRD,
	// a feature description, a bug report).
	Content string
	// ParentTaskID, if set, anchors the generated subtree under an
	// existing task rather than the project root.
	ParentTaskID string
	// ExistingTasks gives the generator context on what already exists,
	// so it can avoid duplicating work or can wire dependencies onto
	// already-persisted ids.
	ExistingTasks []types.Task
	// Metadata is passed through verbatim to the concrete generator
	// (e.g. a model override, a temperature, a trace id).
	Metadata map[string]interface{}
}

// Output is a tracking tree and tracking graph seeded entirely with
// temporary ids, ready for the caller to flush: tree first (to mint
// real ids), then ApplyIDMappings on the graph, then flush the graph.
type Output struct {
	Tree  *tracking.Tree
	Graph *tracking.Graph
}

// TaskGenerator turns free-text input into a staged task tree and
// dependency graph. Validating Content is the implementation's
// responsibility; the core only validates the resulting operations
// against the store's invariants once flushed.
type TaskGenerator interface {
	Generate(ctx context.Context, input Input) (Output, error)
}
