package tracking

import (
	"context"

	"github.com/marktoda/astrotask/internal/apperrors"
	"github.com/marktoda/astrotask/internal/types"
)

// GraphStorer is the subset of store.Store a tracking graph flushes
// against.
type GraphStorer interface {
	ApplyReconciliationPlan(ctx context.Context, plan types.GraphReconciliationPlan) error
}

// Graph is a mutable, in-place overlay over a dependency edge set. Every
// mutation appends a timestamped pending operation. Build one with
// NewGraph (nil seed for an empty overlay); a zero Graph has no edge map
// and is not ready for use.
type Graph struct {
	edges       map[[2]string]bool // present/absent per (dependent, dependency) pair
	order       [][2]string        // insertion order of distinct pairs ever touched
	pending     []types.GraphPendingOp
	baseVersion int
}

// NewGraph builds a tracking graph seeded with the given edges (e.g.
// from a store snapshot); pass nil for an empty overlay.
func NewGraph(seed []*types.TaskDependency) *Graph {
	g := &Graph{edges: map[[2]string]bool{}}
	for _, d := range seed {
		pair := [2]string{d.DependentTaskID, d.DependencyTaskID}
		g.edges[pair] = true
		g.order = append(g.order, pair)
	}
	return g
}

// HasPendingChanges reports whether any operation is buffered.
func (g *Graph) HasPendingChanges() bool {
	return len(g.pending) > 0
}

// WithDependency records dependent -> dependency as present and
// buffers a dep_add op.
func (g *Graph) WithDependency(dependent, dependency string) {
	pair := [2]string{dependent, dependency}
	if !g.edges[pair] {
		g.order = append(g.order, pair)
	}
	g.edges[pair] = true
	g.pending = append(g.pending, types.GraphPendingOp{
		Kind:         types.GraphOpDepAdd,
		DependentID:  dependent,
		DependencyID: dependency,
		Timestamp:    now(),
	})
}

// WithoutDependency records dependent -> dependency as absent and
// buffers a dep_remove op.
func (g *Graph) WithoutDependency(dependent, dependency string) {
	pair := [2]string{dependent, dependency}
	g.edges[pair] = false
	g.pending = append(g.pending, types.GraphPendingOp{
		Kind:         types.GraphOpDepRemove,
		DependentID:  dependent,
		DependencyID: dependency,
		Timestamp:    now(),
	})
}

// ApplyIDMappings rewrites every buffered and materialized edge
// endpoint that names a temporary id, per the mapping a flushed
// tracking tree returned (spec §4.4, "ID remapping"). Call this before
// Flush whenever this graph's edges may reference ids a sibling
// tracking tree just minted.
func (g *Graph) ApplyIDMappings(mappings types.IDMappings) {
	resolve := func(id string) string {
		if real, ok := mappings[id]; ok {
			return real
		}
		return id
	}

	newEdges := map[[2]string]bool{}
	var newOrder [][2]string
	seen := map[[2]string]bool{}
	for _, pair := range g.order {
		resolved := [2]string{resolve(pair[0]), resolve(pair[1])}
		newEdges[resolved] = g.edges[pair]
		if !seen[resolved] {
			seen[resolved] = true
			newOrder = append(newOrder, resolved)
		}
	}
	g.edges = newEdges
	g.order = newOrder

	for i := range g.pending {
		g.pending[i].DependentID = resolve(g.pending[i].DependentID)
		g.pending[i].DependencyID = resolve(g.pending[i].DependencyID)
	}
}

// CreateReconciliationPlan consolidates the buffer: for each distinct
// (dependent, dependency) pair, keep only its latest operation, emitted
// at the position of that last occurrence; chronological order across
// distinct pairs is preserved.
func (g *Graph) CreateReconciliationPlan() types.GraphReconciliationPlan {
	lastIndex := map[[2]string]int{}
	for i, op := range g.pending {
		lastIndex[[2]string{op.DependentID, op.DependencyID}] = i
	}

	var ops []types.GraphPendingOp
	emitted := map[[2]string]bool{}
	for i, op := range g.pending {
		pair := [2]string{op.DependentID, op.DependencyID}
		if i != lastIndex[pair] || emitted[pair] {
			continue
		}
		emitted[pair] = true
		ops = append(ops, op)
	}

	return types.GraphReconciliationPlan{
		BaseVersion: g.baseVersion,
		Operations:  ops,
	}
}

// Flush applies the consolidated plan via store and, on success, clears
// the buffer and advances baseVersion.
func (g *Graph) Flush(ctx context.Context, store GraphStorer) error {
	if len(g.pending) == 0 {
		return nil
	}
	plan := g.CreateReconciliationPlan()
	if err := store.ApplyReconciliationPlan(ctx, plan); err != nil {
		return &apperrors.ReconciliationError{
			Reason:            "flushing tracking graph",
			UnappliedGraphOps: len(g.pending),
			Cause:             err,
		}
	}
	g.pending = nil
	g.baseVersion++
	return nil
}

// GetDependencies returns every dependency currently recorded (seeded
// or buffered-present) for dependent.
func (g *Graph) GetDependencies(dependent string) []string {
	var out []string
	for _, pair := range g.order {
		if pair[0] == dependent && g.edges[pair] {
			out = append(out, pair[1])
		}
	}
	return out
}

// GetDependents returns every dependent currently recorded for
// dependency.
func (g *Graph) GetDependents(dependency string) []string {
	var out []string
	for _, pair := range g.order {
		if pair[1] == dependency && g.edges[pair] {
			out = append(out, pair[0])
		}
	}
	return out
}
