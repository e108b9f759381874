package workflow

import (
	"fmt"
)

// Graph is the adjacency view of a definition's step graph. Edges come
// from both the steps' NextSteps lists and the definition's Connections;
// the two are merged and deduplicated.
type Graph struct {
	steps map[string]*Step
	succs map[string][]string
	preds map[string][]string
}

// NewGraph builds and validates the step graph for a definition.
// It rejects duplicate step IDs, edges referencing unknown steps, and
// cycles.
func NewGraph(def *Definition) (*Graph, error) {
	g := &Graph{
		steps: make(map[string]*Step, len(def.Steps)),
		succs: make(map[string][]string),
		preds: make(map[string][]string),
	}

	for i := range def.Steps {
		s := &def.Steps[i]
		if _, dup := g.steps[s.ID]; dup {
			return nil, fmt.Errorf("workflow %s: duplicate step id %q", def.Name, s.ID)
		}
		g.steps[s.ID] = s
	}

	addEdge := func(src, dst string) error {
		if _, ok := g.steps[src]; !ok {
			return fmt.Errorf("workflow %s: edge source %q is not a step", def.Name, src)
		}
		if _, ok := g.steps[dst]; !ok {
			return fmt.Errorf("workflow %s: edge target %q is not a step", def.Name, dst)
		}
		for _, existing := range g.succs[src] {
			if existing == dst {
				return nil // deduplicate
			}
		}
		g.succs[src] = append(g.succs[src], dst)
		g.preds[dst] = append(g.preds[dst], src)
		return nil
	}

	for i := range def.Steps {
		s := &def.Steps[i]
		for _, next := range s.NextSteps {
			if err := addEdge(s.ID, next); err != nil {
				return nil, err
			}
		}
	}
	for _, c := range def.Connections {
		if err := addEdge(c.Source, c.Target); err != nil {
			return nil, err
		}
	}

	if err := g.checkAcyclic(def.Name); err != nil {
		return nil, err
	}

	return g, nil
}

// checkAcyclic runs Kahn's algorithm; leftover nodes mean a cycle.
func (g *Graph) checkAcyclic(name string) error {
	inDegree := make(map[string]int, len(g.steps))
	for stepID := range g.steps {
		inDegree[stepID] = len(g.preds[stepID])
	}

	var queue []string
	for stepID, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, stepID)
		}
	}

	visited := 0
	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range g.succs[curr] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if visited != len(g.steps) {
		return fmt.Errorf("workflow %s: step graph contains a cycle", name)
	}
	return nil
}

// Step returns the step with the given ID, or nil if absent.
func (g *Graph) Step(stepID string) *Step { return g.steps[stepID] }

// Has reports whether the graph contains the given step.
func (g *Graph) Has(stepID string) bool {
	_, ok := g.steps[stepID]
	return ok
}

// Len returns the number of steps in the graph.
func (g *Graph) Len() int { return len(g.steps) }

// Predecessors returns the IDs of steps with an edge into stepID.
func (g *Graph) Predecessors(stepID string) []string { return g.preds[stepID] }

// Successors returns the IDs of steps stepID has an edge into.
func (g *Graph) Successors(stepID string) []string { return g.succs[stepID] }

// Roots returns the steps with no predecessors — typically the trigger.
func (g *Graph) Roots() []string {
	var roots []string
	for stepID := range g.steps {
		if len(g.preds[stepID]) == 0 {
			roots = append(roots, stepID)
		}
	}
	return roots
}

// Ancestors returns the set of steps reachable backwards from stepID,
// including stepID itself. This is the prefix a fork preserves.
func (g *Graph) Ancestors(stepID string) map[string]struct{} {
	seen := make(map[string]struct{})
	var visit func(string)
	visit = func(curr string) {
		if _, ok := seen[curr]; ok {
			return
		}
		seen[curr] = struct{}{}
		for _, pred := range g.preds[curr] {
			visit(pred)
		}
	}
	if g.Has(stepID) {
		visit(stepID)
	}
	return seen
}
