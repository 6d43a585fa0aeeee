package ghola

import (
	"fmt"
	"log/slog"

	"github.com/seb7887/lazarus/sietch"
)

// DependencyGraph orders soft-deletable types for restoration. An edge
// B -> A means A references B, so B must be restored before A.
type DependencyGraph struct {
	// Nodes lists the soft-deletable types in registry order.
	Nodes []string `json:"nodes"`
	// Dependents maps a type to the types referencing it.
	Dependents map[string][]string `json:"dependents"`
	// Dependencies maps a type to the types it references.
	Dependencies map[string][]string `json:"dependencies"`
}

func newGraph() *DependencyGraph {
	return &DependencyGraph{
		Dependents:   make(map[string][]string),
		Dependencies: make(map[string][]string),
	}
}

func (g *DependencyGraph) addEdge(dependency, dependent string) {
	for _, d := range g.Dependencies[dependent] {
		if d == dependency {
			return
		}
	}
	g.Dependencies[dependent] = append(g.Dependencies[dependent], dependency)
	g.Dependents[dependency] = append(g.Dependents[dependency], dependent)
}

// DependsOn reports whether a references b.
func (g *DependencyGraph) DependsOn(a, b string) bool {
	for _, d := range g.Dependencies[a] {
		if d == b {
			return true
		}
	}
	return false
}

// EdgeCount returns the number of distinct edges.
func (g *DependencyGraph) EdgeCount() int {
	n := 0
	for _, deps := range g.Dependencies {
		n += len(deps)
	}
	return n
}

// Analyze builds the dependency graph of the soft-deletable types in reg.
// References that cannot be followed are skipped, logged, and returned.
// References to types that are not soft-deletable, and references of a type
// to itself, add no edge.
func Analyze(reg *sietch.Registry, logger *slog.Logger) (*DependencyGraph, []SkippedRelation) {
	if logger == nil {
		logger = slog.Default()
	}

	g := newGraph()
	var skipped []SkippedRelation

	for _, t := range reg.Types() {
		if !t.SoftDeletable() {
			continue
		}
		g.Nodes = append(g.Nodes, t.Name)

		for _, ref := range t.References {
			if err := checkReference(reg, t, ref); err != nil {
				s := SkippedRelation{Type: t.Name, Field: ref.Field, Target: ref.Target, Err: err}
				logger.Warn("skipping relationship", "type", t.Name, "field", ref.Field, "target", ref.Target, "error", err)
				skipped = append(skipped, s)
				continue
			}
			target, _ := reg.Lookup(ref.Target)
			if !target.SoftDeletable() || target.Name == t.Name {
				continue
			}
			g.addEdge(target.Name, t.Name)
		}
	}
	return g, skipped
}

func checkReference(reg *sietch.Registry, t *sietch.EntityType, ref sietch.Reference) error {
	if ref.Field == "" {
		return fmt.Errorf("%w: empty field", ErrMalformedReference)
	}
	if !t.HasColumn(ref.Field) {
		return fmt.Errorf("%w: %s is not a column of %s", ErrMalformedReference, ref.Field, t.Name)
	}
	if ref.Discriminator != "" && !t.HasColumn(ref.Discriminator) {
		return fmt.Errorf("%w: discriminator %s is not a column of %s", ErrMalformedReference, ref.Discriminator, t.Name)
	}
	if _, ok := reg.Lookup(ref.Target); !ok {
		return fmt.Errorf("%w: unknown target type %q", ErrMalformedReference, ref.Target)
	}
	return nil
}
