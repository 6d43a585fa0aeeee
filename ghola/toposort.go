package ghola

import (
	"sort"
	"strings"
)

// Order is the restoration order of a dependency graph.
type Order struct {
	// Types lists every node; dependencies come before dependents except
	// among the nodes in Cycle, which are appended last in registry order.
	Types []string
	// Cycle lists the nodes that could not be ordered.
	Cycle []string
}

// HasCycle reports whether some nodes could not be ordered.
func (o Order) HasCycle() bool { return len(o.Cycle) > 0 }

// Diagnostic describes the cycle, or returns "" when there is none.
func (o Order) Diagnostic() string {
	if !o.HasCycle() {
		return ""
	}
	return "dependency cycle among: " + strings.Join(o.Cycle, ", ")
}

// Resolve orders g with Kahn's algorithm. Among nodes that are ready at the
// same time the one registered first wins. Resolve never fails: nodes left
// over by a cycle are appended and reported in Order.Cycle.
func Resolve(g *DependencyGraph) Order {
	position := make(map[string]int, len(g.Nodes))
	for i, n := range g.Nodes {
		position[n] = i
	}

	inDegree := make(map[string]int, len(g.Nodes))
	var ready []string
	for _, n := range g.Nodes {
		for _, dep := range g.Dependencies[n] {
			if _, ok := position[dep]; ok {
				inDegree[n]++
			}
		}
		if inDegree[n] == 0 {
			ready = append(ready, n)
		}
	}

	order := Order{Types: make([]string, 0, len(g.Nodes))}
	emitted := make(map[string]bool, len(g.Nodes))
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		order.Types = append(order.Types, n)
		emitted[n] = true

		for _, dependent := range g.Dependents[n] {
			if _, ok := position[dependent]; !ok {
				continue
			}
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				i := sort.Search(len(ready), func(i int) bool { return position[ready[i]] > position[dependent] })
				ready = append(ready, "")
				copy(ready[i+1:], ready[i:])
				ready[i] = dependent
			}
		}
	}

	for _, n := range g.Nodes {
		if !emitted[n] {
			order.Types = append(order.Types, n)
			order.Cycle = append(order.Cycle, n)
		}
	}
	return order
}
