package compiler

import (
	"fmt"
	"slices"
	"strings"
)

// ExtendsCycle is a loop in the solver inheritance graph.
type ExtendsCycle struct {
	Path    []string `json:"path"` // e.g. ["a", "b", "a"]
	Message string   `json:"message"`
}

// AnalyzeExtends finds loops in the extends relation of specs, using
// Tarjan's algorithm over the solver graph. A self-loop is reported too.
// An acyclic set returns an empty list.
func AnalyzeExtends(specs []*SolverSpec) []ExtendsCycle {
	graph := make(dependencyGraph, len(specs))
	for _, s := range specs {
		if graph[s.Name] == nil {
			graph[s.Name] = []string{}
		}
		if s.Extends != "" {
			graph[s.Name] = append(graph[s.Name], s.Extends)
		}
	}

	cycles := []ExtendsCycle{}
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			path := reconstructCyclePath(scc, graph)
			cycles = append(cycles, ExtendsCycle{
				Path:    path,
				Message: fmt.Sprintf("inheritance cycle: %s", strings.Join(path, " -> ")),
			})
		}
	}
	return cycles
}

// Linearize returns the inheritance chain of name, base first:
// Linearize(specs, "cbox") gives [nek, kth, cbox].
func Linearize(specs map[string]*SolverSpec, name string) ([]*SolverSpec, error) {
	var chain []*SolverSpec
	seen := make(map[string]bool)
	for cur := name; cur != ""; {
		if seen[cur] {
			return nil, fmt.Errorf("solver %q: inheritance cycle through %q", name, cur)
		}
		seen[cur] = true
		spec, ok := specs[cur]
		if !ok {
			if cur == name {
				return nil, fmt.Errorf("unknown solver %q", name)
			}
			return nil, fmt.Errorf("solver %q: unknown base solver %q", name, cur)
		}
		chain = append(chain, spec)
		cur = spec.Extends
	}
	slices.Reverse(chain)
	return chain, nil
}

// dependencyGraph maps solver name -> solvers it extends.
type dependencyGraph map[string][]string

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph dependencyGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in sorted order so results are deterministic.
func tarjanSCC(graph dependencyGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root node: pop the stack and emit an SCC
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// reconstructCyclePath follows edges inside an SCC from its smallest member
// until it returns to the start.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	members := make(map[string]bool, len(scc))
	for _, node := range scc {
		members[node] = true
	}

	start := slices.Min(scc)
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if members[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}

	return path
}
