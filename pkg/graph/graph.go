// Package graph orders things that depend on each other: migration phases and
// records whose parent must be migrated first.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrCycle is returned when dependencies form a cycle
var ErrCycle = errors.New("dependency cycle")

// Graph is a directed graph where an edge from -> to means "from depends on to"
type Graph struct {
	order     []string                     // insertion order
	adjacency map[string]map[string]string // node -> {dependency -> relationship}
	reverse   map[string]map[string]string // node -> {dependent -> relationship}
	mu        sync.RWMutex
}

// New creates an empty graph
func New() *Graph {
	return &Graph{
		adjacency: make(map[string]map[string]string),
		reverse:   make(map[string]map[string]string),
	}
}

// AddNode adds a node; adding it twice is a no-op
func (g *Graph) AddNode(nodeID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addNode(nodeID)
}

func (g *Graph) addNode(nodeID string) {
	if _, exists := g.adjacency[nodeID]; exists {
		return
	}
	g.adjacency[nodeID] = make(map[string]string)
	g.reverse[nodeID] = make(map[string]string)
	g.order = append(g.order, nodeID)
}

// AddEdge records that from depends on to, adding missing nodes
func (g *Graph) AddEdge(from, to, relationship string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.addNode(from)
	g.addNode(to)
	g.adjacency[from][to] = relationship
	g.reverse[to][from] = relationship
}

// HasNode reports whether nodeID was added
func (g *Graph) HasNode(nodeID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.adjacency[nodeID]
	return ok
}

// Dependencies returns the nodes nodeID depends on, sorted
func (g *Graph) Dependencies(nodeID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sortedKeys(g.adjacency[nodeID])
}

// Dependents returns the nodes depending on nodeID, sorted
func (g *Graph) Dependents(nodeID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sortedKeys(g.reverse[nodeID])
}

// Closure returns nodeID and everything it depends on, transitively, with
// dependencies first.
func (g *Graph) Closure(nodeID string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.adjacency[nodeID]; !ok {
		return nil, fmt.Errorf("node %s not found", nodeID)
	}

	var result []string
	state := make(map[string]int) // 1 visiting, 2 done
	var visit func(string) error
	visit = func(node string) error {
		switch state[node] {
		case 1:
			return fmt.Errorf("%w through %s", ErrCycle, node)
		case 2:
			return nil
		}
		state[node] = 1
		for _, dep := range sortedKeys(g.adjacency[node]) {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[node] = 2
		result = append(result, node)
		return nil
	}

	if err := visit(nodeID); err != nil {
		return nil, err
	}
	return result, nil
}

// HasCycle checks if the graph has a cycle using DFS
func (g *Graph) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	var hasCycleFrom func(string) bool
	hasCycleFrom = func(node string) bool {
		visited[node] = true
		recStack[node] = true

		for neighbor := range g.adjacency[node] {
			if !visited[neighbor] {
				if hasCycleFrom(neighbor) {
					return true
				}
			} else if recStack[neighbor] {
				return true
			}
		}

		recStack[node] = false
		return false
	}

	for _, node := range g.order {
		if !visited[node] && hasCycleFrom(node) {
			return true
		}
	}
	return false
}

// TopologicalOrder lists every node with dependencies before dependents.
// Nodes free of dependencies come first, in insertion order. Nodes caught in
// a cycle are appended in insertion order and ErrCycle is returned with the
// full list.
func (g *Graph) TopologicalOrder() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	pending := make(map[string]int, len(g.order))
	pos := make(map[string]int, len(g.order))
	queue := make([]string, 0, len(g.order))
	for i, node := range g.order {
		pos[node] = i
		pending[node] = len(g.adjacency[node])
		if pending[node] == 0 {
			queue = append(queue, node)
		}
	}

	result := make([]string, 0, len(g.order))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)

		dependents := make([]string, 0, len(g.reverse[node]))
		for dependent := range g.reverse[node] {
			dependents = append(dependents, dependent)
		}
		sort.Slice(dependents, func(i, j int) bool { return pos[dependents[i]] < pos[dependents[j]] })

		for _, dependent := range dependents {
			pending[dependent]--
			if pending[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(result) == len(g.order) {
		return result, nil
	}

	var stuck []string
	for _, node := range g.order {
		if pending[node] > 0 {
			stuck = append(stuck, node)
		}
	}
	return append(result, stuck...), fmt.Errorf("%w among %s", ErrCycle, strings.Join(stuck, ", "))
}

// NodeCount returns the number of nodes in the graph
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.order)
}

// EdgeCount returns the number of edges in the graph
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	count := 0
	for _, deps := range g.adjacency {
		count += len(deps)
	}
	return count
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
