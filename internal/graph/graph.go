// Package graph holds the named task graph and the runner that executes a
// node after its dependencies. One-shot CLI runs and watch-triggered runs go
// through the same runner.
package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/conneroisu/sitegraph/internal/tasks"
)

var (
	// ErrUnknownTask is returned for a task name that is not in the graph.
	ErrUnknownTask = errors.New("unknown task")
	// ErrCycle is returned when dependencies form a cycle.
	ErrCycle = errors.New("dependency cycle")
	// ErrDuplicateTask is returned when a name is added twice.
	ErrDuplicateTask = errors.New("duplicate task")
	// ErrDependencyFailed marks a node skipped because a dependency failed.
	ErrDependencyFailed = errors.New("dependency failed")
)

// RunFunc performs a node's work.
type RunFunc func(ctx context.Context) tasks.Result

// Node is a named unit of the graph.
type Node struct {
	Name        string
	Description string
	// Deps run, concurrently, before the node.
	Deps []string
	// Service nodes start something long-lived and return once it is up.
	Service bool
	// Run is nil for nodes that only group their dependencies.
	Run RunFunc
}

// Kind describes how the node runs.
func (n Node) Kind() string {
	switch {
	case n.Service:
		return "service"
	case n.Run == nil:
		return "group"
	default:
		return "one-shot"
	}
}

// Graph is a set of named nodes.
type Graph struct {
	nodes map[string]Node
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{nodes: make(map[string]Node)}
}

// Add registers node. Dependencies may be added later; Validate checks them.
func (g *Graph) Add(node Node) error {
	if node.Name == "" {
		return fmt.Errorf("task name cannot be empty")
	}
	if _, exists := g.nodes[node.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, node.Name)
	}
	node.Deps = append([]string(nil), node.Deps...)
	g.nodes[node.Name] = node
	return nil
}

// Node returns the node called name.
func (g *Graph) Node(name string) (Node, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// Names returns every node name in sorted order.
func (g *Graph) Names() []string {
	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that every dependency exists and that there are no cycles.
func (g *Graph) Validate() error {
	for _, name := range g.Names() {
		for _, dep := range g.nodes[name].Deps {
			if _, ok := g.nodes[dep]; !ok {
				return fmt.Errorf("%w: %s (required by %s)", ErrUnknownTask, dep, name)
			}
		}
	}

	state := make(map[string]int, len(g.nodes))
	for _, name := range g.Names() {
		if _, err := g.visit(name, state, nil); err != nil {
			return err
		}
	}
	return nil
}

// Closure returns name and everything it depends on, dependencies first.
func (g *Graph) Closure(name string) ([]string, error) {
	if _, ok := g.nodes[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	return g.visit(name, make(map[string]int), nil)
}

const (
	unvisited = iota
	visiting
	visited
)

// visit is a depth-first topological walk appending to order.
func (g *Graph) visit(name string, state map[string]int, order []string) ([]string, error) {
	switch state[name] {
	case visiting:
		return nil, fmt.Errorf("%w: through %s", ErrCycle, name)
	case visited:
		return order, nil
	}

	node, ok := g.nodes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}

	state[name] = visiting
	var err error
	for _, dep := range node.Deps {
		if order, err = g.visit(dep, state, order); err != nil {
			return nil, err
		}
	}
	state[name] = visited
	return append(order, name), nil
}
