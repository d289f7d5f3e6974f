package types

import (
	"sort"
)

// TaskGraph maps task labels to task nodes. A valid graph is acyclic and every
// dependency label names a node of the same graph.
type TaskGraph struct {
	Tasks map[string]*TaskNode
}

// NewTaskGraph creates an empty task graph.
func NewTaskGraph() *TaskGraph {
	return &TaskGraph{Tasks: make(map[string]*TaskNode)}
}

// Add inserts a node. Labels must be unique.
func (g *TaskGraph) Add(node *TaskNode) error {
	if node == nil || node.Label == "" {
		return invalidf("task node must have a label")
	}
	if _, exists := g.Tasks[node.Label]; exists {
		return &GraphError{Kind: ErrDuplicateLabel, Msg: node.Label}
	}
	g.Tasks[node.Label] = node
	return nil
}

// Get returns the node with the given label.
func (g *TaskGraph) Get(label string) (*TaskNode, bool) {
	node, ok := g.Tasks[label]
	return node, ok
}

// Len returns the number of nodes.
func (g *TaskGraph) Len() int {
	return len(g.Tasks)
}

// Labels returns all labels, sorted.
func (g *TaskGraph) Labels() []string {
	labels := make([]string, 0, len(g.Tasks))
	for label := range g.Tasks {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// Validate checks that every dependency exists and that the graph has no cycle.
func (g *TaskGraph) Validate() error {
	_, err := g.TopologicalOrder()
	return err
}

// TopologicalOrder returns the labels in dependency order. Ties are broken by
// label so the order is deterministic.
func (g *TaskGraph) TopologicalOrder() ([]string, error) {
	indeg := make(map[string]int, len(g.Tasks))
	dependents := make(map[string][]string, len(g.Tasks))

	for _, label := range g.Labels() {
		node := g.Tasks[label]
		if node.Label != label {
			return nil, invalidf("task keyed %s is labeled %s", label, node.Label)
		}
		deps := node.DependencyLabels()
		for _, dep := range deps {
			if _, ok := g.Tasks[dep]; !ok {
				return nil, missingf("task %s depends on unknown task %s", label, dep)
			}
			dependents[dep] = append(dependents[dep], label)
		}
		for _, upstream := range node.Worker.UpstreamArtifacts {
			if !containsString(deps, upstream.TaskLabel) {
				return nil, missingf("task %s uses artifacts of %s without depending on it", label, upstream.TaskLabel)
			}
		}
		indeg[label] = len(deps)
	}

	var ready []string
	for label, d := range indeg {
		if d == 0 {
			ready = append(ready, label)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(g.Tasks))
	for len(ready) > 0 {
		label := ready[0]
		ready = ready[1:]
		order = append(order, label)

		for _, next := range dependents[label] {
			indeg[next]--
			if indeg[next] == 0 {
				ready = insertSorted(ready, next)
			}
		}
	}

	if len(order) != len(g.Tasks) {
		return nil, cycleError(g.findCycle())
	}
	return order, nil
}

// findCycle extracts one cycle path with a DFS over sorted labels.
func (g *TaskGraph) findCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make(map[string]int, len(g.Tasks))
	var stack []string
	var cycle []string

	var dfs func(label string) bool
	dfs = func(label string) bool {
		color[label] = gray
		stack = append(stack, label)
		for _, dep := range g.Tasks[label].DependencyLabels() {
			if _, ok := g.Tasks[dep]; !ok {
				continue
			}
			switch color[dep] {
			case white:
				if dfs(dep) {
					return true
				}
			case gray:
				for i, l := range stack {
					if l == dep {
						cycle = append(cycle, stack[i:]...)
						cycle = append(cycle, dep)
						return true
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[label] = black
		return false
	}

	for _, label := range g.Labels() {
		if color[label] == white && dfs(label) {
			break
		}
	}
	return cycle
}

func insertSorted(s []string, v string) []string {
	i := sort.SearchStrings(s, v)
	s = append(s, "")
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func containsString(s []string, v string) bool {
	for _, item := range s {
		if item == v {
			return true
		}
	}
	return false
}
