package types

import (
	"fmt"
	"sort"
)

// Well-known task attribute keys.
const (
	AttrReleaseType   = "release-type"
	AttrShippingPhase = "shipping_phase"
	AttrNightlyTask   = "nightly-task"
	AttrBuildType     = "build-type"
	AttrSigned        = "signed"
)

// Shipping phases.
const (
	PhaseBuild   = "build"
	PhasePromote = "promote"
	PhaseShip    = "ship"
)

// Attributes are the free-form task attributes used for target selection.
type Attributes map[string]any

// String returns the attribute as a string, or "" when absent or not a string.
func (a Attributes) String(key string) string {
	if v, ok := a[key].(string); ok {
		return v
	}
	return ""
}

// Equals reports whether the attribute is present as a string equal to value.
// An absent attribute never matches, not even an empty value.
func (a Attributes) Equals(key, value string) bool {
	v, ok := a[key].(string)
	return ok && v == value
}

// Bool returns the attribute as a bool, or false when absent or not a bool.
func (a Attributes) Bool(key string) bool {
	if v, ok := a[key].(bool); ok {
		return v
	}
	return false
}

// Artifact describes one entry of a task's artifact manifest.
type Artifact struct {
	Type    string `json:"type" yaml:"type"`
	Path    string `json:"path" yaml:"path"`
	Expires string `json:"expires" yaml:"expires"`
}

// UpstreamArtifact references artifacts produced by a dependency.
// TaskLabel is used while the graph is being built; TaskID is filled on resolve.
type UpstreamArtifact struct {
	TaskID    string   `json:"taskId"`
	TaskType  string   `json:"taskType"`
	Paths     []string `json:"paths"`
	Formats   []string `json:"formats,omitempty"`
	TaskLabel string   `json:"-" yaml:"task-label"`
}

// Worker describes where and how a task runs.
type Worker struct {
	Type              string             `json:"worker-type" yaml:"worker-type"`
	SigningType       string             `json:"signing-type,omitempty" yaml:"signing-type,omitempty"`
	UpstreamArtifacts []UpstreamArtifact `json:"upstream-artifacts,omitempty" yaml:"upstream-artifacts,omitempty"`
}

// Index holds index metadata attached to a task.
type Index struct {
	Type string `json:"type" yaml:"type"`
}

// TaskNode is a labeled unit of work inside a task graph.
type TaskNode struct {
	Label        string              `json:"label" yaml:"label"`
	Kind         string              `json:"kind" yaml:"kind"`
	Attributes   Attributes          `json:"attributes" yaml:"attributes"`
	Dependencies map[string]string   `json:"dependencies" yaml:"dependencies"` // name -> label
	Worker       Worker              `json:"worker" yaml:"worker"`
	Artifacts    map[string]Artifact `json:"artifacts,omitempty" yaml:"artifacts,omitempty"`
	Routes       []string            `json:"routes,omitempty" yaml:"routes,omitempty"`
	Index        *Index              `json:"index,omitempty" yaml:"index,omitempty"`
	Scopes       []string            `json:"scopes,omitempty" yaml:"scopes,omitempty"`

	// Task is the definition template; dependencies and upstream task ids are
	// filled by Resolve.
	Task *TaskDefinition `json:"task,omitempty" yaml:"-"`
}

// DependencyLabels returns the labels this node depends on, sorted.
func (n *TaskNode) DependencyLabels() []string {
	labels := make([]string, 0, len(n.Dependencies))
	seen := make(map[string]bool, len(n.Dependencies))
	for _, label := range n.Dependencies {
		if !seen[label] {
			seen[label] = true
			labels = append(labels, label)
		}
	}
	sort.Strings(labels)
	return labels
}

// Resolve renders the node into a queue task definition, replacing dependency
// labels and upstream artifact labels by the task ids in ids.
func (n *TaskNode) Resolve(ids map[string]string) (*TaskDefinition, error) {
	if n.Task == nil {
		return nil, fmt.Errorf("task %s has no definition template", n.Label)
	}

	def := n.Task.clone()
	def.WorkerType = n.Worker.Type
	def.Routes = append([]string{}, n.Routes...)
	def.Scopes = append([]string{}, n.Scopes...)

	def.Dependencies = make([]string, 0, len(n.Dependencies))
	for _, label := range n.DependencyLabels() {
		id, ok := ids[label]
		if !ok {
			return nil, missingf("task %s depends on %s which has no task id", n.Label, label)
		}
		def.Dependencies = append(def.Dependencies, id)
	}

	if len(n.Artifacts) > 0 {
		def.Payload.Artifacts = make(map[string]Artifact, len(n.Artifacts))
		for name, artifact := range n.Artifacts {
			def.Payload.Artifacts[name] = artifact
		}
	}

	if len(n.Worker.UpstreamArtifacts) > 0 {
		def.Payload.UpstreamArtifacts = make([]UpstreamArtifact, 0, len(n.Worker.UpstreamArtifacts))
		for _, upstream := range n.Worker.UpstreamArtifacts {
			id, ok := ids[upstream.TaskLabel]
			if !ok {
				return nil, missingf("task %s references artifacts of %s which has no task id", n.Label, upstream.TaskLabel)
			}
			resolved := upstream
			resolved.TaskID = id
			resolved.Paths = append([]string{}, upstream.Paths...)
			resolved.Formats = append([]string(nil), upstream.Formats...)
			def.Payload.UpstreamArtifacts = append(def.Payload.UpstreamArtifacts, resolved)
		}
	}

	return def, nil
}
