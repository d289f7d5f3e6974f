package targets

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"yqhp/release-graph/pkg/types"
)

// ParseFullTaskGraph reads a full task graph document (label -> task node) in
// JSON or YAML form and validates it.
func ParseFullTaskGraph(data []byte) (*types.TaskGraph, error) {
	var nodes map[string]*types.TaskNode
	if err := yaml.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("解析任务图失败: %w", err)
	}

	labels := make([]string, 0, len(nodes))
	for label := range nodes {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	graph := types.NewTaskGraph()
	for _, label := range labels {
		node := nodes[label]
		if node == nil {
			node = &types.TaskNode{}
		}
		if node.Label == "" {
			node.Label = label
		}
		if node.Label != label {
			return nil, fmt.Errorf("任务 %s 的 label 为 %s", label, node.Label)
		}
		if node.Attributes == nil {
			node.Attributes = types.Attributes{}
		}
		if err := graph.Add(node); err != nil {
			return nil, err
		}
	}

	if err := graph.Validate(); err != nil {
		return nil, fmt.Errorf("任务图无效: %w", err)
	}
	return graph, nil
}
