// Package targets 根据触发参数从完整任务图中挑选需要执行的任务。
package targets

import (
	"context"
	"fmt"
	"sort"

	"github.com/duke-git/lancet/v2/maputil"
	"github.com/duke-git/lancet/v2/slice"

	"yqhp/release-graph/pkg/logger"
	"yqhp/release-graph/pkg/types"
)

// Target task methods.
const (
	MethodPromote = "promote"
	MethodShip    = "ship"
	MethodNightly = "nightly"
)

// NightlyReason is logged with every nightly index lookup.
const NightlyReason = "to avoid triggering multiple nightlies off the same revision"

// IndexChecker reports whether an index path already exists.
// guard.Guard implements it.
type IndexChecker interface {
	Exists(ctx context.Context, path, reason string) (bool, error)
}

// Options configures a Selector.
type Options struct {
	// Automation is true when running inside CI; only then is the nightly
	// duplicate check performed.
	Automation bool
	// TrustDomain prefixes index paths, e.g. "mobile".
	TrustDomain string
}

// Selector picks target tasks out of a full task graph.
type Selector struct {
	index IndexChecker
	opts  Options
}

// NewSelector creates a selector. index may be nil when Automation is off.
func NewSelector(index IndexChecker, opts Options) *Selector {
	return &Selector{index: index, opts: opts}
}

// Methods returns the supported method names.
func Methods() []string {
	return []string{MethodNightly, MethodPromote, MethodShip}
}

// Select returns the sorted labels chosen by method.
func (s *Selector) Select(ctx context.Context, method string, graph *types.TaskGraph, params types.Parameters) ([]string, error) {
	var labels []string

	switch method {
	case MethodPromote:
		labels = Promote(graph, params)
	case MethodShip:
		labels = Ship(graph, params)
	case MethodNightly:
		var err error
		labels, err = s.nightly(ctx, graph, params)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("未知的目标任务方法: %s", method)
	}

	logger.Info("Target method %s selected %d of %d tasks", method, len(labels), graph.Len())
	return labels, nil
}

// Promote selects tasks of the trigger's release type in the promote phase.
func Promote(graph *types.TaskGraph, params types.Parameters) []string {
	return filterTasks(graph, func(node *types.TaskNode) bool {
		return node.Attributes.Equals(types.AttrReleaseType, params.ReleaseType) &&
			node.Attributes.Equals(types.AttrShippingPhase, types.PhasePromote)
	})
}

// Ship selects the promote tasks plus the ship phase tasks of the trigger's
// release type. Promote tasks stay in the set so a downstream optimizer can
// replace them with the results of the earlier promote run.
func Ship(graph *types.TaskGraph, params types.Parameters) []string {
	shipping := filterTasks(graph, func(node *types.TaskNode) bool {
		return node.Attributes.Equals(types.AttrReleaseType, params.ReleaseType) &&
			node.Attributes.Equals(types.AttrShippingPhase, types.PhaseShip)
	})
	labels := slice.Union(Promote(graph, params), shipping)
	sort.Strings(labels)
	return labels
}

// Nightly selects every task flagged as part of the nightly run.
func Nightly(graph *types.TaskGraph) []string {
	return filterTasks(graph, func(node *types.TaskNode) bool {
		return node.Attributes.Bool(types.AttrNightlyTask)
	})
}

func (s *Selector) nightly(ctx context.Context, graph *types.TaskGraph, params types.Parameters) ([]string, error) {
	if s.opts.Automation {
		if s.index == nil {
			return nil, fmt.Errorf("nightly 任务筛选需要索引服务")
		}
		path := NightlyIndexPath(s.opts.TrustDomain, params)
		exists, err := s.index.Exists(ctx, path, NightlyReason)
		if err != nil {
			return nil, fmt.Errorf("检查 nightly 索引失败: %w", err)
		}
		if exists {
			logger.Info("Nightly for revision %s already scheduled, selecting nothing", params.HeadRev)
			return []string{}, nil
		}
	}
	return Nightly(graph), nil
}

// NightlyIndexPath is the index path under which a nightly decision task for
// the trigger's revision is recorded.
func NightlyIndexPath(trustDomain string, params types.Parameters) string {
	return fmt.Sprintf("%s.v2.%s.branch.%s.revision.%s.taskgraph.decision-nightly",
		trustDomain, params.Project, params.HeadRef, params.HeadRev)
}

func filterTasks(graph *types.TaskGraph, keep func(node *types.TaskNode) bool) []string {
	labels := slice.Filter(maputil.Keys(graph.Tasks), func(_ int, label string) bool {
		return keep(graph.Tasks[label])
	})
	sort.Strings(labels)
	return labels
}
