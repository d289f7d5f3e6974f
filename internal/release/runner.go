// Package release 串联一次发布运行：参数 → 幂等检查 → 构建任务图 → 提交。
package release

import (
	"context"
	"fmt"
	"time"

	"yqhp/release-graph/internal/audit"
	"yqhp/release-graph/internal/builder"
	"yqhp/release-graph/internal/config"
	"yqhp/release-graph/internal/driver"
	"yqhp/release-graph/internal/guard"
	"yqhp/release-graph/internal/targets"
	"yqhp/release-graph/internal/taskcluster"
	"yqhp/release-graph/pkg/logger"
	"yqhp/release-graph/pkg/types"
)

// Options configures a runner.
type Options struct {
	Staging bool
	DryRun  bool
	// NewID and Now are passed through to the driver and the builder.
	NewID func() string
	Now   func() time.Time
}

// Outcome is the result of one run.
type Outcome struct {
	// Skipped is true when the nightly for this revision was already scheduled.
	Skipped    bool
	Descriptor builder.StageDescriptor
	Graph      *types.TaskGraph
	Result     *driver.Result
}

// Runner drives release and push pipelines.
type Runner struct {
	cfg   *config.Config
	queue driver.Queue
	index targets.IndexChecker
	sinks *audit.Manager
	opts  Options
}

// New creates a runner. index may be nil, which disables the nightly duplicate
// check. queue may be nil in dry-run mode.
func New(cfg *config.Config, queue driver.Queue, index targets.IndexChecker, sinks *audit.Manager, opts Options) *Runner {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{cfg: cfg, queue: queue, index: index, sinks: sinks, opts: opts}
}

// FromConfig wires the taskcluster clients, the guard and the audit sinks.
// Dry runs talk to no service at all.
func FromConfig(cfg *config.Config, opts Options) (*Runner, error) {
	sinks, err := audit.FromConfig(cfg.Audit)
	if err != nil {
		return nil, err
	}
	if opts.DryRun {
		return New(cfg, nil, nil, sinks, opts), nil
	}

	tc := cfg.Taskcluster
	queue := taskcluster.NewQueue(tc.ServiceURL("queue"), tc.Timeout)
	index := guard.New(taskcluster.NewIndex(tc.ServiceURL("index"), tc.Timeout), cfg.Retry)
	return New(cfg, queue, index, sinks, opts), nil
}

func (r *Runner) builder(params types.Parameters) *builder.Builder {
	bctx := builder.NewContext(params, r.cfg.Release)
	bctx.Now = r.opts.Now
	return builder.New(bctx, r.cfg.Release)
}

func (r *Runner) driver(kind string, params types.Parameters) *driver.Driver {
	return driver.New(r.queue, r.sinks, driver.Options{
		Kind:           kind,
		DecisionTaskID: params.DecisionTaskID,
		DryRun:         r.opts.DryRun,
		NewID:          r.opts.NewID,
		Now:            r.opts.Now,
	})
}

// Release builds and submits the build → sign → publish graph. A nightly run
// whose revision is already indexed submits nothing.
func (r *Runner) Release(ctx context.Context, params types.Parameters) (*Outcome, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	b := r.builder(params)
	desc, err := b.Describe(params, r.opts.Staging)
	if err != nil {
		return nil, fmt.Errorf("构建阶段描述失败: %w", err)
	}
	outcome := &Outcome{Descriptor: desc}

	if desc.NightlyIndexPath != "" && r.index != nil {
		exists, err := r.index.Exists(ctx, desc.NightlyIndexPath, targets.NightlyReason)
		if err != nil {
			return nil, fmt.Errorf("幂等检查失败: %w", err)
		}
		if exists {
			logger.Info("Nightly for revision %s already scheduled, nothing to do", params.HeadRev)
			outcome.Skipped = true
			return outcome, nil
		}
	}

	graph, err := b.ReleaseGraph(params, r.opts.Staging)
	if err != nil {
		return nil, fmt.Errorf("构建任务图失败: %w", err)
	}
	outcome.Graph = graph

	result, err := r.driver("release", params).Submit(ctx, graph)
	outcome.Result = result
	if err != nil {
		return outcome, err
	}
	logger.Info("Submitted %d release tasks (%s, %s signing)", len(result.TaskIDs()), desc.BuildType, desc.Signing.SigningType)
	return outcome, nil
}

// Push builds and submits the push-to-master pipeline.
func (r *Runner) Push(ctx context.Context, params types.Parameters) (*Outcome, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	graph, err := r.builder(params).PushGraph()
	if err != nil {
		return nil, fmt.Errorf("构建任务图失败: %w", err)
	}
	outcome := &Outcome{Graph: graph}

	result, err := r.driver("push", params).Submit(ctx, graph)
	outcome.Result = result
	if err != nil {
		return outcome, err
	}
	logger.Info("Submitted %d push tasks", len(result.TaskIDs()))
	return outcome, nil
}
