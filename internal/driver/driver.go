// Package driver 按拓扑顺序把任务图提交到队列，并持久化实际提交的任务定义。
//
// 每个节点在提交之前就分配好任务 ID，因此下游节点的依赖和上游产物
// 引用可以在解析阶段一次性填好。提交严格串行，首个失败即中止。
package driver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"yqhp/release-graph/internal/audit"
	"yqhp/release-graph/internal/taskcluster"
	"yqhp/release-graph/pkg/logger"
	"yqhp/release-graph/pkg/types"
)

// Queue is the part of the queue service the driver needs.
type Queue interface {
	CreateTask(ctx context.Context, taskID string, def *types.TaskDefinition) (*types.TaskStatus, error)
	Task(ctx context.Context, taskID string) (*types.TaskDefinition, error)
}

// Options configures a driver.
type Options struct {
	// Kind names the pipeline in audit records.
	Kind           string
	DecisionTaskID string
	// DryRun resolves and records definitions without calling the queue.
	DryRun bool
	// NewID generates task ids; taskcluster.SlugID when nil.
	NewID func() string
	// Now is the audit record clock; time.Now when nil.
	Now func() time.Time
}

// Driver submits task graphs.
type Driver struct {
	queue Queue
	audit *audit.Manager
	opts  Options
}

// New creates a driver. queue may be nil in dry-run mode; sinks may be nil.
func New(queue Queue, sinks *audit.Manager, opts Options) *Driver {
	if opts.NewID == nil {
		opts.NewID = taskcluster.SlugID
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if sinks == nil {
		sinks = audit.NewManager()
	}
	return &Driver{queue: queue, audit: sinks, opts: opts}
}

// Result is the realized graph of one submission.
type Result struct {
	// Order lists labels in submission order.
	Order []string
	// IDs maps label to task id.
	IDs map[string]string
	// Record is what was persisted.
	Record *audit.Record
	DryRun bool
}

// TaskIDs returns the task ids in submission order.
func (r *Result) TaskIDs() []string {
	ids := make([]string, 0, len(r.Order))
	for _, label := range r.Order {
		if _, submitted := r.Record.Tasks[r.IDs[label]]; submitted {
			ids = append(ids, r.IDs[label])
		}
	}
	return ids
}

// SubmitError reports the first failed submission. Tasks submitted before it
// stay submitted.
type SubmitError struct {
	Label     string
	TaskID    string
	Submitted []string
	Cause     error
}

func (e *SubmitError) Error() string {
	msg := fmt.Sprintf("提交任务 %s (%s) 失败", e.Label, e.TaskID)
	if len(e.Submitted) > 0 {
		msg += fmt.Sprintf("，已提交: %s", strings.Join(e.Submitted, ", "))
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *SubmitError) Unwrap() error {
	return e.Cause
}

// Submit validates graph, assigns ids, resolves every node and creates the
// tasks in topological order. The realized graph is persisted to every audit
// sink, also when submission stops early.
func (d *Driver) Submit(ctx context.Context, graph *types.TaskGraph) (*Result, error) {
	if d.queue == nil && !d.opts.DryRun {
		return nil, fmt.Errorf("未配置队列客户端")
	}

	order, err := graph.TopologicalOrder()
	if err != nil {
		return nil, fmt.Errorf("任务图无效: %w", err)
	}

	ids := make(map[string]string, len(order))
	for _, label := range order {
		ids[label] = d.opts.NewID()
	}

	defs := make(map[string]*types.TaskDefinition, len(order))
	for _, label := range order {
		node, _ := graph.Get(label)
		def, err := node.Resolve(ids)
		if err != nil {
			return nil, fmt.Errorf("解析任务 %s 失败: %w", label, err)
		}
		defs[label] = def
	}

	result := &Result{
		Order:  order,
		IDs:    ids,
		DryRun: d.opts.DryRun,
		Record: &audit.Record{
			Kind:           d.opts.Kind,
			DecisionTaskID: d.opts.DecisionTaskID,
			CreatedAt:      d.opts.Now(),
			Tasks:          make(map[string]audit.Entry, len(order)),
		},
	}

	var submitted []string
	for _, label := range order {
		taskID := ids[label]
		if d.opts.DryRun {
			logger.Info("[dry-run] %s => %s", label, taskID)
			result.Record.Tasks[taskID] = audit.Entry{Label: label, Task: defs[label]}
			continue
		}

		if err := d.create(ctx, label, taskID, defs[label], result.Record); err != nil {
			submitErr := &SubmitError{
				Label:     label,
				TaskID:    taskID,
				Submitted: append([]string(nil), submitted...),
				Cause:     err,
			}
			if auditErr := d.audit.Write(context.WithoutCancel(ctx), result.Record); auditErr != nil {
				logger.Warn("%v", auditErr)
			}
			return result, submitErr
		}
		submitted = append(submitted, taskID)
	}

	if err := d.audit.Write(context.WithoutCancel(ctx), result.Record); err != nil {
		return result, err
	}
	return result, nil
}

func (d *Driver) create(ctx context.Context, label, taskID string, def *types.TaskDefinition, record *audit.Record) error {
	logger.Info("Creating task %s with id %s", label, taskID)
	status, err := d.queue.CreateTask(ctx, taskID, def)
	if err != nil {
		return err
	}
	logger.Debug("Task %s state %s", taskID, status.State)

	// 以队列中存储的定义为准
	stored, err := d.queue.Task(ctx, taskID)
	if err != nil {
		logger.Warn("获取任务 %s 定义失败，使用本地定义: %v", taskID, err)
		stored = def
	}
	record.Tasks[taskID] = audit.Entry{Label: label, Task: stored}
	return nil
}
