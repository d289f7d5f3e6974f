// Package guard 通过查询索引服务判断某个构建是否已经产生，避免重复触发。
package guard

import (
	"context"
	"fmt"

	"yqhp/release-graph/internal/retry"
	"yqhp/release-graph/internal/taskcluster"
	"yqhp/release-graph/pkg/logger"
)

// Finder looks up the task indexed under a dot-delimited path.
// A missing path must produce an error for which taskcluster.IsNotFound is true.
type Finder interface {
	FindTask(ctx context.Context, path string) (string, error)
}

// Guard answers "does this index path already exist" with retries on
// transient failures.
type Guard struct {
	finder Finder
	policy retry.Policy
}

// New creates a guard. A zero policy falls back to retry.DefaultPolicy.
func New(finder Finder, policy retry.Policy) *Guard {
	if policy.MaxAttempts <= 0 {
		policy = retry.DefaultPolicy()
	}
	return &Guard{finder: finder, policy: policy}
}

// Exists reports whether path is indexed. A definitive not-found answer is
// false with no error. Any other failure is retried; when the attempts run out
// the error wraps retry.ErrExhausted and is never reported as false.
func (g *Guard) Exists(ctx context.Context, path, reason string) (bool, error) {
	var taskID string
	found := false

	out, err := retry.Do(ctx, g.policy, func(attempt int) error {
		logger.Debug("Looking for existing index %s %s (attempt %d)...", path, reason, attempt)
		id, err := g.finder.FindTask(ctx, path)
		if err != nil {
			if taskcluster.IsNotFound(err) {
				found = false
				return nil
			}
			logger.Warn("Looking up index %s failed: %v", path, err)
			return err
		}
		taskID = id
		found = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("查询索引 %s 失败: %w", path, err)
	}

	if found {
		logger.Info("Index %s exists: taskId %s", path, taskID)
	} else {
		logger.Info("Index %s doesn't exist.", path)
	}
	if out.Attempts > 1 {
		logger.Debug("Index lookup for %s took %d attempts", path, out.Attempts)
	}
	return found, nil
}
