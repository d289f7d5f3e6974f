// Package audit 持久化已实现的任务图（task id → label + 任务定义）。
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"yqhp/release-graph/internal/config"
	"yqhp/release-graph/pkg/types"
)

// Entry is one submitted task of a realized graph.
type Entry struct {
	Label string                `json:"label"`
	Task  *types.TaskDefinition `json:"task"`
}

// Record is a realized task graph.
type Record struct {
	// Kind names the pipeline, e.g. "release" or "push".
	Kind           string
	DecisionTaskID string
	CreatedAt      time.Time
	// Tasks maps task id to its entry.
	Tasks map[string]Entry
}

// Encode renders the record the way it is persisted: a JSON object keyed by task id.
func Encode(record *Record, pretty bool) ([]byte, error) {
	tasks := record.Tasks
	if tasks == nil {
		tasks = map[string]Entry{}
	}
	if pretty {
		return json.MarshalIndent(tasks, "", "    ")
	}
	return json.Marshal(tasks)
}

// Sink persists realized task graphs.
type Sink interface {
	// Name 返回 sink 名称。
	Name() string

	// Write 持久化一次运行的任务图。
	Write(ctx context.Context, record *Record) error
}

// Manager fans a record out to every configured sink.
type Manager struct {
	sinks []Sink
	mu    sync.RWMutex
}

// NewManager creates a manager with the given sinks.
func NewManager(sinks ...Sink) *Manager {
	return &Manager{sinks: append([]Sink(nil), sinks...)}
}

// Add appends a sink.
func (m *Manager) Add(sink Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, sink)
}

// Sinks returns the configured sinks.
func (m *Manager) Sinks() []Sink {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Sink(nil), m.sinks...)
}

// Write writes the record to every sink. Every sink is attempted; the joined
// failures are returned.
func (m *Manager) Write(ctx context.Context, record *Record) error {
	var errs []error
	for _, sink := range m.Sinks() {
		if err := sink.Write(ctx, record); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("持久化任务图失败: %w", errors.Join(errs...))
	}
	return nil
}

// FromConfig builds the sinks enabled in cfg.
func FromConfig(cfg config.AuditConfig) (*Manager, error) {
	m := NewManager()
	if cfg.FilePath != "" {
		m.Add(NewFileSink(cfg.FilePath, cfg.Pretty))
	}
	if cfg.ObjectStore.Enabled {
		sink, err := NewObjectStoreSink(cfg.ObjectStore, cfg.Pretty)
		if err != nil {
			return nil, fmt.Errorf("创建对象存储 sink 失败: %w", err)
		}
		m.Add(sink)
	}
	return m, nil
}
