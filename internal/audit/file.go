package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileSink writes the realized graph to a JSON file, replacing previous content.
type FileSink struct {
	path   string
	pretty bool
	mu     sync.Mutex
}

// NewFileSink creates a file sink.
func NewFileSink(path string, pretty bool) *FileSink {
	return &FileSink{path: path, pretty: pretty}
}

// Name returns the sink name.
func (s *FileSink) Name() string {
	return "file"
}

// Path returns the output file path.
func (s *FileSink) Path() string {
	return s.path
}

// Write writes the record.
func (s *FileSink) Write(ctx context.Context, record *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := Encode(record, s.pretty)
	if err != nil {
		return fmt.Errorf("序列化任务图失败: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建目录失败: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("写入文件失败: %w", err)
	}
	return nil
}
