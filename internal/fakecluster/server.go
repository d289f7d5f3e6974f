// Package fakecluster 提供队列、索引和密钥服务的内存模拟实现。
//
// 服务以与线上相同的路径前缀挂载（/queue/v1、/index/v1、/secrets/v1），
// 因此客户端只需把根地址指向模拟服务即可。
package fakecluster

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"

	"yqhp/release-graph/pkg/logger"
	"yqhp/release-graph/pkg/types"
)

// indexRoutePrefix marks task routes that the index service picks up.
const indexRoutePrefix = "index."

// Config holds the configuration of the emulator.
type Config struct {
	// Address is the address to listen on (e.g., "127.0.0.1:8080").
	Address string `yaml:"address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the response.
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DefaultConfig returns a default emulator configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:      "127.0.0.1:8080",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// ErrorResponse is the error document served on failures.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// storedTask is one defined task.
type storedTask struct {
	Definition *types.TaskDefinition
	Status     types.TaskStatus
}

// Server emulates the queue, index and secrets services in memory.
type Server struct {
	app    *fiber.App
	config *Config

	mu      sync.Mutex
	tasks   map[string]*storedTask
	order   []string
	index   map[string]string
	secrets map[string]map[string]any

	// 故障注入
	indexFailures int
	createBudget  int
	indexLookups  int
}

// NewServer creates a new emulator.
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:           config.ReadTimeout,
		WriteTimeout:          config.WriteTimeout,
		ErrorHandler:          customErrorHandler,
		AppName:               "release-graph fake cluster",
		DisableStartupMessage: true,
		Immutable:             true,
		UnescapePath:          true,
	})

	s := &Server{
		app:          app,
		config:       config,
		tasks:        make(map[string]*storedTask),
		index:        make(map[string]string),
		secrets:      make(map[string]map[string]any),
		createBudget: -1,
	}

	s.app.Use(fiberrecover.New())
	s.setupRoutes()

	return s
}

// setupRoutes configures the service routes.
func (s *Server) setupRoutes() {
	queue := s.app.Group("/queue/v1")
	queue.Put("/task/:taskId", s.createTask)
	queue.Get("/task/:taskId", s.getTask)
	queue.Get("/task/:taskId/status", s.getTaskStatus)

	index := s.app.Group("/index/v1")
	index.Get("/task/*", s.findTask)

	secrets := s.app.Group("/secrets/v1")
	secrets.Get("/secret/*", s.getSecret)
}

// Start listens on the configured address and serves in the background.
// It returns the root URL clients should use.
func (s *Server) Start() (string, error) {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return "", fmt.Errorf("监听 %s 失败: %w", s.config.Address, err)
	}
	go func() {
		if err := s.app.Listener(ln); err != nil {
			logger.Warn("模拟服务退出: %v", err)
		}
	}()
	return "http://" + ln.Addr().String(), nil
}

// StartWithContext serves until ctx is done.
func (s *Server) StartWithContext(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		errCh <- s.app.Listen(s.config.Address)
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// SetSecret stores a secret value under name.
func (s *Server) SetSecret(name string, value map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[name] = value
}

// InsertIndex points namespace at taskID.
func (s *Server) InsertIndex(namespace, taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index[namespace] = taskID
}

// FailIndexLookups makes the next n index lookups answer 500.
func (s *Server) FailIndexLookups(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexFailures = n
}

// FailCreateAfter lets n more createTask calls succeed and rejects the rest
// with 500. A negative n removes the limit.
func (s *Server) FailCreateAfter(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createBudget = n
}

// IndexLookups returns the number of index lookups served so far.
func (s *Server) IndexLookups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexLookups
}

// TaskIDs returns the ids of defined tasks in creation order.
func (s *Server) TaskIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Task returns a stored definition.
func (s *Server) Task(taskID string) (*types.TaskDefinition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return nil, false
	}
	return t.Definition, true
}

// indexRoutes records the index routes of a newly created task. Caller holds mu.
func (s *Server) indexRoutes(taskID string, def *types.TaskDefinition) {
	for _, route := range def.Routes {
		if namespace, ok := strings.CutPrefix(route, indexRoutePrefix); ok {
			s.index[namespace] = taskID
		}
	}
}

// customErrorHandler handles errors returned by handlers.
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(ErrorResponse{
		Code:    fmt.Sprintf("error_%d", code),
		Message: message,
	})
}
