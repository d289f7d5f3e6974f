package taskcluster

import (
	"context"
	"net/http"
	"time"

	"yqhp/release-graph/pkg/types"
)

// CreateTaskResponse is the answer of the queue to a createTask call.
type CreateTaskResponse struct {
	Status types.TaskStatus `json:"status"`
}

// Queue is a client of the queue service.
type Queue struct {
	c *serviceClient
}

// NewQueue creates a queue client for the given service base URL.
func NewQueue(baseURL string, timeout time.Duration) *Queue {
	return &Queue{c: newServiceClient("queue", baseURL, timeout)}
}

// CreateTask defines a task under the given id.
func (q *Queue) CreateTask(ctx context.Context, taskID string, def *types.TaskDefinition) (*types.TaskStatus, error) {
	var resp CreateTaskResponse
	if err := q.c.do(ctx, http.MethodPut, "/task/"+escapeSegment(taskID), def, &resp); err != nil {
		return nil, err
	}
	return &resp.Status, nil
}

// Task fetches the stored definition of a task.
func (q *Queue) Task(ctx context.Context, taskID string) (*types.TaskDefinition, error) {
	var def types.TaskDefinition
	if err := q.c.do(ctx, http.MethodGet, "/task/"+escapeSegment(taskID), nil, &def); err != nil {
		return nil, err
	}
	return &def, nil
}
