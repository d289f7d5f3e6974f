package taskcluster

import (
	"context"
	"net/http"
	"time"
)

// IndexedTask is the index entry of a namespace.
type IndexedTask struct {
	Namespace string `json:"namespace"`
	TaskID    string `json:"taskId"`
	Rank      int    `json:"rank"`
	Expires   string `json:"expires,omitempty"`
}

// Index is a client of the index service.
type Index struct {
	c *serviceClient
}

// NewIndex creates an index client for the given service base URL.
func NewIndex(baseURL string, timeout time.Duration) *Index {
	return &Index{c: newServiceClient("index", baseURL, timeout)}
}

// FindTask returns the id of the task indexed under namespace.
// A missing namespace yields an error for which IsNotFound is true.
func (i *Index) FindTask(ctx context.Context, namespace string) (string, error) {
	var entry IndexedTask
	if err := i.c.do(ctx, http.MethodGet, "/task/"+escapeSegment(namespace), nil, &entry); err != nil {
		return "", err
	}
	return entry.TaskID, nil
}
