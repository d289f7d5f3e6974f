package taskcluster

import (
	"context"
	"net/http"
	"time"
)

// Secrets is a client of the secrets service.
type Secrets struct {
	c *serviceClient
}

// NewSecrets creates a secrets client for the given service base URL.
func NewSecrets(baseURL string, timeout time.Duration) *Secrets {
	return &Secrets{c: newServiceClient("secrets", baseURL, timeout)}
}

// Get returns the raw secret document ({"secret": {...}, "expires": ...}).
func (s *Secrets) Get(ctx context.Context, name string) (map[string]any, error) {
	var doc map[string]any
	if err := s.c.do(ctx, http.MethodGet, "/secret/"+escapeSegment(name), nil, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
