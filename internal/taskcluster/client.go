// Package taskcluster 提供队列、索引和密钥服务的 HTTP 客户端。
package taskcluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/valyala/fasthttp"

	"yqhp/release-graph/pkg/logger"
)

const (
	// DefaultRootURL 任务内代理地址
	DefaultRootURL = "http://taskcluster"

	defaultTimeout = 30 * time.Second
)

var (
	// 全局共享的 FastHTTP 客户端
	sharedClient     *fasthttp.Client
	sharedClientOnce sync.Once
)

func defaultHTTPClient() *fasthttp.Client {
	sharedClientOnce.Do(func() {
		sharedClient = &fasthttp.Client{
			MaxConnsPerHost:     16,
			MaxIdleConnDuration: 90 * time.Second,
			ReadTimeout:         defaultTimeout,
			WriteTimeout:        defaultTimeout,
		}
	})
	return sharedClient
}

// ServiceURL returns the base URL of a service behind rootURL, e.g.
// ServiceURL("http://taskcluster", "queue") == "http://taskcluster/queue/v1".
func ServiceURL(rootURL, service string) string {
	if rootURL == "" {
		rootURL = DefaultRootURL
	}
	return strings.TrimRight(rootURL, "/") + "/" + service + "/v1"
}

// serviceClient is the transport shared by the service clients.
type serviceClient struct {
	service string
	baseURL string
	timeout time.Duration
	client  *fasthttp.Client
}

func newServiceClient(service, baseURL string, timeout time.Duration) *serviceClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &serviceClient{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		client:  defaultHTTPClient(),
	}
}

// apiErrorBody is the error document returned by taskcluster services.
type apiErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// do sends one request and decodes a JSON response into out.
func (c *serviceClient) do(ctx context.Context, method, path string, in, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(method)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return NewClientError(ErrCodeDecode, c.service, "编码请求体失败", err)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}

	// 统一使用 DoDeadline，取上下文截止时间与超时时间中较早者
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	logger.Debug("%s %s%s", method, c.baseURL, path)
	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		if errors.Is(err, fasthttp.ErrTimeout) || time.Now().After(deadline) {
			return NewClientError(ErrCodeTimeout, c.service, fmt.Sprintf("请求超时 %s %s", method, path), err)
		}
		return NewClientError(ErrCodeTransport, c.service, fmt.Sprintf("请求失败 %s %s", method, path), err)
	}

	status := resp.StatusCode()
	if status < 200 || status >= 300 {
		var apiErr apiErrorBody
		message := strings.TrimSpace(string(resp.Body()))
		if json.Unmarshal(resp.Body(), &apiErr) == nil && apiErr.Message != "" {
			message = apiErr.Message
		}
		return statusError(c.service, status, message)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return NewClientError(ErrCodeDecode, c.service, "解析响应失败", err)
	}
	return nil
}

// escapeSegment escapes one path segment while keeping slashes used by
// hierarchical names such as secret paths.
func escapeSegment(s string) string {
	parts := strings.Split(s, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
