package fakecluster

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doRequest(t *testing.T, s *Server, method, path, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var doc map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &doc))
	}
	return resp.StatusCode, doc
}

const taskBody = `{"provisionerId":"aws-provisioner-v1","workerType":"github-worker","taskGroupId":"group","routes":["index.project.focus.nightly.latest","notify.email.x"],"retries":5}`

func TestCreateAndGetTask(t *testing.T) {
	s := NewServer(nil)

	status, doc := doRequest(t, s, http.MethodPut, "/queue/v1/task/abc", taskBody)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "pending", doc["status"].(map[string]any)["state"])

	status, doc = doRequest(t, s, http.MethodGet, "/queue/v1/task/abc", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "github-worker", doc["workerType"])

	assert.Equal(t, []string{"abc"}, s.TaskIDs())
}

func TestCreateTaskIndexesRoutes(t *testing.T) {
	s := NewServer(nil)
	status, _ := doRequest(t, s, http.MethodPut, "/queue/v1/task/abc", taskBody)
	require.Equal(t, http.StatusOK, status)

	status, doc := doRequest(t, s, http.MethodGet, "/index/v1/task/project.focus.nightly.latest", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "abc", doc["taskId"])

	status, _ = doRequest(t, s, http.MethodGet, "/index/v1/task/notify.email.x", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestCreateTaskRejectsDuplicatesAndUnknownDependencies(t *testing.T) {
	s := NewServer(nil)
	status, _ := doRequest(t, s, http.MethodPut, "/queue/v1/task/abc", taskBody)
	require.Equal(t, http.StatusOK, status)

	status, doc := doRequest(t, s, http.MethodPut, "/queue/v1/task/abc", taskBody)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "RequestConflict", doc["code"])

	status, _ = doRequest(t, s, http.MethodPut, "/queue/v1/task/def",
		`{"provisionerId":"p","workerType":"w","dependencies":["missing"]}`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestCreateTaskValidation(t *testing.T) {
	s := NewServer(nil)
	status, _ := doRequest(t, s, http.MethodPut, "/queue/v1/task/abc", `{"workerType":"w"}`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestFailureInjection(t *testing.T) {
	s := NewServer(nil)
	s.InsertIndex("a.b", "task1")
	s.FailIndexLookups(2)

	status, _ := doRequest(t, s, http.MethodGet, "/index/v1/task/a.b", "")
	assert.Equal(t, http.StatusInternalServerError, status)
	status, _ = doRequest(t, s, http.MethodGet, "/index/v1/task/a.b", "")
	assert.Equal(t, http.StatusInternalServerError, status)
	status, _ = doRequest(t, s, http.MethodGet, "/index/v1/task/a.b", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 3, s.IndexLookups())

	s.FailCreateAfter(1)
	status, _ = doRequest(t, s, http.MethodPut, "/queue/v1/task/one", taskBody)
	assert.Equal(t, http.StatusOK, status)
	status, _ = doRequest(t, s, http.MethodPut, "/queue/v1/task/two", taskBody)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, []string{"one"}, s.TaskIDs())
}

func TestGetSecret(t *testing.T) {
	s := NewServer(nil)
	s.SetSecret("project/focus/tokens", map[string]any{"adjustToken": "tok"})

	status, doc := doRequest(t, s, http.MethodGet, "/secrets/v1/secret/project/focus/tokens", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "tok", doc["secret"].(map[string]any)["adjustToken"])

	status, doc = doRequest(t, s, http.MethodGet, "/secrets/v1/secret/nope", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "ResourceNotFound", doc["code"])
}
