package taskcluster

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/release-graph/internal/fakecluster"
	"yqhp/release-graph/pkg/types"
)

func startCluster(t *testing.T) (*fakecluster.Server, string) {
	t.Helper()
	srv := fakecluster.NewServer(&fakecluster.Config{Address: "127.0.0.1:0"})
	rootURL, err := srv.Start()
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown() })
	return srv, rootURL
}

func TestServiceURL(t *testing.T) {
	assert.Equal(t, "http://taskcluster/queue/v1", ServiceURL("", "queue"))
	assert.Equal(t, "http://localhost:1/index/v1", ServiceURL("http://localhost:1/", "index"))
}

func TestQueueCreateAndFetch(t *testing.T) {
	srv, rootURL := startCluster(t)
	queue := NewQueue(ServiceURL(rootURL, "queue"), 5*time.Second)
	ctx := context.Background()

	def := &types.TaskDefinition{
		ProvisionerID: "aws-provisioner-v1",
		WorkerType:    "github-worker",
		TaskGroupID:   "group",
		Retries:       5,
		Routes:        []string{"index.project.focus.a"},
		Metadata:      types.Metadata{Name: "build"},
	}
	taskID := SlugID()

	status, err := queue.CreateTask(ctx, taskID, def)
	require.NoError(t, err)
	assert.Equal(t, taskID, status.TaskID)
	assert.Equal(t, "pending", status.State)

	stored, err := queue.Task(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, "build", stored.Metadata.Name)
	assert.Equal(t, []string{taskID}, srv.TaskIDs())

	_, err = queue.CreateTask(ctx, taskID, def)
	require.Error(t, err)
	var clientErr *ClientError
	require.True(t, errors.As(err, &clientErr))
	assert.Equal(t, ErrCodeRejected, clientErr.Code)
	assert.Equal(t, 409, clientErr.StatusCode)
	assert.False(t, IsTransient(err))
}

func TestIndexFindTask(t *testing.T) {
	srv, rootURL := startCluster(t)
	index := NewIndex(ServiceURL(rootURL, "index"), 5*time.Second)
	ctx := context.Background()

	_, err := index.FindTask(ctx, "project.focus.v2.missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsTransient(err))

	srv.InsertIndex("project.focus.v2.present", "task-1")
	taskID, err := index.FindTask(ctx, "project.focus.v2.present")
	require.NoError(t, err)
	assert.Equal(t, "task-1", taskID)

	srv.FailIndexLookups(1)
	_, err = index.FindTask(ctx, "project.focus.v2.present")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.False(t, IsNotFound(err))
}

func TestSecretsGet(t *testing.T) {
	srv, rootURL := startCluster(t)
	secrets := NewSecrets(ServiceURL(rootURL, "secrets"), 5*time.Second)
	srv.SetSecret("project/focus/tokens", map[string]any{"adjustToken": "abc"})

	doc, err := secrets.Get(context.Background(), "project/focus/tokens")
	require.NoError(t, err)
	assert.Equal(t, "abc", doc["secret"].(map[string]any)["adjustToken"])

	_, err = secrets.Get(context.Background(), "project/focus/other")
	assert.True(t, IsNotFound(err))
}

func TestTransportErrorIsTransient(t *testing.T) {
	// 未监听的端口
	index := NewIndex("http://127.0.0.1:1/index/v1", time.Second)
	_, err := index.FindTask(context.Background(), "a.b")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	index := NewIndex("http://127.0.0.1:1/index/v1", time.Second)
	_, err := index.FindTask(ctx, "a.b")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSlugID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		id := SlugID()
		assert.Len(t, id, 22)
		assert.NotEqual(t, byte('-'), id[0])
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestStringDate(t *testing.T) {
	ts := time.Date(2024, 3, 5, 7, 8, 9, 123000000, time.FixedZone("x", 3600))
	assert.Equal(t, "2024-03-05T06:08:09.123Z", StringDate(ts))
}

func TestClientErrorFormatting(t *testing.T) {
	cause := errors.New("boom")
	err := NewClientError(ErrCodeTransport, "queue", "请求失败", cause)
	assert.Contains(t, err.Error(), "TRANSPORT_ERROR")
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsNotFound(cause))
}
