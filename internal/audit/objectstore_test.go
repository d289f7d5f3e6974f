package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/release-graph/internal/config"
)

// fakeS3 serves the path-style bucket and object calls the sink makes.
type fakeS3 struct {
	mu          sync.Mutex
	buckets     map[string]bool
	objects     map[string][]byte
	makeBuckets int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{buckets: map[string]bool{}, objects: map[string][]byte{}}
}

func (s *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	switch {
	case r.Method == http.MethodHead && key == "":
		if !s.buckets[bucket] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut && key == "":
		s.buckets[bucket] = true
		s.makeBuckets++
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut:
		if !s.buckets[bucket] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		body, err := readPayload(r)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.objects[bucket+"/"+key] = body
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func (s *fakeS3) object(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	return data, ok
}

// readPayload strips aws-chunked framing from signed streaming uploads.
func readPayload(r *http.Request) ([]byte, error) {
	if !strings.HasPrefix(r.Header.Get("X-Amz-Content-Sha256"), "STREAMING-") {
		return io.ReadAll(r.Body)
	}
	var out bytes.Buffer
	reader := bufio.NewReader(r.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		sizeHex, _, _ := strings.Cut(strings.TrimSpace(line), ";")
		size, err := strconv.ParseInt(sizeHex, 16, 64)
		if err != nil {
			return nil, err
		}
		if size == 0 {
			return out.Bytes(), nil
		}
		if _, err := io.CopyN(&out, reader, size); err != nil {
			return nil, err
		}
		// 块尾的 CRLF
		if _, err := reader.Discard(2); err != nil {
			return nil, err
		}
	}
}

func objectStoreConfig(endpoint string) config.ObjectStoreConfig {
	return config.ObjectStoreConfig{
		Enabled:   true,
		Endpoint:  strings.TrimPrefix(endpoint, "http://"),
		AccessKey: "access",
		SecretKey: "secret",
		Bucket:    "task-graphs",
		Region:    "us-east-1",
		Prefix:    "task-graphs",
	}
}

func TestObjectStoreSinkUploadsRecord(t *testing.T) {
	s3 := newFakeS3()
	srv := httptest.NewServer(s3)
	defer srv.Close()

	sink, err := NewObjectStoreSink(objectStoreConfig(srv.URL), false)
	require.NoError(t, err)
	require.NoError(t, sink.Write(context.Background(), sampleRecord()))

	data, ok := s3.object("task-graphs/task-graphs/release/2024-05-01/decision123/task-graph.json")
	require.True(t, ok, "object not uploaded")

	var persisted map[string]Entry
	require.NoError(t, json.Unmarshal(data, &persisted))
	require.Len(t, persisted, 2)
	assert.Equal(t, "signing-nightly", persisted["BBB"].Label)
	assert.Equal(t, []string{"AAA"}, persisted["BBB"].Task.Dependencies)
	assert.Equal(t, 1, s3.makeBuckets)

	// 桶已存在时不再创建
	require.NoError(t, sink.Write(context.Background(), sampleRecord()))
	assert.Equal(t, 1, s3.makeBuckets)
}

func TestObjectStoreSinkThroughManager(t *testing.T) {
	s3 := newFakeS3()
	srv := httptest.NewServer(s3)
	defer srv.Close()

	sink, err := NewObjectStoreSink(objectStoreConfig(srv.URL), true)
	require.NoError(t, err)
	require.NoError(t, NewManager(sink).Write(context.Background(), sampleRecord()))

	_, ok := s3.object("task-graphs/task-graphs/release/2024-05-01/decision123/task-graph.json")
	assert.True(t, ok)
}

func TestObjectStoreSinkReportsUploadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	sink, err := NewObjectStoreSink(objectStoreConfig(srv.URL), false)
	require.NoError(t, err)

	err = sink.Write(context.Background(), sampleRecord())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task-graph.json")
}
