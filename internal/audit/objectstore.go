package audit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"yqhp/release-graph/internal/config"
)

// ObjectStoreSink uploads the realized graph to an S3 compatible bucket.
type ObjectStoreSink struct {
	client *minio.Client
	cfg    config.ObjectStoreConfig
	pretty bool
}

// NewObjectStoreSink creates the sink. No request is made until Write.
func NewObjectStoreSink(cfg config.ObjectStoreConfig, pretty bool) (*ObjectStoreSink, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("endpoint is required")
	}
	if strings.Contains(cfg.Endpoint, "://") {
		return nil, fmt.Errorf("endpoint must not include scheme: %q", cfg.Endpoint)
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, err
	}
	return &ObjectStoreSink{client: client, cfg: cfg, pretty: pretty}, nil
}

// Name returns the sink name.
func (s *ObjectStoreSink) Name() string {
	return "object_store"
}

// Write uploads the record, creating the bucket when missing.
func (s *ObjectStoreSink) Write(ctx context.Context, record *Record) error {
	data, err := Encode(record, s.pretty)
	if err != nil {
		return fmt.Errorf("序列化任务图失败: %w", err)
	}
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket %s: %w", s.cfg.Bucket, err)
	}

	key := ObjectKey(s.cfg.Prefix, record)
	_, err = s.client.PutObject(
		ctx,
		s.cfg.Bucket,
		key,
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"},
	)
	if err != nil {
		return fmt.Errorf("上传 %s 失败: %w", key, err)
	}
	return nil
}

func (s *ObjectStoreSink) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region})
}

// ObjectKey is <prefix>/<kind>/<date>/<decision task id>/task-graph.json.
// Runs outside a decision task use the creation time in its place.
func ObjectKey(prefix string, record *Record) string {
	kind := record.Kind
	if kind == "" {
		kind = "graph"
	}
	created := record.CreatedAt.UTC()
	run := record.DecisionTaskID
	if run == "" {
		run = "local-" + strconv.FormatInt(created.Unix(), 10)
	}
	return path.Join(prefix, kind, created.Format("2006-01-02"), run, "task-graph.json")
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
