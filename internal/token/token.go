// Package token 从密钥服务获取 Adjust token 并写入构建所需的 .adjust_token 文件。
package token

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ohler55/ojg/jp"

	"yqhp/release-graph/pkg/logger"
)

// Default secret locations.
const (
	SecretName        = "project/focus/tokens"
	StagingSecretName = "garbage/staging/project/focus/tokens"
	DefaultField      = "$.secret.adjustToken"
	DefaultFile       = ".adjust_token"
)

// SecretGetter fetches a raw secret document. taskcluster.Secrets implements it.
type SecretGetter interface {
	Get(ctx context.Context, name string) (map[string]any, error)
}

// Options selects the secret and the output file.
type Options struct {
	Staging bool
	// Field is a JSONPath into the secret document.
	Field string
	// Path is the token file; DefaultFile when empty.
	Path string
}

// Fetcher writes the Adjust token to disk.
type Fetcher struct {
	secrets SecretGetter
}

// NewFetcher creates a fetcher.
func NewFetcher(secrets SecretGetter) *Fetcher {
	return &Fetcher{secrets: secrets}
}

// SecretFor returns the secret name for the environment.
func SecretFor(staging bool) string {
	if staging {
		return StagingSecretName
	}
	return SecretName
}

// Fetch reads the token and writes it to opts.Path. It returns the written path.
func (f *Fetcher) Fetch(ctx context.Context, opts Options) (string, error) {
	field := opts.Field
	if field == "" {
		field = DefaultField
	}
	path := opts.Path
	if path == "" {
		path = DefaultFile
	}

	expr, err := jp.ParseString(field)
	if err != nil {
		return "", fmt.Errorf("无效的 JSONPath 表达式 '%s': %w", field, err)
	}

	name := SecretFor(opts.Staging)
	doc, err := f.secrets.Get(ctx, name)
	if err != nil {
		return "", fmt.Errorf("读取密钥 %s 失败: %w", name, err)
	}

	token, err := extract(expr, doc)
	if err != nil {
		return "", fmt.Errorf("密钥 %s: %w", name, err)
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("创建目录失败: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(token), 0600); err != nil {
		return "", fmt.Errorf("写入 token 文件失败: %w", err)
	}

	logger.Info("Imported adjust token from secrets service")
	return path, nil
}

func extract(expr jp.Expr, doc map[string]any) (string, error) {
	results := expr.Get(doc)
	if len(results) == 0 {
		return "", fmt.Errorf("JSONPath '%s' 没有匹配结果", expr.String())
	}
	token, ok := results[0].(string)
	if !ok || token == "" {
		return "", fmt.Errorf("JSONPath '%s' 的结果不是非空字符串", expr.String())
	}
	return token, nil
}
