package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"yqhp/release-graph/internal/taskcluster"
	"yqhp/release-graph/internal/token"
)

var (
	// adjust-token 命令的 flags
	tokenStaging bool
	tokenOutput  string
	tokenField   string
)

// tokenCmd 是 adjust-token 子命令
var tokenCmd = &cobra.Command{
	Use:   "adjust-token",
	Short: "从密钥服务获取 Adjust token",
	Long:  `从密钥服务读取 Adjust token 并写入构建使用的 .adjust_token 文件。`,
	Example: `  release-graph adjust-token
  release-graph adjust-token --staging --output /opt/focus-android/.adjust_token`,
	Args: cobra.NoArgs,
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().BoolVar(&tokenStaging, "staging", false, "使用预发布环境的密钥")
	tokenCmd.Flags().StringVarP(&tokenOutput, "output", "o", token.DefaultFile, "token 文件路径")
	tokenCmd.Flags().StringVar(&tokenField, "field", token.DefaultField, "密钥中 token 字段的 JSONPath")
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	tc := cfg.Taskcluster
	fetcher := token.NewFetcher(taskcluster.NewSecrets(tc.ServiceURL("secrets"), tc.Timeout))

	ctx, cancel := signalContext()
	defer cancel()

	path, err := fetcher.Fetch(ctx, token.Options{Staging: tokenStaging, Field: tokenField, Path: tokenOutput})
	if err != nil {
		return fmt.Errorf("adjust-token 失败: %w", err)
	}
	printf(cmd.ErrOrStderr(), "token written to %s\n", path)
	return nil
}
