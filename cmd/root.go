// Package cmd 提供 release-graph CLI 的命令实现
package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"yqhp/release-graph/internal/config"
	"yqhp/release-graph/pkg/logger"
	"yqhp/release-graph/pkg/types"
)

const (
	// Version 是当前版本号
	Version = "0.1.0"
	// Banner 是版本信息中显示的 ASCII 艺术
	Banner = `
   build ──▶ sign ──▶ publish
   release-graph %s
`
)

var (
	// 全局配置
	cfgFile   string
	debug     bool
	quiet     bool
	overrides []string
)

// rootCmd 是根命令
var rootCmd = &cobra.Command{
	Use:   "release-graph",
	Short: "Focus for Android 发布任务图生成器",
	Long: `release-graph 根据触发参数构建 构建 → 签名 → 发布 任务链并提交到队列服务，
支持 nightly 幂等检查、目标任务筛选（promote / ship / nightly）以及 master 推送流水线。`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	// 全局 flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "启用调试日志")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "静默模式")
	rootCmd.PersistentFlags().StringArrayVar(&overrides, "set", nil, "覆盖配置项 (可多次指定)，格式: key=value")

	// 禁用默认的 completion 命令
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// 自定义版本模板
	rootCmd.SetVersionTemplate(fmt.Sprintf(Banner, Version) + "\n")
}

// GetRootCmd 返回根命令（用于测试）
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// loadConfig 加载并校验配置，然后按配置初始化日志
func loadConfig() (*config.Config, error) {
	args, err := parseOverrides(overrides)
	if err != nil {
		return nil, err
	}

	cfg, err := config.LoadAndValidate(cfgFile, args)
	if err != nil {
		return nil, err
	}

	logger.Init(cfg.Logging.LoggerConfig())
	if debug {
		logger.EnableDebug()
	}
	if quiet {
		logger.SetLevel(logger.LevelError)
	}
	return cfg, nil
}

func parseOverrides(values []string) (map[string]string, error) {
	args := make(map[string]string, len(values))
	for _, v := range values {
		key, value, ok := strings.Cut(v, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("无效的配置覆盖 %q，格式应为 key=value", v)
		}
		args[strings.TrimSpace(key)] = value
	}
	return args, nil
}

// loadParams 加载触发参数，命令行指定的发布类型优先
func loadParams(path, releaseType string) (types.Parameters, error) {
	params, err := config.LoadParameters(path)
	if err != nil {
		return types.Parameters{}, fmt.Errorf("加载触发参数失败: %w", err)
	}
	if releaseType != "" {
		params.ReleaseType = releaseType
	}
	return params, nil
}

func printf(w io.Writer, format string, args ...any) {
	if !quiet {
		fmt.Fprintf(w, format, args...)
	}
}
