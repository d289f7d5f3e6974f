package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"yqhp/release-graph/internal/audit"
	"yqhp/release-graph/internal/release"
)

var (
	// release / push 命令的 flags
	paramsFile  string
	releaseType string
	staging     bool
	dryRun      bool
)

// releaseCmd 是 release 子命令
var releaseCmd = &cobra.Command{
	Use:   "release",
	Short: "构建并提交发布任务图",
	Long: `根据触发参数构建 构建 → 签名 → 发布 任务链并按依赖顺序提交。

nightly 发布会先检查当前提交是否已经触发过 nightly，已触发则不提交任何任务。
提交的任务定义会打印到标准输出，并写入审计文件（默认 task-graph.json）。`,
	Example: `  # 使用环境变量中的触发参数
  release-graph release

  # 指定参数文件和发布类型
  release-graph release --params parameters.yml --release-type beta

  # 预发布环境，只解析不提交
  release-graph release --staging --dry-run`,
	Args: cobra.NoArgs,
	RunE: runRelease,
}

// pushCmd 是 push 子命令
var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "提交 master 推送流水线",
	Long:  `构建并提交 master 分支推送流水线：构建 → 单元测试 / 代码质量 → UI 测试 → 预览版发布。`,
	Example: `  release-graph push --params parameters.yml
  release-graph push --dry-run`,
	Args: cobra.NoArgs,
	RunE: runPush,
}

func init() {
	rootCmd.AddCommand(releaseCmd)
	rootCmd.AddCommand(pushCmd)

	for _, c := range []*cobra.Command{releaseCmd, pushCmd} {
		c.Flags().StringVarP(&paramsFile, "params", "p", "", "触发参数文件 (YAML/JSON)")
		c.Flags().BoolVar(&dryRun, "dry-run", false, "只解析任务定义，不调用任何服务")
	}
	releaseCmd.Flags().StringVar(&releaseType, "release-type", "", "发布类型 (nightly, beta, release)，覆盖触发参数")
	releaseCmd.Flags().BoolVar(&staging, "staging", false, "预发布环境 (dep-push-apk，不提交到商店)")
}

// signalContext 返回收到 SIGINT/SIGTERM 时取消的上下文
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runRelease(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	params, err := loadParams(paramsFile, releaseType)
	if err != nil {
		return err
	}

	runner, err := release.FromConfig(cfg, release.Options{Staging: staging, DryRun: dryRun})
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	outcome, err := runner.Release(ctx, params)
	if err != nil {
		return fmt.Errorf("release 失败: %w", err)
	}
	if outcome.Skipped {
		printf(cmd.ErrOrStderr(), "nightly for %s already scheduled, nothing submitted\n", params.HeadRev)
		return nil
	}
	return printRecord(cmd, outcome.Result.Record)
}

func runPush(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	params, err := loadParams(paramsFile, "")
	if err != nil {
		return err
	}

	runner, err := release.FromConfig(cfg, release.Options{DryRun: dryRun})
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	outcome, err := runner.Push(ctx, params)
	if err != nil {
		return fmt.Errorf("push 失败: %w", err)
	}
	return printRecord(cmd, outcome.Result.Record)
}

// printRecord 把实际提交的任务图打印到标准输出
func printRecord(cmd *cobra.Command, record *audit.Record) error {
	data, err := audit.Encode(record, true)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
