package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"yqhp/release-graph/internal/guard"
	"yqhp/release-graph/internal/targets"
	"yqhp/release-graph/internal/taskcluster"
)

var (
	// select 命令的 flags
	selectMethod string
)

// selectCmd 是 select 子命令
var selectCmd = &cobra.Command{
	Use:   "select <full-task-graph.json>",
	Short: "从完整任务图中筛选目标任务",
	Long: fmt.Sprintf(`按目标任务方法从完整任务图中筛选需要执行的任务，输出排序后的 label 列表。

支持的方法: %s
nightly 方法在 CI 中（MOZ_AUTOMATION）会先检查当前提交是否已触发过 nightly。`,
		strings.Join(targets.Methods(), ", ")),
	Example: `  release-graph select full-task-graph.json --params parameters.yml
  release-graph select full-task-graph.json --method promote`,
	Args: cobra.ExactArgs(1),
	RunE: runSelect,
}

func init() {
	rootCmd.AddCommand(selectCmd)

	selectCmd.Flags().StringVarP(&paramsFile, "params", "p", "", "触发参数文件 (YAML/JSON)")
	selectCmd.Flags().StringVarP(&selectMethod, "method", "m", "", "目标任务方法，默认取触发参数 target_tasks_method")
}

func runSelect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	params, err := loadParams(paramsFile, "")
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("读取完整任务图失败: %w", err)
	}
	graph, err := targets.ParseFullTaskGraph(data)
	if err != nil {
		return err
	}

	method := selectMethod
	if method == "" {
		method = params.TargetTasksMethod
	}

	var index targets.IndexChecker
	if cfg.Automation {
		tc := cfg.Taskcluster
		index = guard.New(taskcluster.NewIndex(tc.ServiceURL("index"), tc.Timeout), cfg.Retry)
	}
	selector := targets.NewSelector(index, targets.Options{
		Automation:  cfg.Automation,
		TrustDomain: cfg.Release.TrustDomain,
	})

	ctx, cancel := signalContext()
	defer cancel()

	labels, err := selector.Select(ctx, method, graph, params)
	if err != nil {
		return fmt.Errorf("select 失败: %w", err)
	}

	out, err := json.MarshalIndent(labels, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
