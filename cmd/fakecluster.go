package cmd

import (
	"github.com/spf13/cobra"

	"yqhp/release-graph/internal/fakecluster"
)

var (
	// fake-cluster 命令的 flags
	fakeAddress string
)

// fakeClusterCmd 是 fake-cluster 子命令
var fakeClusterCmd = &cobra.Command{
	Use:   "fake-cluster",
	Short: "启动本地模拟的队列/索引/密钥服务",
	Long: `在本地启动内存版的队列、索引和密钥服务，用于在 CI 之外演练整个发布流程。

把 taskcluster.root_url 指向该地址即可：
  release-graph release --set taskcluster.root_url=http://127.0.0.1:8080`,
	Example: `  release-graph fake-cluster
  release-graph fake-cluster --address 127.0.0.1:9090`,
	Args: cobra.NoArgs,
	RunE: runFakeCluster,
}

func init() {
	rootCmd.AddCommand(fakeClusterCmd)

	fakeClusterCmd.Flags().StringVar(&fakeAddress, "address", "", "监听地址 (覆盖 fake_cluster.address)")
}

func runFakeCluster(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	serverCfg := fakecluster.DefaultConfig()
	serverCfg.Address = cfg.FakeCluster.Address
	if cmd.Flags().Changed("address") {
		serverCfg.Address = fakeAddress
	}

	ctx, cancel := signalContext()
	defer cancel()

	printf(cmd.ErrOrStderr(), "fake cluster listening on http://%s\n", serverCfg.Address)
	return fakecluster.NewServer(serverCfg).StartWithContext(ctx)
}
