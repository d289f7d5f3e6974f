package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// versionCmd 是 version 子命令
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "打印版本信息",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "release-graph version %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
