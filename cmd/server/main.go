package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "creditengine",
		Short:         "积分账务与变现引擎",
		RunE:          runServe,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "config/config.yaml", "配置文件路径")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 服务和后台任务",
		RunE:  runServe,
	})
	root.AddCommand(&cobra.Command{
		Use:   "reconcile",
		Short: "执行一轮全量对账后退出",
		RunE:  runReconcile,
	})
	return root
}
