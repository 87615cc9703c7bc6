package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/LENAX/dbf-pipeline/pkg/cli/output"
)

// cleanCmd 只执行标记清理
var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "删除DBF目录下的全部完成标记",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		p, closeFn, err := newPipeline(cfg)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer closeFn()

		report, err := p.Clean(context.Background())
		if err != nil {
			output.Error("清理失败: %v", err)
			return err
		}
		if err := report.Err(); err != nil {
			output.Error("清理失败: %v", err)
			return err
		}
		output.Success("已清理标记: %s", cfg.Pipeline.Source.DBFFolder)
		return nil
	},
}
