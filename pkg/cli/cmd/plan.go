package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/LENAX/dbf-pipeline/pkg/cli/output"
)

// planCmd 查看任务完成状态
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "按执行顺序列出任务及其标记状态，不执行",
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

		entries, err := p.Plan(context.Background(), false)
		if err != nil {
			output.Error("生成计划失败: %v", err)
			return err
		}

		if outputJSON {
			return output.PrintJSON(entries)
		}

		table := output.NewTable([]string{"TASK", "KIND", "STATUS", "MARKER"})
		pending := 0
		for _, e := range entries {
			status := output.FormatState("UP_TO_DATE")
			if !e.Complete {
				status = output.FormatState("PENDING")
				pending++
			}
			if e.Error != "" {
				status = output.FormatState("FAILED") + " " + e.Error
			}
			table.AddRow([]string{e.Name, e.Kind, status, e.Marker})
		}
		table.Render()
		output.Info("共%d个任务，%d个待执行", len(entries), pending)
		return nil
	},
}
