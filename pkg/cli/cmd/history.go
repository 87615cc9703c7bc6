package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/LENAX/dbf-pipeline/pkg/api/dto"
	"github.com/LENAX/dbf-pipeline/pkg/cli/output"
	"github.com/LENAX/dbf-pipeline/pkg/storage"
)

var historyLimit int

// historyCmd history子命令
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "查询运行历史",
	Long:  `查询运行历史，需要在配置中启用 history。`,
}

// historyListCmd 列出最近的运行
var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出最近的运行",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openHistoryForCmd(cmd)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer repo.Close()

		runs, err := repo.ListRuns(context.Background(), historyLimit)
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}

		items := make([]dto.RunSummary, 0, len(runs))
		for _, run := range runs {
			items = append(items, dto.NewRunSummary(run))
		}
		if outputJSON {
			return output.PrintJSON(items)
		}

		if len(items) == 0 {
			output.Info("暂无运行记录")
			return nil
		}

		table := output.NewTable([]string{"RUN_ID", "TRIGGER", "STATUS", "STARTED", "DURATION", "FORCE_CLEAN"})
		for _, s := range items {
			duration := "-"
			if s.Duration != "" {
				duration = s.Duration
			}
			table.AddRow([]string{
				s.ID,
				s.Trigger,
				output.FormatState(s.Status),
				s.StartedAt.Local().Format("2006-01-02 15:04:05"),
				duration,
				strconv.FormatBool(s.ForceClean),
			})
		}
		table.Render()
		return nil
	},
}

// historyShowCmd 查看单次运行
var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "查看单次运行的任务结果",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openHistoryForCmd(cmd)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer repo.Close()

		run, err := repo.GetRun(context.Background(), args[0])
		if errors.Is(err, storage.ErrRunNotFound) {
			output.Error("运行不存在: %s", args[0])
			return err
		}
		if err != nil {
			output.Error("查询失败: %v", err)
			return err
		}

		detail := dto.NewRunDetail(run)
		if outputJSON {
			return output.PrintJSON(detail)
		}

		fmt.Printf("Run ID:   %s\n", detail.ID)
		fmt.Printf("Trigger:  %s\n", detail.Trigger)
		fmt.Printf("Status:   %s\n", output.FormatState(detail.Status))
		fmt.Printf("Started:  %s\n", detail.StartedAt.Local().Format("2006-01-02 15:04:05"))
		if detail.Duration != "" {
			fmt.Printf("Duration: %s\n", detail.Duration)
		}
		if detail.ErrorMessage != "" {
			fmt.Printf("Error:    %s\n", detail.ErrorMessage)
		}
		fmt.Println()

		table := output.NewTable([]string{"TASK", "STATE", "ATTEMPTS", "PROCESSED", "LOADED", "DURATION", "ERROR"})
		for _, t := range detail.Tasks {
			duration := "-"
			if t.Duration != "" {
				duration = t.Duration
			}
			table.AddRow([]string{
				t.Name,
				output.FormatState(t.State),
				strconv.Itoa(t.Attempts),
				strconv.Itoa(t.Processed),
				strconv.Itoa(t.Loaded),
				duration,
				t.ErrorMessage,
			})
		}
		table.Render()
		return nil
	},
}

func openHistoryForCmd(cmd *cobra.Command) (storage.RunRepository, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	repo, err := openHistory(cfg)
	if err != nil {
		return nil, fmt.Errorf("打开运行历史失败: %w", err)
	}
	if repo == nil {
		return nil, fmt.Errorf("运行历史未启用，请在配置中设置 history.enabled")
	}
	return repo, nil
}

func init() {
	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "返回数量限制")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
}
