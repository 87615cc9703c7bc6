package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/LENAX/dbf-pipeline/pkg/api/dto"
	"github.com/LENAX/dbf-pipeline/pkg/cli/output"
	"github.com/LENAX/dbf-pipeline/pkg/core/engine"
	"github.com/LENAX/dbf-pipeline/pkg/pipeline"
)

// runCmd 执行一次流水线
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "执行一次流水线",
	Long:  `先执行标记清理，再对每张表执行抽取校验和批量加载。任一任务失败时以非零状态退出。`,
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

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		report, runErr := p.Run(ctx, pipeline.RunOptions{Trigger: pipeline.TriggerCLI})
		if report == nil {
			output.Error("运行失败: %v", runErr)
			return runErr
		}

		if outputJSON {
			record := pipeline.NewRunRecord(report, pipeline.TriggerCLI, cfg.Pipeline.Execution.ForceClean, runErr)
			if err := output.PrintJSON(dto.NewRunDetail(record)); err != nil {
				return err
			}
		} else {
			printReport(report)
		}

		if runErr != nil {
			output.Error("运行被中断: %v", runErr)
			return runErr
		}
		if !report.Succeeded() {
			failed := len(report.Failed())
			output.Error("运行失败: %d个任务失败", failed)
			return fmt.Errorf("%d task(s) failed: %w", failed, report.Err())
		}
		output.Success("运行完成: run_id=%s, 耗时=%s", report.RunID, dto.FormatDuration(report.Duration()))
		return nil
	},
}

// printReport 表格输出运行报告
func printReport(report *engine.Report) {
	table := output.NewTable([]string{"TASK", "KIND", "STATE", "ATTEMPTS", "PROCESSED", "LOADED", "DURATION", "ERROR"})
	for _, t := range report.Tasks {
		errMsg := ""
		if t.Err != nil {
			errMsg = t.Err.Error()
		}
		duration := "-"
		if d := t.Duration(); d > 0 {
			duration = dto.FormatDuration(d)
		}
		table.AddRow([]string{
			t.Name,
			t.Kind,
			output.FormatState(string(t.State)),
			strconv.Itoa(t.Attempts),
			strconv.Itoa(t.Processed),
			strconv.Itoa(t.Loaded),
			duration,
			errMsg,
		})
	}
	table.Render()

	counts := make(map[string]int)
	for state, n := range report.Counts() {
		counts[string(state)] = n
	}
	output.RunSummary(os.Stdout, report.RunID, report.Status(), counts)
}
