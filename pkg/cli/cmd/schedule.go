package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/LENAX/dbf-pipeline/pkg/cli/output"
	"github.com/LENAX/dbf-pipeline/pkg/config"
	"github.com/LENAX/dbf-pipeline/pkg/core/engine"
	"github.com/LENAX/dbf-pipeline/pkg/pipeline"
)

// scheduledJobName 定时任务名称
const scheduledJobName = "dbf-pipeline"

var scheduleCron string

// scheduleCmd 按cron表达式定时运行
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "按cron表达式定时运行流水线（前台运行，Ctrl+C退出）",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if cmd.Flags().Changed("cron") {
			cfg.Pipeline.Schedule.Cron = scheduleCron
		}
		p, closeFn, err := newPipeline(cfg)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		defer closeFn()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		scheduler, err := newScheduler(cfg, p)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		scheduler.Start()
		if next, ok := scheduler.Next(scheduledJobName); ok {
			output.Info("定时运行已启动: cron=%s, 下次运行=%s", cfg.Pipeline.Schedule.Cron, next.Format("2006-01-02 15:04:05"))
		}

		<-ctx.Done()
		scheduler.Stop()
		output.Success("定时运行已停止")
		return nil
	},
}

// newScheduler 注册定时运行任务
// 前一次运行未结束时跳过本次触发
func newScheduler(cfg *config.Config, p *pipeline.Pipeline) (*engine.CronScheduler, error) {
	sc := cfg.Pipeline.Schedule
	if err := engine.ValidateCronExpr(sc.Cron); err != nil {
		return nil, fmt.Errorf("schedule.cron无效: %w", err)
	}

	scheduler := engine.NewCronScheduler()
	err := scheduler.Register(scheduledJobName, sc.Cron, func(ctx context.Context) error {
		report, err := p.Run(ctx, pipeline.RunOptions{
			ForceClean: sc.ForceClean,
			Trigger:    pipeline.TriggerCron,
		})
		if errors.Is(err, pipeline.ErrRunInProgress) {
			log.Printf("⏭️ [定时运行] 已有运行正在进行，跳过本次触发")
			return nil
		}
		if err != nil {
			return err
		}
		return report.Err()
	})
	if err != nil {
		return nil, err
	}
	return scheduler, nil
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleCron, "cron", "", "cron表达式（含秒），覆盖 schedule.cron")
}
