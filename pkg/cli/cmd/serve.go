package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/LENAX/dbf-pipeline/pkg/api"
	"github.com/LENAX/dbf-pipeline/pkg/cli/output"
	"github.com/LENAX/dbf-pipeline/pkg/config"
	"github.com/LENAX/dbf-pipeline/pkg/core/events"
	"github.com/LENAX/dbf-pipeline/pkg/pipeline"
)

// shutdownTimeout 优雅关闭超时
const shutdownTimeout = 30 * time.Second

var (
	serveHost string
	servePort int
)

// serveCmd 启动HTTP API，启用schedule时同时定时运行
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动HTTP API服务（启用schedule时同时定时运行）",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			output.Error("%v", err)
			return err
		}
		if cmd.Flags().Changed("host") {
			cfg.Pipeline.API.Host = serveHost
		}
		if cmd.Flags().Changed("port") {
			cfg.Pipeline.API.Port = servePort
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := serve(ctx, cfg); err != nil {
			output.Error("%v", err)
			return err
		}
		output.Success("服务已停止")
		return nil
	},
}

// serve 运行API服务和定时任务直到ctx结束
func serve(ctx context.Context, cfg *config.Config) error {
	bus := events.NewBus(events.WithDebug(config.DebugEnabled(), false))
	defer bus.Close()

	recorder := events.NewRecorder(0)
	if err := recorder.Attach(ctx, bus); err != nil {
		return err
	}

	p, closeFn, err := newPipeline(cfg, pipeline.WithPublisher(bus))
	if err != nil {
		return err
	}
	defer closeFn()

	ac := cfg.Pipeline.API
	server := api.NewAPIServer(p, recorder, api.ServerConfig{
		Host: ac.Host,
		Port: ac.Port,
		Mode: ac.Mode,
	}, Version)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return server.Start(groupCtx)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if cfg.Pipeline.Schedule.Enabled {
		scheduler, err := newScheduler(cfg, p)
		if err != nil {
			return err
		}
		group.Go(func() error {
			scheduler.Start()
			log.Printf("✅ [服务] 定时运行已启动: cron=%s", cfg.Pipeline.Schedule.Cron)
			<-groupCtx.Done()
			scheduler.Stop()
			return nil
		})
	}

	log.Printf("✅ [服务] dbf-pipeline 已启动: api=%s, schedule=%v", server.Addr(), cfg.Pipeline.Schedule.Enabled)
	err = group.Wait()

	// 等待API触发的运行收尾后再关闭运行历史
	p.Wait()
	return err
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "监听地址，覆盖 api.host")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "监听端口，覆盖 api.port")
}
