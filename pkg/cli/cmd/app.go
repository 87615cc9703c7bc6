package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	internalstorage "github.com/LENAX/dbf-pipeline/internal/storage"
	"github.com/LENAX/dbf-pipeline/pkg/config"
	"github.com/LENAX/dbf-pipeline/pkg/pipeline"
	"github.com/LENAX/dbf-pipeline/pkg/storage"
)

// loadConfig 加载配置文件并应用命令行覆盖
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := config.LoadEnvFile(envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	applyOverrides(cmd, cfg)
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置校验失败: %w", err)
	}
	config.SetLogLevel(cfg.Pipeline.General.LogLevel)
	config.Debugf("[配置] 已加载: path=%s, destination=%s, workers=%d",
		configPath, cfg.Pipeline.Destination, cfg.Pipeline.Execution.Workers)
	return cfg, nil
}

// applyOverrides 只覆盖显式传入的参数
func applyOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	p := &cfg.Pipeline
	if flags.Changed("dbf-folder") {
		p.Source.DBFFolder = dbfFolder
	}
	if flags.Changed("db-type") {
		p.Destination.Type = storage.NormalizeType(dbType)
	}
	if flags.Changed("db-host") {
		p.Destination.Host = dbHost
	}
	if flags.Changed("db-port") {
		p.Destination.Port = dbPort
	}
	if flags.Changed("db-name") {
		p.Destination.DBName = dbName
	}
	if flags.Changed("db-user") {
		p.Destination.User = dbUser
	}
	if flags.Changed("db-password") {
		p.Destination.Password = dbPassword
	}
	if flags.Changed("workers") {
		p.Execution.Workers = workers
	}
	if flags.Changed("fail-fast") {
		p.Execution.FailFast = failFast
	}
	if flags.Changed("force-clean") {
		p.Execution.ForceClean = forceClean
	}
}

// openHistory 按配置打开运行历史存储，未启用时返回nil
func openHistory(cfg *config.Config) (storage.RunRepository, error) {
	h := cfg.Pipeline.History
	if !h.Enabled {
		return nil, nil
	}
	repo, err := internalstorage.NewRunRepository(h.Type, h.DSN)
	if err != nil {
		return nil, err
	}
	return repo, nil
}

// newPipeline 创建编排器，返回的关闭函数释放运行历史连接
func newPipeline(cfg *config.Config, opts ...pipeline.Option) (*pipeline.Pipeline, func(), error) {
	repo, err := openHistory(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("打开运行历史失败: %w", err)
	}
	closeFn := func() {
		if repo != nil {
			if err := repo.Close(); err != nil {
				log.Printf("⚠️ [CLI] 关闭运行历史失败: %v", err)
			}
		}
	}
	if repo != nil {
		opts = append(opts, pipeline.WithHistory(repo))
	}

	p, err := pipeline.New(cfg, opts...)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return p, closeFn, nil
}
