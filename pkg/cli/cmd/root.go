package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// 全局变量
	configPath string
	envFile    string
	outputJSON bool

	// 覆盖配置文件的参数
	dbfFolder  string
	dbType     string
	dbHost     string
	dbPort     int
	dbName     string
	dbUser     string
	dbPassword string
	workers    int
	failFast   bool
	forceClean bool
)

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "dbf-pipeline",
	Short: "dbf-pipeline - DBF文件到关系数据库的增量ETL工具",
	Long: `dbf-pipeline 读取目录中的DBF文件，过滤、重映射后批量写入关系数据库。

每个任务完成后写入标记文件，再次运行时跳过已完成的任务。

使用示例：
  # 按配置文件运行一次
  dbf-pipeline run --config dbf-pipeline.yaml

  # 删除全部标记后重新加载
  dbf-pipeline run --force-clean

  # 查看每个任务是否已完成
  dbf-pipeline plan

  # 启动HTTP服务和定时运行
  dbf-pipeline serve`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// 全局参数
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "dbf-pipeline.yaml", "配置文件路径")
	flags.StringVar(&envFile, "env-file", ".env", "环境变量文件，配置中的 ${VAR} 从这里取值")
	flags.BoolVarP(&outputJSON, "json", "j", false, "使用JSON格式输出")
	flags.StringVar(&dbfFolder, "dbf-folder", "", "DBF文件目录")
	flags.StringVar(&dbType, "db-type", "", "目标数据库类型: postgres/mysql/sqlite")
	flags.StringVar(&dbHost, "db-host", "", "目标数据库地址")
	flags.IntVar(&dbPort, "db-port", 0, "目标数据库端口")
	flags.StringVar(&dbName, "db-name", "", "目标数据库名（sqlite为文件路径）")
	flags.StringVar(&dbUser, "db-user", "", "目标数据库用户")
	flags.StringVar(&dbPassword, "db-password", "", "目标数据库密码")
	flags.IntVarP(&workers, "workers", "w", 0, "并发Worker数")
	flags.BoolVar(&failFast, "fail-fast", false, "任一任务失败后不再调度新任务")
	flags.BoolVar(&forceClean, "force-clean", false, "删除全部旧标记后重新执行")

	// 添加子命令
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
