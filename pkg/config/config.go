// Package config 加载并校验 dbf-pipeline 的 YAML 配置
package config

import (
	"time"

	"github.com/LENAX/dbf-pipeline/pkg/filter"
	"github.com/LENAX/dbf-pipeline/pkg/storage"
)

// Config 流水线配置（对外导出）
type Config struct {
	Pipeline PipelineConfig `yaml:"dbf-pipeline"`
}

// PipelineConfig dbf-pipeline 根节点下的全部配置
type PipelineConfig struct {
	General     GeneralConfig            `yaml:"general"`
	Source      SourceConfig             `yaml:"source"`
	Destination storage.ConnectionParams `yaml:"destination"`
	Execution   ExecutionConfig          `yaml:"execution"`
	History     HistoryConfig            `yaml:"history"`
	Schedule    ScheduleConfig           `yaml:"schedule"`
	API         APIConfig                `yaml:"api"`
	// Tables 为空时使用内置表注册表
	Tables []TableConfig `yaml:"tables"`
}

// GeneralConfig 通用配置
type GeneralConfig struct {
	InstanceName string `yaml:"instance_name"`
	LogLevel     string `yaml:"log_level"`
	Env          string `yaml:"env"`
}

// SourceConfig DBF 源文件配置
type SourceConfig struct {
	DBFFolder    string `yaml:"dbf_folder"`
	Encoding     string `yaml:"encoding"`
	DecodeErrors string `yaml:"decode_errors"`
}

// ExecutionConfig 执行配置
type ExecutionConfig struct {
	Workers    int         `yaml:"workers"`
	FailFast   bool        `yaml:"fail_fast"`
	ForceClean bool        `yaml:"force_clean"`
	Retry      RetryConfig `yaml:"retry"`
}

// RetryConfig 重试配置，MaxAttempts 为失败后的重试次数
type RetryConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxAttempts int           `yaml:"max_attempts"`
	Delay       time.Duration `yaml:"delay"`
}

// HistoryConfig 运行历史存储配置
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Type    string `yaml:"type"`
	DSN     string `yaml:"dsn"`
}

// ScheduleConfig 定时运行配置
type ScheduleConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Cron       string `yaml:"cron"`
	ForceClean bool   `yaml:"force_clean"`
}

// APIConfig HTTP API 配置
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	Mode    string `yaml:"mode"`
}

// TableConfig 单张目标表的加载配置
type TableConfig struct {
	Name     string            `yaml:"name"`
	DBFName  string            `yaml:"dbf_name"`
	Columns  []string          `yaml:"columns"`
	FieldMap map[string]string `yaml:"field_map"`
	Truncate *bool             `yaml:"truncate"`
	Filter   filter.Spec       `yaml:"filter"`
}

// Default 返回填充默认值的配置
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults 应用默认值
func (c *Config) ApplyDefaults() {
	p := &c.Pipeline

	// General默认值
	if p.General.InstanceName == "" {
		p.General.InstanceName = "dbf-pipeline"
	}
	if p.General.LogLevel == "" {
		p.General.LogLevel = "info"
	}
	if p.General.Env == "" {
		p.General.Env = "dev"
	}

	// Source默认值
	if p.Source.DBFFolder == "" {
		p.Source.DBFFolder = "DATA"
	}
	if p.Source.Encoding == "" {
		p.Source.Encoding = "cp1252"
	}
	if p.Source.DecodeErrors == "" {
		p.Source.DecodeErrors = "replace"
	}

	// Destination默认值
	if p.Destination.Type == "" {
		p.Destination.Type = storage.TypePostgres
	}
	p.Destination.Type = storage.NormalizeType(p.Destination.Type)
	if p.Destination.Type != storage.TypeSQLite {
		if p.Destination.Host == "" {
			p.Destination.Host = "localhost"
		}
		if p.Destination.Port <= 0 {
			switch p.Destination.Type {
			case storage.TypeMySQL:
				p.Destination.Port = 3306
			default:
				p.Destination.Port = 5432
			}
		}
		if p.Destination.User == "" {
			p.Destination.User = "postgres"
		}
	}
	if p.Destination.DBName == "" {
		p.Destination.DBName = "bytsscom_unmsm"
	}

	// Execution默认值
	if p.Execution.Workers <= 0 {
		p.Execution.Workers = 1
	}
	if p.Execution.Retry.Enabled {
		if p.Execution.Retry.MaxAttempts <= 0 {
			p.Execution.Retry.MaxAttempts = 3
		}
		if p.Execution.Retry.Delay <= 0 {
			p.Execution.Retry.Delay = time.Second
		}
	}

	// History默认值
	if p.History.Type == "" {
		p.History.Type = storage.TypeSQLite
	}
	if p.History.DSN == "" {
		p.History.DSN = "./dbf-pipeline-history.db"
	}

	// Schedule默认值
	if p.Schedule.Cron == "" {
		p.Schedule.Cron = "0 0 2 * * *"
	}

	// API默认值
	if p.API.Host == "" {
		p.API.Host = "0.0.0.0"
	}
	if p.API.Port <= 0 {
		p.API.Port = 8080
	}
	if p.API.Mode == "" {
		p.API.Mode = "release"
	}
}

// MaxRetries 失败后的重试次数，未启用重试时为0
func (c *Config) MaxRetries() int {
	if !c.Pipeline.Execution.Retry.Enabled {
		return 0
	}
	return c.Pipeline.Execution.Retry.MaxAttempts
}
