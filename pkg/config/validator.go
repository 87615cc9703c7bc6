package config

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/LENAX/dbf-pipeline/pkg/core/engine"
	"github.com/LENAX/dbf-pipeline/pkg/core/task"
	"github.com/LENAX/dbf-pipeline/pkg/dbf"
	"github.com/LENAX/dbf-pipeline/pkg/storage"
)

var (
	// identifierPattern 列名
	identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)
	// tablePattern 表名，可带一级 schema 前缀
	tablePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*(\.[A-Za-z_][A-Za-z0-9_$]*)?$`)
)

// ValidIdentifier 列名是否为安全的SQL标识符
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// ValidTableName 表名是否为安全的SQL标识符（允许 schema.table）
func ValidTableName(name string) bool {
	return tablePattern.MatchString(name)
}

// Validate 校验配置合法性
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("配置不能为空")
	}
	p := &c.Pipeline

	// 校验General
	if p.General.LogLevel != "" {
		validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
		if !validLevels[p.General.LogLevel] {
			return fmt.Errorf("log_level必须是debug/info/warn/error之一")
		}
	}

	// 校验Source
	if p.Source.DBFFolder == "" {
		return fmt.Errorf("source.dbf_folder不能为空")
	}
	if err := dbf.LookupEncoding(p.Source.Encoding); err != nil {
		return fmt.Errorf("source.encoding无效: %w", err)
	}
	if !dbf.DecodePolicy(p.Source.DecodeErrors).Valid() {
		return fmt.Errorf("source.decode_errors必须是strict/replace之一")
	}

	// 校验Destination
	if err := validateDestination(p.Destination); err != nil {
		return err
	}

	// 校验Execution
	if p.Execution.Workers <= 0 {
		return fmt.Errorf("execution.workers必须大于0")
	}
	if p.Execution.Retry.Enabled {
		if p.Execution.Retry.MaxAttempts < 0 {
			return fmt.Errorf("execution.retry.max_attempts不能为负数")
		}
		if p.Execution.Retry.Delay < 0 {
			return fmt.Errorf("execution.retry.delay不能为负数")
		}
	}

	// 校验History
	if p.History.Enabled {
		if storage.NormalizeType(p.History.Type) != storage.TypeSQLite {
			return fmt.Errorf("history.type目前只支持sqlite")
		}
		if p.History.DSN == "" {
			return fmt.Errorf("history.dsn不能为空")
		}
	}

	// 校验Schedule
	if p.Schedule.Enabled {
		if err := engine.ValidateCronExpr(p.Schedule.Cron); err != nil {
			return fmt.Errorf("schedule.cron无效: %w", err)
		}
	}

	// 校验API
	if p.API.Enabled && (p.API.Port <= 0 || p.API.Port > 65535) {
		return fmt.Errorf("api.port必须在1-65535之间")
	}

	return ValidateTables(p.Tables)
}

func validateDestination(d storage.ConnectionParams) error {
	switch storage.NormalizeType(d.Type) {
	case storage.TypePostgres, storage.TypeMySQL:
		if d.Host == "" {
			return fmt.Errorf("destination.host不能为空")
		}
		if d.Port <= 0 || d.Port > 65535 {
			return fmt.Errorf("destination.port必须在1-65535之间")
		}
		if d.User == "" {
			return fmt.Errorf("destination.user不能为空")
		}
	case storage.TypeSQLite:
	default:
		return fmt.Errorf("destination.type必须是postgres/mysql/sqlite之一")
	}
	if d.DBName == "" {
		return fmt.Errorf("destination.dbname不能为空")
	}
	return nil
}

// ValidateTables 校验表配置：标识符安全、列不重复、表名不重复
// 不同的表也不能落到同一个加载标记路径上
func ValidateTables(tables []TableConfig) error {
	seen := make(map[string]bool, len(tables))
	markers := make(map[string]string, len(tables))
	for i, t := range tables {
		prefix := fmt.Sprintf("tables[%d]", i)
		if !ValidTableName(t.Name) {
			return fmt.Errorf("%s.name不是合法的表名: %q", prefix, t.Name)
		}
		key := strings.ToLower(t.Name)
		if seen[key] {
			return fmt.Errorf("%s.name重复: %s", prefix, t.Name)
		}
		seen[key] = true

		if strings.TrimSpace(t.DBFName) == "" {
			return fmt.Errorf("%s.dbf_name不能为空", prefix)
		}
		markerPath := task.LoadMarkerPath(filepath.Clean(t.DBFName), t.Name)
		if other, ok := markers[markerPath]; ok {
			return fmt.Errorf("%s.name与%s共用加载标记: %s", prefix, other, markerPath)
		}
		markers[markerPath] = t.Name
		if len(t.Columns) == 0 {
			return fmt.Errorf("%s.columns不能为空", prefix)
		}
		cols := make(map[string]bool, len(t.Columns))
		for _, col := range t.Columns {
			if !ValidIdentifier(col) {
				return fmt.Errorf("%s.columns包含非法列名: %q", prefix, col)
			}
			if cols[strings.ToLower(col)] {
				return fmt.Errorf("%s.columns列名重复: %s", prefix, col)
			}
			cols[strings.ToLower(col)] = true
		}
		for col, field := range t.FieldMap {
			if !cols[strings.ToLower(col)] {
				return fmt.Errorf("%s.field_map引用了不存在的列: %s", prefix, col)
			}
			if strings.TrimSpace(field) == "" {
				return fmt.Errorf("%s.field_map[%s]不能为空", prefix, col)
			}
		}
		if err := t.Filter.Validate(); err != nil {
			return fmt.Errorf("%s.%w", prefix, err)
		}
	}
	return nil
}
