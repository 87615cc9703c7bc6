package storage

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// Dialect 目标数据库方言接口（对外导出）
// 屏蔽不同数据库在连接串、清表、触发器和批量写入上的差异
type Dialect interface {
	// Name 返回方言名称（如 "sqlite", "mysql", "postgres"）
	Name() string

	// DriverName 返回database/sql驱动名
	DriverName() string

	// DSN 根据连接参数生成驱动连接串
	DSN(p ConnectionParams) (string, error)

	// ConfigureDB 连接建立后需要执行的会话级SQL
	ConfigureDB() []string

	// Placeholder 返回指定位置的占位符
	// SQLite/MySQL: ? (忽略index)
	// PostgreSQL: $1, $2, ...
	Placeholder(index int) string

	// TruncateSQL 在事务内清空表的语句
	TruncateSQL(table string) string

	// DisableTriggersSQL 禁用表上所有触发器，不支持时返回空串
	DisableTriggersSQL(table string) string

	// EnableTriggersSQL 启用表上所有触发器，不支持时返回空串
	EnableTriggersSQL(table string) string

	// BulkInsert 在事务内将缓冲中的所有行写入表，返回写入行数
	BulkInsert(ctx context.Context, tx *sqlx.Tx, table string, buf *RowBuffer) (int64, error)
}
