package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/LENAX/dbf-pipeline/pkg/storage"
)

// 兼容旧版本SQLite的SQLITE_MAX_VARIABLE_NUMBER
const maxVariables = 999

// SQLiteDialect SQLite方言实现（对外导出）
type SQLiteDialect struct{}

// NewSQLiteDialect 创建SQLite方言实例
func NewSQLiteDialect() *SQLiteDialect {
	return &SQLiteDialect{}
}

// Name 返回方言名称
func (d *SQLiteDialect) Name() string {
	return storage.TypeSQLite
}

// DriverName mattn/go-sqlite3注册的驱动名
func (d *SQLiteDialect) DriverName() string {
	return "sqlite3"
}

// DSN 以DBName作为数据库文件路径
func (d *SQLiteDialect) DSN(p storage.ConnectionParams) (string, error) {
	if p.DBName == "" {
		return "", fmt.Errorf("sqlite需要在dbname中指定数据库文件路径")
	}
	sep := "?"
	if strings.Contains(p.DBName, "?") {
		sep = "&"
	}
	return p.DBName + sep + "_busy_timeout=30000", nil
}

// ConfigureDB 返回SQLite配置SQL
func (d *SQLiteDialect) ConfigureDB() []string {
	return []string{
		"PRAGMA busy_timeout=30000;",
		"PRAGMA synchronous=NORMAL;",
	}
}

// Placeholder 返回占位符（SQLite使用?）
func (d *SQLiteDialect) Placeholder(index int) string {
	return "?"
}

// TruncateSQL SQLite没有TRUNCATE，事务内DELETE可回滚
func (d *SQLiteDialect) TruncateSQL(table string) string {
	return fmt.Sprintf("DELETE FROM %s;", table)
}

// DisableTriggersSQL SQLite不支持按表禁用触发器
func (d *SQLiteDialect) DisableTriggersSQL(table string) string {
	return ""
}

// EnableTriggersSQL SQLite不支持按表启用触发器
func (d *SQLiteDialect) EnableTriggersSQL(table string) string {
	return ""
}

// BulkInsert 多行INSERT分批写入
func (d *SQLiteDialect) BulkInsert(ctx context.Context, tx *sqlx.Tx, table string, buf *storage.RowBuffer) (int64, error) {
	return storage.InsertBatches(ctx, tx, d, table, buf, maxVariables)
}

// 确保实现接口
var _ storage.Dialect = (*SQLiteDialect)(nil)
