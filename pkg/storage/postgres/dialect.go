package postgres

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/LENAX/dbf-pipeline/pkg/storage"
)

// PostgresDialect PostgreSQL方言实现（对外导出）
type PostgresDialect struct{}

// NewPostgresDialect 创建PostgreSQL方言实例
func NewPostgresDialect() *PostgresDialect {
	return &PostgresDialect{}
}

// Name 返回方言名称
func (d *PostgresDialect) Name() string {
	return storage.TypePostgres
}

// DriverName lib/pq注册的驱动名
func (d *PostgresDialect) DriverName() string {
	return "postgres"
}

// DSN 生成postgres://形式的连接串
func (d *PostgresDialect) DSN(p storage.ConnectionParams) (string, error) {
	if p.DBName == "" {
		return "", fmt.Errorf("dbname不能为空")
	}
	host := p.Host
	if host == "" {
		host = "localhost"
	}
	port := p.Port
	if port == 0 {
		port = 5432
	}
	sslmode := p.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   host + ":" + strconv.Itoa(port),
		Path:   "/" + p.DBName,
	}
	if p.User != "" {
		if p.Password != "" {
			u.User = url.UserPassword(p.User, p.Password)
		} else {
			u.User = url.User(p.User)
		}
	}
	q := url.Values{}
	q.Set("sslmode", sslmode)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ConfigureDB 源数据已解码为UTF-8
func (d *PostgresDialect) ConfigureDB() []string {
	return []string{"SET client_encoding = 'UTF8';"}
}

// Placeholder 返回占位符（PostgreSQL使用$1, $2, ...）
func (d *PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

// TruncateSQL TRUNCATE在PostgreSQL中是事务性的
func (d *PostgresDialect) TruncateSQL(table string) string {
	return fmt.Sprintf("TRUNCATE TABLE %s;", table)
}

// DisableTriggersSQL 禁用表上所有触发器
func (d *PostgresDialect) DisableTriggersSQL(table string) string {
	return fmt.Sprintf("ALTER TABLE %s DISABLE TRIGGER ALL;", table)
}

// EnableTriggersSQL 启用表上所有触发器
func (d *PostgresDialect) EnableTriggersSQL(table string) string {
	return fmt.Sprintf("ALTER TABLE %s ENABLE TRIGGER ALL;", table)
}

// CopySQL COPY FROM STDIN语句
// 表名和列名不加引号，与普通SQL一样按PostgreSQL规则折叠大小写
func (d *PostgresDialect) CopySQL(table string, columns []string) string {
	return fmt.Sprintf("COPY %s (%s) FROM STDIN", table, strings.Join(columns, ", "))
}

// BulkInsert 通过COPY FROM STDIN批量写入
func (d *PostgresDialect) BulkInsert(ctx context.Context, tx *sqlx.Tx, table string, buf *storage.RowBuffer) (int64, error) {
	if buf.Len() == 0 {
		return 0, nil
	}

	stmt, err := tx.PrepareContext(ctx, d.CopySQL(table, buf.Columns))
	if err != nil {
		return 0, describe("准备COPY语句失败", err)
	}

	for i, row := range buf.Rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			stmt.Close()
			return 0, describe(fmt.Sprintf("COPY第%d行失败", i+1), err)
		}
	}
	// 无参数Exec结束数据流并提交COPY
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return 0, describe("结束COPY失败", err)
	}
	if err := stmt.Close(); err != nil {
		return 0, describe("关闭COPY语句失败", err)
	}
	return int64(buf.Len()), nil
}

// describe 附加PostgreSQL错误码
func describe(msg string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("%s（SQLSTATE %s）: %w", msg, pqErr.Code, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// 确保实现接口
var _ storage.Dialect = (*PostgresDialect)(nil)
