package mysql

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/LENAX/dbf-pipeline/pkg/storage"
)

// MySQL单条语句最多65535个占位符
const maxPlaceholders = 65535

// MySQLDialect MySQL方言实现（对外导出）
type MySQLDialect struct{}

// NewMySQLDialect 创建MySQL方言实例
func NewMySQLDialect() *MySQLDialect {
	return &MySQLDialect{}
}

// Name 返回方言名称
func (d *MySQLDialect) Name() string {
	return storage.TypeMySQL
}

// DriverName go-sql-driver/mysql注册的驱动名
func (d *MySQLDialect) DriverName() string {
	return "mysql"
}

// DSN 通过mysql.Config生成连接串
func (d *MySQLDialect) DSN(p storage.ConnectionParams) (string, error) {
	if p.DBName == "" {
		return "", fmt.Errorf("dbname不能为空")
	}
	host := p.Host
	if host == "" {
		host = "localhost"
	}
	port := p.Port
	if port == 0 {
		port = 3306
	}

	cfg := mysql.NewConfig()
	cfg.User = p.User
	cfg.Passwd = p.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	cfg.DBName = p.DBName
	cfg.ParseTime = true
	if p.SSLMode != "" && p.SSLMode != "disable" {
		cfg.TLSConfig = "true"
	}
	return cfg.FormatDSN(), nil
}

// ConfigureDB 返回MySQL配置SQL
func (d *MySQLDialect) ConfigureDB() []string {
	return []string{"SET NAMES utf8mb4;"}
}

// Placeholder 返回占位符（MySQL使用?）
func (d *MySQLDialect) Placeholder(index int) string {
	return "?"
}

// TruncateSQL TRUNCATE会隐式提交，这里用DELETE保证回滚时表不被清空
func (d *MySQLDialect) TruncateSQL(table string) string {
	return fmt.Sprintf("DELETE FROM %s;", table)
}

// DisableTriggersSQL MySQL没有按表禁用触发器的语句
func (d *MySQLDialect) DisableTriggersSQL(table string) string {
	return ""
}

// EnableTriggersSQL MySQL没有按表启用触发器的语句
func (d *MySQLDialect) EnableTriggersSQL(table string) string {
	return ""
}

// BulkInsert 多行INSERT分批写入
func (d *MySQLDialect) BulkInsert(ctx context.Context, tx *sqlx.Tx, table string, buf *storage.RowBuffer) (int64, error) {
	return storage.InsertBatches(ctx, tx, d, table, buf, maxPlaceholders)
}

// 确保实现接口
var _ storage.Dialect = (*MySQLDialect)(nil)
