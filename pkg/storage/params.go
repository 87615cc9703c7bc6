package storage

import (
	"fmt"
	"strings"
)

// 支持的目标数据库类型
const (
	TypePostgres = "postgres"
	TypeMySQL    = "mysql"
	TypeSQLite   = "sqlite"
)

// ConnectionParams 目标数据库连接参数（对外导出）
// SQLite使用DBName作为数据库文件路径
type ConnectionParams struct {
	Type     string `yaml:"type" json:"type"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	DBName   string `yaml:"dbname" json:"dbname"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"-"`
	SSLMode  string `yaml:"sslmode" json:"sslmode,omitempty"`
}

// NormalizeType 归一化数据库类型别名
func NormalizeType(dbType string) string {
	switch strings.ToLower(strings.TrimSpace(dbType)) {
	case "postgres", "postgresql", "pg":
		return TypePostgres
	case "mysql", "mariadb":
		return TypeMySQL
	case "sqlite", "sqlite3":
		return TypeSQLite
	default:
		return strings.ToLower(strings.TrimSpace(dbType))
	}
}

// CanonicalKey 参与任务身份计算的规范形式，不包含密码
func (p ConnectionParams) CanonicalKey() string {
	t := NormalizeType(p.Type)
	if t == TypeSQLite {
		return fmt.Sprintf("%s://%s", t, p.DBName)
	}
	return fmt.Sprintf("%s://%s@%s:%d/%s", t, p.User, p.Host, p.Port, p.DBName)
}

// String 打印用，隐藏密码
func (p ConnectionParams) String() string {
	return p.CanonicalKey()
}
