package storage

import (
	"fmt"

	"github.com/LENAX/dbf-pipeline/pkg/storage"
	"github.com/LENAX/dbf-pipeline/pkg/storage/mysql"
	"github.com/LENAX/dbf-pipeline/pkg/storage/postgres"
	pkgsqlite "github.com/LENAX/dbf-pipeline/pkg/storage/sqlite"
)

// NewConnector 创建注册了全部内置方言的目标库连接工厂（内部方法）
func NewConnector() *storage.SQLConnector {
	return storage.NewSQLConnector(
		postgres.NewPostgresDialect(),
		mysql.NewMySQLDialect(),
		pkgsqlite.NewSQLiteDialect(),
	)
}

// NewRunRepository 创建运行历史Repository（内部方法）
// dbType: 数据库类型，目前只支持sqlite
// dsn: 数据库连接字符串
func NewRunRepository(dbType, dsn string) (storage.RunRepository, error) {
	switch storage.NormalizeType(dbType) {
	case storage.TypeSQLite:
		repo, err := pkgsqlite.NewRunRepoFromDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("create sqlite run repository failed: %w", err)
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported history database type: %s", dbType)
	}
}
