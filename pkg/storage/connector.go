package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
)

// Connector 目标数据库连接工厂（对外导出）
// 每个加载任务各自建立连接，连接不在任务之间共享
type Connector interface {
	Connect(ctx context.Context, p ConnectionParams) (Conn, error)
}

// Conn 单个任务持有的数据库连接
type Conn interface {
	// Begin 开启显式事务（关闭自动提交）
	Begin(ctx context.Context) (Tx, error)
	Close() error
}

// Tx 加载任务使用的事务操作集合
type Tx interface {
	Truncate(ctx context.Context, table string) error
	DisableTriggers(ctx context.Context, table string) error
	EnableTriggers(ctx context.Context, table string) error
	BulkInsert(ctx context.Context, table string, buf *RowBuffer) (int64, error)
	Commit() error
	Rollback() error
}

// SQLConnector 基于sqlx和方言的Connector实现（对外导出）
type SQLConnector struct {
	mu       sync.RWMutex
	dialects map[string]Dialect
}

// NewSQLConnector 创建SQLConnector，按方言名称注册
func NewSQLConnector(dialects ...Dialect) *SQLConnector {
	c := &SQLConnector{dialects: make(map[string]Dialect, len(dialects))}
	for _, d := range dialects {
		c.Register(d)
	}
	return c
}

// Register 注册（或替换）方言
func (c *SQLConnector) Register(d Dialect) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dialects[d.Name()] = d
}

// Dialect 按类型查找方言
func (c *SQLConnector) Dialect(dbType string) (Dialect, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.dialects[NormalizeType(dbType)]
	if !ok {
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
	return d, nil
}

// Connect 打开连接并执行会话配置
func (c *SQLConnector) Connect(ctx context.Context, p ConnectionParams) (Conn, error) {
	d, err := c.Dialect(p.Type)
	if err != nil {
		return nil, err
	}
	dsn, err := d.DSN(p)
	if err != nil {
		return nil, fmt.Errorf("生成连接串失败: %w", err)
	}

	db, err := sqlx.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	// 事务和会话配置必须落在同一条物理连接上
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("数据库连接失败 %s: %w", p, err)
	}
	for _, stmt := range d.ConfigureDB() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("配置数据库连接失败: %w", err)
		}
	}
	return &sqlConn{db: db, dialect: d}, nil
}

type sqlConn struct {
	db      *sqlx.DB
	dialect Dialect
}

func (c *sqlConn) Begin(ctx context.Context) (Tx, error) {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("开启事务失败: %w", err)
	}
	return &sqlTx{tx: tx, dialect: c.dialect}, nil
}

func (c *sqlConn) Close() error {
	return c.db.Close()
}

type sqlTx struct {
	tx      *sqlx.Tx
	dialect Dialect
}

func (t *sqlTx) Truncate(ctx context.Context, table string) error {
	if _, err := t.tx.ExecContext(ctx, t.dialect.TruncateSQL(table)); err != nil {
		return fmt.Errorf("清空表%s失败: %w", table, err)
	}
	return nil
}

func (t *sqlTx) DisableTriggers(ctx context.Context, table string) error {
	return t.execOptional(ctx, t.dialect.DisableTriggersSQL(table), "禁用触发器", table)
}

func (t *sqlTx) EnableTriggers(ctx context.Context, table string) error {
	return t.execOptional(ctx, t.dialect.EnableTriggersSQL(table), "启用触发器", table)
}

func (t *sqlTx) execOptional(ctx context.Context, stmt, op, table string) error {
	if stmt == "" {
		return nil
	}
	if _, err := t.tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("%s %s失败: %w", table, op, err)
	}
	return nil
}

func (t *sqlTx) BulkInsert(ctx context.Context, table string, buf *RowBuffer) (int64, error) {
	return t.dialect.BulkInsert(ctx, t.tx, table, buf)
}

func (t *sqlTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqlTx) Rollback() error {
	return t.tx.Rollback()
}
