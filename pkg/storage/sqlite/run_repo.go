package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/LENAX/dbf-pipeline/pkg/storage"
	"github.com/LENAX/dbf-pipeline/pkg/storage/dao"
)

// RunRepo 运行历史Repository的SQLite实现（对外导出）
type RunRepo struct {
	db *sqlx.DB
}

// NewRunRepo 创建运行历史Repository实例（对外导出）
func NewRunRepo(db *sqlx.DB) (*RunRepo, error) {
	repo := &RunRepo{db: db}
	if err := repo.initSchema(); err != nil {
		return nil, fmt.Errorf("初始化表结构失败: %w", err)
	}
	return repo, nil
}

// NewRunRepoFromDSN 通过DSN创建运行历史Repository实例（对外导出）
func NewRunRepoFromDSN(dsn string) (*RunRepo, error) {
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("数据库连接失败: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=30000;",
		"PRAGMA foreign_keys=ON;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("配置SQLite失败: %w", err)
		}
	}

	repo, err := NewRunRepo(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// Close 关闭数据库连接（对外导出）
func (r *RunRepo) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// initSchema 初始化数据库表结构
func (r *RunRepo) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS pipeline_run (
		id TEXT PRIMARY KEY,
		trigger_source TEXT NOT NULL DEFAULT '',
		force_clean INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		error_msg TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_pipeline_run_started_at ON pipeline_run(started_at);

	CREATE TABLE IF NOT EXISTS pipeline_task_run (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		task_key TEXT NOT NULL,
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		state TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		processed_count INTEGER NOT NULL DEFAULT 0,
		loaded_count INTEGER NOT NULL DEFAULT 0,
		marker_path TEXT NOT NULL DEFAULT '',
		error_msg TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (run_id, seq),
		FOREIGN KEY (run_id) REFERENCES pipeline_run(id) ON DELETE CASCADE
	);
	`
	_, err := r.db.Exec(schema)
	return err
}

// SaveRun 保存运行记录，任务明细整体替换
func (r *RunRepo) SaveRun(ctx context.Context, run *storage.RunRecord) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("运行记录ID不能为空")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()

	runDAO := toRunDAO(run)
	upsert := `
	INSERT INTO pipeline_run (id, trigger_source, force_clean, status, started_at, finished_at, error_msg)
	VALUES (:id, :trigger_source, :force_clean, :status, :started_at, :finished_at, :error_msg)
	ON CONFLICT(id) DO UPDATE SET
		trigger_source = excluded.trigger_source,
		force_clean = excluded.force_clean,
		status = excluded.status,
		started_at = excluded.started_at,
		finished_at = excluded.finished_at,
		error_msg = excluded.error_msg
	`
	if _, err := tx.NamedExecContext(ctx, upsert, runDAO); err != nil {
		return fmt.Errorf("保存运行记录失败: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM pipeline_task_run WHERE run_id = ?", run.ID); err != nil {
		return fmt.Errorf("清理任务明细失败: %w", err)
	}

	insertTask := `
	INSERT INTO pipeline_task_run (run_id, seq, task_key, kind, name, state, attempts, processed_count,
		loaded_count, marker_path, error_msg, started_at, finished_at, duration_ms)
	VALUES (:run_id, :seq, :task_key, :kind, :name, :state, :attempts, :processed_count,
		:loaded_count, :marker_path, :error_msg, :started_at, :finished_at, :duration_ms)
	`
	for i, t := range run.Tasks {
		if _, err := tx.NamedExecContext(ctx, insertTask, toTaskRunDAO(run.ID, i, t)); err != nil {
			return fmt.Errorf("保存任务明细失败: %s: %w", t.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}

// GetRun 查询运行记录及任务明细
func (r *RunRepo) GetRun(ctx context.Context, id string) (*storage.RunRecord, error) {
	var runDAO dao.RunDAO
	query := `SELECT id, trigger_source, force_clean, status, started_at, finished_at, error_msg
		FROM pipeline_run WHERE id = ?`
	if err := r.db.GetContext(ctx, &runDAO, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", storage.ErrRunNotFound, id)
		}
		return nil, fmt.Errorf("查询运行记录失败: %w", err)
	}

	var taskDAOs []dao.TaskRunDAO
	taskQuery := `SELECT run_id, seq, task_key, kind, name, state, attempts, processed_count, loaded_count,
		marker_path, error_msg, started_at, finished_at, duration_ms
		FROM pipeline_task_run WHERE run_id = ? ORDER BY seq`
	if err := r.db.SelectContext(ctx, &taskDAOs, taskQuery, id); err != nil {
		return nil, fmt.Errorf("查询任务明细失败: %w", err)
	}

	run := fromRunDAO(runDAO)
	run.Tasks = make([]storage.TaskRecord, 0, len(taskDAOs))
	for _, t := range taskDAOs {
		run.Tasks = append(run.Tasks, fromTaskRunDAO(t))
	}
	return run, nil
}

// ListRuns 按开始时间倒序列出运行记录
func (r *RunRepo) ListRuns(ctx context.Context, limit int) ([]*storage.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var daos []dao.RunDAO
	query := `SELECT id, trigger_source, force_clean, status, started_at, finished_at, error_msg
		FROM pipeline_run ORDER BY started_at DESC LIMIT ?`
	if err := r.db.SelectContext(ctx, &daos, query, limit); err != nil {
		return nil, fmt.Errorf("查询运行记录失败: %w", err)
	}
	runs := make([]*storage.RunRecord, 0, len(daos))
	for _, d := range daos {
		runs = append(runs, fromRunDAO(d))
	}
	return runs, nil
}

func toRunDAO(run *storage.RunRecord) dao.RunDAO {
	return dao.RunDAO{
		ID:         run.ID,
		Trigger:    run.Trigger,
		ForceClean: run.ForceClean,
		Status:     run.Status,
		StartedAt:  run.StartedAt,
		FinishedAt: nullTime(run.FinishedAt),
		ErrorMsg:   nullString(run.Error),
	}
}

func fromRunDAO(d dao.RunDAO) *storage.RunRecord {
	return &storage.RunRecord{
		ID:         d.ID,
		Trigger:    d.Trigger,
		ForceClean: d.ForceClean,
		Status:     d.Status,
		StartedAt:  d.StartedAt,
		FinishedAt: d.FinishedAt.Time,
		Error:      d.ErrorMsg.String,
	}
}

func toTaskRunDAO(runID string, seq int, t storage.TaskRecord) dao.TaskRunDAO {
	return dao.TaskRunDAO{
		RunID:      runID,
		Seq:        seq,
		TaskKey:    t.Key,
		Kind:       t.Kind,
		Name:       t.Name,
		State:      t.State,
		Attempts:   t.Attempts,
		Processed:  t.Processed,
		Loaded:     t.Loaded,
		MarkerPath: t.Marker,
		ErrorMsg:   nullString(t.Error),
		StartedAt:  nullTime(t.StartedAt),
		FinishedAt: nullTime(t.FinishedAt),
		DurationMs: t.Duration.Milliseconds(),
	}
}

func fromTaskRunDAO(d dao.TaskRunDAO) storage.TaskRecord {
	return storage.TaskRecord{
		Key:        d.TaskKey,
		Kind:       d.Kind,
		Name:       d.Name,
		State:      d.State,
		Attempts:   d.Attempts,
		Processed:  d.Processed,
		Loaded:     d.Loaded,
		Marker:     d.MarkerPath,
		Error:      d.ErrorMsg.String,
		StartedAt:  d.StartedAt.Time,
		FinishedAt: d.FinishedAt.Time,
		Duration:   time.Duration(d.DurationMs) * time.Millisecond,
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// 确保实现接口
var _ storage.RunRepository = (*RunRepo)(nil)
