package dao

import (
	"database/sql"
	"time"
)

// RunDAO pipeline_run表的数据访问对象（内部使用）
type RunDAO struct {
	ID         string         `db:"id"`
	Trigger    string         `db:"trigger_source"`
	ForceClean bool           `db:"force_clean"`
	Status     string         `db:"status"`
	StartedAt  time.Time      `db:"started_at"`
	FinishedAt sql.NullTime   `db:"finished_at"`
	ErrorMsg   sql.NullString `db:"error_msg"`
}

// TaskRunDAO pipeline_task_run表的数据访问对象（内部使用）
type TaskRunDAO struct {
	RunID      string         `db:"run_id"`
	Seq        int            `db:"seq"`
	TaskKey    string         `db:"task_key"`
	Kind       string         `db:"kind"`
	Name       string         `db:"name"`
	State      string         `db:"state"`
	Attempts   int            `db:"attempts"`
	Processed  int            `db:"processed_count"`
	Loaded     int            `db:"loaded_count"`
	MarkerPath string         `db:"marker_path"`
	ErrorMsg   sql.NullString `db:"error_msg"`
	StartedAt  sql.NullTime   `db:"started_at"`
	FinishedAt sql.NullTime   `db:"finished_at"`
	DurationMs int64          `db:"duration_ms"`
}
