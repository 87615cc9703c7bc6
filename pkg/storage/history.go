package storage

import (
	"context"
	"errors"
	"time"
)

// ErrRunNotFound 运行记录不存在
var ErrRunNotFound = errors.New("run not found")

// RunRecord 一次流水线运行的持久化记录（对外导出）
type RunRecord struct {
	ID         string       `json:"id"`
	Trigger    string       `json:"trigger"` // cli/api/cron
	ForceClean bool         `json:"force_clean"`
	Status     string       `json:"status"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Error      string       `json:"error,omitempty"`
	Tasks      []TaskRecord `json:"tasks,omitempty"`
}

// TaskRecord 运行中单个任务的结果
type TaskRecord struct {
	Key        string        `json:"key"`
	Kind       string        `json:"kind"`
	Name       string        `json:"name"`
	State      string        `json:"state"`
	Attempts   int           `json:"attempts"`
	Processed  int           `json:"processed"`
	Loaded     int           `json:"loaded"`
	Marker     string        `json:"marker"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at,omitempty"`
	FinishedAt time.Time     `json:"finished_at,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// RunRepository 运行历史存储接口（对外导出）
type RunRepository interface {
	// SaveRun 保存运行记录及其任务结果（按ID覆盖）
	SaveRun(ctx context.Context, run *RunRecord) error
	// GetRun 按ID查询，不存在返回ErrRunNotFound
	GetRun(ctx context.Context, id string) (*RunRecord, error)
	// ListRuns 按开始时间倒序列出，不含任务明细
	ListRuns(ctx context.Context, limit int) ([]*RunRecord, error)
	Close() error
}
