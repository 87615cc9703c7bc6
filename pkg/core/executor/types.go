// Package executor 以有界 Worker 池执行任务，并通过 channel 回报任务状态
package executor

import (
	"context"
	"time"

	"github.com/LENAX/dbf-pipeline/pkg/core/task"
)

const (
	// StatusSuccess 任务执行成功
	StatusSuccess = "Success"
	// StatusFailed 任务执行失败（重试耗尽）
	StatusFailed = "Failed"
)

// PendingTask 待调度的任务（对外导出）
type PendingTask struct {
	Key        string                // 任务规范键
	Task       task.Task             // 任务实例
	RetryCount int                   // 当前重试次数
	MaxRetries int                   // 最大重试次数
	StatusChan chan *TaskStatusEvent // 任务状态事件 channel，每个任务恰好发送一次
}

// TaskStatusEvent 任务状态事件（对外导出）
type TaskStatusEvent struct {
	TaskKey   string      // 任务规范键
	Status    string      // Success, Failed
	Result    task.Result // 任务结果（Success 时）
	Error     error       // 错误信息（Failed 时）
	Attempts  int         // 实际执行次数
	StartedAt time.Time   // 首次开始时间
	Timestamp time.Time   // 事件时间戳
	Duration  int64       // 执行时长（毫秒）
}

// job 队列中的任务及其上下文
type job struct {
	ctx     context.Context
	pending *PendingTask
}
