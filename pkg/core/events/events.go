// Package events 提供流水线运行与任务生命周期事件
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType 事件类型
type EventType string

const (
	// 运行事件
	EventRunStarted  EventType = "run.started"  // 运行开始
	EventRunFinished EventType = "run.finished" // 运行结束

	// 任务事件
	EventTaskStarted   EventType = "task.started"   // 任务开始执行
	EventTaskSkipped   EventType = "task.skipped"   // 标记已存在，跳过
	EventTaskSucceeded EventType = "task.succeeded" // 任务成功
	EventTaskFailed    EventType = "task.failed"    // 任务失败或上游失败
	EventTaskCancelled EventType = "task.cancelled" // 任务未调度即取消
)

// Event 生命周期事件（对外导出）
type Event struct {
	ID         string            `json:"id"`                    // 事件ID（UUID）
	Type       EventType         `json:"type"`                  // 事件类型
	RunID      string            `json:"run_id"`                // 运行ID
	TaskKey    string            `json:"task_key,omitempty"`    // 任务规范键
	TaskName   string            `json:"task_name,omitempty"`   // 任务名称
	State      string            `json:"state,omitempty"`       // 任务或运行状态
	Error      string            `json:"error,omitempty"`       // 错误信息
	Processed  int               `json:"processed,omitempty"`   // 扫描记录数
	Loaded     int               `json:"loaded,omitempty"`      // 写入行数
	Attempts   int               `json:"attempts,omitempty"`    // 执行次数
	DurationMs int64             `json:"duration_ms,omitempty"` // 耗时（毫秒）
	Timestamp  time.Time         `json:"timestamp"`             // 事件时间
	Metadata   map[string]string `json:"metadata,omitempty"`    // 元数据
}

// NewEvent 创建事件
func NewEvent(eventType EventType, runID string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		RunID:     runID,
		Timestamp: time.Now(),
	}
}

// WithTask 设置关联任务
func (e *Event) WithTask(key, name string) *Event {
	e.TaskKey = key
	e.TaskName = name
	return e
}

// WithMetadata 添加元数据
func (e *Event) WithMetadata(key, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// Publisher 事件发布接口（对外导出）
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
}

// NopPublisher 丢弃所有事件
type NopPublisher struct{}

// Publish 实现Publisher接口
func (NopPublisher) Publish(context.Context, *Event) error { return nil }
