package dto

import (
	"fmt"
	"time"

	"github.com/LENAX/dbf-pipeline/pkg/storage"
)

// APIResponse 通用API响应结构
type APIResponse[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse[T any](data T) APIResponse[T] {
	return APIResponse[T]{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) APIResponse[any] {
	return APIResponse[any]{
		Code:    code,
		Message: message,
	}
}

// RunSummary 运行摘要信息
type RunSummary struct {
	ID           string     `json:"id"`
	Trigger      string     `json:"trigger,omitempty"`
	Status       string     `json:"status"`
	ForceClean   bool       `json:"force_clean"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Duration     string     `json:"duration,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// RunDetail 运行详细信息
type RunDetail struct {
	RunSummary
	Progress ProgressInfo `json:"progress"`
	Tasks    []TaskDetail `json:"tasks"`
}

// ProgressInfo 各状态任务数
type ProgressInfo struct {
	Total          int `json:"total"`
	Done           int `json:"done"`
	UpToDate       int `json:"up_to_date"`
	Failed         int `json:"failed"`
	UpstreamFailed int `json:"upstream_failed"`
	Cancelled      int `json:"cancelled"`
}

// TaskDetail 单个任务的执行结果
type TaskDetail struct {
	Key          string `json:"key"`
	Kind         string `json:"kind"`
	Name         string `json:"name"`
	State        string `json:"state"`
	Attempts     int    `json:"attempts"`
	Processed    int    `json:"processed"`
	Loaded       int    `json:"loaded"`
	Marker       string `json:"marker"`
	Duration     string `json:"duration,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// TriggerResponse 触发运行响应
type TriggerResponse struct {
	RunID   string `json:"run_id"`
	Message string `json:"message"`
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Uptime    string          `json:"uptime"`
	Timestamp string          `json:"timestamp"`
	Pipeline  *PipelineStatus `json:"pipeline,omitempty"`
}

// PipelineStatus 流水线状态
type PipelineStatus struct {
	Running         bool   `json:"running"`
	DBFFolder       string `json:"dbf_folder"`
	SourceReachable bool   `json:"source_reachable"`
	Tables          int    `json:"tables"`
	Destination     string `json:"destination"`
}

// ListResponse 列表响应
type ListResponse[T any] struct {
	Total int `json:"total"`
	Items []T `json:"items"`
}

// NewRunSummary 从运行历史记录构建摘要
func NewRunSummary(run *storage.RunRecord) RunSummary {
	summary := RunSummary{
		ID:           run.ID,
		Trigger:      run.Trigger,
		Status:       run.Status,
		ForceClean:   run.ForceClean,
		StartedAt:    run.StartedAt,
		ErrorMessage: run.Error,
	}
	if !run.FinishedAt.IsZero() {
		finished := run.FinishedAt
		summary.FinishedAt = &finished
		summary.Duration = FormatDuration(finished.Sub(run.StartedAt))
	}
	return summary
}

// NewRunDetail 从运行历史记录构建详情
func NewRunDetail(run *storage.RunRecord) RunDetail {
	detail := RunDetail{
		RunSummary: NewRunSummary(run),
		Tasks:      make([]TaskDetail, 0, len(run.Tasks)),
	}
	for _, t := range run.Tasks {
		detail.Progress.Total++
		switch t.State {
		case "DONE":
			detail.Progress.Done++
		case "UP_TO_DATE":
			detail.Progress.UpToDate++
		case "FAILED":
			detail.Progress.Failed++
		case "UPSTREAM_FAILED":
			detail.Progress.UpstreamFailed++
		case "CANCELLED":
			detail.Progress.Cancelled++
		}
		td := TaskDetail{
			Key:          t.Key,
			Kind:         t.Kind,
			Name:         t.Name,
			State:        t.State,
			Attempts:     t.Attempts,
			Processed:    t.Processed,
			Loaded:       t.Loaded,
			Marker:       t.Marker,
			ErrorMessage: t.Error,
		}
		if t.Duration > 0 {
			td.Duration = FormatDuration(t.Duration)
		}
		detail.Tasks = append(detail.Tasks, td)
	}
	return detail
}

// FormatDuration 格式化耗时
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
