package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/dbf-pipeline/pkg/api/dto"
	"github.com/LENAX/dbf-pipeline/pkg/core/engine"
	"github.com/LENAX/dbf-pipeline/pkg/core/events"
	"github.com/LENAX/dbf-pipeline/pkg/pipeline"
	"github.com/LENAX/dbf-pipeline/pkg/storage"
)

// Runner 处理器依赖的流水线能力
type Runner interface {
	Start(ctx context.Context, opts pipeline.RunOptions) (string, error)
	Plan(ctx context.Context, forceClean bool) ([]engine.PlanEntry, error)
	History() storage.RunRepository
	StatusSource
}

// EventSource 按运行ID查询生命周期事件
type EventSource interface {
	Events(runID string) []events.Event
}

// RunHandler 运行API处理器
type RunHandler struct {
	runner Runner
	events EventSource
	// baseCtx 异步运行的上下文，随服务关闭而取消
	baseCtx context.Context
}

// NewRunHandler 创建RunHandler，source可以为nil
func NewRunHandler(baseCtx context.Context, runner Runner, source EventSource) *RunHandler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &RunHandler{runner: runner, events: source, baseCtx: baseCtx}
}

// Trigger 异步触发一次运行
// POST /api/v1/runs
func (h *RunHandler) Trigger(c *gin.Context) {
	var req dto.TriggerRunRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("请求参数错误: %v", err)))
		return
	}

	runID, err := h.runner.Start(h.baseCtx, pipeline.RunOptions{
		ForceClean: req.ForceClean,
		Trigger:    pipeline.TriggerAPI,
	})
	if errors.Is(err, pipeline.ErrRunInProgress) {
		c.JSON(http.StatusConflict, dto.NewErrorResponse(409, "已有运行正在进行"))
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, fmt.Sprintf("触发运行失败: %v", err)))
		return
	}

	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(dto.TriggerResponse{
		RunID:   runID,
		Message: "运行已提交",
	}))
}

// List 列出最近的运行
// GET /api/v1/runs
func (h *RunHandler) List(c *gin.Context) {
	var query dto.ListQueryRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("查询参数错误: %v", err)))
		return
	}

	repo := h.runner.History()
	if repo == nil {
		c.JSON(http.StatusServiceUnavailable, dto.NewErrorResponse(503, "运行历史未启用"))
		return
	}

	runs, err := repo.ListRuns(c.Request.Context(), query.GetDefaultLimit())
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, fmt.Sprintf("查询运行历史失败: %v", err)))
		return
	}

	items := make([]dto.RunSummary, 0, len(runs))
	for _, run := range runs {
		items = append(items, dto.NewRunSummary(run))
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ListResponse[dto.RunSummary]{
		Total: len(items),
		Items: items,
	}))
}

// Get 查询单次运行
// GET /api/v1/runs/:id
// 运行尚未结束时历史中没有记录，根据已记录的事件返回RUNNING
func (h *RunHandler) Get(c *gin.Context) {
	runID := c.Param("id")

	if repo := h.runner.History(); repo != nil {
		run, err := repo.GetRun(c.Request.Context(), runID)
		if err == nil {
			c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.NewRunDetail(run)))
			return
		}
		if !errors.Is(err, storage.ErrRunNotFound) {
			c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, fmt.Sprintf("查询运行失败: %v", err)))
			return
		}
	}

	if detail, ok := h.detailFromEvents(runID); ok {
		c.JSON(http.StatusOK, dto.NewSuccessResponse(detail))
		return
	}
	c.JSON(http.StatusNotFound, dto.NewErrorResponse(404, fmt.Sprintf("运行不存在: %s", runID)))
}

func (h *RunHandler) detailFromEvents(runID string) (dto.RunDetail, bool) {
	if h.events == nil {
		return dto.RunDetail{}, false
	}
	evs := h.events.Events(runID)
	if len(evs) == 0 {
		return dto.RunDetail{}, false
	}

	detail := dto.RunDetail{
		RunSummary: dto.RunSummary{
			ID:        runID,
			Status:    string(engine.StateRunning),
			StartedAt: evs[0].Timestamp,
		},
		Tasks: []dto.TaskDetail{},
	}
	for _, ev := range evs {
		switch ev.Type {
		case events.EventRunFinished:
			detail.Status = ev.State
			finished := ev.Timestamp
			detail.FinishedAt = &finished
		case events.EventTaskSkipped, events.EventTaskSucceeded, events.EventTaskFailed, events.EventTaskCancelled:
			detail.Progress.Total++
			switch engine.State(ev.State) {
			case engine.StateDone:
				detail.Progress.Done++
			case engine.StateUpToDate:
				detail.Progress.UpToDate++
			case engine.StateFailed:
				detail.Progress.Failed++
			case engine.StateUpstreamFailed:
				detail.Progress.UpstreamFailed++
			case engine.StateCancelled:
				detail.Progress.Cancelled++
			}
			detail.Tasks = append(detail.Tasks, dto.TaskDetail{
				Key:          ev.TaskKey,
				Kind:         ev.Metadata["kind"],
				Name:         ev.TaskName,
				State:        ev.State,
				Attempts:     ev.Attempts,
				Processed:    ev.Processed,
				Loaded:       ev.Loaded,
				ErrorMessage: ev.Error,
			})
		}
	}
	return detail, true
}

// Events 查询单次运行的生命周期事件
// GET /api/v1/runs/:id/events
func (h *RunHandler) Events(c *gin.Context) {
	if h.events == nil {
		c.JSON(http.StatusServiceUnavailable, dto.NewErrorResponse(503, "事件记录未启用"))
		return
	}
	runID := c.Param("id")
	evs := h.events.Events(runID)
	if len(evs) == 0 {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(404, fmt.Sprintf("没有该运行的事件: %s", runID)))
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ListResponse[events.Event]{
		Total: len(evs),
		Items: evs,
	}))
}

// Plan 报告每个任务当前的标记状态
// GET /api/v1/plan
func (h *RunHandler) Plan(c *gin.Context) {
	var query dto.PlanQueryRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(400, fmt.Sprintf("查询参数错误: %v", err)))
		return
	}

	entries, err := h.runner.Plan(c.Request.Context(), query.ForceClean)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorResponse(500, fmt.Sprintf("生成计划失败: %v", err)))
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ListResponse[engine.PlanEntry]{
		Total: len(entries),
		Items: entries,
	}))
}
