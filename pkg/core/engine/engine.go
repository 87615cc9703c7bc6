// Package engine 按依赖图调度任务：标记已存在的任务跳过，其余在有界 Worker 池中执行
package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/LENAX/dbf-pipeline/pkg/core/dag"
	"github.com/LENAX/dbf-pipeline/pkg/core/events"
	"github.com/LENAX/dbf-pipeline/pkg/core/executor"
	"github.com/LENAX/dbf-pipeline/pkg/core/marker"
	"github.com/LENAX/dbf-pipeline/pkg/core/task"
)

// Options 引擎执行选项
type Options struct {
	// Workers 并发 Worker 数，默认1（完全串行）
	Workers int
	// FailFast 任一任务失败后不再调度新任务
	FailFast bool
	// MaxRetries 单个任务失败后的最大重试次数
	MaxRetries int
	// RetryBackoff 首次重试间隔，之后每次翻倍
	RetryBackoff time.Duration
}

// Engine 依赖引擎（对外导出）
type Engine struct {
	store     marker.Store
	opts      Options
	publisher events.Publisher
}

// Option 引擎可选项
type Option func(*Engine)

// WithPublisher 设置生命周期事件发布者
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) {
		if p != nil {
			e.publisher = p
		}
	}
}

// New 创建依赖引擎
func New(store marker.Store, opts Options, options ...Option) *Engine {
	if store == nil {
		store = marker.NewFileStore()
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	e := &Engine{store: store, opts: opts, publisher: events.NopPublisher{}}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// Options 当前执行选项
func (e *Engine) Options() Options {
	return e.opts
}

// run 一次运行的协调状态，只在协调 goroutine 中访问
type run struct {
	engine      *Engine
	ctx         context.Context
	id          string
	graph       dag.DAG
	report      *Report
	waiting     map[string]int // 尚未完成的上游数
	ready       []string
	stopped     bool
	stopReason  string
	inFlight    int
	tasks       map[string]task.Task
	statusChan  chan *executor.TaskStatusEvent
	executor    *executor.Executor
	taskContext context.Context
}

// Run 执行依赖图（对外导出）
// 任务失败不会返回错误，结果见 Report；只有引擎自身无法运行或 ctx 被取消时返回错误
func (e *Engine) Run(ctx context.Context, runID string, g dag.DAG) (*Report, error) {
	if g == nil {
		return nil, fmt.Errorf("依赖图不能为空")
	}
	order, err := g.TopologicalSort()
	if err != nil {
		return nil, fmt.Errorf("拓扑排序失败: %w", err)
	}

	exec, err := executor.NewExecutor(e.opts.Workers, executor.WithRetryBackoff(e.opts.RetryBackoff))
	if err != nil {
		return nil, fmt.Errorf("创建执行器失败: %w", err)
	}
	exec.Start()
	defer exec.Shutdown()

	r := &run{
		engine:     e,
		ctx:        ctx,
		id:         runID,
		graph:      g,
		report:     newReport(runID),
		waiting:    make(map[string]int, g.Size()),
		tasks:      make(map[string]task.Task, g.Size()),
		statusChan: make(chan *executor.TaskStatusEvent, g.Size()),
		executor:   exec,
		// 任务开始后不中途取消
		taskContext: context.WithoutCancel(ctx),
	}

	for _, key := range order.Flatten() {
		t, err := g.GetTask(key)
		if err != nil {
			return nil, err
		}
		parents, err := g.GetParents(key)
		if err != nil {
			return nil, err
		}
		r.tasks[key] = t
		r.waiting[key] = len(parents)
		r.report.add(&TaskReport{
			Key:    key,
			Name:   t.Name(),
			Kind:   string(t.Identity().Kind),
			Marker: t.Output().Path,
			State:  StatePending,
		})
		if len(parents) == 0 {
			r.ready = append(r.ready, key)
		}
	}

	log.Printf("🚀 [依赖引擎] 开始运行: runID=%s, tasks=%d, workers=%d, failFast=%v",
		runID, g.Size(), e.opts.Workers, e.opts.FailFast)
	e.publish(ctx, events.NewEvent(events.EventRunStarted, runID).
		WithMetadata("tasks", fmt.Sprint(g.Size())))

	r.loop()
	r.finish()

	counts := r.report.Counts()
	log.Printf("🏁 [依赖引擎] 运行结束: runID=%s, status=%s, done=%d, up_to_date=%d, failed=%d, upstream_failed=%d, cancelled=%d, 耗时=%v",
		runID, r.report.Status(), counts[StateDone], counts[StateUpToDate], counts[StateFailed],
		counts[StateUpstreamFailed], counts[StateCancelled], r.report.Duration())
	finished := events.NewEvent(events.EventRunFinished, runID)
	finished.State = r.report.Status()
	finished.DurationMs = r.report.Duration().Milliseconds()
	e.publish(ctx, finished)

	if err := ctx.Err(); err != nil {
		return r.report, fmt.Errorf("运行被取消: %w", err)
	}
	return r.report, nil
}

// loop 协调循环：调度就绪任务，等待执行结果，直到没有在途任务
func (r *run) loop() {
	done := r.ctx.Done()
	for {
		r.dispatchReady()
		if r.inFlight == 0 {
			return
		}
		select {
		case ev := <-r.statusChan:
			r.inFlight--
			r.handleStatus(ev)
		case <-done:
			// 停止调度新任务，继续等待在途任务
			done = nil
			r.stop("context cancelled")
		}
	}
}

// dispatchReady 依次检查就绪任务的标记，已完成的跳过，其余提交执行
func (r *run) dispatchReady() {
	for !r.stopped && len(r.ready) > 0 {
		if r.ctx.Err() != nil {
			r.stop("context cancelled")
			return
		}
		sort.Strings(r.ready)
		key := r.ready[0]
		r.ready = r.ready[1:]

		tr, _ := r.report.Task(key)
		if tr.State != StatePending {
			continue
		}
		t := r.tasks[key]
		path := t.Output().Path

		exists, err := r.engine.store.Exists(path)
		if err != nil {
			r.fail(key, &task.Error{Kind: task.ErrMarkerIO, Op: "check marker", Path: path, Err: err})
			continue
		}
		if exists {
			now := time.Now()
			tr.State = StateUpToDate
			tr.StartedAt, tr.FinishedAt = now, now
			log.Printf("⏭️ [依赖引擎] 标记已存在，跳过: task=%s, marker=%s", tr.Name, path)
			r.emit(events.EventTaskSkipped, tr)
			r.complete(key)
			continue
		}

		tr.State = StateRunning
		tr.StartedAt = time.Now()
		r.emit(events.EventTaskStarted, tr)
		err = r.executor.SubmitTask(r.taskContext, &executor.PendingTask{
			Key:        key,
			Task:       t,
			MaxRetries: r.engine.opts.MaxRetries,
			StatusChan: r.statusChan,
		})
		if err != nil {
			r.fail(key, fmt.Errorf("提交任务失败: %w", err))
			continue
		}
		r.inFlight++
	}
}

// handleStatus 处理执行结果：成功时写入标记，失败时向下游传播
func (r *run) handleStatus(ev *executor.TaskStatusEvent) {
	tr, ok := r.report.Task(ev.TaskKey)
	if !ok {
		log.Printf("⚠️ [依赖引擎] 收到未知任务的状态: key=%s", ev.TaskKey)
		return
	}
	tr.Attempts = ev.Attempts
	tr.FinishedAt = ev.Timestamp

	if ev.Status != executor.StatusSuccess {
		r.fail(ev.TaskKey, ev.Error)
		return
	}

	tr.Processed = ev.Result.Processed
	tr.Loaded = ev.Result.Loaded
	tr.Summary = ev.Result.Summary

	// 标记只在任务成功后由协调者写入
	if err := r.engine.store.Write(tr.Marker, ev.Result.Marker); err != nil {
		r.fail(ev.TaskKey, &task.Error{Kind: task.ErrMarkerIO, Op: "write marker", Path: tr.Marker, Err: err})
		return
	}
	tr.State = StateDone
	log.Printf("✅ [依赖引擎] 任务完成: task=%s, %s", tr.Name, tr.Summary)
	r.emit(events.EventTaskSucceeded, tr)
	r.complete(ev.TaskKey)
}

// complete 任务完成后，上游全部完成的下游任务进入就绪队列
func (r *run) complete(key string) {
	children, err := r.graph.GetChildren(key)
	if err != nil {
		log.Printf("⚠️ [依赖引擎] 获取下游任务失败: key=%s, error=%v", key, err)
		return
	}
	for _, child := range children {
		r.waiting[child]--
		if r.waiting[child] == 0 {
			if tr, _ := r.report.Task(child); tr.State == StatePending {
				r.ready = append(r.ready, child)
			}
		}
	}
}

// fail 标记任务失败，并将所有传递下游标记为上游失败
func (r *run) fail(key string, cause error) {
	tr, _ := r.report.Task(key)
	tr.State = StateFailed
	tr.Err = cause
	if tr.FinishedAt.IsZero() {
		tr.FinishedAt = time.Now()
	}
	log.Printf("❌ [依赖引擎] 任务失败: task=%s, error=%v", tr.Name, cause)
	r.emit(events.EventTaskFailed, tr)

	descendants, err := r.graph.Descendants(key)
	if err != nil {
		log.Printf("⚠️ [依赖引擎] 获取传递下游失败: key=%s, error=%v", key, err)
	}
	for _, d := range descendants {
		dr, _ := r.report.Task(d)
		if dr.State != StatePending {
			continue
		}
		dr.State = StateUpstreamFailed
		dr.Err = fmt.Errorf("%w: %s", ErrUpstreamFailed, tr.Name)
		r.emit(events.EventTaskFailed, dr)
	}

	if r.engine.opts.FailFast {
		r.stop("fail fast after " + tr.Name)
	}
}

func (r *run) stop(reason string) {
	if r.stopped {
		return
	}
	r.stopped = true
	r.stopReason = reason
	log.Printf("🛑 [依赖引擎] 停止调度新任务: runID=%s, reason=%s", r.id, reason)
}

// finish 未调度的任务标记为取消
func (r *run) finish() {
	for _, tr := range r.report.Tasks {
		if tr.State != StatePending {
			continue
		}
		tr.State = StateCancelled
		if r.stopReason != "" {
			tr.Err = fmt.Errorf("%w: %s", ErrCancelled, r.stopReason)
		} else {
			tr.Err = ErrCancelled
		}
		r.emit(events.EventTaskCancelled, tr)
	}
	r.report.FinishedAt = time.Now()
}

func (r *run) emit(eventType events.EventType, tr *TaskReport) {
	ev := events.NewEvent(eventType, r.id).WithTask(tr.Key, tr.Name)
	ev.State = string(tr.State)
	ev.Processed = tr.Processed
	ev.Loaded = tr.Loaded
	ev.Attempts = tr.Attempts
	ev.DurationMs = tr.Duration().Milliseconds()
	if tr.Err != nil {
		ev.Error = tr.Err.Error()
	}
	ev.WithMetadata("kind", tr.Kind)
	r.engine.publish(r.ctx, ev)
}

func (e *Engine) publish(ctx context.Context, ev *events.Event) {
	if err := e.publisher.Publish(context.WithoutCancel(ctx), ev); err != nil {
		log.Printf("⚠️ [依赖引擎] 发布事件失败: type=%s, error=%v", ev.Type, err)
	}
}
