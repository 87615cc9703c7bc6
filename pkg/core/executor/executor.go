package executor

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/LENAX/dbf-pipeline/pkg/core/task"
)

const (
	maxGlobalWorkers    = 1000 // 全局最大并发数上限
	defaultQueueSize    = 1024 // 默认任务队列大小
	defaultRetryBackoff = time.Second
)

// Executor 执行器核心结构体（对外导出）
type Executor struct {
	mu           sync.RWMutex
	maxWorkers   int           // 全局最大并发数
	workerPool   chan struct{} // 全局Worker池
	taskQueue    chan job      // 待调度任务队列
	retryBackoff time.Duration // 首次重试间隔，之后每次翻倍
	wg           sync.WaitGroup
	running      bool
	shutdown     chan struct{}
	closeOnce    sync.Once
}

// Option 执行器可选项
type Option func(*Executor)

// WithRetryBackoff 设置首次重试间隔（1x、2x、4x...）
func WithRetryBackoff(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.retryBackoff = d
		}
	}
}

// NewExecutor 创建执行器实例（对外导出，engine包会调用）
func NewExecutor(maxWorkers int, opts ...Option) (*Executor, error) {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if maxWorkers > maxGlobalWorkers {
		return nil, fmt.Errorf("最大并发数不能超过 %d", maxGlobalWorkers)
	}

	exec := &Executor{
		maxWorkers:   maxWorkers,
		workerPool:   make(chan struct{}, maxWorkers),
		taskQueue:    make(chan job, defaultQueueSize),
		retryBackoff: defaultRetryBackoff,
		shutdown:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(exec)
	}

	// 启动任务调度器
	go exec.scheduler()

	return exec, nil
}

// MaxWorkers 全局最大并发数
func (e *Executor) MaxWorkers() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.maxWorkers
}

// Start 启动执行器（对外导出）
func (e *Executor) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.running = true
	log.Printf("✅ [执行器] 已启动: workers=%d", e.maxWorkers)
}

// Shutdown 关闭执行器，等待已分配的任务完成（最多30秒）
func (e *Executor) Shutdown() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	e.closeOnce.Do(func() { close(e.shutdown) })
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("✅ [执行器] 所有任务已完成，执行器已关闭")
		return nil
	case <-ctx.Done():
		log.Println("⚠️ [执行器] 关闭超时，仍有任务在执行")
		return fmt.Errorf("执行器关闭超时")
	}
}

// SubmitTask 将待调度任务提交至任务队列（对外导出）
// 队列已满时阻塞，直到有空间或执行器关闭
func (e *Executor) SubmitTask(ctx context.Context, pendingTask *PendingTask) error {
	if pendingTask == nil {
		return fmt.Errorf("任务不能为空")
	}
	if pendingTask.Task == nil {
		return fmt.Errorf("Task实例不能为空")
	}

	e.mu.RLock()
	running := e.running
	e.mu.RUnlock()
	if !running {
		return fmt.Errorf("执行器未运行")
	}

	select {
	case e.taskQueue <- job{ctx: ctx, pending: pendingTask}:
		return nil
	case <-e.shutdown:
		return fmt.Errorf("执行器已关闭")
	}
}

// scheduler 任务调度器
func (e *Executor) scheduler() {
	for {
		select {
		case j := <-e.taskQueue:
			e.dispatchTask(j)
		case <-e.shutdown:
			return
		}
	}
}

// dispatchTask 获取Worker令牌后分配任务，池满时阻塞等待
func (e *Executor) dispatchTask(j job) {
	select {
	case e.workerPool <- struct{}{}:
		e.wg.Add(1)
		go e.executeTask(j)
	case <-e.shutdown:
		now := time.Now()
		e.sendStatusEvent(j.pending, &TaskStatusEvent{
			TaskKey:   j.pending.Key,
			Status:    StatusFailed,
			Error:     fmt.Errorf("执行器已关闭"),
			StartedAt: now,
			Timestamp: now,
		})
	}
}

// executeTask 执行任务，失败时按指数退避重试
func (e *Executor) executeTask(j job) {
	defer func() {
		<-e.workerPool
		e.wg.Done()
	}()

	p := j.pending
	t := p.Task
	startTime := time.Now()

	for {
		log.Printf("🚀 [开始执行任务] Key=%s, Name=%s, 第%d次尝试", p.Key, t.Name(), p.RetryCount+1)
		result, err := e.runOnce(j)
		duration := time.Since(startTime).Milliseconds()

		if err == nil {
			log.Printf("✅ [任务执行成功] Name=%s, 耗时=%dms, 结果=%s", t.Name(), duration, result.Summary)
			e.sendStatusEvent(p, &TaskStatusEvent{
				TaskKey:   p.Key,
				Status:    StatusSuccess,
				Result:    result,
				Attempts:  p.RetryCount + 1,
				StartedAt: startTime,
				Timestamp: time.Now(),
				Duration:  duration,
			})
			return
		}

		log.Printf("❌ [任务执行失败] Name=%s, 耗时=%dms, 错误=%v", t.Name(), duration, err)
		if p.RetryCount >= p.MaxRetries || !e.waitRetry(p) {
			e.sendStatusEvent(p, &TaskStatusEvent{
				TaskKey:   p.Key,
				Status:    StatusFailed,
				Error:     err,
				Attempts:  p.RetryCount + 1,
				StartedAt: startTime,
				Timestamp: time.Now(),
				Duration:  duration,
			})
			return
		}
		p.RetryCount++
	}
}

// waitRetry 等待重试间隔，执行器关闭时返回false
func (e *Executor) waitRetry(p *PendingTask) bool {
	retryDelay := e.retryBackoff * time.Duration(1<<uint(p.RetryCount))
	log.Printf("🔄 [准备重试] Name=%s, 当前重试次数=%d, 延迟=%v", p.Task.Name(), p.RetryCount, retryDelay)
	timer := time.NewTimer(retryDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-e.shutdown:
		return false
	}
}

// runOnce 执行一次任务，panic 转为错误
func (e *Executor) runOnce(j job) (result task.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("💥 [任务panic] Name=%s, panic=%v\n%s", j.pending.Task.Name(), r, debug.Stack())
			err = fmt.Errorf("任务panic: %v", r)
		}
	}()
	ctx := j.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return j.pending.Task.Run(ctx)
}

// sendStatusEvent 发送任务状态事件
// 接收方按任务数分配 channel 容量，执行器关闭时放弃发送
func (e *Executor) sendStatusEvent(p *PendingTask, event *TaskStatusEvent) {
	if p.StatusChan == nil {
		return
	}
	select {
	case p.StatusChan <- event:
	case <-e.shutdown:
		log.Printf("⚠️ [执行器] 已关闭，状态事件丢弃: Key=%s", event.TaskKey)
	}
}
