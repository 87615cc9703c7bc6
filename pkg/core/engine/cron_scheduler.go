package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser 秒级精度的 Cron 解析器，与调度器保持一致
var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateCronExpr 校验 Cron 表达式（六段，含秒，支持 @every 等描述符）
func ValidateCronExpr(expr string) error {
	if expr == "" {
		return fmt.Errorf("Cron表达式不能为空")
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("Cron表达式无效: %w", err)
	}
	return nil
}

// JobFunc 定时触发的作业
type JobFunc func(ctx context.Context) error

// cronJob 已注册的作业
type cronJob struct {
	name    string
	expr    string
	entryID cron.EntryID
	running atomic.Bool
}

// CronScheduler 定时调度器（对外导出）
// 同一作业上一次触发尚未结束时，本次触发直接跳过
type CronScheduler struct {
	cron   *cron.Cron
	jobs   map[string]*cronJob
	mu     sync.RWMutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewCronScheduler 创建定时调度器（对外导出）
func NewCronScheduler() *CronScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &CronScheduler{
		cron:   cron.New(cron.WithSeconds()), // 支持秒级精度
		jobs:   make(map[string]*cronJob),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Register 注册定时作业（对外导出）
func (cs *CronScheduler) Register(name, expr string, fn JobFunc) error {
	if name == "" {
		return fmt.Errorf("作业名称不能为空")
	}
	if fn == nil {
		return fmt.Errorf("作业函数不能为空")
	}
	if err := ValidateCronExpr(expr); err != nil {
		return fmt.Errorf("作业 %s: %w", name, err)
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	if _, exists := cs.jobs[name]; exists {
		return fmt.Errorf("作业 %s 已注册到定时调度器", name)
	}

	job := &cronJob{name: name, expr: expr}
	entryID, err := cs.cron.AddFunc(expr, func() {
		cs.trigger(job, fn)
	})
	if err != nil {
		return fmt.Errorf("添加Cron任务失败: %w", err)
	}
	job.entryID = entryID
	cs.jobs[name] = job

	log.Printf("✅ [Cron调度器] 已注册作业: Name=%s, CronExpr=%s", name, expr)
	return nil
}

// Unregister 取消注册作业（对外导出）
func (cs *CronScheduler) Unregister(name string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	job, exists := cs.jobs[name]
	if !exists {
		return fmt.Errorf("作业 %s 未注册到定时调度器", name)
	}
	cs.cron.Remove(job.entryID)
	delete(cs.jobs, name)

	log.Printf("✅ [Cron调度器] 已取消注册作业: Name=%s", name)
	return nil
}

// trigger 触发作业执行
func (cs *CronScheduler) trigger(job *cronJob, fn JobFunc) {
	if !job.running.CompareAndSwap(false, true) {
		log.Printf("⏳ [Cron调度器] 上一次执行尚未结束，跳过本次触发: Name=%s", job.name)
		return
	}
	cs.wg.Add(1)
	defer func() {
		job.running.Store(false)
		cs.wg.Done()
	}()

	log.Printf("🕐 [Cron调度器] 触发作业执行: Name=%s", job.name)
	start := time.Now()
	if err := fn(cs.ctx); err != nil {
		log.Printf("❌ [Cron调度器] 作业执行失败: Name=%s, 耗时=%v, Error=%v", job.name, time.Since(start), err)
		return
	}
	log.Printf("✅ [Cron调度器] 作业执行完成: Name=%s, 耗时=%v", job.name, time.Since(start))
}

// Start 启动定时调度器（对外导出）
func (cs *CronScheduler) Start() {
	cs.cron.Start()
	log.Println("✅ [Cron调度器] 已启动")
}

// Stop 停止定时调度器，等待正在执行的作业结束（对外导出）
func (cs *CronScheduler) Stop() {
	stopped := cs.cron.Stop()
	cs.cancel()
	<-stopped.Done()
	cs.wg.Wait()
	log.Println("✅ [Cron调度器] 已停止")
}

// Next 作业的下一次触发时间
func (cs *CronScheduler) Next(name string) (time.Time, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	job, ok := cs.jobs[name]
	if !ok {
		return time.Time{}, false
	}
	return cs.cron.Entry(job.entryID).Next, true
}

// GetRegisteredJobs 已注册的作业名称（对外导出）
func (cs *CronScheduler) GetRegisteredJobs() []string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	names := make([]string, 0, len(cs.jobs))
	for name := range cs.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
