// Package pipeline 根据配置声明清理任务和每张表的加载任务，构建依赖图并交给引擎执行
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	internalstorage "github.com/LENAX/dbf-pipeline/internal/storage"
	"github.com/LENAX/dbf-pipeline/pkg/config"
	"github.com/LENAX/dbf-pipeline/pkg/core/dag"
	"github.com/LENAX/dbf-pipeline/pkg/core/engine"
	"github.com/LENAX/dbf-pipeline/pkg/core/events"
	"github.com/LENAX/dbf-pipeline/pkg/core/marker"
	"github.com/LENAX/dbf-pipeline/pkg/core/task"
	"github.com/LENAX/dbf-pipeline/pkg/dbf"
	"github.com/LENAX/dbf-pipeline/pkg/storage"
)

// ErrRunInProgress 同一时刻只允许一次运行，避免两个运行同时写同一个标记
var ErrRunInProgress = errors.New("pipeline run already in progress")

// 运行触发来源
const (
	TriggerCLI  = "cli"
	TriggerAPI  = "api"
	TriggerCron = "cron"
)

// historySaveTimeout 保存运行历史的超时
const historySaveTimeout = 10 * time.Second

// RunOptions 单次运行参数
type RunOptions struct {
	// RunID 为空时自动生成UUID
	RunID string
	// ForceClean 使用新的清理运行标识，删除全部旧标记后重新加载
	ForceClean bool
	// Trigger cli/api/cron
	Trigger string
}

// Pipeline 流水线编排器（对外导出）
type Pipeline struct {
	cfg       *config.Config
	tables    []TableSpec
	store     marker.Store
	connector storage.Connector
	opener    dbf.Opener
	history   storage.RunRepository
	publisher events.Publisher
	now       func() time.Time

	mu      sync.Mutex
	running atomic.Bool
}

// Option 编排器可选项
type Option func(*Pipeline)

// WithTables 覆盖配置中的表定义
func WithTables(tables []TableSpec) Option {
	return func(p *Pipeline) {
		p.tables = tables
	}
}

// WithMarkerStore 指定标记存储
func WithMarkerStore(store marker.Store) Option {
	return func(p *Pipeline) {
		if store != nil {
			p.store = store
		}
	}
}

// WithConnector 指定目标库连接工厂
func WithConnector(connector storage.Connector) Option {
	return func(p *Pipeline) {
		if connector != nil {
			p.connector = connector
		}
	}
}

// WithOpener 指定源记录工厂
func WithOpener(opener dbf.Opener) Option {
	return func(p *Pipeline) {
		if opener != nil {
			p.opener = opener
		}
	}
}

// WithHistory 启用运行历史记录
func WithHistory(repo storage.RunRepository) Option {
	return func(p *Pipeline) {
		p.history = repo
	}
}

// WithPublisher 设置生命周期事件发布者
func WithPublisher(publisher events.Publisher) Option {
	return func(p *Pipeline) {
		if publisher != nil {
			p.publisher = publisher
		}
	}
}

// WithClock 指定时钟
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// New 创建流水线编排器
// 配置中未声明 tables 时使用内置表注册表
func New(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置校验失败: %w", err)
	}

	p := &Pipeline{
		cfg:       cfg,
		store:     marker.NewFileStore(),
		connector: internalstorage.NewConnector(),
		opener:    dbf.FileOpener{},
		publisher: events.NopPublisher{},
		now:       time.Now,
	}
	if len(cfg.Pipeline.Tables) > 0 {
		p.tables = FromConfig(cfg.Pipeline.Tables)
	} else {
		p.tables = DefaultTables()
	}
	for _, opt := range opts {
		opt(p)
	}

	if len(p.tables) == 0 {
		return nil, fmt.Errorf("没有需要加载的表")
	}
	if err := config.ValidateTables(ToConfig(p.tables)); err != nil {
		return nil, fmt.Errorf("表定义校验失败: %w", err)
	}
	return p, nil
}

// Config 当前配置
func (p *Pipeline) Config() *config.Config {
	return p.cfg
}

// Tables 当前表定义
func (p *Pipeline) Tables() []TableSpec {
	return append([]TableSpec(nil), p.tables...)
}

// History 运行历史存储，未启用时为nil
func (p *Pipeline) History() storage.RunRepository {
	return p.history
}

// Tasks 声明清理任务和每张表的加载任务
func (p *Pipeline) Tasks(forceClean bool) (*task.CleanupTask, []task.Task) {
	pc := p.cfg.Pipeline
	cleanup := task.NewCleanupTask(pc.Source.DBFFolder, task.CleanupRunID(forceClean, p.now()), p.store)

	loads := make([]task.Task, 0, len(p.tables))
	for _, spec := range p.tables {
		source := task.SourceParams{
			Path:         filepath.Join(pc.Source.DBFFolder, spec.DBFName),
			Encoding:     pc.Source.Encoding,
			DecodeErrors: dbf.DecodePolicy(pc.Source.DecodeErrors),
		}
		load := task.NewBulkLoadTask(task.LoadSpec{
			Table:    spec.Name,
			Columns:  spec.Columns,
			FieldMap: spec.FieldMap,
			Truncate: spec.ShouldTruncate(),
			Filter:   spec.Filter,
		}, source, pc.Destination, p.connector,
			task.WithOpener(p.opener),
			task.WithClock(p.now),
		)
		loads = append(loads, load)
	}
	return cleanup, loads
}

// Build 构建依赖图：清理任务位于所有抽取任务之前
func (p *Pipeline) Build(forceClean bool) (dag.DAG, error) {
	cleanup, loads := p.Tasks(forceClean)
	g, err := dag.Build(loads, dag.BuildOptions{Gate: cleanup})
	if err != nil {
		return nil, fmt.Errorf("构建依赖图失败: %w", err)
	}
	return g, nil
}

func (p *Pipeline) forceClean(opts RunOptions) bool {
	return opts.ForceClean || p.cfg.Pipeline.Execution.ForceClean
}

func (p *Pipeline) newEngine() *engine.Engine {
	ec := p.cfg.Pipeline.Execution
	return engine.New(p.store, engine.Options{
		Workers:      ec.Workers,
		FailFast:     ec.FailFast,
		MaxRetries:   p.cfg.MaxRetries(),
		RetryBackoff: ec.Retry.Delay,
	}, engine.WithPublisher(p.publisher))
}

// Run 构建依赖图并同步执行，返回运行报告
// 任务失败只体现在报告中；返回的error表示运行本身无法完成（建图失败、上下文取消）
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (*engine.Report, error) {
	if !p.acquire() {
		return nil, ErrRunInProgress
	}
	defer p.release()
	return p.execute(ctx, opts)
}

// Start 异步执行一次运行，立即返回运行ID
// 依赖图在返回前构建，构建失败直接返回错误
func (p *Pipeline) Start(ctx context.Context, opts RunOptions) (string, error) {
	if !p.acquire() {
		return "", ErrRunInProgress
	}
	opts = p.normalize(opts)
	force := p.forceClean(opts)
	g, err := p.Build(force)
	if err != nil {
		p.release()
		return "", err
	}

	go func() {
		defer p.release()
		if _, err := p.runGraph(ctx, opts, force, g); err != nil {
			log.Printf("❌ [流水线] 异步运行失败: run_id=%s, error=%v", opts.RunID, err)
		}
	}()
	return opts.RunID, nil
}

// Wait 阻塞直到当前运行结束
func (p *Pipeline) Wait() {
	p.mu.Lock()
	defer p.mu.Unlock()
}

func (p *Pipeline) acquire() bool {
	if !p.mu.TryLock() {
		return false
	}
	p.running.Store(true)
	return true
}

func (p *Pipeline) release() {
	p.running.Store(false)
	p.mu.Unlock()
}

// Status 流水线当前状态（对外导出）
type Status struct {
	Running         bool
	DBFFolder       string
	SourceReachable bool
	Tables          int
	Destination     string
}

// Status 返回是否有运行在进行、源目录是否可访问
func (p *Pipeline) Status() Status {
	folder := p.cfg.Pipeline.Source.DBFFolder
	info, err := os.Stat(folder)
	return Status{
		Running:         p.running.Load(),
		DBFFolder:       folder,
		SourceReachable: err == nil && info.IsDir(),
		Tables:          len(p.tables),
		Destination:     p.cfg.Pipeline.Destination.String(),
	}
}

func (p *Pipeline) normalize(opts RunOptions) RunOptions {
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Trigger == "" {
		opts.Trigger = TriggerCLI
	}
	return opts
}

func (p *Pipeline) execute(ctx context.Context, opts RunOptions) (*engine.Report, error) {
	opts = p.normalize(opts)
	force := p.forceClean(opts)
	g, err := p.Build(force)
	if err != nil {
		return nil, err
	}
	return p.runGraph(ctx, opts, force, g)
}

func (p *Pipeline) runGraph(ctx context.Context, opts RunOptions, force bool, g dag.DAG) (*engine.Report, error) {
	log.Printf("🚀 [流水线] 开始运行: run_id=%s, trigger=%s, tables=%d, force_clean=%v, dbf_folder=%s",
		opts.RunID, opts.Trigger, len(p.tables), force, p.cfg.Pipeline.Source.DBFFolder)

	report, runErr := p.newEngine().Run(ctx, opts.RunID, g)
	if report != nil {
		p.saveHistory(ctx, report, opts, force, runErr)
	}
	return report, runErr
}

// Plan 报告每个任务当前的标记状态，不执行
func (p *Pipeline) Plan(ctx context.Context, forceClean bool) ([]engine.PlanEntry, error) {
	g, err := p.Build(forceClean || p.cfg.Pipeline.Execution.ForceClean)
	if err != nil {
		return nil, err
	}
	return p.newEngine().Plan(ctx, g)
}

// Clean 只执行一次强制清理，删除根目录下的全部标记
func (p *Pipeline) Clean(ctx context.Context) (*engine.Report, error) {
	if !p.acquire() {
		return nil, ErrRunInProgress
	}
	defer p.release()

	cleanup := task.NewCleanupTask(p.cfg.Pipeline.Source.DBFFolder, task.CleanupRunID(true, p.now()), p.store)
	g, err := dag.Build(nil, dag.BuildOptions{Gate: cleanup})
	if err != nil {
		return nil, fmt.Errorf("构建依赖图失败: %w", err)
	}
	return p.newEngine().Run(ctx, uuid.NewString(), g)
}

func (p *Pipeline) saveHistory(ctx context.Context, report *engine.Report, opts RunOptions, force bool, runErr error) {
	if p.history == nil {
		return
	}
	record := NewRunRecord(report, opts.Trigger, force, runErr)

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historySaveTimeout)
	defer cancel()
	if err := p.history.SaveRun(saveCtx, record); err != nil {
		log.Printf("⚠️ [流水线] 保存运行历史失败: run_id=%s, error=%v", report.RunID, err)
	}
}

// NewRunRecord 将运行报告转换为历史记录
func NewRunRecord(report *engine.Report, trigger string, forceClean bool, runErr error) *storage.RunRecord {
	record := &storage.RunRecord{
		ID:         report.RunID,
		Trigger:    trigger,
		ForceClean: forceClean,
		Status:     report.Status(),
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
	}
	if err := errors.Join(runErr, report.Err()); err != nil {
		record.Error = err.Error()
	}
	for _, tr := range report.Tasks {
		rec := storage.TaskRecord{
			Key:        tr.Key,
			Kind:       tr.Kind,
			Name:       tr.Name,
			State:      string(tr.State),
			Attempts:   tr.Attempts,
			Processed:  tr.Processed,
			Loaded:     tr.Loaded,
			Marker:     tr.Marker,
			StartedAt:  tr.StartedAt,
			FinishedAt: tr.FinishedAt,
			Duration:   tr.Duration(),
		}
		if tr.Err != nil {
			rec.Error = tr.Err.Error()
		}
		record.Tasks = append(record.Tasks, rec)
	}
	return record
}
