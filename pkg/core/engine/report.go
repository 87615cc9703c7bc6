package engine

import (
	"errors"
	"fmt"
	"time"
)

// State 任务在一次运行中的状态
type State string

const (
	StatePending        State = "PENDING"         // 等待上游
	StateRunning        State = "RUNNING"         // 已提交执行
	StateDone           State = "DONE"            // 本次执行成功并写入标记
	StateUpToDate       State = "UP_TO_DATE"      // 标记已存在，跳过
	StateFailed         State = "FAILED"          // 执行失败或标记读写失败
	StateUpstreamFailed State = "UPSTREAM_FAILED" // 上游失败，未执行
	StateCancelled      State = "CANCELLED"       // 快速失败或取消，未调度
)

// Terminal 是否为终态
func (s State) Terminal() bool {
	switch s {
	case StatePending, StateRunning:
		return false
	default:
		return true
	}
}

// Complete 是否视为已完成（下游可以执行）
func (s State) Complete() bool {
	return s == StateDone || s == StateUpToDate
}

var (
	// ErrUpstreamFailed 上游任务失败导致未执行
	ErrUpstreamFailed = errors.New("upstream task failed")
	// ErrCancelled 任务未被调度
	ErrCancelled = errors.New("task cancelled")
)

// TaskReport 单个任务的执行结果（对外导出）
type TaskReport struct {
	Key        string
	Name       string
	Kind       string
	Marker     string
	State      State
	Attempts   int
	Processed  int
	Loaded     int
	Summary    string
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration 执行耗时
func (t *TaskReport) Duration() time.Duration {
	if t.StartedAt.IsZero() || t.FinishedAt.IsZero() {
		return 0
	}
	return t.FinishedAt.Sub(t.StartedAt)
}

// Report 一次运行的汇总报告（对外导出）
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	// Tasks 按拓扑顺序排列
	Tasks []*TaskReport
	index map[string]*TaskReport
}

func newReport(runID string) *Report {
	return &Report{
		RunID:     runID,
		StartedAt: time.Now(),
		index:     make(map[string]*TaskReport),
	}
}

func (r *Report) add(t *TaskReport) {
	r.Tasks = append(r.Tasks, t)
	r.index[t.Key] = t
}

// Task 按规范键查找任务结果
func (r *Report) Task(key string) (*TaskReport, bool) {
	t, ok := r.index[key]
	return t, ok
}

// Counts 各状态任务数
func (r *Report) Counts() map[State]int {
	counts := make(map[State]int)
	for _, t := range r.Tasks {
		counts[t.State]++
	}
	return counts
}

// Failed 执行失败的任务（不含上游失败和取消）
func (r *Report) Failed() []*TaskReport {
	var out []*TaskReport
	for _, t := range r.Tasks {
		if t.State == StateFailed {
			out = append(out, t)
		}
	}
	return out
}

// Succeeded 所有任务均为 DONE 或 UP_TO_DATE
func (r *Report) Succeeded() bool {
	for _, t := range r.Tasks {
		if !t.State.Complete() {
			return false
		}
	}
	return true
}

// Err 汇总失败任务的错误，全部成功时返回nil
func (r *Report) Err() error {
	var errs []error
	for _, t := range r.Tasks {
		if t.State.Complete() {
			continue
		}
		if t.State == StateFailed {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, t.Err))
		}
	}
	if len(errs) == 0 && !r.Succeeded() {
		return ErrCancelled
	}
	return errors.Join(errs...)
}

// Duration 运行耗时
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Status 运行整体状态
func (r *Report) Status() string {
	switch {
	case r.Succeeded():
		return "SUCCESS"
	case len(r.Failed()) > 0:
		return "FAILED"
	default:
		return "CANCELLED"
	}
}
