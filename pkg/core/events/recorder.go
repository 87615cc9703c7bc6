package events

import (
	"context"
	"sort"
	"sync"
)

const defaultRecorderRuns = 20

// Recorder 订阅事件总线，按运行ID保留最近若干次运行的事件（对外导出）
type Recorder struct {
	mu      sync.RWMutex
	maxRuns int
	order   []string
	byRun   map[string][]Event
	done    chan struct{}
}

// NewRecorder 创建事件记录器，maxRuns<=0 时保留最近20次运行
func NewRecorder(maxRuns int) *Recorder {
	if maxRuns <= 0 {
		maxRuns = defaultRecorderRuns
	}
	return &Recorder{
		maxRuns: maxRuns,
		byRun:   make(map[string][]Event),
		done:    make(chan struct{}),
	}
}

// Attach 订阅总线并在后台记录，ctx 结束后停止
func (r *Recorder) Attach(ctx context.Context, bus *Bus) error {
	ch, err := bus.Subscribe(ctx)
	if err != nil {
		return err
	}
	go func() {
		defer close(r.done)
		for event := range ch {
			r.Record(event)
		}
	}()
	return nil
}

// Done 后台记录结束后关闭
func (r *Recorder) Done() <-chan struct{} {
	return r.done
}

// Record 记录一条事件
func (r *Recorder) Record(event *Event) {
	if event == nil || event.RunID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byRun[event.RunID]; !ok {
		r.order = append(r.order, event.RunID)
		for len(r.order) > r.maxRuns {
			evicted := r.order[0]
			r.order = r.order[1:]
			delete(r.byRun, evicted)
		}
	}
	r.byRun[event.RunID] = append(r.byRun[event.RunID], *event)
}

// Events 返回某次运行的事件，按时间排序
func (r *Recorder) Events(runID string) []Event {
	r.mu.RLock()
	recorded := r.byRun[runID]
	out := make([]Event, len(recorded))
	copy(out, recorded)
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// Publish 直接记录事件，便于在没有总线时使用（实现Publisher接口）
func (r *Recorder) Publish(_ context.Context, event *Event) error {
	r.Record(event)
	return nil
}

var _ Publisher = (*Recorder)(nil)
