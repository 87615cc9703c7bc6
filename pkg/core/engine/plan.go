package engine

import (
	"context"
	"fmt"

	"github.com/LENAX/dbf-pipeline/pkg/core/dag"
)

// PlanEntry 单个任务的计划状态
type PlanEntry struct {
	Key      string   `json:"key"`
	Name     string   `json:"name"`
	Kind     string   `json:"kind"`
	Marker   string   `json:"marker"`
	Complete bool     `json:"complete"`
	Requires []string `json:"requires,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// Plan 按拓扑顺序报告每个任务的标记状态，不执行任何任务（对外导出）
// 只反映当前标记；清理任务执行后才会删除的标记在这里仍显示为已完成
func (e *Engine) Plan(ctx context.Context, g dag.DAG) ([]PlanEntry, error) {
	if g == nil {
		return nil, fmt.Errorf("依赖图不能为空")
	}
	order, err := g.TopologicalSort()
	if err != nil {
		return nil, fmt.Errorf("拓扑排序失败: %w", err)
	}

	keys := order.Flatten()
	entries := make([]PlanEntry, 0, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return entries, err
		}
		t, err := g.GetTask(key)
		if err != nil {
			return nil, err
		}
		parents, err := g.GetParents(key)
		if err != nil {
			return nil, err
		}
		entry := PlanEntry{
			Key:      key,
			Name:     t.Name(),
			Kind:     string(t.Identity().Kind),
			Marker:   t.Output().Path,
			Requires: parents,
		}
		exists, err := e.store.Exists(entry.Marker)
		if err != nil {
			entry.Error = err.Error()
		}
		entry.Complete = exists
		entries = append(entries, entry)
	}
	return entries, nil
}
