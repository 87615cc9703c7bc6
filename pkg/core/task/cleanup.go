package task

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/LENAX/dbf-pipeline/pkg/core/marker"
)

const (
	// StaticRunID 非强制清理时使用的固定运行标识，标记存在则后续运行跳过清理
	StaticRunID = "static_pipeline_clean"
	// RunIDLayout 强制清理时生成运行标识的时间格式
	RunIDLayout = "20060102150405"
)

// cleanupPatterns 清理时匹配的标记文件
var cleanupPatterns = []string{"*.ready", "*.done", "*_pipeline_cleaned_*.marker"}

// CleanupTask 删除根目录下的旧标记以强制重新执行（对外导出）
type CleanupTask struct {
	root  string
	runID string
	store marker.Store
	now   func() time.Time
}

// NewCleanupTask 创建清理任务
func NewCleanupTask(root, runID string, store marker.Store) *CleanupTask {
	if runID == "" {
		runID = StaticRunID
	}
	if store == nil {
		store = marker.NewFileStore()
	}
	return &CleanupTask{root: root, runID: runID, store: store, now: time.Now}
}

// CleanupRunID 计算清理任务的运行标识
// 强制清理时返回时间戳，保证每次都重新执行
func CleanupRunID(forceClean bool, now time.Time) string {
	if forceClean {
		return now.Format(RunIDLayout)
	}
	return StaticRunID
}

// Identity 实现Task接口
func (t *CleanupTask) Identity() Identity {
	return Identity{
		Kind: KindCleanup,
		Params: []Param{
			{Name: "root", Value: t.root},
			{Name: "run_id", Value: t.runID},
		},
	}
}

// Name 实现Task接口
func (t *CleanupTask) Name() string {
	return "cleanup " + t.runID
}

// RunID 运行标识
func (t *CleanupTask) RunID() string {
	return t.runID
}

// Requires 清理任务没有上游
func (t *CleanupTask) Requires() []Task {
	return nil
}

// Output <root>/_pipeline_cleaned_<run_id>.marker
func (t *CleanupTask) Output() marker.Target {
	return marker.NewTarget(filepath.Join(t.root, fmt.Sprintf("_pipeline_cleaned_%s.marker", t.runID)))
}

// Run 尽力删除匹配的标记文件，单个文件删除失败只记录日志
func (t *CleanupTask) Run(ctx context.Context) (Result, error) {
	self := filepath.Clean(t.Output().Path)
	removed := 0
	failed := 0

	for _, pattern := range cleanupPatterns {
		matches, err := t.store.Glob(filepath.Join(t.root, pattern))
		if err != nil {
			log.Printf("⚠️ [清理] 匹配失败: pattern=%s, error=%v", pattern, err)
			continue
		}
		for _, path := range matches {
			if filepath.Clean(path) == self {
				continue
			}
			if err := t.store.Remove(path); err != nil {
				failed++
				log.Printf("⚠️ [清理] 删除标记失败: path=%s, error=%v", path, err)
				continue
			}
			removed++
			log.Printf("🗑️ [清理] 已删除标记: %s", path)
		}
	}

	log.Printf("✅ [清理] 完成: root=%s, removed=%d, failed=%d", t.root, removed, failed)
	return Result{
		Marker:    []byte(fmt.Sprintf("Cleaned at %s", t.now().Format(time.ANSIC))),
		Processed: removed,
		Summary:   fmt.Sprintf("%d markers removed", removed),
	}, nil
}

// 确保实现接口
var _ Task = (*CleanupTask)(nil)
