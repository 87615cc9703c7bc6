// Package dag 将目标任务及其上游展开为按规范键去重的依赖图
package dag

import (
	"crypto/sha256"

	"github.com/LENAX/dbf-pipeline/pkg/core/task"
	"github.com/begmaroman/go-dag"
)

// Node DAG节点，包装一个任务（对外导出）
// ID 为任务规范键
type Node struct {
	key  string
	Task task.Task
}

// ID 实现 go-dag 的 Identifiable 接口
func (n *Node) ID() string {
	return n.key
}

// Hash 实现 go-dag 的 Hashable 接口，按规范键计算顶点哈希
// 任务字段均未导出，默认的JSON哈希会让所有节点冲突
func (n *Node) Hash() (dag.VHash, error) {
	return sha256.Sum256([]byte(n.key)), nil
}

// TopologicalOrder 拓扑排序结果（对外导出）
// 同一层内的任务互不依赖，可以并行执行
type TopologicalOrder struct {
	Levels [][]string
}

// Flatten 按层展开为单一序列
func (o *TopologicalOrder) Flatten() []string {
	out := make([]string, 0)
	for _, level := range o.Levels {
		out = append(out, level...)
	}
	return out
}

// DAG 任务依赖图接口（对外导出）
type DAG interface {
	// AddTask 添加任务，规范键已存在时返回已有节点的键
	AddTask(t task.Task) (string, error)
	// AddDependency 添加依赖边：parent 完成后 child 才能执行
	AddDependency(parentKey, childKey string) error
	// GetTask 按规范键获取任务
	GetTask(key string) (task.Task, error)
	// GetParents 上游任务键，已排序
	GetParents(key string) ([]string, error)
	// GetChildren 下游任务键，已排序
	GetChildren(key string) ([]string, error)
	// GetRoots 没有上游的任务键，已排序
	GetRoots() []string
	// Keys 全部任务键，已排序
	Keys() []string
	// Descendants 传递下游任务键，已排序
	Descendants(key string) ([]string, error)
	// TopologicalSort Kahn 分层拓扑排序
	TopologicalSort() (*TopologicalOrder, error)
	// Size 节点数量
	Size() int
}

// BuildOptions DAG构建选项
type BuildOptions struct {
	// Gate 闸门任务，所有没有上游的任务都依赖它
	Gate task.Task
	// SkipCycleCheck 跳过构建前的循环检测（go-dag 添加边时仍会检查）
	SkipCycleCheck bool
}
