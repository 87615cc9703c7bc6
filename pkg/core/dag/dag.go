package dag

import (
	"fmt"
	"sort"

	"github.com/LENAX/dbf-pipeline/pkg/core/task"
	"github.com/begmaroman/go-dag"
)

// taskDAG 基于 go-dag 的 DAG 实现
type taskDAG struct {
	d *dag.DAG[*Node]
}

// New 创建空的任务DAG（对外导出）
func New() DAG {
	return &taskDAG{d: dag.NewDAG[*Node]()}
}

// Build 从目标任务出发递归展开 Requires，构建依赖图（对外导出）
// 规范键相同的任务合并为同一节点；设置 Gate 时，闸门任务成为所有根任务的上游
func Build(targets []task.Task, options BuildOptions) (DAG, error) {
	// 1. 展开任务，按规范键去重
	tasks := make(map[string]task.Task)
	edges := make(map[string]map[string]struct{}) // parent -> children

	var visit func(t task.Task) string
	visit = func(t task.Task) string {
		key := task.Key(t)
		if _, seen := tasks[key]; seen {
			return key
		}
		tasks[key] = t
		if _, ok := edges[key]; !ok {
			edges[key] = make(map[string]struct{})
		}
		for _, req := range t.Requires() {
			parentKey := visit(req)
			if _, ok := edges[parentKey]; !ok {
				edges[parentKey] = make(map[string]struct{})
			}
			edges[parentKey][key] = struct{}{}
		}
		return key
	}
	for _, t := range targets {
		if t == nil {
			return nil, fmt.Errorf("目标任务不能为空")
		}
		visit(t)
	}

	// 2. 闸门任务：连接到所有没有上游的节点
	if options.Gate != nil {
		gateKey := task.Key(options.Gate)
		if _, exists := tasks[gateKey]; !exists {
			hasParent := make(map[string]bool, len(tasks))
			for _, children := range edges {
				for child := range children {
					hasParent[child] = true
				}
			}
			gateEdges := make(map[string]struct{})
			for key := range tasks {
				if !hasParent[key] {
					gateEdges[key] = struct{}{}
				}
			}
			tasks[gateKey] = options.Gate
			edges[gateKey] = gateEdges
		}
	}

	// 3. 构建邻接表并一次性检测循环
	graph := make(map[string][]string, len(tasks))
	for parent, children := range edges {
		graph[parent] = sortedKeys(children)
	}
	if !options.SkipCycleCheck {
		if hasCycle, cyclePath := detectCycleDFS(graph); hasCycle {
			return nil, fmt.Errorf("检测到循环依赖: %v", cyclePath)
		}
	}

	// 4. 写入 go-dag
	result := &taskDAG{d: dag.NewDAG[*Node]()}
	keys := make([]string, 0, len(tasks))
	for key := range tasks {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if _, err := result.d.AddVertex(&Node{key: key, Task: tasks[key]}); err != nil {
			return nil, fmt.Errorf("添加节点失败: key=%s, error=%w", key, err)
		}
	}
	for _, parent := range keys {
		for _, child := range graph[parent] {
			if err := result.d.AddEdge(parent, child); err != nil {
				return nil, fmt.Errorf("添加边失败: %s -> %s, error=%w", parent, child, err)
			}
		}
	}

	return result, nil
}

// detectCycleDFS 三色标记法检测循环，返回循环路径
// graph: 邻接表，key 是节点键，value 是该节点的子节点键
func detectCycleDFS(graph map[string][]string) (bool, []string) {
	// 0=未访问，1=访问中，2=已完成
	color := make(map[string]int, len(graph))
	parent := make(map[string]string)
	var cyclePath []string

	var dfs func(nodeID string) bool
	dfs = func(nodeID string) bool {
		color[nodeID] = 1
		for _, childID := range graph[nodeID] {
			switch color[childID] {
			case 0:
				parent[childID] = nodeID
				if dfs(childID) {
					return true
				}
			case 1:
				// 后向边
				cyclePath = append(cyclePath, childID)
				for cur := nodeID; cur != childID && cur != ""; cur = parent[cur] {
					cyclePath = append(cyclePath, cur)
				}
				cyclePath = append(cyclePath, childID)
				return true
			}
		}
		color[nodeID] = 2
		return false
	}

	nodes := make([]string, 0, len(graph))
	for nodeID := range graph {
		nodes = append(nodes, nodeID)
	}
	sort.Strings(nodes)
	for _, nodeID := range nodes {
		if color[nodeID] == 0 && dfs(nodeID) {
			return true, cyclePath
		}
	}
	return false, nil
}

// AddTask 实现DAG接口
func (g *taskDAG) AddTask(t task.Task) (string, error) {
	if t == nil {
		return "", fmt.Errorf("任务不能为空")
	}
	key := task.Key(t)
	if _, err := g.d.GetVertex(key); err == nil {
		return key, nil
	}
	if _, err := g.d.AddVertex(&Node{key: key, Task: t}); err != nil {
		return "", fmt.Errorf("添加节点失败: key=%s, error=%w", key, err)
	}
	return key, nil
}

// AddDependency 实现DAG接口
func (g *taskDAG) AddDependency(parentKey, childKey string) error {
	if isEdge, _ := g.d.IsEdge(parentKey, childKey); isEdge {
		return nil
	}
	if err := g.d.AddEdge(parentKey, childKey); err != nil {
		return fmt.Errorf("添加边失败: %s -> %s, error=%w", parentKey, childKey, err)
	}
	return nil
}

// GetTask 实现DAG接口
func (g *taskDAG) GetTask(key string) (task.Task, error) {
	node, err := g.d.GetVertex(key)
	if err != nil {
		return nil, fmt.Errorf("任务不存在: key=%s, error=%w", key, err)
	}
	return node.Task, nil
}

// GetParents 实现DAG接口
func (g *taskDAG) GetParents(key string) ([]string, error) {
	parents, err := g.d.GetParents(key)
	if err != nil {
		return nil, err
	}
	return sortedKeys(parents), nil
}

// GetChildren 实现DAG接口
func (g *taskDAG) GetChildren(key string) ([]string, error) {
	children, err := g.d.GetChildren(key)
	if err != nil {
		return nil, err
	}
	return sortedKeys(children), nil
}

// GetRoots 实现DAG接口
func (g *taskDAG) GetRoots() []string {
	return sortedKeys(g.d.GetRoots())
}

// Keys 实现DAG接口
func (g *taskDAG) Keys() []string {
	return sortedKeys(g.d.GetVertices())
}

// Size 实现DAG接口
func (g *taskDAG) Size() int {
	return len(g.d.GetVertices())
}

// Descendants 实现DAG接口
func (g *taskDAG) Descendants(key string) ([]string, error) {
	if _, err := g.d.GetVertex(key); err != nil {
		return nil, fmt.Errorf("任务不存在: key=%s, error=%w", key, err)
	}
	seen := make(map[string]struct{})
	queue := []string{key}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		children, err := g.GetChildren(current)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if _, ok := seen[child]; ok {
				continue
			}
			seen[child] = struct{}{}
			queue = append(queue, child)
		}
	}
	return sortedKeys(seen), nil
}

// TopologicalSort 实现DAG接口
// 使用 Kahn 算法，每层内按键排序
func (g *taskDAG) TopologicalSort() (*TopologicalOrder, error) {
	result := &TopologicalOrder{Levels: make([][]string, 0)}

	inDegree := make(map[string]int)
	for _, key := range g.Keys() {
		parents, err := g.d.GetParents(key)
		if err != nil {
			return nil, err
		}
		inDegree[key] = len(parents)
	}

	queue := make([]string, 0)
	for key, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, key)
		}
	}

	processed := 0
	for len(queue) > 0 {
		sort.Strings(queue)
		level := queue
		next := make([]string, 0)
		for _, key := range level {
			processed++
			children, err := g.GetChildren(key)
			if err != nil {
				return nil, err
			}
			for _, child := range children {
				inDegree[child]--
				if inDegree[child] == 0 {
					next = append(next, child)
				}
			}
		}
		result.Levels = append(result.Levels, level)
		queue = next
	}

	if processed != len(inDegree) {
		return nil, fmt.Errorf("拓扑排序失败：存在未处理的节点（可能存在环）")
	}
	return result, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
