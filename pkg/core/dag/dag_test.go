package dag_test

import (
	"context"
	"testing"

	"github.com/LENAX/dbf-pipeline/pkg/core/dag"
	"github.com/LENAX/dbf-pipeline/pkg/core/marker"
	"github.com/LENAX/dbf-pipeline/pkg/core/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubTask 只关心身份和依赖的测试任务
type stubTask struct {
	name     string
	requires []task.Task
}

func (s *stubTask) Identity() task.Identity {
	return task.Identity{Kind: "stub", Params: []task.Param{{Name: "name", Value: s.name}}}
}
func (s *stubTask) Name() string { return s.name }
func (s *stubTask) Requires() []task.Task { return s.requires }
func (s *stubTask) Output() marker.Target { return marker.NewTarget("/tmp/" + s.name) }
func (s *stubTask) Run(context.Context) (task.Result, error) {
	return task.Result{}, nil
}

func stub(name string, requires ...task.Task) *stubTask {
	return &stubTask{name: name, requires: requires}
}

func TestBuild_DeduplicatesEqualKeys(t *testing.T) {
	// 两个加载任务各自构造了相同的抽取任务实例
	load1 := stub("load1", stub("extract"))
	load2 := stub("load2", stub("extract"))

	g, err := dag.Build([]task.Task{load1, load2}, dag.BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, g.Size())

	extractKey := task.Key(stub("extract"))
	children, err := g.GetChildren(extractKey)
	require.NoError(t, err)
	assert.Equal(t, []string{task.Key(load1), task.Key(load2)}, children)
	assert.Equal(t, []string{extractKey}, g.GetRoots())
}

func TestBuild_GateBecomesParentOfRoots(t *testing.T) {
	gate := stub("cleanup")
	loadA := stub("loadA", stub("extractA"))
	loadB := stub("loadB", stub("extractB"))

	g, err := dag.Build([]task.Task{loadA, loadB}, dag.BuildOptions{Gate: gate})
	require.NoError(t, err)
	assert.Equal(t, 5, g.Size())
	assert.Equal(t, []string{task.Key(gate)}, g.GetRoots())

	children, err := g.GetChildren(task.Key(gate))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{task.Key(stub("extractA")), task.Key(stub("extractB"))}, children)

	order, err := g.TopologicalSort()
	require.NoError(t, err)
	require.Len(t, order.Levels, 3)
	assert.Equal(t, []string{task.Key(gate)}, order.Levels[0])
	assert.Len(t, order.Levels[1], 2)
	assert.Len(t, order.Levels[2], 2)
	assert.Len(t, order.Flatten(), 5)
}

func TestBuild_NilTarget(t *testing.T) {
	_, err := dag.Build([]task.Task{nil}, dag.BuildOptions{})
	assert.Error(t, err)
}

func TestTopologicalSort_Diamond(t *testing.T) {
	root := stub("task1")
	left := stub("task2", root)
	right := stub("task3", root)
	sink := stub("task4", left, right)

	g, err := dag.Build([]task.Task{sink}, dag.BuildOptions{})
	require.NoError(t, err)

	order, err := g.TopologicalSort()
	require.NoError(t, err)
	require.Len(t, order.Levels, 3)
	assert.Equal(t, []string{task.Key(root)}, order.Levels[0])
	assert.ElementsMatch(t, []string{task.Key(left), task.Key(right)}, order.Levels[1])
	assert.Equal(t, []string{task.Key(sink)}, order.Levels[2])

	desc, err := g.Descendants(task.Key(root))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{task.Key(left), task.Key(right), task.Key(sink)}, desc)

	parents, err := g.GetParents(task.Key(sink))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{task.Key(left), task.Key(right)}, parents)
}

func TestBuild_TasksWithUnexportedFields(t *testing.T) {
	// 真实任务类型只有未导出字段，节点必须按规范键区分
	root := t.TempDir()
	store := marker.NewFileStore()
	gate := task.NewCleanupTask(root, "static_pipeline_clean", store)
	a := task.NewExtractTask(task.SourceParams{Path: root + "/a.dbf"}, nil)
	b := task.NewExtractTask(task.SourceParams{Path: root + "/b.dbf"}, nil)

	g, err := dag.Build([]task.Task{a, b}, dag.BuildOptions{Gate: gate})
	require.NoError(t, err)
	assert.Equal(t, 3, g.Size())
	assert.Equal(t, []string{task.Key(gate)}, g.GetRoots())

	children, err := g.GetChildren(task.Key(gate))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{task.Key(a), task.Key(b)}, children)

	manual := dag.New()
	_, err = manual.AddTask(task.NewCleanupTask(root, "20260101000000", store))
	require.NoError(t, err)
	_, err = manual.AddTask(task.NewCleanupTask(root, "20260102000000", store))
	require.NoError(t, err)
	assert.Equal(t, 2, manual.Size())
}

func TestManualGraph(t *testing.T) {
	g := dag.New()
	a, err := g.AddTask(stub("a"))
	require.NoError(t, err)
	b, err := g.AddTask(stub("b"))
	require.NoError(t, err)

	again, err := g.AddTask(stub("a"))
	require.NoError(t, err)
	assert.Equal(t, a, again)
	assert.Equal(t, 2, g.Size())

	require.NoError(t, g.AddDependency(a, b))
	require.NoError(t, g.AddDependency(a, b))
	assert.Error(t, g.AddDependency(b, a), "反向边会形成环")

	got, err := g.GetTask(b)
	require.NoError(t, err)
	assert.Equal(t, "b", got.Name())

	_, err = g.GetTask("missing")
	assert.Error(t, err)
	_, err = g.Descendants("missing")
	assert.Error(t, err)
	assert.Equal(t, []string{a, b}, g.Keys())
}
