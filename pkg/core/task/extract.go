package task

import (
	"context"
	"errors"
	"io"
	"log"

	"github.com/LENAX/dbf-pipeline/pkg/core/marker"
	"github.com/LENAX/dbf-pipeline/pkg/dbf"
)

// ExtractTask 校验单个DBF文件可读（对外导出）
// 成功后标记 <path>.ready，供下游加载任务依赖
type ExtractTask struct {
	source SourceParams
	opener dbf.Opener
}

// NewExtractTask 创建抽取校验任务，opener为nil时读取本地文件
func NewExtractTask(source SourceParams, opener dbf.Opener) *ExtractTask {
	if opener == nil {
		opener = dbf.FileOpener{}
	}
	return &ExtractTask{source: source.withDefaults(), opener: opener}
}

// Identity 实现Task接口
func (t *ExtractTask) Identity() Identity {
	return Identity{
		Kind: KindExtract,
		Params: []Param{
			{Name: "path", Value: t.source.Path},
			{Name: "encoding", Value: t.source.Encoding},
			{Name: "decode_errors", Value: string(t.source.DecodeErrors)},
		},
	}
}

// Name 实现Task接口
func (t *ExtractTask) Name() string {
	return "extract " + t.source.Path
}

// Source 源文件参数
func (t *ExtractTask) Source() SourceParams {
	return t.source
}

// Requires 抽取任务没有上游
func (t *ExtractTask) Requires() []Task {
	return nil
}

// Output 实现Task接口
func (t *ExtractTask) Output() marker.Target {
	return marker.NewTarget(t.source.Path + ".ready")
}

// Run 打开文件并尝试读取一条记录
func (t *ExtractTask) Run(ctx context.Context) (Result, error) {
	r, err := t.opener.Open(t.source.Path, t.source.options())
	if err != nil {
		return Result{}, &Error{Kind: ErrSource, Op: "extract", Path: t.source.Path, Err: err}
	}
	defer r.Close()

	_, err = r.Next()
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		if r.NumRecords() > 0 {
			log.Printf("⚠️ [抽取] 文件头声明%d条记录但无法读取第一条: path=%s", r.NumRecords(), t.source.Path)
		}
	default:
		return Result{}, &Error{Kind: ErrSource, Op: "extract", Path: t.source.Path, Err: err}
	}

	log.Printf("✅ [抽取] DBF校验通过: path=%s, records=%d", t.source.Path, r.NumRecords())
	return Result{
		Marker:    []byte("ok"),
		Processed: 0,
		Summary:   "readable",
	}, nil
}

// 确保实现接口
var _ Task = (*ExtractTask)(nil)
