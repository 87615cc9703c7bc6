// Package task 定义流水线中的工作单元：抽取校验、批量加载和标记清理
package task

import (
	"context"

	"github.com/LENAX/dbf-pipeline/pkg/core/marker"
	"github.com/LENAX/dbf-pipeline/pkg/dbf"
)

// Task 工作单元接口（对外导出）
// 构造后不可变；完成与否只由Output标记是否存在决定
type Task interface {
	// Identity 任务身份，Key()相同即同一任务
	Identity() Identity
	// Name 便于阅读的短名称
	Name() string
	// Requires 必须先完成的上游任务
	Requires() []Task
	// Output 完成标记位置
	Output() marker.Target
	// Run 执行任务，成功时返回的Result.Marker由引擎写入标记文件
	Run(ctx context.Context) (Result, error)
}

// Result 任务执行结果
type Result struct {
	// Marker 完成标记内容
	Marker []byte
	// Processed 扫描的源记录数
	Processed int
	// Loaded 写入目标库的行数
	Loaded int
	// Summary 一行结果摘要
	Summary string
}

// SourceParams 源文件读取参数（对外导出）
type SourceParams struct {
	Path         string
	Encoding     string
	DecodeErrors dbf.DecodePolicy
}

// withDefaults 补齐默认编码和解码策略，保证身份稳定
func (p SourceParams) withDefaults() SourceParams {
	if p.Encoding == "" {
		p.Encoding = dbf.DefaultEncoding
	}
	if p.DecodeErrors == "" {
		p.DecodeErrors = dbf.DefaultDecodePolicy
	}
	return p
}

func (p SourceParams) options() dbf.Options {
	return dbf.Options{Encoding: p.Encoding, DecodeErrors: p.DecodeErrors}
}

// Key 返回任务的规范键
func Key(t Task) string {
	return t.Identity().Key()
}
