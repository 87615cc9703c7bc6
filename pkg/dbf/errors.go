package dbf

import (
	"errors"
	"fmt"
)

// ErrSource 源文件缺失、损坏或不可读（对外导出）
var ErrSource = errors.New("source error")

// SourceError 源文件读取错误，包含操作和文件路径
type SourceError struct {
	Op   string
	Path string
	Err  error
}

func (e *SourceError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("dbf %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap 同时匹配ErrSource与底层错误
func (e *SourceError) Unwrap() []error {
	return []error{ErrSource, e.Err}
}

func sourceErrorf(op, path, format string, args ...any) error {
	return &SourceError{Op: op, Path: path, Err: fmt.Errorf(format, args...)}
}
