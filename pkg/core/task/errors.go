package task

import (
	"errors"
	"fmt"
	"strings"

	"github.com/LENAX/dbf-pipeline/pkg/core/marker"
	"github.com/LENAX/dbf-pipeline/pkg/dbf"
)

// 任务失败的错误类别，使用errors.Is判断
var (
	// ErrSource 源文件缺失、损坏或不可读
	ErrSource = dbf.ErrSource
	// ErrDestination 连接、事务或批量写入失败
	ErrDestination = errors.New("destination error")
	// ErrMarkerIO 标记文件读写失败
	ErrMarkerIO = marker.ErrMarkerIO
)

// Error 带上下文的任务错误（对外导出）
// 同时匹配错误类别和原始原因
type Error struct {
	Kind  error
	Op    string
	Table string
	Path  string
	Err   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var parts []string
	if e.Op != "" {
		parts = append(parts, e.Op)
	}
	if e.Table != "" {
		parts = append(parts, "table="+e.Table)
	}
	if e.Path != "" {
		parts = append(parts, "path="+e.Path)
	}
	kind := "task error"
	if e.Kind != nil {
		kind = e.Kind.Error()
	}
	return fmt.Sprintf("%s [%s]: %v", kind, strings.Join(parts, " "), e.Err)
}

// Unwrap 同时暴露类别和原因
func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// KindOf 返回错误所属类别，无法识别时返回nil
func KindOf(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrMarkerIO):
		return ErrMarkerIO
	case errors.Is(err, ErrDestination):
		return ErrDestination
	case errors.Is(err, ErrSource):
		return ErrSource
	default:
		return nil
	}
}
