package marker

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrMarkerIO 标记文件读写失败（对外导出）
// 写入失败的任务在下一次运行时视为未完成
var ErrMarkerIO = errors.New("marker io failure")

// Target 任务完成标记的位置（对外导出）
type Target struct {
	Path string
}

// NewTarget 创建标记位置
func NewTarget(path string) Target {
	return Target{Path: filepath.Clean(path)}
}

// String 实现Stringer
func (t Target) String() string {
	return t.Path
}

// Store 完成标记存储接口（对外导出）
// 不提供任何锁：同一路径只允许单一写入者，由调用方保证
type Store interface {
	// Exists 标记是否存在
	Exists(path string) (bool, error)
	// Write 写入标记内容
	Write(path string, content []byte) error
	// Remove 删除标记，不存在时返回nil
	Remove(path string) error
	// Glob 按模式列出标记
	Glob(pattern string) ([]string, error)
}

// FileStore 基于本地文件系统的标记存储（对外导出）
type FileStore struct {
	perm fs.FileMode
}

// NewFileStore 创建文件系统标记存储
func NewFileStore() *FileStore {
	return &FileStore{perm: 0644}
}

// Exists 检查标记文件是否存在
func (s *FileStore) Exists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err == nil {
		if info.IsDir() {
			return false, &IOError{Op: "stat", Path: path, Err: fmt.Errorf("标记路径是目录")}
		}
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, &IOError{Op: "stat", Path: path, Err: err}
}

// Write 写入标记文件
// 先写临时文件再rename，标记要么完整存在要么不存在
func (s *FileStore) Write(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &IOError{Op: "mkdir", Path: dir, Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return &IOError{Op: "create", Path: path, Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &IOError{Op: "write", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &IOError{Op: "close", Path: path, Err: err}
	}
	if err := os.Chmod(tmpName, s.perm); err != nil {
		os.Remove(tmpName)
		return &IOError{Op: "chmod", Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return &IOError{Op: "rename", Path: path, Err: err}
	}
	return nil
}

// Remove 删除标记文件
func (s *FileStore) Remove(path string) error {
	err := os.Remove(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return &IOError{Op: "remove", Path: path, Err: err}
}

// Glob 列出匹配模式的标记文件
func (s *FileStore) Glob(pattern string) ([]string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, &IOError{Op: "glob", Path: pattern, Err: err}
	}
	return matches, nil
}

// Read 读取标记内容（FileStore特有，用于展示）
func (s *FileStore) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}
	return data, nil
}

// IOError 标记文件操作错误
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("marker %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap 同时暴露ErrMarkerIO和底层错误
func (e *IOError) Unwrap() []error {
	return []error{ErrMarkerIO, e.Err}
}

var _ Store = (*FileStore)(nil)
