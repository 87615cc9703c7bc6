// Package dbftest 生成测试用的DBF文件
package dbftest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"
)

// Field 测试表的字段定义
type Field struct {
	Name     string
	Type     byte
	Length   int
	Decimals int
}

// Char 字符字段
func Char(name string, length int) Field {
	return Field{Name: name, Type: 'C', Length: length}
}

// Numeric 数值字段
func Numeric(name string, length, decimals int) Field {
	return Field{Name: name, Type: 'N', Length: length, Decimals: decimals}
}

// Logical 逻辑字段
func Logical(name string) Field {
	return Field{Name: name, Type: 'L', Length: 1}
}

// Date 日期字段
func Date(name string) Field {
	return Field{Name: name, Type: 'D', Length: 8}
}

// Table 测试DBF表内容
type Table struct {
	Fields []Field
	Rows   [][]any
	// Deleted 标记为已删除的行下标
	Deleted []int
	// DeclaredRecords 大于0时覆盖文件头中的记录数
	DeclaredRecords int
}

// Encode 按dBase III格式编码整张表
func (t Table) Encode() ([]byte, error) {
	var buf bytes.Buffer

	recordLen := 1
	for _, f := range t.Fields {
		recordLen += f.Length
	}
	headerLen := 32 + 32*len(t.Fields) + 1
	numRecords := len(t.Rows)
	if t.DeclaredRecords > 0 {
		numRecords = t.DeclaredRecords
	}

	header := make([]byte, 32)
	header[0] = 0x03
	now := time.Now()
	header[1] = byte(now.Year() - 1900)
	header[2] = byte(now.Month())
	header[3] = byte(now.Day())
	binary.LittleEndian.PutUint32(header[4:8], uint32(numRecords))
	binary.LittleEndian.PutUint16(header[8:10], uint16(headerLen))
	binary.LittleEndian.PutUint16(header[10:12], uint16(recordLen))
	buf.Write(header)

	for _, f := range t.Fields {
		if len(f.Name) > 10 {
			return nil, fmt.Errorf("字段名超过10个字符: %s", f.Name)
		}
		desc := make([]byte, 32)
		copy(desc[:11], f.Name)
		desc[11] = f.Type
		desc[16] = byte(f.Length)
		desc[17] = byte(f.Decimals)
		buf.Write(desc)
	}
	buf.WriteByte(0x0D)

	deleted := make(map[int]bool, len(t.Deleted))
	for _, i := range t.Deleted {
		deleted[i] = true
	}

	for i, row := range t.Rows {
		if len(row) != len(t.Fields) {
			return nil, fmt.Errorf("第%d行有%d个值，期望%d个", i, len(row), len(t.Fields))
		}
		if deleted[i] {
			buf.WriteByte('*')
		} else {
			buf.WriteByte(' ')
		}
		for j, f := range t.Fields {
			cell, err := encodeValue(f, row[j])
			if err != nil {
				return nil, fmt.Errorf("第%d行字段%s: %w", i, f.Name, err)
			}
			buf.Write(cell)
		}
	}
	buf.WriteByte(0x1A)
	return buf.Bytes(), nil
}

// WriteFile 写入DBF文件
func (t Table) WriteFile(path string) error {
	data, err := t.Encode()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// MustWrite 写入DBF文件，失败时终止测试
func MustWrite(tb testing.TB, path string, t Table) {
	tb.Helper()
	if err := t.WriteFile(path); err != nil {
		tb.Fatalf("写入DBF文件失败: %v", err)
	}
}

func encodeValue(f Field, v any) ([]byte, error) {
	cell := bytes.Repeat([]byte{' '}, f.Length)
	if v == nil {
		return cell, nil
	}

	var text []byte
	rightAlign := false
	switch val := v.(type) {
	case string:
		text = []byte(val)
	case []byte:
		text = val
	case int:
		text, rightAlign = []byte(strconv.Itoa(val)), true
	case int64:
		text, rightAlign = []byte(strconv.FormatInt(val, 10)), true
	case float64:
		text, rightAlign = []byte(strconv.FormatFloat(val, 'f', f.Decimals, 64)), true
	case bool:
		if val {
			text = []byte("T")
		} else {
			text = []byte("F")
		}
	case time.Time:
		text = []byte(val.Format("20060102"))
	default:
		return nil, fmt.Errorf("不支持的值类型 %T", v)
	}

	if len(text) > f.Length {
		return nil, fmt.Errorf("值%q超过字段长度%d", text, f.Length)
	}
	if rightAlign {
		copy(cell[f.Length-len(text):], text)
	} else {
		copy(cell, text)
	}
	return cell, nil
}
