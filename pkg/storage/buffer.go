package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// RowBuffer 批量写入前的内存行缓冲（对外导出）
// Columns为目标列顺序，每行长度必须与Columns一致
type RowBuffer struct {
	Columns []string
	Rows    [][]any
}

// NewRowBuffer 创建行缓冲
func NewRowBuffer(columns []string) *RowBuffer {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &RowBuffer{Columns: cols}
}

// Append 追加一行
func (b *RowBuffer) Append(row []any) error {
	if len(row) != len(b.Columns) {
		return fmt.Errorf("行长度%d与列数%d不一致", len(row), len(b.Columns))
	}
	b.Rows = append(b.Rows, row)
	return nil
}

// Len 已缓冲的行数
func (b *RowBuffer) Len() int {
	return len(b.Rows)
}

// Reset 清空缓冲，保留列定义
func (b *RowBuffer) Reset() {
	b.Rows = nil
}

// InsertBatches 使用多行INSERT分批写入缓冲中的所有行（对外导出，供不支持COPY的方言使用）
// maxParams为单条语句允许的最大参数个数
func InsertBatches(ctx context.Context, tx *sqlx.Tx, d Dialect, table string, buf *RowBuffer, maxParams int) (int64, error) {
	if buf.Len() == 0 {
		return 0, nil
	}
	cols := len(buf.Columns)
	batch := maxParams / cols
	if batch < 1 {
		batch = 1
	}

	var total int64
	for start := 0; start < buf.Len(); start += batch {
		end := start + batch
		if end > buf.Len() {
			end = buf.Len()
		}
		rows := buf.Rows[start:end]

		query := buildInsertSQL(d, table, buf.Columns, len(rows))
		args := make([]any, 0, len(rows)*cols)
		for _, row := range rows {
			args = append(args, row...)
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return total, fmt.Errorf("批量插入第%d-%d行失败: %w", start+1, end, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		} else {
			total += int64(len(rows))
		}
	}
	return total, nil
}

func buildInsertSQL(d Dialect, table string, columns []string, rows int) string {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(table)
	sb.WriteString(" (")
	sb.WriteString(strings.Join(columns, ", "))
	sb.WriteString(") VALUES ")

	idx := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for c := range columns {
			if c > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(d.Placeholder(idx))
			idx++
		}
		sb.WriteByte(')')
	}
	return sb.String()
}
