package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/LENAX/dbf-pipeline/pkg/core/marker"
	"github.com/LENAX/dbf-pipeline/pkg/dbf"
	"github.com/LENAX/dbf-pipeline/pkg/filter"
	"github.com/LENAX/dbf-pipeline/pkg/storage"
)

// LoadSpec 单张目标表的加载规格（对外导出）
type LoadSpec struct {
	// Table 目标表，可带schema前缀
	Table string
	// Columns 目标列顺序
	Columns []string
	// FieldMap 目标列 -> 源字段，缺省为同名
	FieldMap map[string]string
	// Truncate 加载前清空目标表
	Truncate bool
	// Filter 源记录过滤条件
	Filter filter.Spec
}

// SourceField 目标列对应的源字段名
func (s LoadSpec) SourceField(column string) string {
	if f, ok := s.FieldMap[column]; ok && f != "" {
		return f
	}
	return column
}

// LoadMarker .done标记内容
type LoadMarker struct {
	Table          string    `json:"table"`
	Source         string    `json:"source"`
	ProcessedCount int       `json:"processed_count"`
	LoadedCount    int       `json:"loaded_count"`
	CompletedAt    time.Time `json:"completed_at"`
}

// BulkLoadTask 将一个DBF文件过滤、重映射后在单个事务内批量写入一张表（对外导出）
type BulkLoadTask struct {
	spec      LoadSpec
	source    SourceParams
	conn      storage.ConnectionParams
	connector storage.Connector
	opener    dbf.Opener
	now       func() time.Time
}

// LoadOption 加载任务可选项
type LoadOption func(*BulkLoadTask)

// WithOpener 指定源记录工厂
func WithOpener(opener dbf.Opener) LoadOption {
	return func(t *BulkLoadTask) {
		if opener != nil {
			t.opener = opener
		}
	}
}

// WithClock 指定时钟，用于标记时间
func WithClock(now func() time.Time) LoadOption {
	return func(t *BulkLoadTask) {
		if now != nil {
			t.now = now
		}
	}
}

// NewBulkLoadTask 创建批量加载任务
func NewBulkLoadTask(spec LoadSpec, source SourceParams, conn storage.ConnectionParams, connector storage.Connector, opts ...LoadOption) *BulkLoadTask {
	t := &BulkLoadTask{
		spec:      copySpec(spec),
		source:    source.withDefaults(),
		conn:      conn,
		connector: connector,
		opener:    dbf.FileOpener{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func copySpec(s LoadSpec) LoadSpec {
	out := s
	out.Columns = append([]string(nil), s.Columns...)
	if s.FieldMap != nil {
		out.FieldMap = make(map[string]string, len(s.FieldMap))
		for k, v := range s.FieldMap {
			out.FieldMap[k] = v
		}
	}
	out.Filter.All = append([]filter.Condition(nil), s.Filter.All...)
	return out
}

// Identity 实现Task接口
func (t *BulkLoadTask) Identity() Identity {
	fieldMap := t.spec.FieldMap
	if fieldMap == nil {
		fieldMap = map[string]string{}
	}
	return Identity{
		Kind: KindLoad,
		Params: []Param{
			{Name: "table", Value: t.spec.Table},
			{Name: "columns", Value: t.spec.Columns},
			{Name: "path", Value: t.source.Path},
			{Name: "field_map", Value: fieldMap},
			{Name: "truncate", Value: t.spec.Truncate},
			{Name: "connection", Value: t.conn},
			{Name: "encoding", Value: t.source.Encoding},
			{Name: "decode_errors", Value: string(t.source.DecodeErrors)},
			{Name: "filter", Value: t.spec.Filter},
		},
	}
}

// Name 实现Task接口
func (t *BulkLoadTask) Name() string {
	return "load " + t.spec.Table
}

// Spec 加载规格
func (t *BulkLoadTask) Spec() LoadSpec {
	return copySpec(t.spec)
}

// Source 源文件参数
func (t *BulkLoadTask) Source() SourceParams {
	return t.source
}

// Requires 依赖相同路径、编码和解码策略的抽取任务
func (t *BulkLoadTask) Requires() []Task {
	return []Task{NewExtractTask(t.source, t.opener)}
}

// Output <dir>/<base>.<table中的.替换为_>.done
func (t *BulkLoadTask) Output() marker.Target {
	return marker.NewTarget(LoadMarkerPath(t.source.Path, t.spec.Table))
}

// LoadMarkerPath 计算加载完成标记路径
func LoadMarkerPath(sourcePath, table string) string {
	base := filepath.Base(sourcePath)
	suffix := strings.ReplaceAll(table, ".", "_")
	return filepath.Join(filepath.Dir(sourcePath), fmt.Sprintf("%s.%s.done", base, suffix))
}

// Run 连接、开启事务、可选清表、全量扫描、批量写入、提交
// 任何一步失败都回滚并关闭连接，不产生标记
func (t *BulkLoadTask) Run(ctx context.Context) (result Result, err error) {
	table := t.spec.Table

	conn, err := t.connector.Connect(ctx, t.conn)
	if err != nil {
		return Result{}, t.destErr("connect", err)
	}
	defer conn.Close()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return Result{}, t.destErr("begin", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Printf("⚠️ [加载] 回滚失败: table=%s, error=%v", table, rbErr)
			} else {
				log.Printf("↩️ [加载] 已回滚: table=%s", table)
			}
		}
	}()

	if t.spec.Truncate {
		log.Printf("🧹 [加载] 清空表并禁用触发器: table=%s", table)
		if err = tx.Truncate(ctx, table); err != nil {
			return Result{}, t.destErr("truncate", err)
		}
		if err = tx.DisableTriggers(ctx, table); err != nil {
			return Result{}, t.destErr("disable triggers", err)
		}
	}

	buf, processed, err := t.scan()
	if err != nil {
		return Result{}, err
	}
	log.Printf("📊 [加载] 扫描完成: path=%s, processed=%d, accepted=%d", t.source.Path, processed, buf.Len())

	if buf.Len() > 0 {
		if _, err = tx.BulkInsert(ctx, table, buf); err != nil {
			return Result{}, t.destErr("bulk insert", err)
		}
	} else {
		log.Printf("ℹ️ [加载] 过滤后没有可写入的行 (no rows): table=%s", table)
	}

	if t.spec.Truncate {
		if err = tx.EnableTriggers(ctx, table); err != nil {
			return Result{}, t.destErr("enable triggers", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return Result{}, t.destErr("commit", err)
	}

	loaded := buf.Len()
	log.Printf("✅ [加载] 写入成功: table=%s, loaded=%d", table, loaded)

	content, err := json.Marshal(LoadMarker{
		Table:          table,
		Source:         t.source.Path,
		ProcessedCount: processed,
		LoadedCount:    loaded,
		CompletedAt:    t.now().UTC(),
	})
	if err != nil {
		return Result{}, fmt.Errorf("序列化标记失败: %w", err)
	}
	return Result{
		Marker:    content,
		Processed: processed,
		Loaded:    loaded,
		Summary:   fmt.Sprintf("%d records loaded into %s", loaded, table),
	}, nil
}

// scan 全量扫描源文件，按过滤条件和字段映射填充行缓冲
func (t *BulkLoadTask) scan() (*storage.RowBuffer, int, error) {
	r, err := t.opener.Open(t.source.Path, t.source.options())
	if err != nil {
		return nil, 0, t.sourceErr(err)
	}
	defer r.Close()

	fields := make([]string, len(t.spec.Columns))
	for i, col := range t.spec.Columns {
		fields[i] = t.spec.SourceField(col)
	}

	buf := storage.NewRowBuffer(t.spec.Columns)
	processed := 0
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, processed, t.sourceErr(err)
		}
		processed++
		if !t.spec.Filter.Match(rec) {
			continue
		}
		row := make([]any, len(fields))
		for i, f := range fields {
			// 缺失字段写入NULL
			row[i] = rec[f]
		}
		if err := buf.Append(row); err != nil {
			return nil, processed, t.sourceErr(err)
		}
	}
	return buf, processed, nil
}

func (t *BulkLoadTask) destErr(op string, err error) error {
	return &Error{Kind: ErrDestination, Op: op, Table: t.spec.Table, Path: t.source.Path, Err: err}
}

func (t *BulkLoadTask) sourceErr(err error) error {
	return &Error{Kind: ErrSource, Op: "scan", Table: t.spec.Table, Path: t.source.Path, Err: err}
}

// 确保实现接口
var _ Task = (*BulkLoadTask)(nil)
