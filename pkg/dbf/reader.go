package dbf

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	headerSize      = 32
	fieldDescSize   = 32
	fieldTerminator = 0x0D
	eofMarker       = 0x1A
	deletedFlag     = '*'
	julianUnixEpoch = 2440588
)

// Options 打开DBF文件的选项（对外导出）
type Options struct {
	Encoding     string       // 字符编码，默认cp1252
	DecodeErrors DecodePolicy // 解码失败策略：strict/replace
}

// Field DBF字段描述
type Field struct {
	Name     string
	Type     byte
	Length   int
	Decimals int
	offset   int
}

// Header DBF文件头
type Header struct {
	Version    byte
	LastUpdate time.Time
	NumRecords int
	HeaderLen  int
	RecordLen  int
}

// Record 字段名到值的映射
// 值类型：string、int64、float64、bool、time.Time 或 nil
type Record map[string]any

// RecordReader 惰性、有限的记录序列（对外导出）
// 重新Open即可从头读取
type RecordReader interface {
	// NumRecords 文件头声明的记录数
	NumRecords() int
	// Next 返回下一条记录，读完返回io.EOF
	Next() (Record, error)
	Close() error
}

// Opener 记录源工厂接口（对外导出）
type Opener interface {
	Open(path string, opts Options) (RecordReader, error)
}

// FileOpener 打开本地DBF文件的默认Opener
type FileOpener struct{}

// Open 实现Opener接口
func (FileOpener) Open(path string, opts Options) (RecordReader, error) {
	r, err := Open(path, opts)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Reader 顺序读取DBF记录
type Reader struct {
	path    string
	file    *os.File
	br      *bufio.Reader
	header  Header
	fields  []Field
	decoder *textDecoder
	buf     []byte
	read    int
}

// Open 打开DBF文件，只解析文件头和字段描述，不读取记录
func Open(path string, opts Options) (*Reader, error) {
	decoder, err := newTextDecoder(opts.Encoding, opts.DecodeErrors)
	if err != nil {
		return nil, &SourceError{Op: "open", Path: path, Err: err}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &SourceError{Op: "open", Path: path, Err: err}
	}

	r := &Reader{
		path:    path,
		file:    f,
		br:      bufio.NewReaderSize(f, 64*1024),
		decoder: decoder,
	}
	if err := r.readHeader(); err != nil {
		f.Close()
		return nil, err
	}
	r.buf = make([]byte, r.header.RecordLen)
	return r, nil
}

// readHeader 解析文件头与字段描述区
func (r *Reader) readHeader() error {
	raw := make([]byte, headerSize)
	if _, err := io.ReadFull(r.br, raw); err != nil {
		return sourceErrorf("header", r.path, "读取文件头失败: %v", err)
	}

	h := Header{
		Version:    raw[0],
		NumRecords: int(binary.LittleEndian.Uint32(raw[4:8])),
		HeaderLen:  int(binary.LittleEndian.Uint16(raw[8:10])),
		RecordLen:  int(binary.LittleEndian.Uint16(raw[10:12])),
	}
	if raw[2] >= 1 && raw[2] <= 12 && raw[3] >= 1 && raw[3] <= 31 {
		h.LastUpdate = time.Date(1900+int(raw[1]), time.Month(raw[2]), int(raw[3]), 0, 0, 0, 0, time.UTC)
	}
	if h.HeaderLen < headerSize+1 {
		return sourceErrorf("header", r.path, "文件头长度无效: %d", h.HeaderLen)
	}
	if h.RecordLen < 1 {
		return sourceErrorf("header", r.path, "记录长度无效: %d", h.RecordLen)
	}

	desc := make([]byte, h.HeaderLen-headerSize)
	if _, err := io.ReadFull(r.br, desc); err != nil {
		return sourceErrorf("header", r.path, "读取字段描述失败: %v", err)
	}

	offset := 1 // 第一个字节是删除标志
	for pos := 0; pos+fieldDescSize <= len(desc); pos += fieldDescSize {
		if desc[pos] == fieldTerminator {
			break
		}
		fd := desc[pos : pos+fieldDescSize]
		name := fd[:11]
		if i := bytes.IndexByte(name, 0); i >= 0 {
			name = name[:i]
		}
		field := Field{
			Name:     strings.TrimSpace(string(name)),
			Type:     fd[11],
			Length:   int(fd[16]),
			Decimals: int(fd[17]),
			offset:   offset,
		}
		if field.Type == 'C' && field.Decimals > 0 {
			// FoxPro用小数位字节保存长字符字段的高位长度
			field.Length += field.Decimals << 8
			field.Decimals = 0
		}
		if field.Name == "" {
			return sourceErrorf("header", r.path, "第%d个字段名为空", len(r.fields)+1)
		}
		offset += field.Length
		r.fields = append(r.fields, field)
	}
	if len(r.fields) == 0 {
		return sourceErrorf("header", r.path, "没有字段描述")
	}
	if offset > h.RecordLen {
		return sourceErrorf("header", r.path, "字段总长度%d超过记录长度%d", offset, h.RecordLen)
	}

	r.header = h
	return nil
}

// Header 返回文件头
func (r *Reader) Header() Header {
	return r.header
}

// Fields 返回字段描述列表
func (r *Reader) Fields() []Field {
	out := make([]Field, len(r.fields))
	copy(out, r.fields)
	return out
}

// NumRecords 文件头声明的记录数（包含已删除记录）
func (r *Reader) NumRecords() int {
	return r.header.NumRecords
}

// Next 读取下一条未删除的记录
func (r *Reader) Next() (Record, error) {
	for {
		if r.read >= r.header.NumRecords {
			return nil, io.EOF
		}

		flag, err := r.br.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, &SourceError{Op: "read", Path: r.path, Err: err}
		}
		if flag == eofMarker {
			return nil, io.EOF
		}

		r.buf[0] = flag
		if _, err := io.ReadFull(r.br, r.buf[1:]); err != nil {
			return nil, sourceErrorf("read", r.path, "第%d条记录不完整: %v", r.read+1, err)
		}
		r.read++

		if flag == deletedFlag {
			continue
		}
		return r.parseRecord(r.buf)
	}
}

// Close 关闭文件
func (r *Reader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

func (r *Reader) parseRecord(buf []byte) (Record, error) {
	rec := make(Record, len(r.fields))
	for _, f := range r.fields {
		if f.Type == '0' {
			continue
		}
		raw := buf[f.offset : f.offset+f.Length]
		v, err := r.decodeValue(f, raw)
		if err != nil {
			return nil, sourceErrorf("decode", r.path, "第%d条记录字段%s: %v", r.read, f.Name, err)
		}
		rec[f.Name] = v
	}
	return rec, nil
}

func (r *Reader) decodeValue(f Field, raw []byte) (any, error) {
	switch f.Type {
	case 'C':
		return r.decoder.decode(trimRight(raw))
	case 'N', 'F':
		return parseNumeric(raw, f.Decimals)
	case 'L':
		if len(raw) == 0 {
			return nil, nil
		}
		switch raw[0] {
		case 'T', 't', 'Y', 'y':
			return true, nil
		case 'F', 'f', 'N', 'n':
			return false, nil
		}
		return nil, nil
	case 'D':
		s := strings.TrimSpace(string(trimRight(raw)))
		if s == "" || strings.Trim(s, "0") == "" {
			return nil, nil
		}
		t, err := time.Parse("20060102", s)
		if err != nil {
			return nil, err
		}
		return t, nil
	case 'I':
		if len(raw) < 4 {
			return nil, errors.New("整数字段长度不足4字节")
		}
		return int64(int32(binary.LittleEndian.Uint32(raw))), nil
	case 'B', 'O':
		if len(raw) < 8 {
			return nil, errors.New("双精度字段长度不足8字节")
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(raw)), nil
	case 'Y':
		if len(raw) < 8 {
			return nil, errors.New("货币字段长度不足8字节")
		}
		return float64(int64(binary.LittleEndian.Uint64(raw))) / 10000, nil
	case 'T':
		if len(raw) < 8 {
			return nil, errors.New("日期时间字段长度不足8字节")
		}
		day := int64(binary.LittleEndian.Uint32(raw[:4]))
		ms := int64(binary.LittleEndian.Uint32(raw[4:8]))
		if day == 0 {
			return nil, nil
		}
		return time.Unix((day-julianUnixEpoch)*86400, 0).UTC().Add(time.Duration(ms) * time.Millisecond), nil
	case 'M', 'G', 'P':
		// 不读取memo文件
		return nil, nil
	default:
		return r.decoder.decode(trimRight(raw))
	}
}

func parseNumeric(raw []byte, decimals int) (any, error) {
	s := strings.TrimSpace(string(trimRight(raw)))
	if s == "" || strings.Trim(s, "*") == "" {
		return nil, nil
	}
	if decimals == 0 && !strings.ContainsAny(s, ".eE") {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func trimRight(b []byte) []byte {
	end := len(b)
	for end > 0 && (b[end-1] == ' ' || b[end-1] == 0) {
		end--
	}
	return b[:end]
}
