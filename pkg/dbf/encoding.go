package dbf

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
)

// DecodePolicy 字符解码失败时的处理策略（对外导出）
type DecodePolicy string

const (
	// DecodeStrict 遇到无法解码的字节时报错
	DecodeStrict DecodePolicy = "strict"
	// DecodeReplace 用U+FFFD替换无法解码的字节并继续
	DecodeReplace DecodePolicy = "replace"
)

const (
	DefaultEncoding     = "cp1252"
	DefaultDecodePolicy = DecodeReplace
)

// Valid 是否为已知策略
func (p DecodePolicy) Valid() bool {
	return p == DecodeStrict || p == DecodeReplace
}

// undefinedBytes Windows代码页中未分配的字节
// charmap 把它们映射为C1控制字符，这里按未定义处理
var undefinedBytes = map[*charmap.Charmap][]byte{
	charmap.Windows1250: {0x81, 0x83, 0x88, 0x90, 0x98},
	charmap.Windows1251: {0x98},
	charmap.Windows1252: {0x81, 0x8D, 0x8F, 0x90, 0x9D},
	charmap.Windows1254: {0x81, 0x8D, 0x8E, 0x8F, 0x90, 0x9D, 0x9E},
}

// textDecoder 按编码名称解码字符字段
type textDecoder struct {
	name   string
	enc    encoding.Encoding
	utf8   bool
	policy DecodePolicy

	// 单字节代码页逐字节解码
	charmap   *charmap.Charmap
	undefined [256]bool
}

func newCharsetDecoder(name string, enc encoding.Encoding, policy DecodePolicy) *textDecoder {
	d := &textDecoder{name: name, enc: enc, policy: policy}
	if cm, ok := enc.(*charmap.Charmap); ok {
		if undefined, ok := undefinedBytes[cm]; ok {
			d.charmap = cm
			for _, b := range undefined {
				d.undefined[b] = true
			}
		}
	}
	return d
}

// LookupEncoding 校验编码名称是否可用（对外导出，供配置校验使用）
func LookupEncoding(name string) error {
	_, err := newTextDecoder(name, DecodeStrict)
	return err
}

func newTextDecoder(name string, policy DecodePolicy) (*textDecoder, error) {
	if name == "" {
		name = DefaultEncoding
	}
	if policy == "" {
		policy = DefaultDecodePolicy
	}
	if !policy.Valid() {
		return nil, fmt.Errorf("未知的解码策略: %s", policy)
	}

	normalized := strings.ToLower(strings.TrimSpace(name))
	switch normalized {
	case "utf-8", "utf8":
		return &textDecoder{name: name, utf8: true, policy: policy}, nil
	}

	// IANA优先：htmlindex 会把 iso-8859-1 等别名解析为 windows-1252
	if enc, err := ianaindex.IANA.Encoding(normalized); err == nil && enc != nil {
		return newCharsetDecoder(name, enc, policy), nil
	}
	enc, err := htmlindex.Get(normalized)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("不支持的编码: %s", name)
	}
	return newCharsetDecoder(name, enc, policy), nil
}

// decode 将原始字节解码为UTF-8字符串
func (d *textDecoder) decode(raw []byte) (string, error) {
	if isASCII(raw) {
		return string(raw), nil
	}

	if d.utf8 {
		if utf8.Valid(raw) {
			return string(raw), nil
		}
		if d.policy == DecodeStrict {
			return "", fmt.Errorf("无效的utf-8字节序列: %q", raw)
		}
		return strings.ToValidUTF8(string(raw), string(utf8.RuneError)), nil
	}

	if d.charmap != nil {
		return d.decodeBytewise(raw)
	}

	out, err := d.enc.NewDecoder().Bytes(raw)
	if err != nil {
		if d.policy == DecodeStrict {
			return "", fmt.Errorf("%s解码失败: %w", d.name, err)
		}
		return strings.ToValidUTF8(string(raw), string(utf8.RuneError)), nil
	}
	if d.policy == DecodeStrict && bytes.ContainsRune(out, utf8.RuneError) {
		return "", fmt.Errorf("%s中存在无法解码的字节: %q", d.name, raw)
	}
	return string(out), nil
}

func (d *textDecoder) decodeBytewise(raw []byte) (string, error) {
	var sb strings.Builder
	sb.Grow(len(raw))
	for _, b := range raw {
		if d.undefined[b] {
			if d.policy == DecodeStrict {
				return "", fmt.Errorf("%s中存在未定义的字节0x%02X: %q", d.name, b, raw)
			}
			sb.WriteRune(utf8.RuneError)
			continue
		}
		sb.WriteRune(d.charmap.DecodeByte(b))
	}
	return sb.String(), nil
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
