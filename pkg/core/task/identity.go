package task

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Kind 任务类型（对外导出）
type Kind string

const (
	KindCleanup Kind = "cleanup"
	KindExtract Kind = "extract"
	KindLoad    Kind = "load"
)

// Param 有序参数中的一项
type Param struct {
	Name  string
	Value any
}

// Identity 任务身份：类型加有序参数元组（对外导出）
// 类型与参数相同的两个任务是同一个任务，共享同一个完成标记
type Identity struct {
	Kind   Kind
	Params []Param
}

// Keyer 自定义规范序列化的参数值
type Keyer interface {
	CanonicalKey() string
}

// Key 规范键：kind(name=value,...)
// 字符串加引号，map按键排序，切片保持顺序
func (id Identity) Key() string {
	var sb strings.Builder
	sb.WriteString(string(id.Kind))
	sb.WriteByte('(')
	for i, p := range id.Params {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(p.Name)
		sb.WriteByte('=')
		writeCanonical(&sb, p.Value)
	}
	sb.WriteByte(')')
	return sb.String()
}

// String 实现fmt.Stringer
func (id Identity) String() string {
	return id.Key()
}

// Get 按名称取参数值
func (id Identity) Get(name string) (any, bool) {
	for _, p := range id.Params {
		if p.Name == name {
			return p.Value, true
		}
	}
	return nil, false
}

func writeCanonical(sb *strings.Builder, v any) {
	switch x := v.(type) {
	case nil:
		sb.WriteString("null")
		return
	case Keyer:
		sb.WriteString(strconv.Quote(x.CanonicalKey()))
		return
	case string:
		sb.WriteString(strconv.Quote(x))
		return
	case bool:
		sb.WriteString(strconv.FormatBool(x))
		return
	case fmt.Stringer:
		sb.WriteString(strconv.Quote(x.String()))
		return
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		sb.WriteString(strconv.Quote(rv.String()))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		sb.WriteString(strconv.FormatInt(rv.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		sb.WriteString(strconv.FormatUint(rv.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		sb.WriteString(strconv.FormatFloat(rv.Float(), 'g', -1, 64))
	case reflect.Slice, reflect.Array:
		sb.WriteByte('[')
		for i := 0; i < rv.Len(); i++ {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeCanonical(sb, rv.Index(i).Interface())
		}
		sb.WriteByte(']')
	case reflect.Map:
		keys := rv.MapKeys()
		type entry struct {
			key string
			val reflect.Value
		}
		entries := make([]entry, 0, len(keys))
		for _, k := range keys {
			entries = append(entries, entry{key: fmt.Sprint(k.Interface()), val: rv.MapIndex(k)})
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })
		sb.WriteByte('{')
		for i, e := range entries {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strconv.Quote(e.key))
			sb.WriteByte(':')
			writeCanonical(sb, e.val.Interface())
		}
		sb.WriteByte('}')
	case reflect.Pointer:
		if rv.IsNil() {
			sb.WriteString("null")
			return
		}
		writeCanonical(sb, rv.Elem().Interface())
	default:
		sb.WriteString(strconv.Quote(fmt.Sprint(v)))
	}
}
