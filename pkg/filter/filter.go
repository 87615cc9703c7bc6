// Package filter 以数据形式描述源记录的过滤条件
package filter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Condition 单个字段的取值条件：字段的规范字符串形式必须落在In集合中
type Condition struct {
	Field string   `yaml:"field" json:"field"`
	In    []string `yaml:"in" json:"in"`
}

// Spec 过滤规格（对外导出）
// All中的条件全部满足时记录才被接受；空规格接受所有记录
type Spec struct {
	All []Condition `yaml:"all,omitempty" json:"all,omitempty"`
}

// AcceptAll 接受所有记录的过滤规格
func AcceptAll() Spec {
	return Spec{}
}

// FieldIn 构造单条件规格，便于组合
func FieldIn(field string, values ...string) Condition {
	return Condition{Field: field, In: values}
}

// And 组合多个条件
func And(conds ...Condition) Spec {
	return Spec{All: conds}
}

// Empty 是否为空规格
func (s Spec) Empty() bool {
	return len(s.All) == 0
}

// Validate 校验规格合法性
func (s Spec) Validate() error {
	for i, c := range s.All {
		if strings.TrimSpace(c.Field) == "" {
			return fmt.Errorf("filter.all[%d].field不能为空", i)
		}
		if len(c.In) == 0 {
			return fmt.Errorf("filter.all[%d].in不能为空", i)
		}
	}
	return nil
}

// Match 判断记录是否满足所有条件
// 缺失字段或nil值永远不匹配
func (s Spec) Match(rec map[string]any) bool {
	for _, c := range s.All {
		v, ok := rec[c.Field]
		if !ok {
			return false
		}
		str, ok := Canonical(v)
		if !ok {
			return false
		}
		if !contains(c.In, str) {
			return false
		}
	}
	return true
}

// CanonicalKey 规格的规范序列化，参与任务身份计算
// 条件保持声明顺序，取值集合排序去重
func (s Spec) CanonicalKey() string {
	if s.Empty() {
		return "all"
	}
	parts := make([]string, 0, len(s.All))
	for _, c := range s.All {
		values := append([]string(nil), c.In...)
		sort.Strings(values)
		values = dedupSorted(values)
		quoted := make([]string, len(values))
		for i, v := range values {
			quoted[i] = strconv.Quote(v)
		}
		parts = append(parts, fmt.Sprintf("%s in [%s]", c.Field, strings.Join(quoted, ",")))
	}
	return strings.Join(parts, " and ")
}

// String 实现fmt.Stringer
func (s Spec) String() string {
	return s.CanonicalKey()
}

// Canonical 将记录值转换为用于比较的规范字符串
// int64按十进制，浮点按最短表示，bool为true/false，日期为2006-01-02，nil返回false
func Canonical(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case int:
		return strconv.Itoa(x), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(x), true
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02"), true
		}
		return x.Format(time.RFC3339), true
	case fmt.Stringer:
		return x.String(), true
	default:
		return fmt.Sprint(x), true
	}
}

func contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}

func dedupSorted(values []string) []string {
	if len(values) < 2 {
		return values
	}
	out := values[:1]
	for _, v := range values[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
