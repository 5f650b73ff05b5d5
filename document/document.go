// Package document 查询参数树
//
// 上游解析器产出的参数以 ParsedInputValue 表示：单值、列表或保持键顺序的对象
package document

import (
	"github.com/hatlonely/qcore/value"
)

// ParsedInputValue 封闭接口，只有 Single、List、*ParsedInputMap 三种
type ParsedInputValue interface {
	parsedInput()
}

// Single 标量值
type Single struct {
	Value value.Value
}

// List 列表
type List []ParsedInputValue

func (Single) parsedInput()          {}
func (List) parsedInput()            {}
func (*ParsedInputMap) parsedInput() {}

// ParsedInputMap 保持插入顺序的对象
type ParsedInputMap struct {
	keys   []string
	values map[string]ParsedInputValue
}

func NewParsedInputMap() *ParsedInputMap {
	return &ParsedInputMap{values: map[string]ParsedInputValue{}}
}

// Set 设置键值，已存在的键保留原位置
func (m *ParsedInputMap) Set(key string, v ParsedInputValue) *ParsedInputMap {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
	return m
}

func (m *ParsedInputMap) Get(key string) (ParsedInputValue, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Remove 删除并返回键对应的值
func (m *ParsedInputMap) Remove(key string) (ParsedInputValue, bool) {
	v, ok := m.values[key]
	if !ok {
		return nil, false
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i:i], m.keys[i+1:]...)
			break
		}
	}
	return v, true
}

func (m *ParsedInputMap) Keys() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keys...)
}

func (m *ParsedInputMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Iter 按插入顺序遍历，fn 返回 false 时停止
func (m *ParsedInputMap) Iter(fn func(key string, v ParsedInputValue) bool) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		if !fn(k, m.values[k]) {
			return
		}
	}
}

// Clone 浅拷贝
func (m *ParsedInputMap) Clone() *ParsedInputMap {
	out := NewParsedInputMap()
	m.Iter(func(k string, v ParsedInputValue) bool {
		out.Set(k, v)
		return true
	})
	return out
}

var relationEnvelopeKeys = []string{"is", "isNot", "every", "some", "none"}

// IsRelationEnvelope 是否显式使用了关系过滤的包装键
func (m *ParsedInputMap) IsRelationEnvelope() bool {
	for _, k := range relationEnvelopeKeys {
		if _, ok := m.values[k]; ok {
			return true
		}
	}
	return false
}

// Map 便于构造输入的辅助函数，按参数顺序成对给出键和值
//
//	document.Map("name", "a", "age", document.Map("gt", 3))
func Map(kvs ...any) *ParsedInputMap {
	m := NewParsedInputMap()
	for i := 0; i+1 < len(kvs); i += 2 {
		m.Set(kvs[i].(string), From(kvs[i+1]))
	}
	return m
}

// From 将 Go 值转换为 ParsedInputValue
func From(v any) ParsedInputValue {
	switch x := v.(type) {
	case ParsedInputValue:
		return x
	case []any:
		out := make(List, 0, len(x))
		for _, e := range x {
			out = append(out, From(e))
		}
		return out
	case []*ParsedInputMap:
		out := make(List, 0, len(x))
		for _, e := range x {
			out = append(out, e)
		}
		return out
	}
	return Single{Value: value.FromAny(v)}
}

// ToValue 将参数树还原为 Value，对象保持键顺序
func ToValue(v ParsedInputValue) value.Value {
	switch x := v.(type) {
	case Single:
		return x.Value
	case List:
		out := make(value.List, 0, len(x))
		for _, e := range x {
			out = append(out, ToValue(e))
		}
		return out
	case *ParsedInputMap:
		out := make(value.Object, 0, x.Len())
		x.Iter(func(k string, e ParsedInputValue) bool {
			out = append(out, value.Pair{Key: k, Value: ToValue(e)})
			return true
		})
		return out
	}
	return value.Null{}
}
