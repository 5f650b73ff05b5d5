// Package value 定义查询引擎内部使用的标量值
//
// Value 是一个封闭接口，只有本包中的类型可以实现，
// 这样所有 type switch 都可以做到穷举
package value

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Value 封闭的值类型
type Value interface {
	value()
}

type Null struct{}

type Bool bool

type Int int64

type Float float64

type String string

type Bytes []byte

type DateTime time.Time

type UUID uuid.UUID

type Enum string

// Json 原始 JSON 文本
type Json string

type List []Value

// Pair 对象中的键值对
type Pair struct {
	Key   string
	Value Value
}

// Object 保持键顺序的对象
type Object []Pair

func (Null) value()     {}
func (Bool) value()     {}
func (Int) value()      {}
func (Float) value()    {}
func (String) value()   {}
func (Bytes) value()    {}
func (DateTime) value() {}
func (UUID) value()     {}
func (Enum) value()     {}
func (Json) value()     {}
func (List) value()     {}
func (Object) value()   {}

// Get 按键查找对象中的值
func (o Object) Get(key string) (Value, bool) {
	for _, p := range o {
		if p.Key == key {
			return p.Value, true
		}
	}
	return nil, false
}

// Keys 返回对象的键，保持原有顺序
func (o Object) Keys() []string {
	keys := make([]string, 0, len(o))
	for _, p := range o {
		keys = append(keys, p.Key)
	}
	return keys
}

func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// TypeName 返回值的类型名，用于错误信息
func TypeName(v Value) string {
	switch v.(type) {
	case nil, Null:
		return "Null"
	case Bool:
		return "Boolean"
	case Int:
		return "Int"
	case Float:
		return "Float"
	case String:
		return "String"
	case Bytes:
		return "Bytes"
	case DateTime:
		return "DateTime"
	case UUID:
		return "UUID"
	case Enum:
		return "Enum"
	case Json:
		return "Json"
	case List:
		return "List"
	case Object:
		return "Object"
	}
	return fmt.Sprintf("%T", v)
}

// Equal 结构相等，对象按键比较且与顺序无关
func Equal(a, b Value) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	switch x := a.(type) {
	case Bool:
		y, ok := b.(Bool)
		return ok && x == y
	case Int:
		switch y := b.(type) {
		case Int:
			return x == y
		case Float:
			return float64(x) == float64(y)
		}
		return false
	case Float:
		switch y := b.(type) {
		case Float:
			return x == y
		case Int:
			return float64(x) == float64(y)
		}
		return false
	case String:
		y, ok := b.(String)
		return ok && x == y
	case Enum:
		y, ok := b.(Enum)
		return ok && x == y
	case Json:
		y, ok := b.(Json)
		return ok && x == y
	case Bytes:
		y, ok := b.(Bytes)
		return ok && bytes.Equal(x, y)
	case DateTime:
		y, ok := b.(DateTime)
		return ok && time.Time(x).Equal(time.Time(y))
	case UUID:
		y, ok := b.(UUID)
		return ok && x == y
	case List:
		y, ok := b.(List)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case Object:
		y, ok := b.(Object)
		if !ok || len(x) != len(y) {
			return false
		}
		for _, p := range x {
			q, ok := y.Get(p.Key)
			if !ok || !Equal(p.Value, q) {
				return false
			}
		}
		return true
	}
	return false
}

// Key 返回值的规范化字符串，相等的值得到相同的 Key
func Key(v Value) string {
	var sb strings.Builder
	writeKey(&sb, v)
	return sb.String()
}

func writeKey(sb *strings.Builder, v Value) {
	switch x := v.(type) {
	case nil, Null:
		sb.WriteString("n:")
	case Bool:
		sb.WriteString("b:" + strconv.FormatBool(bool(x)))
	case Int:
		sb.WriteString("f:" + strconv.FormatFloat(float64(x), 'g', -1, 64))
	case Float:
		// 整数与等值浮点数共享同一个 Key
		sb.WriteString("f:" + strconv.FormatFloat(float64(x), 'g', -1, 64))
	case String:
		sb.WriteString("s:" + strconv.Quote(string(x)))
	case Enum:
		sb.WriteString("e:" + string(x))
	case Json:
		sb.WriteString("j:" + string(x))
	case Bytes:
		sb.WriteString("x:" + hex.EncodeToString(x))
	case DateTime:
		sb.WriteString("t:" + time.Time(x).UTC().Format(time.RFC3339Nano))
	case UUID:
		sb.WriteString("u:" + uuid.UUID(x).String())
	case List:
		sb.WriteString("[")
		for i, e := range x {
			if i > 0 {
				sb.WriteString(",")
			}
			writeKey(sb, e)
		}
		sb.WriteString("]")
	case Object:
		keys := x.Keys()
		sort.Strings(keys)
		sb.WriteString("{")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(",")
			}
			val, _ := x.Get(k)
			sb.WriteString(strconv.Quote(k) + "=")
			writeKey(sb, val)
		}
		sb.WriteString("}")
	}
}

// Format 便于日志输出
func Format(v Value) string {
	switch x := v.(type) {
	case nil, Null:
		return "null"
	case Bool:
		return strconv.FormatBool(bool(x))
	case Int:
		return strconv.FormatInt(int64(x), 10)
	case Float:
		return strconv.FormatFloat(float64(x), 'g', -1, 64)
	case String:
		return strconv.Quote(string(x))
	case Enum:
		return string(x)
	case Json:
		return string(x)
	case Bytes:
		return "0x" + hex.EncodeToString(x)
	case DateTime:
		return time.Time(x).Format(time.RFC3339Nano)
	case UUID:
		return uuid.UUID(x).String()
	case List:
		parts := make([]string, 0, len(x))
		for _, e := range x {
			parts = append(parts, Format(e))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case Object:
		parts := make([]string, 0, len(x))
		for _, p := range x {
			parts = append(parts, p.Key+": "+Format(p.Value))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return fmt.Sprintf("%v", v)
}

// Compare 比较两个同类标量，ok 为 false 表示不可比较
func Compare(a, b Value) (c int, ok bool) {
	switch x := a.(type) {
	case Int, Float:
		fa, _ := asFloat(x)
		fb, ok := asFloat(b)
		if !ok {
			return 0, false
		}
		return cmpOrdered(fa, fb), true
	case String:
		switch y := b.(type) {
		case String:
			return strings.Compare(string(x), string(y)), true
		case Enum:
			return strings.Compare(string(x), string(y)), true
		}
	case Enum:
		switch y := b.(type) {
		case Enum:
			return strings.Compare(string(x), string(y)), true
		case String:
			return strings.Compare(string(x), string(y)), true
		}
	case DateTime:
		if y, ok := b.(DateTime); ok {
			return time.Time(x).Compare(time.Time(y)), true
		}
	case Bool:
		if y, ok := b.(Bool); ok {
			if x == y {
				return 0, true
			}
			if !x {
				return -1, true
			}
			return 1, true
		}
	case UUID:
		if y, ok := b.(UUID); ok {
			return bytes.Compare(x[:], y[:]), true
		}
	case Bytes:
		if y, ok := b.(Bytes); ok {
			return bytes.Compare(x, y), true
		}
	}
	return 0, false
}

func asFloat(v Value) (float64, bool) {
	switch x := v.(type) {
	case Int:
		return float64(x), true
	case Float:
		return float64(x), true
	}
	return 0, false
}

func cmpOrdered(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
