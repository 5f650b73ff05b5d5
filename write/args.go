// Package write 写操作参数、记录过滤与主键解析
package write

import (
	"github.com/hatlonely/qcore/schema"
	"github.com/hatlonely/qcore/selection"
	"github.com/hatlonely/qcore/value"
)

type OpKind int

const (
	OpSet OpKind = iota
	OpIncrement
	OpDecrement
	OpMultiply
	OpDivide
	OpUnset
)

func (k OpKind) String() string {
	return [...]string{"set", "increment", "decrement", "multiply", "divide", "unset"}[k]
}

// WriteOperation 对单个字段的写操作
type WriteOperation struct {
	Kind  OpKind
	Value value.Value
}

func Set(v value.Value) WriteOperation       { return WriteOperation{Kind: OpSet, Value: v} }
func Increment(v value.Value) WriteOperation { return WriteOperation{Kind: OpIncrement, Value: v} }
func Decrement(v value.Value) WriteOperation { return WriteOperation{Kind: OpDecrement, Value: v} }
func Multiply(v value.Value) WriteOperation  { return WriteOperation{Kind: OpMultiply, Value: v} }
func Divide(v value.Value) WriteOperation    { return WriteOperation{Kind: OpDivide, Value: v} }
func Unset() WriteOperation                  { return WriteOperation{Kind: OpUnset, Value: value.Bool(true)} }

// IsArithmetic 是否依赖字段原值
func (o WriteOperation) IsArithmetic() bool {
	return o.Kind == OpIncrement || o.Kind == OpDecrement || o.Kind == OpMultiply || o.Kind == OpDivide
}

// Apply 在内存中计算写操作后的值，Unset 返回 Null
func (o WriteOperation) Apply(current value.Value) value.Value {
	switch o.Kind {
	case OpSet:
		return o.Value
	case OpUnset:
		return value.Null{}
	}
	if value.IsNull(current) {
		return value.Null{}
	}
	ci, cInt := current.(value.Int)
	oi, oInt := o.Value.(value.Int)
	if cInt && oInt {
		switch o.Kind {
		case OpIncrement:
			return ci + oi
		case OpDecrement:
			return ci - oi
		case OpMultiply:
			return ci * oi
		case OpDivide:
			if oi == 0 {
				return value.Null{}
			}
			return ci / oi
		}
	}
	cf, ok1 := toFloat(current)
	of, ok2 := toFloat(o.Value)
	if !ok1 || !ok2 {
		return current
	}
	switch o.Kind {
	case OpIncrement:
		return value.Float(cf + of)
	case OpDecrement:
		return value.Float(cf - of)
	case OpMultiply:
		return value.Float(cf * of)
	}
	if of == 0 {
		return value.Null{}
	}
	return value.Float(cf / of)
}

func toFloat(v value.Value) (float64, bool) {
	switch x := v.(type) {
	case value.Int:
		return float64(x), true
	case value.Float:
		return float64(x), true
	}
	return 0, false
}

// Entry WriteArgs 中的一项
type Entry struct {
	Field schema.Field
	Op    WriteOperation
}

// WriteArgs 按数据库字段名索引的写操作，保持插入顺序，每个字段最多一个操作
type WriteArgs struct {
	keys    []string
	entries map[string]Entry
}

func NewWriteArgs() *WriteArgs {
	return &WriteArgs{entries: map[string]Entry{}}
}

// Insert 已存在的字段原位替换
func (a *WriteArgs) Insert(f schema.Field, op WriteOperation) *WriteArgs {
	k := f.DBName()
	if _, ok := a.entries[k]; !ok {
		a.keys = append(a.keys, k)
	}
	a.entries[k] = Entry{Field: f, Op: op}
	return a
}

func (a *WriteArgs) Get(dbName string) (Entry, bool) {
	if a == nil {
		return Entry{}, false
	}
	e, ok := a.entries[dbName]
	return e, ok
}

func (a *WriteArgs) HasArgFor(dbName string) bool {
	_, ok := a.Get(dbName)
	return ok
}

// Take 取出并删除
func (a *WriteArgs) Take(dbName string) (Entry, bool) {
	e, ok := a.Get(dbName)
	if !ok {
		return Entry{}, false
	}
	delete(a.entries, dbName)
	for i, k := range a.keys {
		if k == dbName {
			a.keys = append(a.keys[:i:i], a.keys[i+1:]...)
			break
		}
	}
	return e, true
}

func (a *WriteArgs) Keys() []string {
	if a == nil {
		return nil
	}
	return append([]string(nil), a.keys...)
}

// Entries 按插入顺序返回
func (a *WriteArgs) Entries() []Entry {
	if a == nil {
		return nil
	}
	out := make([]Entry, 0, len(a.keys))
	for _, k := range a.keys {
		out = append(out, a.entries[k])
	}
	return out
}

func (a *WriteArgs) Len() int {
	if a == nil {
		return 0
	}
	return len(a.keys)
}

func (a *WriteArgs) IsEmpty() bool { return a.Len() == 0 }

func (a *WriteArgs) Clone() *WriteArgs {
	out := NewWriteArgs()
	for _, e := range a.Entries() {
		out.Insert(e.Field, e.Op)
	}
	return out
}

// AsSelectionResult 所有字段都有 Set 时返回对应的选择结果
func (a *WriteArgs) AsSelectionResult(fields []*schema.ScalarField) (selection.SelectionResult, bool) {
	if len(fields) == 0 {
		return selection.SelectionResult{}, false
	}
	b := selection.NewSelectionResultBuilder()
	for _, f := range fields {
		e, ok := a.Get(f.DBName())
		if !ok || e.Op.Kind != OpSet || value.IsNull(e.Op.Value) {
			return selection.SelectionResult{}, false
		}
		b.Add(f, e.Op.Value)
	}
	return b.Build(), true
}
