package selection

import (
	"strings"

	"github.com/hatlonely/qcore/filter"
	"github.com/hatlonely/qcore/qerror"
	"github.com/hatlonely/qcore/schema"
	"github.com/hatlonely/qcore/value"
)

// ResultPair 字段与值
type ResultPair struct {
	Field *schema.ScalarField
	Value value.Value
}

// SelectionResult 一组字段的取值，通常是记录的主键，构造后不可修改
type SelectionResult struct {
	pairs []ResultPair
}

type SelectionResultBuilder struct {
	pairs []ResultPair
}

func NewSelectionResultBuilder() *SelectionResultBuilder {
	return &SelectionResultBuilder{}
}

// Add 同一字段重复添加时覆盖原值
func (b *SelectionResultBuilder) Add(f *schema.ScalarField, v value.Value) *SelectionResultBuilder {
	for i := range b.pairs {
		if b.pairs[i].Field == f {
			b.pairs[i].Value = v
			return b
		}
	}
	b.pairs = append(b.pairs, ResultPair{Field: f, Value: v})
	return b
}

func (b *SelectionResultBuilder) Build() SelectionResult {
	return SelectionResult{pairs: append([]ResultPair(nil), b.pairs...)}
}

func (r SelectionResult) Pairs() []ResultPair {
	return append([]ResultPair(nil), r.pairs...)
}

func (r SelectionResult) Values() []value.Value {
	out := make([]value.Value, 0, len(r.pairs))
	for _, p := range r.pairs {
		out = append(out, p.Value)
	}
	return out
}

func (r SelectionResult) Fields() []*schema.ScalarField {
	out := make([]*schema.ScalarField, 0, len(r.pairs))
	for _, p := range r.pairs {
		out = append(out, p.Field)
	}
	return out
}

func (r SelectionResult) Get(name string) (value.Value, bool) {
	for _, p := range r.pairs {
		if p.Field.Name() == name {
			return p.Value, true
		}
	}
	return nil, false
}

func (r SelectionResult) Len() int { return len(r.pairs) }

func (r SelectionResult) IsEmpty() bool { return len(r.pairs) == 0 }

// Split 拆分为单字段的结果
func (r SelectionResult) Split() []SelectionResult {
	out := make([]SelectionResult, 0, len(r.pairs))
	for _, p := range r.pairs {
		out = append(out, SelectionResult{pairs: []ResultPair{p}})
	}
	return out
}

// Filter 所有字段等值的 AND，单字段时直接返回等值条件
func (r SelectionResult) Filter() filter.Filter {
	if len(r.pairs) == 1 {
		return filter.Equals(r.pairs[0].Field, r.pairs[0].Value)
	}
	fs := make([]filter.Filter, 0, len(r.pairs))
	for _, p := range r.pairs {
		fs = append(fs, filter.Equals(p.Field, p.Value))
	}
	return &filter.And{Filters: fs}
}

// Key 规范化字符串，可作为缓存键
func (r SelectionResult) Key() string {
	parts := make([]string, 0, len(r.pairs))
	for _, p := range r.pairs {
		parts = append(parts, p.Field.Name()+"="+value.Key(p.Value))
	}
	return strings.Join(parts, "&")
}

func (r SelectionResult) String() string {
	parts := make([]string, 0, len(r.pairs))
	for _, p := range r.pairs {
		parts = append(parts, p.Field.Name()+": "+value.Format(p.Value))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Assimilate 将一行值按顺序对应到选中的标量字段
func (s FieldSelection) Assimilate(values []value.Value) (SelectionResult, error) {
	scalars := s.Scalars()
	if len(scalars) != len(values) {
		return SelectionResult{}, qerror.NewLengthMismatch("", len(scalars), len(values))
	}
	b := NewSelectionResultBuilder()
	for i, f := range scalars {
		b.Add(f, values[i])
	}
	return b.Build(), nil
}

// ToSelectionResult 从按字段名索引的值中取出选中的标量，缺失时为 Null
func (s FieldSelection) ToSelectionResult(row map[string]value.Value) SelectionResult {
	b := NewSelectionResultBuilder()
	for _, f := range s.Scalars() {
		v, ok := row[f.Name()]
		if !ok {
			v = value.Null{}
		}
		b.Add(f, v)
	}
	return b.Build()
}

// FiltersFor 多个结果的 OR，单字段主键时合并为 In
func FiltersFor(results []SelectionResult) filter.Filter {
	if len(results) == 0 {
		return filter.MatchNone()
	}
	if results[0].Len() == 1 {
		f := results[0].pairs[0].Field
		vs := make([]value.Value, 0, len(results))
		for _, r := range results {
			vs = append(vs, r.pairs[0].Value)
		}
		return filter.In(f, vs)
	}
	fs := make([]filter.Filter, 0, len(results))
	for _, r := range results {
		fs = append(fs, r.Filter())
	}
	return &filter.Or{Filters: fs}
}
