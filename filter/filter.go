// Package filter 过滤条件树
//
// Filter 是封闭接口，由 extract 包从查询参数中构造，由各个连接器翻译成后端查询
package filter

import (
	"github.com/hatlonely/qcore/schema"
	"github.com/hatlonely/qcore/value"
)

// Filter 过滤条件
type Filter interface {
	filter()
}

func (*ScalarFilter) filter()      {}
func (*RelationFilter) filter()    {}
func (*OneRelationIsNull) filter() {}
func (*CompositeFilter) filter()   {}
func (*And) filter()               {}
func (*Or) filter()                {}
func (*Not) filter()               {}
func (Empty) filter()              {}

// And 所有子条件都满足，没有子条件时匹配全部
type And struct {
	Filters []Filter
}

// Or 任一子条件满足，没有子条件时不匹配任何记录
type Or struct {
	Filters []Filter
}

// Not 所有子条件都不满足，即 NOT a AND NOT b
type Not struct {
	Filters []Filter
}

// Empty 中性标记，由上层移除
type Empty struct{}

type QueryMode int

const (
	ModeDefault QueryMode = iota
	ModeInsensitive
)

func (m QueryMode) String() string {
	if m == ModeInsensitive {
		return "insensitive"
	}
	return "default"
}

type Op int

const (
	OpEquals Op = iota
	OpNotEquals
	OpContains
	OpNotContains
	OpStartsWith
	OpNotStartsWith
	OpEndsWith
	OpNotEndsWith
	OpLessThan
	OpLessThanOrEquals
	OpGreaterThan
	OpGreaterThanOrEquals
	OpIn
	OpNotIn
	OpSearch
	OpNotSearch
	OpIsSet
)

var opNames = map[Op]string{
	OpEquals:              "equals",
	OpNotEquals:           "notEquals",
	OpContains:            "contains",
	OpNotContains:         "notContains",
	OpStartsWith:          "startsWith",
	OpNotStartsWith:       "notStartsWith",
	OpEndsWith:            "endsWith",
	OpNotEndsWith:         "notEndsWith",
	OpLessThan:            "lt",
	OpLessThanOrEquals:    "lte",
	OpGreaterThan:         "gt",
	OpGreaterThanOrEquals: "gte",
	OpIn:                  "in",
	OpNotIn:               "notIn",
	OpSearch:              "search",
	OpNotSearch:           "notSearch",
	OpIsSet:               "isSet",
}

func (o Op) String() string {
	return opNames[o]
}

// Invert 取反后的操作符，IsSet 通过取反 Value 表示
func (o Op) Invert() Op {
	switch o {
	case OpEquals:
		return OpNotEquals
	case OpNotEquals:
		return OpEquals
	case OpContains:
		return OpNotContains
	case OpNotContains:
		return OpContains
	case OpStartsWith:
		return OpNotStartsWith
	case OpNotStartsWith:
		return OpStartsWith
	case OpEndsWith:
		return OpNotEndsWith
	case OpNotEndsWith:
		return OpEndsWith
	case OpLessThan:
		return OpGreaterThanOrEquals
	case OpLessThanOrEquals:
		return OpGreaterThan
	case OpGreaterThan:
		return OpLessThanOrEquals
	case OpGreaterThanOrEquals:
		return OpLessThan
	case OpIn:
		return OpNotIn
	case OpNotIn:
		return OpIn
	case OpSearch:
		return OpNotSearch
	case OpNotSearch:
		return OpSearch
	}
	return o
}

// Condition 标量条件，In/NotIn 使用 Values，其余使用 Value
type Condition struct {
	Op     Op
	Value  value.Value
	Values []value.Value
}

// Invert 取反，比较运算直接翻转操作符
func (c Condition) Invert() Condition {
	if c.Op == OpIsSet {
		b, _ := c.Value.(value.Bool)
		return Condition{Op: OpIsSet, Value: !b}
	}
	return Condition{Op: c.Op.Invert(), Value: c.Value, Values: c.Values}
}

// ScalarProjection 条件作用的字段
//
// 普通条件只有一个字段，全文检索合并后可能包含多个字段，任一字段命中即满足
type ScalarProjection struct {
	Fields   []*schema.ScalarField
	Compound bool
}

func Single(f *schema.ScalarField) ScalarProjection {
	return ScalarProjection{Fields: []*schema.ScalarField{f}}
}

func Compound(fs ...*schema.ScalarField) ScalarProjection {
	return ScalarProjection{Fields: fs, Compound: true}
}

// Field 第一个字段
func (p ScalarProjection) Field() *schema.ScalarField {
	if len(p.Fields) == 0 {
		return nil
	}
	return p.Fields[0]
}

type ScalarFilter struct {
	Projection ScalarProjection
	Condition  Condition
	Mode       QueryMode
}

type RelationCondition int

const (
	EveryRelatedRecord RelationCondition = iota
	AtLeastOneRelatedRecord
	NoRelatedRecord
	ToOneRelatedRecord
)

func (c RelationCondition) String() string {
	switch c {
	case EveryRelatedRecord:
		return "every"
	case AtLeastOneRelatedRecord:
		return "some"
	case NoRelatedRecord:
		return "none"
	}
	return "is"
}

// RelationFilter 关系过滤，Nested 作用于关联模型
type RelationFilter struct {
	Field     *schema.RelationField
	Nested    Filter
	Condition RelationCondition
}

// OneRelationIsNull 一对一关系不存在
type OneRelationIsNull struct {
	Field *schema.RelationField
}

type CompositeCondition int

const (
	CompositeEvery CompositeCondition = iota
	CompositeSome
	CompositeNone
	CompositeEquals
	CompositeIs
	CompositeIsNot
	CompositeIsEmpty
	CompositeIsSet
)

func (c CompositeCondition) String() string {
	return [...]string{"every", "some", "none", "equals", "is", "isNot", "isEmpty", "isSet"}[c]
}

// CompositeFilter 复合类型字段过滤
//
// Every/Some/None/Is/IsNot 使用 Nested，Equals 使用 Value，IsEmpty/IsSet 使用 Flag
type CompositeFilter struct {
	Field     *schema.CompositeField
	Condition CompositeCondition
	Nested    Filter
	Value     value.Value
	Flag      bool
}

func Equals(f *schema.ScalarField, v value.Value) *ScalarFilter {
	return &ScalarFilter{Projection: Single(f), Condition: Condition{Op: OpEquals, Value: v}}
}

func NewScalar(f *schema.ScalarField, op Op, v value.Value) *ScalarFilter {
	return &ScalarFilter{Projection: Single(f), Condition: Condition{Op: op, Value: v}}
}

func In(f *schema.ScalarField, vs []value.Value) *ScalarFilter {
	return &ScalarFilter{Projection: Single(f), Condition: Condition{Op: OpIn, Values: vs}}
}

func NotIn(f *schema.ScalarField, vs []value.Value) *ScalarFilter {
	return &ScalarFilter{Projection: Single(f), Condition: Condition{Op: OpNotIn, Values: vs}}
}

// Search 全文检索，query 为原始检索语句
func Search(query string, fs ...*schema.ScalarField) *ScalarFilter {
	return &ScalarFilter{Projection: Compound(fs...), Condition: Condition{Op: OpSearch, Value: value.String(query)}}
}

func AndOf(fs ...Filter) *And { return &And{Filters: fs} }
func OrOf(fs ...Filter) *Or   { return &Or{Filters: fs} }
func NotOf(fs ...Filter) *Not { return &Not{Filters: fs} }

func EmptyFilter() Filter { return Empty{} }

// MatchAll 空的 And
func MatchAll() Filter { return &And{} }

// MatchNone 空的 Or
func MatchNone() Filter { return &Or{} }

func IsEmpty(f Filter) bool {
	_, ok := f.(Empty)
	return f == nil || ok
}

// IsMatchAll 是否为不带任何条件的过滤
func IsMatchAll(f Filter) bool {
	switch x := f.(type) {
	case nil, Empty:
		return true
	case *And:
		for _, c := range x.Filters {
			if !IsMatchAll(c) {
				return false
			}
		}
		return true
	}
	return false
}
