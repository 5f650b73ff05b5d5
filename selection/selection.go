// Package selection 字段选择、选择结果与结果值的类型转换
package selection

import (
	"strings"

	"github.com/hatlonely/qcore/schema"
)

// SelectedField 封闭接口：标量、复合、关系、虚拟字段
type SelectedField interface {
	Name() string
	DBName() string
	selected()
}

func (*ScalarSelection) selected()    {}
func (*CompositeSelection) selected() {}
func (*RelationSelection) selected()  {}
func (*VirtualSelection) selected()   {}

type ScalarSelection struct {
	Field *schema.ScalarField
}

func (s *ScalarSelection) Name() string   { return s.Field.Name() }
func (s *ScalarSelection) DBName() string { return s.Field.DBName() }

type CompositeSelection struct {
	Field      *schema.CompositeField
	Selections []SelectedField
}

func (s *CompositeSelection) Name() string   { return s.Field.Name() }
func (s *CompositeSelection) DBName() string { return s.Field.DBName() }

// Find 按字段名或数据库字段名查找子选择
func (s *CompositeSelection) Find(name string) (SelectedField, bool) {
	for _, f := range s.Selections {
		if f.Name() == name || f.DBName() == name {
			return f, true
		}
	}
	return nil, false
}

type RelationSelection struct {
	Field      *schema.RelationField
	Selections []SelectedField
}

func (s *RelationSelection) Name() string   { return s.Field.Name() }
func (s *RelationSelection) DBName() string { return s.Field.Name() }

type VirtualKind int

const (
	RelationCount VirtualKind = iota
)

const (
	countGroup       = "_count"
	countAliasPrefix = "_aggr_count_"
)

// VirtualSelection 计算字段，目前只有关系计数
type VirtualSelection struct {
	Kind  VirtualKind
	Field *schema.RelationField
}

func (s *VirtualSelection) Name() string { return s.Field.Name() }

// DBName 查询中使用的列别名
func (s *VirtualSelection) DBName() string { return s.DBAlias() }

func (s *VirtualSelection) DBAlias() string { return countAliasPrefix + s.Field.Name() }

// SerializedGroup 结果中的分组名
func (s *VirtualSelection) SerializedGroup() string { return countGroup }

func Scalar(f *schema.ScalarField) *ScalarSelection { return &ScalarSelection{Field: f} }

func Count(f *schema.RelationField) *VirtualSelection {
	return &VirtualSelection{Kind: RelationCount, Field: f}
}

// FieldSelection 一次查询选中的字段，所有字段属于同一个模型
type FieldSelection struct {
	Fields []SelectedField
}

func New(fields ...SelectedField) FieldSelection {
	return FieldSelection{Fields: fields}
}

// FromModel 选中模型的全部标量和复合字段
func FromModel(m *schema.Model) FieldSelection {
	var fields []SelectedField
	for _, f := range m.Fields() {
		switch x := f.(type) {
		case *schema.ScalarField:
			fields = append(fields, Scalar(x))
		case *schema.CompositeField:
			fields = append(fields, compositeAll(x))
		}
	}
	return FieldSelection{Fields: fields}
}

func compositeAll(cf *schema.CompositeField) *CompositeSelection {
	sel := &CompositeSelection{Field: cf}
	for _, f := range cf.Type().Fields() {
		switch x := f.(type) {
		case *schema.ScalarField:
			sel.Selections = append(sel.Selections, Scalar(x))
		case *schema.CompositeField:
			sel.Selections = append(sel.Selections, compositeAll(x))
		}
	}
	return sel
}

// PrimaryKey 主键字段
func PrimaryKey(m *schema.Model) FieldSelection {
	var fields []SelectedField
	for _, f := range m.PrimaryIdentifier() {
		fields = append(fields, Scalar(f))
	}
	return FieldSelection{Fields: fields}
}

// FromScalars 由标量字段构造
func FromScalars(fs []*schema.ScalarField) FieldSelection {
	fields := make([]SelectedField, 0, len(fs))
	for _, f := range fs {
		fields = append(fields, Scalar(f))
	}
	return FieldSelection{Fields: fields}
}

func (s FieldSelection) Len() int { return len(s.Fields) }

// IsSupersetOf 当前选择是否覆盖 other
//
// 关系字段总是视为已覆盖，不比较关系内部的选择
func (s FieldSelection) IsSupersetOf(other FieldSelection) bool {
	return isSuperset(s.Fields, other.Fields)
}

func isSuperset(have, want []SelectedField) bool {
	for _, w := range want {
		switch x := w.(type) {
		case *ScalarSelection:
			if !containsScalar(have, x.Field) {
				return false
			}
		case *CompositeSelection:
			c := findComposite(have, x.Field)
			if c == nil || !isSuperset(c.Selections, x.Selections) {
				return false
			}
		case *RelationSelection:
			// 关系字段不参与比较
		case *VirtualSelection:
			if !containsVirtual(have, x.DBAlias()) {
				return false
			}
		}
	}
	return true
}

func containsScalar(fields []SelectedField, f *schema.ScalarField) bool {
	for _, e := range fields {
		if s, ok := e.(*ScalarSelection); ok && (s.Field == f || s.Field.DBName() == f.DBName()) {
			return true
		}
	}
	return false
}

func findComposite(fields []SelectedField, f *schema.CompositeField) *CompositeSelection {
	for _, e := range fields {
		if c, ok := e.(*CompositeSelection); ok && (c.Field == f || c.Field.DBName() == f.DBName()) {
			return c
		}
	}
	return nil
}

// FromDBNames 由列名还原标量和计数字段的选择，遇到其他列时 ok 为 false
func FromDBNames(m *schema.Model, names []string) (FieldSelection, bool) {
	fields := make([]SelectedField, 0, len(names))
	for _, name := range names {
		if sf, ok := m.FindScalarByDBName(name); ok {
			fields = append(fields, Scalar(sf))
			continue
		}
		if strings.HasPrefix(name, countAliasPrefix) {
			if rf, ok := m.FindRelation(strings.TrimPrefix(name, countAliasPrefix)); ok {
				fields = append(fields, Count(rf))
				continue
			}
		}
		return FieldSelection{}, false
	}
	return FieldSelection{Fields: fields}, true
}

func containsVirtual(fields []SelectedField, alias string) bool {
	for _, e := range fields {
		if v, ok := e.(*VirtualSelection); ok && v.DBAlias() == alias {
			return true
		}
	}
	return false
}

func key(f SelectedField) string {
	switch f.(type) {
	case *ScalarSelection:
		return "s:" + f.DBName()
	case *CompositeSelection:
		return "c:" + f.DBName()
	case *RelationSelection:
		return "r:" + f.Name()
	}
	return "v:" + f.DBName()
}

// Union 合并多个同一模型上的选择，重复字段保留第一次出现的位置
func Union(selections ...FieldSelection) FieldSelection {
	seen := map[string]struct{}{}
	var out []SelectedField
	for _, s := range selections {
		for _, f := range s.Fields {
			k := key(f)
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, f)
		}
	}
	return FieldSelection{Fields: out}
}

// Merge 与 other 合并，规则同 Union
func (s FieldSelection) Merge(other FieldSelection) FieldSelection {
	return Union(s, other)
}

func (s FieldSelection) Contains(name string) bool {
	for _, f := range s.Fields {
		if f.Name() == name {
			return true
		}
	}
	return false
}

func (s FieldSelection) Find(name string) (SelectedField, bool) {
	for _, f := range s.Fields {
		if f.Name() == name {
			return f, true
		}
	}
	return nil, false
}

func (s FieldSelection) Names() []string {
	out := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		out = append(out, f.Name())
	}
	return out
}

func (s FieldSelection) DBNames() []string {
	out := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		out = append(out, f.DBName())
	}
	return out
}

// Scalars 选中的标量字段
func (s FieldSelection) Scalars() []*schema.ScalarField {
	var out []*schema.ScalarField
	for _, f := range s.Fields {
		if x, ok := f.(*ScalarSelection); ok {
			out = append(out, x.Field)
		}
	}
	return out
}

// Virtuals 选中的虚拟字段
func (s FieldSelection) Virtuals() []*VirtualSelection {
	var out []*VirtualSelection
	for _, f := range s.Fields {
		if x, ok := f.(*VirtualSelection); ok {
			out = append(out, x)
		}
	}
	return out
}

// IntoProjection 后端需要读取的字段：标量与复合字段
func (s FieldSelection) IntoProjection() FieldSelection {
	var out []SelectedField
	for _, f := range s.Fields {
		switch f.(type) {
		case *ScalarSelection, *CompositeSelection:
			out = append(out, f)
		}
	}
	return FieldSelection{Fields: out}
}

// IsOnly 是否恰好只选中了 other 中的字段
func (s FieldSelection) IsOnly(other FieldSelection) bool {
	return len(s.Fields) == len(other.Fields) && s.IsSupersetOf(other) && other.IsSupersetOf(s)
}
