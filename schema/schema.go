// Package schema 编译后的数据模型
//
// Schema 以数组形式保存所有 Model 和 CompositeType，关系字段只记录
// 关联模型的 ModelID，查找统一经过 Schema，避免模型之间互相持有引用。
// Schema 由 Builder 一次性构建，之后只读，可以在多个请求间并发共享
package schema

import (
	"strings"
)

type ModelID int

type CompositeTypeID int

// Provider 数据源类型
type Provider string

const (
	ProviderMySQL         Provider = "mysql"
	ProviderSQLite        Provider = "sqlite"
	ProviderPostgres      Provider = "postgres"
	ProviderMongoDB       Provider = "mongodb"
	ProviderElasticsearch Provider = "elasticsearch"
)

// IsSQL 是否为关系型数据库
func (p Provider) IsSQL() bool {
	return p == ProviderMySQL || p == ProviderSQLite || p == ProviderPostgres
}

type Schema struct {
	Provider Provider

	models     []*Model
	composites []*CompositeType
	modelIdx   map[string]ModelID
	typeIdx    map[string]CompositeTypeID
}

func (s *Schema) Model(id ModelID) *Model {
	return s.models[id]
}

func (s *Schema) FindModel(name string) (*Model, bool) {
	id, ok := s.modelIdx[name]
	if !ok {
		return nil, false
	}
	return s.models[id], true
}

func (s *Schema) Models() []*Model {
	return s.models
}

func (s *Schema) CompositeType(id CompositeTypeID) *CompositeType {
	return s.composites[id]
}

func (s *Schema) FindCompositeType(name string) (*CompositeType, bool) {
	id, ok := s.typeIdx[name]
	if !ok {
		return nil, false
	}
	return s.composites[id], true
}

// ParentContainer 可以承载字段的容器：模型或复合类型
type ParentContainer interface {
	ContainerName() string
	Fields() []Field
	FindField(name string) (Field, bool)
	Schema() *Schema
	IsComposite() bool
}

// UniqueIndex 唯一约束，多字段时 Name 即复合唯一的别名
type UniqueIndex struct {
	Name   string
	Fields []string
}

// Model 数据模型
type Model struct {
	ID         ModelID
	Name       string
	DBName     string
	PrimaryKey []string
	Uniques    []UniqueIndex

	fields []Field
	schema *Schema
}

func (m *Model) ContainerName() string { return m.Name }
func (m *Model) Fields() []Field       { return m.fields }
func (m *Model) Schema() *Schema       { return m.schema }
func (m *Model) IsComposite() bool     { return false }

func (m *Model) FindField(name string) (Field, bool) {
	for _, f := range m.fields {
		if f.Name() == name {
			return f, true
		}
	}
	return nil, false
}

func (m *Model) FindScalar(name string) (*ScalarField, bool) {
	f, ok := m.FindField(name)
	if !ok {
		return nil, false
	}
	sf, ok := f.(*ScalarField)
	return sf, ok
}

// FindScalarByDBName 按列名查找标量字段
func (m *Model) FindScalarByDBName(dbName string) (*ScalarField, bool) {
	for _, sf := range m.ScalarFields() {
		if sf.DBName() == dbName {
			return sf, true
		}
	}
	return nil, false
}

func (m *Model) FindRelation(name string) (*RelationField, bool) {
	f, ok := m.FindField(name)
	if !ok {
		return nil, false
	}
	rf, ok := f.(*RelationField)
	return rf, ok
}

func (m *Model) ScalarFields() []*ScalarField {
	var out []*ScalarField
	for _, f := range m.fields {
		if sf, ok := f.(*ScalarField); ok {
			out = append(out, sf)
		}
	}
	return out
}

func (m *Model) RelationFields() []*RelationField {
	var out []*RelationField
	for _, f := range m.fields {
		if rf, ok := f.(*RelationField); ok {
			out = append(out, rf)
		}
	}
	return out
}

// PrimaryIdentifier 主键字段，按声明顺序
func (m *Model) PrimaryIdentifier() []*ScalarField {
	return m.scalarsByName(m.PrimaryKey)
}

// FindCompound 通过别名查找复合唯一约束或复合主键
func (m *Model) FindCompound(alias string) ([]*ScalarField, bool) {
	if len(m.PrimaryKey) > 1 && strings.Join(m.PrimaryKey, "_") == alias {
		return m.PrimaryIdentifier(), true
	}
	for _, u := range m.Uniques {
		if len(u.Fields) > 1 && u.Name == alias {
			return m.scalarsByName(u.Fields), true
		}
	}
	return nil, false
}

func (m *Model) scalarsByName(names []string) []*ScalarField {
	out := make([]*ScalarField, 0, len(names))
	for _, name := range names {
		if sf, ok := m.FindScalar(name); ok {
			out = append(out, sf)
		}
	}
	return out
}

// CompositeType 复合类型，字段只能是标量或复合字段
type CompositeType struct {
	ID   CompositeTypeID
	Name string

	fields []Field
	schema *Schema
}

func (c *CompositeType) ContainerName() string { return c.Name }
func (c *CompositeType) Fields() []Field       { return c.fields }
func (c *CompositeType) Schema() *Schema       { return c.schema }
func (c *CompositeType) IsComposite() bool     { return true }

func (c *CompositeType) FindField(name string) (Field, bool) {
	for _, f := range c.fields {
		if f.Name() == name {
			return f, true
		}
	}
	return nil, false
}
