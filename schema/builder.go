package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hatlonely/qcore/value"
	"github.com/pkg/errors"
)

// Builder 构建只读的 Schema
//
//	b := NewBuilder(ProviderSQLite)
//	b.Model("User", func(m *ModelBuilder) {
//		m.Scalar("id", value.TypeInt).ID().Autoincrement()
//		m.Scalar("email", value.TypeString).Unique()
//		m.Relation("posts", "Post").List()
//	})
//	s, err := b.Build()
type Builder struct {
	provider   Provider
	models     []*ModelBuilder
	composites []*CompositeBuilder
}

func NewBuilder(provider Provider) *Builder {
	return &Builder{provider: provider}
}

func (b *Builder) Model(name string, fn func(m *ModelBuilder)) *Builder {
	mb := &ModelBuilder{name: name, dbName: name}
	if fn != nil {
		fn(mb)
	}
	b.models = append(b.models, mb)
	return b
}

func (b *Builder) CompositeType(name string, fn func(c *CompositeBuilder)) *Builder {
	cb := &CompositeBuilder{name: name}
	if fn != nil {
		fn(cb)
	}
	b.composites = append(b.composites, cb)
	return b
}

// ModelBuilder 模型构建器
type ModelBuilder struct {
	name       string
	dbName     string
	primaryKey []string
	uniques    []UniqueIndex
	fields     []fieldBuilder
}

func (m *ModelBuilder) DB(name string) *ModelBuilder {
	m.dbName = name
	return m
}

func (m *ModelBuilder) Scalar(name string, t value.TypeIdentifier) *ScalarBuilder {
	sb := &ScalarBuilder{f: &ScalarField{name: name, dbName: name, Type: t}}
	m.fields = append(m.fields, sb)
	return sb
}

func (m *ModelBuilder) Relation(name string, related string) *RelationBuilder {
	rb := &RelationBuilder{f: &RelationField{name: name}, related: related}
	m.fields = append(m.fields, rb)
	return rb
}

func (m *ModelBuilder) Composite(name string, typeName string) *CompositeFieldBuilder {
	cb := &CompositeFieldBuilder{f: &CompositeField{name: name, dbName: name}, typeName: typeName}
	m.fields = append(m.fields, cb)
	return cb
}

// ID 复合主键
func (m *ModelBuilder) ID(fields ...string) *ModelBuilder {
	m.primaryKey = fields
	return m
}

// Unique 复合唯一约束，别名为字段名以下划线连接
func (m *ModelBuilder) Unique(fields ...string) *ModelBuilder {
	return m.NamedUnique(strings.Join(fields, "_"), fields...)
}

func (m *ModelBuilder) NamedUnique(name string, fields ...string) *ModelBuilder {
	m.uniques = append(m.uniques, UniqueIndex{Name: name, Fields: fields})
	return m
}

// CompositeBuilder 复合类型构建器
type CompositeBuilder struct {
	name   string
	fields []fieldBuilder
}

func (c *CompositeBuilder) Scalar(name string, t value.TypeIdentifier) *ScalarBuilder {
	sb := &ScalarBuilder{f: &ScalarField{name: name, dbName: name, Type: t}}
	c.fields = append(c.fields, sb)
	return sb
}

func (c *CompositeBuilder) Composite(name string, typeName string) *CompositeFieldBuilder {
	cb := &CompositeFieldBuilder{f: &CompositeField{name: name, dbName: name}, typeName: typeName}
	c.fields = append(c.fields, cb)
	return cb
}

type fieldBuilder interface {
	fieldName() string
}

type ScalarBuilder struct {
	f *ScalarField
}

func (s *ScalarBuilder) fieldName() string { return s.f.name }

func (s *ScalarBuilder) DB(name string) *ScalarBuilder {
	s.f.dbName = name
	return s
}

func (s *ScalarBuilder) Optional() *ScalarBuilder {
	s.f.arity = Optional
	return s
}

func (s *ScalarBuilder) List() *ScalarBuilder {
	s.f.arity = List
	return s
}

func (s *ScalarBuilder) ID() *ScalarBuilder {
	s.f.ID = true
	return s
}

func (s *ScalarBuilder) Unique() *ScalarBuilder {
	s.f.Unique = true
	return s
}

func (s *ScalarBuilder) Native(t string) *ScalarBuilder {
	s.f.Native = t
	return s
}

func (s *ScalarBuilder) Enum(name string) *ScalarBuilder {
	s.f.EnumName = name
	return s
}

func (s *ScalarBuilder) Default(v value.Value) *ScalarBuilder {
	s.f.Default = &DefaultValue{Kind: DefaultStatic, Value: v}
	return s
}

func (s *ScalarBuilder) Autoincrement() *ScalarBuilder {
	s.f.Default = &DefaultValue{Kind: DefaultAutoincrement}
	return s
}

func (s *ScalarBuilder) DBGenerated(expr string) *ScalarBuilder {
	s.f.Default = &DefaultValue{Kind: DefaultDBGenerated, Expr: expr}
	return s
}

func (s *ScalarBuilder) UUID(version int) *ScalarBuilder {
	s.f.Default = &DefaultValue{Kind: DefaultUUID, Version: version}
	return s
}

func (s *ScalarBuilder) CUID() *ScalarBuilder {
	s.f.Default = &DefaultValue{Kind: DefaultCUID}
	return s
}

func (s *ScalarBuilder) Now() *ScalarBuilder {
	s.f.Default = &DefaultValue{Kind: DefaultNow}
	return s
}

func (s *ScalarBuilder) Sequence() *ScalarBuilder {
	s.f.Default = &DefaultValue{Kind: DefaultSequence}
	return s
}

func (s *ScalarBuilder) WithDefault(d *DefaultValue) *ScalarBuilder {
	s.f.Default = d
	return s
}

type RelationBuilder struct {
	f       *RelationField
	related string
}

func (r *RelationBuilder) fieldName() string { return r.f.name }

func (r *RelationBuilder) Optional() *RelationBuilder {
	r.f.arity = Optional
	return r
}

func (r *RelationBuilder) List() *RelationBuilder {
	r.f.arity = List
	return r
}

func (r *RelationBuilder) Name(relationName string) *RelationBuilder {
	r.f.RelationName = relationName
	return r
}

func (r *RelationBuilder) Fields(fields ...string) *RelationBuilder {
	r.f.Fields = fields
	return r
}

func (r *RelationBuilder) References(fields ...string) *RelationBuilder {
	r.f.References = fields
	return r
}

func (r *RelationBuilder) OnDelete(action ReferentialAction) *RelationBuilder {
	r.f.OnDelete = action
	return r
}

type CompositeFieldBuilder struct {
	f        *CompositeField
	typeName string
}

func (c *CompositeFieldBuilder) fieldName() string { return c.f.name }

func (c *CompositeFieldBuilder) DB(name string) *CompositeFieldBuilder {
	c.f.dbName = name
	return c
}

func (c *CompositeFieldBuilder) Optional() *CompositeFieldBuilder {
	c.f.arity = Optional
	return c
}

func (c *CompositeFieldBuilder) List() *CompositeFieldBuilder {
	c.f.arity = List
	return c
}

// Build 解析名字引用并校验模型，返回只读 Schema
func (b *Builder) Build() (*Schema, error) {
	s := &Schema{
		Provider: b.provider,
		modelIdx: map[string]ModelID{},
		typeIdx:  map[string]CompositeTypeID{},
	}

	for i, cb := range b.composites {
		if _, ok := s.typeIdx[cb.name]; ok {
			return nil, errors.Errorf("duplicate composite type %s", cb.name)
		}
		s.typeIdx[cb.name] = CompositeTypeID(i)
		s.composites = append(s.composites, &CompositeType{ID: CompositeTypeID(i), Name: cb.name, schema: s})
	}
	for i, mb := range b.models {
		if _, ok := s.modelIdx[mb.name]; ok {
			return nil, errors.Errorf("duplicate model %s", mb.name)
		}
		s.modelIdx[mb.name] = ModelID(i)
		s.models = append(s.models, &Model{
			ID:         ModelID(i),
			Name:       mb.name,
			DBName:     mb.dbName,
			PrimaryKey: mb.primaryKey,
			Uniques:    mb.uniques,
			schema:     s,
		})
	}

	for i, cb := range b.composites {
		ct := s.composites[i]
		fields, err := b.buildFields(s, ct, cb.fields)
		if err != nil {
			return nil, errors.WithMessagef(err, "composite type %s", cb.name)
		}
		ct.fields = fields
	}
	for i, mb := range b.models {
		m := s.models[i]
		fields, err := b.buildFields(s, m, mb.fields)
		if err != nil {
			return nil, errors.WithMessagef(err, "model %s", mb.name)
		}
		m.fields = fields
	}

	for _, m := range s.models {
		if err := finishModel(m); err != nil {
			return nil, errors.WithMessagef(err, "model %s", m.Name)
		}
	}
	if err := resolveRelationNames(s); err != nil {
		return nil, err
	}
	for _, m := range s.models {
		if err := validateRelations(m); err != nil {
			return nil, errors.WithMessagef(err, "model %s", m.Name)
		}
	}

	return s, nil
}

func (b *Builder) buildFields(s *Schema, container ParentContainer, builders []fieldBuilder) ([]Field, error) {
	seen := map[string]bool{}
	fields := make([]Field, 0, len(builders))
	for _, fb := range builders {
		name := fb.fieldName()
		if seen[name] {
			return nil, errors.Errorf("duplicate field %s", name)
		}
		seen[name] = true

		switch x := fb.(type) {
		case *ScalarBuilder:
			x.f.container = container
			fields = append(fields, x.f)
		case *CompositeFieldBuilder:
			id, ok := s.typeIdx[x.typeName]
			if !ok {
				return nil, errors.Errorf("field %s references unknown composite type %s", name, x.typeName)
			}
			x.f.container = container
			x.f.TypeID = id
			x.f.schema = s
			fields = append(fields, x.f)
		case *RelationBuilder:
			m, ok := container.(*Model)
			if !ok {
				return nil, errors.Errorf("relation field %s is not allowed on composite type", name)
			}
			id, ok := s.modelIdx[x.related]
			if !ok {
				return nil, errors.Errorf("relation field %s references unknown model %s", name, x.related)
			}
			x.f.model = m.ID
			x.f.RelatedModelID = id
			x.f.schema = s
			fields = append(fields, x.f)
		}
	}
	return fields, nil
}

func finishModel(m *Model) error {
	if len(m.PrimaryKey) == 0 {
		for _, sf := range m.ScalarFields() {
			if sf.ID {
				m.PrimaryKey = append(m.PrimaryKey, sf.Name())
			}
		}
	} else {
		for _, name := range m.PrimaryKey {
			sf, ok := m.FindScalar(name)
			if !ok {
				return errors.Errorf("primary key references unknown field %s", name)
			}
			sf.ID = true
		}
	}
	if len(m.PrimaryKey) == 0 {
		return errors.New("model has no primary key")
	}
	for _, u := range m.Uniques {
		for _, name := range u.Fields {
			if _, ok := m.FindScalar(name); !ok {
				return errors.Errorf("unique %s references unknown field %s", u.Name, name)
			}
		}
	}
	return nil
}

// resolveRelationNames 为未命名的关系生成名字：两端模型名排序后以 To 连接
func resolveRelationNames(s *Schema) error {
	for _, m := range s.models {
		for _, rf := range m.RelationFields() {
			if rf.RelationName != "" {
				continue
			}
			names := []string{m.Name, rf.RelatedModel().Name}
			sort.Strings(names)
			rf.RelationName = names[0] + "To" + names[1]
		}
	}
	return nil
}

func validateRelations(m *Model) error {
	for _, rf := range m.RelationFields() {
		var candidates []*RelationField
		for _, other := range rf.RelatedModel().RelationFields() {
			if other != rf && other.RelationName == rf.RelationName && other.RelatedModelID == m.ID {
				candidates = append(candidates, other)
			}
		}
		if len(candidates) != 1 {
			return errors.Errorf("relation field %s must have exactly one counterpart in %s, found %d",
				rf.Name(), rf.RelatedModel().Name, len(candidates))
		}
		if len(rf.Fields) != len(rf.References) {
			return errors.Errorf("relation field %s has %d fields but %d references", rf.Name(), len(rf.Fields), len(rf.References))
		}
		for _, name := range rf.Fields {
			if _, ok := m.FindScalar(name); !ok {
				return errors.Errorf("relation field %s references unknown field %s", rf.Name(), name)
			}
		}
		for _, name := range rf.References {
			if _, ok := rf.RelatedModel().FindScalar(name); !ok {
				return errors.Errorf("relation field %s references unknown field %s.%s", rf.Name(), rf.RelatedModel().Name, name)
			}
		}
	}
	return nil
}

// MustBuild 用于测试与静态定义
func (b *Builder) MustBuild() *Schema {
	s, err := b.Build()
	if err != nil {
		panic(fmt.Sprintf("schema: %v", err))
	}
	return s
}
