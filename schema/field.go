package schema

import (
	"strings"

	"github.com/hatlonely/qcore/value"
)

// Arity 字段的基数
type Arity int

const (
	Required Arity = iota
	Optional
	List
)

func (a Arity) String() string {
	switch a {
	case Optional:
		return "optional"
	case List:
		return "list"
	default:
		return "required"
	}
}

// Field 模型或复合类型上的字段，只有 ScalarField、RelationField、CompositeField 三种
type Field interface {
	Name() string
	DBName() string
	Arity() Arity
	Container() ParentContainer
	field()
}

// DefaultKind 默认值的生成方式
type DefaultKind int

const (
	DefaultStatic DefaultKind = iota
	DefaultAutoincrement
	DefaultDBGenerated
	DefaultUUID
	DefaultCUID
	DefaultNow
	DefaultSequence
)

// DefaultValue 字段默认值
type DefaultValue struct {
	Kind DefaultKind
	// DefaultStatic 时的字面值
	Value value.Value
	// DefaultDBGenerated 时的数据库表达式
	Expr string
	// DefaultUUID 时的版本号，0 表示 v4
	Version int
}

// IsBackendGenerated 是否由数据库在插入时生成
func (d *DefaultValue) IsBackendGenerated() bool {
	return d != nil && (d.Kind == DefaultAutoincrement || d.Kind == DefaultDBGenerated)
}

// ScalarField 标量字段
type ScalarField struct {
	name      string
	dbName    string
	arity     Arity
	container ParentContainer

	Type     value.TypeIdentifier
	Unique   bool
	ID       bool
	Default  *DefaultValue
	Native   string
	EnumName string
}

func (f *ScalarField) field()                     {}
func (f *ScalarField) Name() string               { return f.name }
func (f *ScalarField) DBName() string             { return f.dbName }
func (f *ScalarField) Arity() Arity               { return f.arity }
func (f *ScalarField) Container() ParentContainer { return f.container }

func (f *ScalarField) IsList() bool     { return f.arity == List }
func (f *ScalarField) IsRequired() bool { return f.arity == Required }

// IsUnique 单字段唯一或者单字段主键
func (f *ScalarField) IsUnique() bool {
	if f.Unique {
		return true
	}
	if !f.ID {
		return false
	}
	if m, ok := f.container.(*Model); ok {
		return len(m.PrimaryKey) == 1
	}
	return false
}

func (f *ScalarField) IsAutoincrement() bool {
	return f.Default != nil && f.Default.Kind == DefaultAutoincrement
}

// IsObjectID mongo 原生 ObjectId 类型
func (f *ScalarField) IsObjectID() bool {
	return strings.EqualFold(f.Native, "ObjectId")
}

func (f *ScalarField) IsDBGenerated() bool {
	return f.Default != nil && f.Default.Kind == DefaultDBGenerated
}

// ReferentialAction 删除关联记录时的动作
type ReferentialAction string

const (
	ActionNoAction   ReferentialAction = "NoAction"
	ActionRestrict   ReferentialAction = "Restrict"
	ActionCascade    ReferentialAction = "Cascade"
	ActionSetNull    ReferentialAction = "SetNull"
	ActionSetDefault ReferentialAction = "SetDefault"
)

// RelationField 关系字段，关联模型通过 ModelID 在 Schema 中查找
type RelationField struct {
	name  string
	arity Arity
	model ModelID

	RelatedModelID ModelID
	RelationName   string
	// Fields 本模型上持有外键的标量字段
	Fields []string
	// References 关联模型上被引用的标量字段
	References []string
	OnDelete   ReferentialAction

	schema *Schema
}

func (f *RelationField) field()                     {}
func (f *RelationField) Name() string               { return f.name }
func (f *RelationField) DBName() string             { return f.name }
func (f *RelationField) Arity() Arity               { return f.arity }
func (f *RelationField) Container() ParentContainer { return f.Model() }

func (f *RelationField) IsList() bool { return f.arity == List }

func (f *RelationField) Model() *Model {
	return f.schema.Model(f.model)
}

func (f *RelationField) RelatedModel() *Model {
	return f.schema.Model(f.RelatedModelID)
}

// Opposite 关系另一端的字段
func (f *RelationField) Opposite() *RelationField {
	for _, rf := range f.RelatedModel().RelationFields() {
		if rf.RelationName == f.RelationName && rf != f {
			return rf
		}
	}
	return nil
}

// IsInlined 外键是否保存在本模型上
func (f *RelationField) IsInlined() bool {
	return len(f.Fields) > 0 && !f.IsList()
}

func (f *RelationField) IsManyToMany() bool {
	opposite := f.Opposite()
	return f.IsList() && opposite != nil && opposite.IsList()
}

// UsesJoinTable 多对多关系且两端都没有声明外键字段，关系保存在中间表
func (f *RelationField) UsesJoinTable() bool {
	if !f.IsManyToMany() {
		return false
	}
	return len(f.Fields) == 0 && len(f.Opposite().Fields) == 0
}

// JoinTable 中间表名以及本端、对端在中间表中的列名
//
// A 列指向名字排序靠前的模型；自关联时比较两端的字段名
func (f *RelationField) JoinTable() (table string, self string, other string) {
	table = "_" + f.RelationName
	opposite := f.Opposite()
	first := f.Model().Name < f.RelatedModel().Name
	if f.model == f.RelatedModelID && opposite != nil {
		first = f.name < opposite.name
	}
	if first {
		return table, "A", "B"
	}
	return table, "B", "A"
}

// LinkingFields 本模型上参与关系连接的标量字段
//
// 外键在本端时为外键字段，否则为对端 References 指向的本模型字段，
// 中间表关系时为本模型主键
func (f *RelationField) LinkingFields() []*ScalarField {
	m := f.Model()
	if len(f.Fields) > 0 {
		return m.scalarsByName(f.Fields)
	}
	if opposite := f.Opposite(); opposite != nil && len(opposite.References) > 0 {
		return m.scalarsByName(opposite.References)
	}
	return m.PrimaryIdentifier()
}

// ReferencedFields 关联模型上与 LinkingFields 一一对应的字段
func (f *RelationField) ReferencedFields() []*ScalarField {
	related := f.RelatedModel()
	if len(f.References) > 0 {
		return related.scalarsByName(f.References)
	}
	if opposite := f.Opposite(); opposite != nil && len(opposite.Fields) > 0 {
		return related.scalarsByName(opposite.Fields)
	}
	return related.PrimaryIdentifier()
}

// CompositeField 复合类型字段，仅文档型数据库支持
type CompositeField struct {
	name      string
	dbName    string
	arity     Arity
	container ParentContainer

	TypeID CompositeTypeID
	schema *Schema
}

func (f *CompositeField) field()                     {}
func (f *CompositeField) Name() string               { return f.name }
func (f *CompositeField) DBName() string             { return f.dbName }
func (f *CompositeField) Arity() Arity               { return f.arity }
func (f *CompositeField) Container() ParentContainer { return f.container }

func (f *CompositeField) IsList() bool { return f.arity == List }

func (f *CompositeField) Type() *CompositeType {
	return f.schema.CompositeType(f.TypeID)
}
