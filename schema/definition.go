package schema

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/hatlonely/qcore/value"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Definition 声明式的模型定义文档，支持 yaml / toml / json
type Definition struct {
	Provider string         `yaml:"provider" toml:"provider" json:"provider"`
	Models   []ModelDef     `yaml:"models" toml:"models" json:"models"`
	Types    []CompositeDef `yaml:"types" toml:"types" json:"types"`
}

type ModelDef struct {
	Name       string      `yaml:"name" toml:"name" json:"name"`
	DBName     string      `yaml:"dbName" toml:"dbName" json:"dbName"`
	PrimaryKey []string    `yaml:"primaryKey" toml:"primaryKey" json:"primaryKey"`
	Uniques    []UniqueDef `yaml:"uniques" toml:"uniques" json:"uniques"`
	Fields     []FieldDef  `yaml:"fields" toml:"fields" json:"fields"`
}

type UniqueDef struct {
	Name   string   `yaml:"name" toml:"name" json:"name"`
	Fields []string `yaml:"fields" toml:"fields" json:"fields"`
}

type CompositeDef struct {
	Name   string     `yaml:"name" toml:"name" json:"name"`
	Fields []FieldDef `yaml:"fields" toml:"fields" json:"fields"`
}

// FieldDef 字段定义
//
// Relation 非空时为关系字段；Type 为复合类型名时为复合字段，否则为标量字段
type FieldDef struct {
	Name         string   `yaml:"name" toml:"name" json:"name"`
	DBName       string   `yaml:"dbName" toml:"dbName" json:"dbName"`
	Type         string   `yaml:"type" toml:"type" json:"type"`
	List         bool     `yaml:"list" toml:"list" json:"list"`
	Optional     bool     `yaml:"optional" toml:"optional" json:"optional"`
	ID           bool     `yaml:"id" toml:"id" json:"id"`
	Unique       bool     `yaml:"unique" toml:"unique" json:"unique"`
	Default      string   `yaml:"default" toml:"default" json:"default"`
	Native       string   `yaml:"native" toml:"native" json:"native"`
	Relation     string   `yaml:"relation" toml:"relation" json:"relation"`
	RelationName string   `yaml:"relationName" toml:"relationName" json:"relationName"`
	Fields       []string `yaml:"fields" toml:"fields" json:"fields"`
	References   []string `yaml:"references" toml:"references" json:"references"`
	OnDelete     string   `yaml:"onDelete" toml:"onDelete" json:"onDelete"`
}

// LoadFile 按扩展名解析定义文件
func LoadFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read schema file %s failed", path)
	}
	return LoadDefinition(data, strings.TrimPrefix(filepath.Ext(path), "."))
}

// LoadDefinition 解析定义文档并构建 Schema，format 为 yaml | yml | json | toml
func LoadDefinition(data []byte, format string) (*Schema, error) {
	var def Definition
	switch strings.ToLower(format) {
	case "yaml", "yml", "json":
		// json 是 yaml 的子集
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, errors.Wrap(err, "decode schema definition failed")
		}
	case "toml":
		if _, err := toml.Decode(string(data), &def); err != nil {
			return nil, errors.Wrap(err, "decode schema definition failed")
		}
	default:
		return nil, errors.Errorf("unsupported schema format %q", format)
	}
	return def.Build()
}

func (d *Definition) Build() (*Schema, error) {
	b := NewBuilder(Provider(d.Provider))
	composites := map[string]bool{}
	for _, t := range d.Types {
		composites[t.Name] = true
	}

	var defErr error
	for _, t := range d.Types {
		t := t
		b.CompositeType(t.Name, func(c *CompositeBuilder) {
			for _, f := range t.Fields {
				if composites[f.Type] {
					cf := c.Composite(f.Name, f.Type)
					applyCompositeDef(cf, f)
					continue
				}
				if _, err := scalarFromDef(f, c.Scalar); err != nil && defErr == nil {
					defErr = errors.WithMessagef(err, "type %s field %s", t.Name, f.Name)
				}
			}
		})
	}

	for _, m := range d.Models {
		m := m
		b.Model(m.Name, func(mb *ModelBuilder) {
			if m.DBName != "" {
				mb.DB(m.DBName)
			}
			if len(m.PrimaryKey) > 0 {
				mb.ID(m.PrimaryKey...)
			}
			for _, u := range m.Uniques {
				if u.Name != "" {
					mb.NamedUnique(u.Name, u.Fields...)
				} else {
					mb.Unique(u.Fields...)
				}
			}
			for _, f := range m.Fields {
				switch {
				case f.Relation != "":
					rb := mb.Relation(f.Name, f.Relation)
					if f.List {
						rb.List()
					} else if f.Optional {
						rb.Optional()
					}
					if f.RelationName != "" {
						rb.Name(f.RelationName)
					}
					if len(f.Fields) > 0 {
						rb.Fields(f.Fields...).References(f.References...)
					}
					if f.OnDelete != "" {
						rb.OnDelete(ReferentialAction(f.OnDelete))
					}
				case composites[f.Type]:
					applyCompositeDef(mb.Composite(f.Name, f.Type), f)
				default:
					if _, err := scalarFromDef(f, mb.Scalar); err != nil && defErr == nil {
						defErr = errors.WithMessagef(err, "model %s field %s", m.Name, f.Name)
					}
				}
			}
		})
	}
	if defErr != nil {
		return nil, defErr
	}
	return b.Build()
}

func applyCompositeDef(cf *CompositeFieldBuilder, f FieldDef) {
	if f.DBName != "" {
		cf.DB(f.DBName)
	}
	if f.List {
		cf.List()
	} else if f.Optional {
		cf.Optional()
	}
}

func scalarFromDef(f FieldDef, add func(string, value.TypeIdentifier) *ScalarBuilder) (*ScalarBuilder, error) {
	t, ok := value.ParseTypeIdentifier(f.Type)
	if !ok {
		return nil, errors.Errorf("unknown type %q", f.Type)
	}
	sb := add(f.Name, t)
	if f.DBName != "" {
		sb.DB(f.DBName)
	}
	if f.List {
		sb.List()
	} else if f.Optional {
		sb.Optional()
	}
	if f.ID {
		sb.ID()
	}
	if f.Unique {
		sb.Unique()
	}
	if f.Native != "" {
		sb.Native(f.Native)
	}
	if f.Default != "" {
		d, err := ParseDefault(f.Default, t)
		if err != nil {
			return nil, err
		}
		sb.WithDefault(d)
	}
	return sb, nil
}

// ParseDefault 解析默认值表达式
//
// 支持 autoincrement() / uuid() / uuid(7) / cuid() / now() / sequence() /
// dbgenerated("expr")，其余按字段类型解析为字面值
func ParseDefault(expr string, t value.TypeIdentifier) (*DefaultValue, error) {
	expr = strings.TrimSpace(expr)
	lower := strings.ToLower(expr)
	switch {
	case lower == "autoincrement()":
		return &DefaultValue{Kind: DefaultAutoincrement}, nil
	case lower == "uuid()":
		return &DefaultValue{Kind: DefaultUUID, Version: 4}, nil
	case strings.HasPrefix(lower, "uuid(") && strings.HasSuffix(lower, ")"):
		version, err := strconv.Atoi(expr[5 : len(expr)-1])
		if err != nil || (version != 4 && version != 7) {
			return nil, errors.Errorf("invalid uuid version in %q", expr)
		}
		return &DefaultValue{Kind: DefaultUUID, Version: version}, nil
	case lower == "cuid()":
		return &DefaultValue{Kind: DefaultCUID}, nil
	case lower == "now()":
		return &DefaultValue{Kind: DefaultNow}, nil
	case lower == "sequence()":
		return &DefaultValue{Kind: DefaultSequence}, nil
	case strings.HasPrefix(lower, "dbgenerated(") && strings.HasSuffix(lower, ")"):
		inner := strings.TrimSpace(expr[len("dbgenerated(") : len(expr)-1])
		inner = strings.Trim(inner, `"'`)
		return &DefaultValue{Kind: DefaultDBGenerated, Expr: inner}, nil
	}

	literal := expr
	if len(literal) >= 2 && (literal[0] == '"' || literal[0] == '\'') && literal[len(literal)-1] == literal[0] {
		literal = literal[1 : len(literal)-1]
	}
	v, err := value.Coerce(value.String(literal), t)
	if err != nil {
		return nil, errors.WithMessagef(err, "invalid default %q", expr)
	}
	return &DefaultValue{Kind: DefaultStatic, Value: v}, nil
}
