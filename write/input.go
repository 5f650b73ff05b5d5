package write

import (
	"context"
	"time"

	"github.com/hatlonely/qcore/document"
	"github.com/hatlonely/qcore/qerror"
	"github.com/hatlonely/qcore/schema"
	"github.com/hatlonely/qcore/value"
	"github.com/pkg/errors"
)

type Mode int

const (
	ModeCreate Mode = iota
	ModeUpdate
)

// DefaultProvider 为应用层生成的默认值（uuid、cuid、now、sequence）取值
type DefaultProvider interface {
	Generate(ctx context.Context, model *schema.Model, field *schema.ScalarField) (value.Value, error)
}

var opKeys = map[string]OpKind{
	"set":       OpSet,
	"increment": OpIncrement,
	"decrement": OpDecrement,
	"multiply":  OpMultiply,
	"divide":    OpDivide,
	"unset":     OpUnset,
}

// FromInput 从 data 参数构造 WriteArgs
//
//	{name: "a"}                      等价于 {name: {set: "a"}}
//	{views: {increment: 1}}
//	{nickname: {unset: true}}
//
// 创建时为未赋值且带应用层默认值的字段补齐默认值，数据库生成的默认值交给后端
func FromInput(ctx context.Context, model *schema.Model, data *document.ParsedInputMap, mode Mode, defaults DefaultProvider) (*WriteArgs, error) {
	args := NewWriteArgs()
	var err error
	data.Iter(func(key string, v document.ParsedInputValue) bool {
		err = addInput(args, model, key, v)
		return err == nil
	})
	if err != nil {
		return nil, err
	}

	if mode == ModeCreate {
		if err := applyDefaults(ctx, args, model, defaults); err != nil {
			return nil, err
		}
	}
	return args, nil
}

func addInput(args *WriteArgs, model *schema.Model, key string, v document.ParsedInputValue) error {
	field, ok := model.FindField(key)
	if !ok {
		return qerror.NewInputResolution(key, model.Name)
	}

	switch f := field.(type) {
	case *schema.RelationField:
		return qerror.NewInvalidInput(key, model.Name, "nested relation writes are not supported, use connect/disconnect")
	case *schema.CompositeField:
		if m, ok := v.(*document.ParsedInputMap); ok && m.Len() == 1 {
			if u, ok := m.Get("unset"); ok {
				if isTrue(u) {
					args.Insert(f, Unset())
				}
				return nil
			}
			if s, ok := m.Get("set"); ok {
				args.Insert(f, Set(document.ToValue(s)))
				return nil
			}
		}
		args.Insert(f, Set(document.ToValue(v)))
		return nil
	case *schema.ScalarField:
		op, err := parseScalarOp(f, v)
		if err != nil {
			return errors.WithMessagef(err, "field %s.%s", model.Name, key)
		}
		args.Insert(f, op)
	}
	return nil
}

func parseScalarOp(f *schema.ScalarField, v document.ParsedInputValue) (WriteOperation, error) {
	m, isMap := v.(*document.ParsedInputMap)
	if isMap && m.Len() == 1 {
		k := m.Keys()[0]
		if kind, ok := opKeys[k]; ok {
			inner, _ := m.Get(k)
			if kind == OpUnset {
				if !isTrue(inner) {
					return WriteOperation{}, qerror.NewInvalidInput(k, f.Container().ContainerName(), "unset expects true")
				}
				return Unset(), nil
			}
			if kind != OpSet && !isNumeric(f.Type) {
				return WriteOperation{}, qerror.NewInvalidInput(k, f.Container().ContainerName(), "arithmetic on a non-numeric field")
			}
			c, err := coerceInput(f, inner)
			if err != nil {
				return WriteOperation{}, err
			}
			return WriteOperation{Kind: kind, Value: c}, nil
		}
	}
	if isMap && f.Type != value.TypeJson {
		return WriteOperation{}, qerror.NewInvalidInput(f.Name(), f.Container().ContainerName(), "unknown write operation")
	}
	c, err := coerceInput(f, v)
	if err != nil {
		return WriteOperation{}, err
	}
	return Set(c), nil
}

func coerceInput(f *schema.ScalarField, v document.ParsedInputValue) (value.Value, error) {
	raw := document.ToValue(v)
	if f.Type == value.TypeJson {
		switch raw.(type) {
		case value.List, value.Object:
			return raw, nil
		}
	}
	if value.IsNull(raw) && f.IsRequired() {
		return nil, qerror.NewNullConstraintViolation(qerror.FieldsConstraint(f.DBName()))
	}
	return value.Coerce(raw, f.Type)
}

func isNumeric(t value.TypeIdentifier) bool {
	return t == value.TypeInt || t == value.TypeBigInt || t == value.TypeFloat || t == value.TypeDecimal
}

func isTrue(v document.ParsedInputValue) bool {
	s, ok := v.(document.Single)
	if !ok {
		return false
	}
	b, ok := s.Value.(value.Bool)
	return ok && bool(b)
}

func applyDefaults(ctx context.Context, args *WriteArgs, model *schema.Model, defaults DefaultProvider) error {
	for _, f := range model.ScalarFields() {
		if f.Default == nil || args.HasArgFor(f.DBName()) {
			continue
		}
		switch f.Default.Kind {
		case schema.DefaultStatic:
			args.Insert(f, Set(f.Default.Value))
		case schema.DefaultAutoincrement, schema.DefaultDBGenerated:
		case schema.DefaultNow:
			if defaults == nil {
				args.Insert(f, Set(value.DateTime(time.Now().UTC())))
				continue
			}
			fallthrough
		default:
			if defaults == nil {
				return qerror.NewUnsupported("no default provider for field " + f.Name())
			}
			v, err := defaults.Generate(ctx, model, f)
			if err != nil {
				return errors.WithMessagef(err, "generate default for %s.%s", model.Name, f.Name())
			}
			c, err := value.Coerce(v, f.Type)
			if err != nil {
				return err
			}
			args.Insert(f, Set(c))
		}
	}
	return nil
}
