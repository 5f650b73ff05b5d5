package selection

import (
	"github.com/hatlonely/qcore/qerror"
	"github.com/hatlonely/qcore/value"
)

// Coerce 将后端返回的值转换为字段声明的类型
//
// 复合字段严格校验：对象中出现未选中的键直接报错，不会静默丢弃。
// 关系计数的 null 转换为 0
func Coerce(f SelectedField, raw value.Value) (value.Value, error) {
	switch x := f.(type) {
	case *ScalarSelection:
		if x.Field.Type == value.TypeJson {
			return coerceJson(raw)
		}
		return value.Coerce(raw, x.Field.Type)
	case *CompositeSelection:
		return coerceComposite(x, raw)
	case *VirtualSelection:
		if value.IsNull(raw) {
			return value.Int(0), nil
		}
		return value.Coerce(raw, value.TypeInt)
	case *RelationSelection:
		return nil, qerror.NewConversion(value.TypeName(raw), "Relation")
	}
	return nil, qerror.NewConversion(value.TypeName(raw), "Unknown")
}

func coerceJson(raw value.Value) (value.Value, error) {
	switch raw.(type) {
	case value.List, value.Object:
		return raw, nil
	}
	return value.Coerce(raw, value.TypeJson)
}

func coerceComposite(sel *CompositeSelection, raw value.Value) (value.Value, error) {
	if value.IsNull(raw) {
		return value.Null{}, nil
	}
	if l, ok := raw.(value.List); ok && sel.Field.IsList() {
		out := make(value.List, 0, len(l))
		for _, e := range l {
			c, err := coerceObject(sel, e)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		return out, nil
	}
	return coerceObject(sel, raw)
}

func coerceObject(sel *CompositeSelection, raw value.Value) (value.Value, error) {
	obj, ok := raw.(value.Object)
	if !ok {
		return nil, qerror.NewConversion(value.TypeName(raw), sel.Field.Type().Name)
	}
	out := make(value.Object, 0, len(obj))
	for _, p := range obj {
		sub, ok := sel.Find(p.Key)
		if !ok {
			return nil, qerror.NewFieldNotFound(p.Key, sel.Field.Type().Name, "composite type")
		}
		c, err := Coerce(sub, p.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, value.Pair{Key: sub.Name(), Value: c})
	}
	return out, nil
}

// CoerceRow 按选择顺序转换一行值
func (s FieldSelection) CoerceRow(row []value.Value) ([]value.Value, error) {
	if len(row) != len(s.Fields) {
		return nil, qerror.NewLengthMismatch("", len(s.Fields), len(row))
	}
	out := make([]value.Value, len(row))
	for i, f := range s.Fields {
		c, err := Coerce(f, row[i])
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

// ToObject 按字段名组装一行结果，虚拟字段放入各自的分组
func (s FieldSelection) ToObject(row []value.Value) value.Object {
	out := make(value.Object, 0, len(s.Fields))
	var counts value.Object
	for i, f := range s.Fields {
		if i >= len(row) {
			break
		}
		if _, ok := f.(*VirtualSelection); ok {
			counts = append(counts, value.Pair{Key: f.Name(), Value: row[i]})
			continue
		}
		out = append(out, value.Pair{Key: f.Name(), Value: row[i]})
	}
	if len(counts) > 0 {
		out = append(out, value.Pair{Key: countGroup, Value: counts})
	}
	return out
}
