package extract

import (
	"github.com/hatlonely/qcore/document"
	"github.com/hatlonely/qcore/filter"
	"github.com/hatlonely/qcore/qerror"
	"github.com/hatlonely/qcore/schema"
	"github.com/hatlonely/qcore/value"
)

const keyMode = "mode"

var scalarOps = map[string]filter.Op{
	"equals":     filter.OpEquals,
	"contains":   filter.OpContains,
	"startsWith": filter.OpStartsWith,
	"endsWith":   filter.OpEndsWith,
	"lt":         filter.OpLessThan,
	"lte":        filter.OpLessThanOrEquals,
	"gt":         filter.OpGreaterThan,
	"gte":        filter.OpGreaterThanOrEquals,
	"in":         filter.OpIn,
	"notIn":      filter.OpNotIn,
	"search":     filter.OpSearch,
	"isSet":      filter.OpIsSet,
}

// extractScalarFilters 单值为等值简写，对象为完整语法
func extractScalarFilters(sf *schema.ScalarField, v document.ParsedInputValue) ([]filter.Filter, error) {
	switch x := v.(type) {
	case document.Single:
		c, err := coerceFor(sf, x.Value)
		if err != nil {
			return nil, err
		}
		return []filter.Filter{filter.Equals(sf, c)}, nil
	case document.List:
		// 标量列表字段的整体相等
		c, err := coerceFor(sf, document.ToValue(x))
		if err != nil {
			return nil, err
		}
		return []filter.Filter{filter.Equals(sf, c)}, nil
	case *document.ParsedInputMap:
		m := x.Clone()
		mode := filter.ModeDefault
		if raw, ok := m.Remove(keyMode); ok {
			parsed, err := parseQueryMode(sf, raw)
			if err != nil {
				return nil, err
			}
			mode = parsed
		}
		filters, err := parseScalarMap(sf, m, false)
		if err != nil {
			return nil, err
		}
		for _, f := range filters {
			setMode(f, mode)
		}
		return filters, nil
	}
	return nil, qerror.NewInvalidInput(sf.Name(), sf.Container().ContainerName(), "invalid scalar filter input")
}

func parseQueryMode(sf *schema.ScalarField, raw document.ParsedInputValue) (filter.QueryMode, error) {
	if s, ok := raw.(document.Single); ok {
		switch x := s.Value.(type) {
		case value.String:
			return modeOf(sf, string(x))
		case value.Enum:
			return modeOf(sf, string(x))
		}
	}
	return 0, qerror.NewInvalidInput(keyMode, sf.Container().ContainerName(), "mode must be a string")
}

func modeOf(sf *schema.ScalarField, s string) (filter.QueryMode, error) {
	switch s {
	case "default":
		return filter.ModeDefault, nil
	case "insensitive":
		return filter.ModeInsensitive, nil
	}
	return 0, qerror.NewInvalidInput(keyMode, sf.Container().ContainerName(), "unknown mode "+s)
}

func setMode(f filter.Filter, mode filter.QueryMode) {
	switch x := f.(type) {
	case *filter.ScalarFilter:
		x.Mode = mode
	case *filter.Not:
		for _, c := range x.Filters {
			setMode(c, mode)
		}
	case *filter.And:
		for _, c := range x.Filters {
			setMode(c, mode)
		}
	}
}

// parseScalarMap reverse 为 true 时位于 not 内部，条件取反
func parseScalarMap(sf *schema.ScalarField, m *document.ParsedInputMap, reverse bool) ([]filter.Filter, error) {
	var out []filter.Filter
	var err error
	m.Iter(func(key string, v document.ParsedInputValue) bool {
		var fs []filter.Filter
		fs, err = parseScalarCondition(sf, key, v, reverse)
		if err != nil {
			return false
		}
		out = append(out, fs...)
		return true
	})
	return out, err
}

func parseScalarCondition(sf *schema.ScalarField, key string, v document.ParsedInputValue, reverse bool) ([]filter.Filter, error) {
	container := sf.Container().ContainerName()

	if key == "not" {
		switch x := v.(type) {
		case *document.ParsedInputMap:
			m := x.Clone()
			m.Remove(keyMode)
			return parseScalarMap(sf, m, !reverse)
		case document.Single:
			c, err := coerceFor(sf, x.Value)
			if err != nil {
				return nil, err
			}
			cond := filter.Condition{Op: filter.OpNotEquals, Value: c}
			if reverse {
				cond = cond.Invert()
			}
			return []filter.Filter{&filter.ScalarFilter{Projection: filter.Single(sf), Condition: cond}}, nil
		}
		return nil, qerror.NewInvalidInput(key, container, "invalid not input")
	}

	op, ok := scalarOps[key]
	if !ok {
		return nil, qerror.NewInputResolution(sf.Name()+"."+key, container)
	}

	var cond filter.Condition
	switch op {
	case filter.OpIn, filter.OpNotIn:
		vs, err := listValues(sf, key, v)
		if err != nil {
			return nil, err
		}
		cond = filter.Condition{Op: op, Values: vs}
	case filter.OpIsSet:
		s, ok := v.(document.Single)
		b, isBool := s.Value.(value.Bool)
		if !ok || !isBool {
			return nil, qerror.NewInvalidInput(key, container, "isSet expects a boolean")
		}
		cond = filter.Condition{Op: op, Value: b}
	case filter.OpContains, filter.OpStartsWith, filter.OpEndsWith, filter.OpSearch:
		s, ok := v.(document.Single)
		if !ok {
			return nil, qerror.NewInvalidInput(key, container, "expected a string")
		}
		str, err := value.Coerce(s.Value, value.TypeString)
		if err != nil {
			return nil, err
		}
		cond = filter.Condition{Op: op, Value: str}
	default:
		s, ok := v.(document.Single)
		if !ok {
			return nil, qerror.NewInvalidInput(key, container, "expected a scalar value")
		}
		c, err := coerceFor(sf, s.Value)
		if err != nil {
			return nil, err
		}
		cond = filter.Condition{Op: op, Value: c}
	}

	if reverse {
		cond = cond.Invert()
	}
	projection := filter.Single(sf)
	if op == filter.OpSearch {
		projection = filter.Compound(sf)
	}
	return []filter.Filter{&filter.ScalarFilter{Projection: projection, Condition: cond}}, nil
}

func listValues(sf *schema.ScalarField, key string, v document.ParsedInputValue) ([]value.Value, error) {
	var raw []value.Value
	switch x := v.(type) {
	case document.List:
		for _, e := range x {
			raw = append(raw, document.ToValue(e))
		}
	case document.Single:
		if l, ok := x.Value.(value.List); ok {
			raw = l
		} else if value.IsNull(x.Value) {
			return nil, qerror.NewInvalidInput(key, sf.Container().ContainerName(), "expected a list")
		} else {
			raw = []value.Value{x.Value}
		}
	default:
		return nil, qerror.NewInvalidInput(key, sf.Container().ContainerName(), "expected a list")
	}
	out := make([]value.Value, 0, len(raw))
	for _, e := range raw {
		c, err := value.Coerce(e, sf.Type)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// coerceFor 按字段类型转换，Json 字段保留原始结构
func coerceFor(sf *schema.ScalarField, v value.Value) (value.Value, error) {
	if sf.Type == value.TypeJson {
		return v, nil
	}
	return value.Coerce(v, sf.Type)
}
