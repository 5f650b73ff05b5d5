package extract

import (
	"github.com/hatlonely/qcore/document"
	"github.com/hatlonely/qcore/filter"
	"github.com/hatlonely/qcore/qerror"
	"github.com/hatlonely/qcore/schema"
	"github.com/hatlonely/qcore/value"
)

var compositeOps = map[string]filter.CompositeCondition{
	"equals":  filter.CompositeEquals,
	"is":      filter.CompositeIs,
	"isNot":   filter.CompositeIsNot,
	"every":   filter.CompositeEvery,
	"some":    filter.CompositeSome,
	"none":    filter.CompositeNone,
	"isEmpty": filter.CompositeIsEmpty,
	"isSet":   filter.CompositeIsSet,
}

// extractCompositeFilters 单值或列表为整体相等，对象中没有操作键时视为 is
func extractCompositeFilters(cf *schema.CompositeField, v document.ParsedInputValue) ([]filter.Filter, error) {
	switch x := v.(type) {
	case document.Single:
		return []filter.Filter{&filter.CompositeFilter{Field: cf, Condition: filter.CompositeEquals, Value: x.Value}}, nil
	case document.List:
		return []filter.Filter{&filter.CompositeFilter{Field: cf, Condition: filter.CompositeEquals, Value: document.ToValue(x)}}, nil
	case *document.ParsedInputMap:
		if !hasCompositeOp(x) {
			nested, err := ExtractFilter(x, cf.Type())
			if err != nil {
				return nil, err
			}
			return []filter.Filter{&filter.CompositeFilter{Field: cf, Condition: filter.CompositeIs, Nested: nested}}, nil
		}
		var out []filter.Filter
		var err error
		x.Iter(func(key string, e document.ParsedInputValue) bool {
			var f filter.Filter
			f, err = parseCompositeCondition(cf, key, e)
			if err != nil {
				return false
			}
			out = append(out, f)
			return true
		})
		return out, err
	}
	return nil, qerror.NewInvalidInput(cf.Name(), cf.Container().ContainerName(), "invalid composite filter input")
}

func hasCompositeOp(m *document.ParsedInputMap) bool {
	for _, k := range m.Keys() {
		if _, ok := compositeOps[k]; ok {
			return true
		}
	}
	return false
}

func parseCompositeCondition(cf *schema.CompositeField, key string, v document.ParsedInputValue) (filter.Filter, error) {
	container := cf.Container().ContainerName()
	cond, ok := compositeOps[key]
	if !ok {
		return nil, qerror.NewInputResolution(cf.Name()+"."+key, container)
	}

	switch cond {
	case filter.CompositeEquals:
		return &filter.CompositeFilter{Field: cf, Condition: cond, Value: document.ToValue(v)}, nil
	case filter.CompositeIsEmpty, filter.CompositeIsSet:
		s, ok := v.(document.Single)
		b, isBool := s.Value.(value.Bool)
		if !ok || !isBool {
			return nil, qerror.NewInvalidInput(key, container, "expected a boolean")
		}
		return &filter.CompositeFilter{Field: cf, Condition: cond, Flag: bool(b)}, nil
	}

	if s, ok := v.(document.Single); ok && value.IsNull(s.Value) {
		switch cond {
		case filter.CompositeIs:
			return &filter.CompositeFilter{Field: cf, Condition: filter.CompositeEquals, Value: value.Null{}}, nil
		case filter.CompositeIsNot:
			return filter.NotOf(&filter.CompositeFilter{Field: cf, Condition: filter.CompositeEquals, Value: value.Null{}}), nil
		}
	}

	m, ok := v.(*document.ParsedInputMap)
	if !ok {
		return nil, qerror.NewInvalidInput(key, container, "expected an object")
	}
	nested, err := ExtractFilter(m, cf.Type())
	if err != nil {
		return nil, err
	}
	return &filter.CompositeFilter{Field: cf, Condition: cond, Nested: nested}, nil
}
