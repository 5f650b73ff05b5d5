// Package extract 将查询参数转换为 filter.Filter
//
// 分组规则（depth 为 AND/OR/NOT 的嵌套深度）：
//
//	| 分组 | 0 个子条件                         | 1 个子条件   | n 个子条件 |
//	|------|------------------------------------|--------------|------------|
//	| AND  | depth 0 匹配全部，否则 Empty       | 折叠为子条件 | And        |
//	| OR   | depth 0 不匹配任何记录，否则 Empty | 折叠为子条件 | Or         |
//	| NOT  | depth 0 匹配全部，否则 Empty       | 保留 Not     | Not        |
package extract

import (
	"strings"

	"github.com/hatlonely/qcore/document"
	"github.com/hatlonely/qcore/filter"
	"github.com/hatlonely/qcore/qerror"
	"github.com/hatlonely/qcore/schema"
	"github.com/hatlonely/qcore/value"
)

const (
	keyAnd = "AND"
	keyOr  = "OR"
	keyNot = "NOT"
)

type grouping int

const (
	groupAnd grouping = iota
	groupOr
	groupNot
)

func parseGrouping(key string) (grouping, bool) {
	switch key {
	case keyAnd:
		return groupAnd, true
	case keyOr:
		return groupOr, true
	case keyNot:
		return groupNot, true
	}
	return 0, false
}

func (g grouping) wrap(filters []filter.Filter) filter.Filter {
	switch g {
	case groupOr:
		return &filter.Or{Filters: filters}
	case groupNot:
		return &filter.Not{Filters: filters}
	}
	return &filter.And{Filters: filters}
}

// ExtractFilter 提取可能匹配多条记录的过滤条件，最后合并同一分组内的全文检索
func ExtractFilter(input *document.ParsedInputMap, container schema.ParentContainer) (filter.Filter, error) {
	f, err := extractFilter(input, container, 0)
	if err != nil {
		return nil, err
	}
	return filter.MergeSearchFilters(f), nil
}

func extractFilter(input *document.ParsedInputMap, container schema.ParentContainer, depth int) (filter.Filter, error) {
	var filters []filter.Filter
	var err error
	input.Iter(func(key string, v document.ParsedInputValue) bool {
		var f filter.Filter
		if g, ok := parseGrouping(key); ok {
			f, err = extractGroup(g, key, v, container, depth)
		} else {
			f, err = extractField(key, v, container)
		}
		if err != nil {
			return false
		}
		if !filter.IsEmpty(f) {
			filters = append(filters, f)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return collapse(filters), nil
}

func extractGroup(g grouping, key string, v document.ParsedInputValue, container schema.ParentContainer, depth int) (filter.Filter, error) {
	var children []filter.Filter
	switch x := v.(type) {
	case document.List:
		for _, e := range x {
			m, ok := e.(*document.ParsedInputMap)
			if !ok {
				return nil, qerror.NewInvalidInput(key, container.ContainerName(), "expected a list of objects")
			}
			f, err := extractFilter(m, container, depth+1)
			if err != nil {
				return nil, err
			}
			children = append(children, f)
		}
	case *document.ParsedInputMap:
		f, err := extractFilter(x, container, depth+1)
		if err != nil {
			return nil, err
		}
		children = append(children, f)
	default:
		return nil, qerror.NewInvalidInput(key, container.ContainerName(), "expected an object or a list of objects")
	}

	children = stripEmpty(children)
	switch len(children) {
	case 0:
		if depth == 0 {
			return g.wrap(nil), nil
		}
		return filter.Empty{}, nil
	case 1:
		if g == groupNot {
			return g.wrap(children), nil
		}
		return children[0], nil
	}
	return g.wrap(children), nil
}

func extractField(key string, v document.ParsedInputValue, container schema.ParentContainer) (filter.Filter, error) {
	field, ok := container.FindField(key)
	if !ok {
		return nil, qerror.NewInputResolution(key, container.ContainerName())
	}

	var filters []filter.Filter
	var err error
	switch f := field.(type) {
	case *schema.ScalarField:
		filters, err = extractScalarFilters(f, v)
	case *schema.RelationField:
		filters, err = extractRelationFilters(f, v)
	case *schema.CompositeField:
		filters, err = extractCompositeFilters(f, v)
	}
	if err != nil {
		return nil, err
	}
	return collapse(stripEmpty(filters)), nil
}

func stripEmpty(filters []filter.Filter) []filter.Filter {
	out := filters[:0]
	for _, f := range filters {
		if !filter.IsEmpty(f) {
			out = append(out, f)
		}
	}
	return out
}

func collapse(filters []filter.Filter) filter.Filter {
	switch len(filters) {
	case 0:
		return filter.Empty{}
	case 1:
		return filters[0]
	}
	return &filter.And{Filters: filters}
}

// ExtractUniqueFilter 提取只匹配一条记录的过滤条件
//
// 唯一字段与复合唯一别名转换为等值条件，其余键按普通过滤提取，两者取 AND。
// 字段名优先于同名的复合唯一别名。没有任何唯一键时返回 InputResolution
func ExtractUniqueFilter(input *document.ParsedInputMap, model *schema.Model) (filter.Filter, error) {
	uniqueMap, restMap := partitionUnique(input, model)
	if uniqueMap.Len() == 0 {
		return nil, qerror.NewInputResolution(strings.Join(input.Keys(), ", "), model.Name)
	}

	var uniques []filter.Filter
	var err error
	uniqueMap.Iter(func(key string, v document.ParsedInputValue) bool {
		var fs []filter.Filter
		fs, err = uniqueEquality(key, v, model)
		if err != nil {
			return false
		}
		uniques = append(uniques, fs...)
		return true
	})
	if err != nil {
		return nil, err
	}

	rest, err := ExtractFilter(restMap, model)
	if err != nil {
		return nil, err
	}

	parts := []filter.Filter{&filter.And{Filters: uniques}}
	if !filter.IsEmpty(rest) {
		parts = append(parts, rest)
	}
	return &filter.And{Filters: parts}, nil
}

func partitionUnique(input *document.ParsedInputMap, model *schema.Model) (*document.ParsedInputMap, *document.ParsedInputMap) {
	uniqueMap := document.NewParsedInputMap()
	restMap := document.NewParsedInputMap()
	input.Iter(func(key string, v document.ParsedInputValue) bool {
		if sf, ok := model.FindScalar(key); ok {
			if sf.IsUnique() {
				uniqueMap.Set(key, v)
			} else {
				restMap.Set(key, v)
			}
			return true
		}
		if _, ok := model.FindField(key); !ok {
			if _, ok := model.FindCompound(key); ok {
				uniqueMap.Set(key, v)
				return true
			}
		}
		restMap.Set(key, v)
		return true
	})

	// 复合唯一的字段全部以单值形式给出时，同样视为唯一选择器
	if uniqueMap.Len() == 0 {
		for _, fields := range compounds(model) {
			if !coveredBySingles(fields, restMap) {
				continue
			}
			for _, sf := range fields {
				v, _ := restMap.Remove(sf.Name())
				uniqueMap.Set(sf.Name(), v)
			}
			break
		}
	}
	return uniqueMap, restMap
}

func compounds(model *schema.Model) [][]*schema.ScalarField {
	var out [][]*schema.ScalarField
	if len(model.PrimaryKey) > 1 {
		out = append(out, model.PrimaryIdentifier())
	}
	for _, u := range model.Uniques {
		if len(u.Fields) < 2 {
			continue
		}
		if fields, ok := model.FindCompound(u.Name); ok {
			out = append(out, fields)
		}
	}
	return out
}

func coveredBySingles(fields []*schema.ScalarField, m *document.ParsedInputMap) bool {
	for _, sf := range fields {
		v, ok := m.Get(sf.Name())
		if !ok {
			return false
		}
		s, ok := v.(document.Single)
		if !ok || value.IsNull(s.Value) {
			return false
		}
	}
	return true
}

func uniqueEquality(key string, v document.ParsedInputValue, model *schema.Model) ([]filter.Filter, error) {
	if sf, ok := model.FindScalar(key); ok {
		val, err := singleValue(key, v, model)
		if err != nil {
			return nil, err
		}
		coerced, err := value.Coerce(val, sf.Type)
		if err != nil {
			return nil, err
		}
		return []filter.Filter{filter.Equals(sf, coerced)}, nil
	}

	fields, ok := model.FindCompound(key)
	if !ok {
		return nil, qerror.NewInputResolution(key, model.Name)
	}
	m, ok := v.(*document.ParsedInputMap)
	if !ok {
		return nil, qerror.NewInvalidInput(key, model.Name, "compound selector must be an object")
	}
	m = m.Clone()
	var out []filter.Filter
	for _, sf := range fields {
		fv, ok := m.Remove(sf.Name())
		if !ok {
			return nil, qerror.NewInputResolution(key+"."+sf.Name(), model.Name)
		}
		val, err := singleValue(sf.Name(), fv, model)
		if err != nil {
			return nil, err
		}
		coerced, err := value.Coerce(val, sf.Type)
		if err != nil {
			return nil, err
		}
		out = append(out, filter.Equals(sf, coerced))
	}
	if m.Len() > 0 {
		return nil, qerror.NewInputResolution(key+"."+m.Keys()[0], model.Name)
	}
	return out, nil
}

func singleValue(key string, v document.ParsedInputValue, container schema.ParentContainer) (value.Value, error) {
	s, ok := v.(document.Single)
	if !ok {
		return nil, qerror.NewInvalidInput(key, container.ContainerName(), "expected a scalar value")
	}
	return s.Value, nil
}
