package filter

import (
	"strings"

	"github.com/hatlonely/qcore/qerror"
	"github.com/hatlonely/qcore/value"
)

// Match 在内存中对一行数据求值，row 的键为字段名
//
// 关系过滤需要访问其他模型，这里返回 Unsupported
func Match(f Filter, row map[string]value.Value) (bool, error) {
	switch x := f.(type) {
	case nil, Empty:
		return true, nil
	case *And:
		for _, c := range x.Filters {
			ok, err := Match(c, row)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case *Or:
		for _, c := range x.Filters {
			ok, err := Match(c, row)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case *Not:
		for _, c := range x.Filters {
			ok, err := Match(c, row)
			if err != nil {
				return false, err
			}
			if ok {
				return false, nil
			}
		}
		return true, nil
	case *ScalarFilter:
		return matchScalar(x, row), nil
	case *CompositeFilter:
		return matchComposite(x, row)
	case *RelationFilter, *OneRelationIsNull:
		return false, qerror.NewUnsupported("relation filters cannot be evaluated in memory")
	}
	return false, qerror.NewUnsupported("unknown filter")
}

func matchScalar(f *ScalarFilter, row map[string]value.Value) bool {
	c := f.Condition
	if c.Op == OpSearch || c.Op == OpNotSearch {
		hit := false
		for _, field := range f.Projection.Fields {
			if searchHit(row[field.Name()], c.Value) {
				hit = true
				break
			}
		}
		return hit == (c.Op == OpSearch)
	}

	field := f.Projection.Field()
	if field == nil {
		return false
	}
	v, present := row[field.Name()]
	if c.Op == OpIsSet {
		b, _ := c.Value.(value.Bool)
		return present == bool(b)
	}
	if !present {
		v = value.Null{}
	}
	insensitive := f.Mode == ModeInsensitive

	switch c.Op {
	case OpEquals:
		return equalFold(v, c.Value, insensitive)
	case OpNotEquals:
		return !equalFold(v, c.Value, insensitive)
	case OpIn:
		for _, e := range c.Values {
			if equalFold(v, e, insensitive) {
				return true
			}
		}
		return false
	case OpNotIn:
		for _, e := range c.Values {
			if equalFold(v, e, insensitive) {
				return false
			}
		}
		return true
	case OpLessThan, OpLessThanOrEquals, OpGreaterThan, OpGreaterThanOrEquals:
		n, ok := value.Compare(v, c.Value)
		if !ok {
			return false
		}
		switch c.Op {
		case OpLessThan:
			return n < 0
		case OpLessThanOrEquals:
			return n <= 0
		case OpGreaterThan:
			return n > 0
		}
		return n >= 0
	}

	s, ok1 := stringOf(v)
	p, ok2 := stringOf(c.Value)
	if !ok1 || !ok2 {
		return false
	}
	if insensitive {
		s, p = strings.ToLower(s), strings.ToLower(p)
	}
	switch c.Op {
	case OpContains:
		return strings.Contains(s, p)
	case OpNotContains:
		return !strings.Contains(s, p)
	case OpStartsWith:
		return strings.HasPrefix(s, p)
	case OpNotStartsWith:
		return !strings.HasPrefix(s, p)
	case OpEndsWith:
		return strings.HasSuffix(s, p)
	case OpNotEndsWith:
		return !strings.HasSuffix(s, p)
	}
	return false
}

func equalFold(a, b value.Value, insensitive bool) bool {
	if insensitive {
		sa, ok1 := stringOf(a)
		sb, ok2 := stringOf(b)
		if ok1 && ok2 {
			return strings.EqualFold(sa, sb)
		}
	}
	return value.Equal(a, b)
}

func stringOf(v value.Value) (string, bool) {
	switch x := v.(type) {
	case value.String:
		return string(x), true
	case value.Enum:
		return string(x), true
	}
	return "", false
}

// searchHit 所有检索词都在字段中出现（忽略大小写）
func searchHit(v value.Value, query value.Value) bool {
	s, ok := stringOf(v)
	if !ok {
		return false
	}
	q, ok := stringOf(query)
	if !ok {
		return false
	}
	s = strings.ToLower(s)
	terms := strings.Fields(strings.ToLower(q))
	if len(terms) == 0 {
		return false
	}
	for _, term := range terms {
		if !strings.Contains(s, strings.Trim(term, "+-*\"")) {
			return false
		}
	}
	return true
}

func matchComposite(f *CompositeFilter, row map[string]value.Value) (bool, error) {
	v, present := row[f.Field.Name()]
	switch f.Condition {
	case CompositeIsSet:
		return present == f.Flag, nil
	case CompositeEquals:
		if !present {
			v = value.Null{}
		}
		return value.Equal(v, f.Value), nil
	case CompositeIsEmpty:
		l, _ := v.(value.List)
		return (len(l) == 0) == f.Flag, nil
	case CompositeIs, CompositeIsNot:
		obj, ok := v.(value.Object)
		hit := false
		if ok {
			m, err := Match(f.Nested, objectRow(obj))
			if err != nil {
				return false, err
			}
			hit = m
		}
		return hit == (f.Condition == CompositeIs), nil
	}

	l, _ := v.(value.List)
	count := 0
	for _, e := range l {
		obj, ok := e.(value.Object)
		if !ok {
			continue
		}
		m, err := Match(f.Nested, objectRow(obj))
		if err != nil {
			return false, err
		}
		if m {
			count++
		}
	}
	switch f.Condition {
	case CompositeEvery:
		return count == len(l), nil
	case CompositeSome:
		return count > 0, nil
	}
	return count == 0, nil
}

func objectRow(obj value.Object) map[string]value.Value {
	row := make(map[string]value.Value, len(obj))
	for _, p := range obj {
		row[p.Key] = p.Value
	}
	return row
}
