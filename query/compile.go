package query

import (
	"github.com/hatlonely/qcore/filter"
	"github.com/hatlonely/qcore/qerror"
	"github.com/hatlonely/qcore/value"
)

// RelationResolver 关系过滤的编译由连接器提供
//
// SQL 后端编译为子查询，文档后端先查询关联集合再转换为 $in
type RelationResolver interface {
	Relation(c *Compiler, f *filter.RelationFilter) (Query, error)
	RelationIsNull(c *Compiler, f *filter.OneRelationIsNull) (Query, error)
}

// Compiler 将 filter.Filter 编译为查询树
type Compiler struct {
	Dialect   Dialect
	Relations RelationResolver

	// prefix 复合类型字段的路径前缀
	prefix string
}

func NewCompiler(dialect Dialect, relations RelationResolver) *Compiler {
	return &Compiler{Dialect: dialect, Relations: relations}
}

// Nested 返回字段路径带有前缀的编译器，用于复合类型内部字段
func (c *Compiler) Nested(prefix string) *Compiler {
	return &Compiler{Dialect: c.Dialect, Relations: c.Relations, prefix: prefix}
}

func (c *Compiler) path(name string) string {
	if c.prefix == "" {
		return name
	}
	return c.prefix + "." + name
}

func (c *Compiler) Compile(f filter.Filter) (Query, error) {
	switch x := f.(type) {
	case nil, filter.Empty:
		return MatchAll(), nil
	case *filter.And:
		qs, err := c.compileAll(x.Filters)
		if err != nil {
			return nil, err
		}
		return And(qs...), nil
	case *filter.Or:
		qs, err := c.compileAll(x.Filters)
		if err != nil {
			return nil, err
		}
		return Or(qs...), nil
	case *filter.Not:
		qs, err := c.compileAll(x.Filters)
		if err != nil {
			return nil, err
		}
		return Not(qs...), nil
	case *filter.ScalarFilter:
		return c.scalar(x)
	case *filter.CompositeFilter:
		return c.composite(x)
	case *filter.RelationFilter:
		if c.Relations == nil {
			return nil, qerror.NewUnsupported("relation filters on " + x.Field.Name())
		}
		return c.Relations.Relation(c, x)
	case *filter.OneRelationIsNull:
		if c.Relations == nil {
			return nil, qerror.NewUnsupported("relation filters on " + x.Field.Name())
		}
		return c.Relations.RelationIsNull(c, x)
	}
	return nil, qerror.NewInternalInvariantViolation("unknown filter variant")
}

func (c *Compiler) compileAll(fs []filter.Filter) ([]Query, error) {
	out := make([]Query, 0, len(fs))
	for _, f := range fs {
		q, err := c.Compile(f)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

func (c *Compiler) scalar(f *filter.ScalarFilter) (Query, error) {
	cond := f.Condition
	if cond.Op == filter.OpSearch || cond.Op == filter.OpNotSearch {
		fields := make([]string, len(f.Projection.Fields))
		for i, sf := range f.Projection.Fields {
			fields[i] = c.path(sf.DBName())
		}
		q := &SearchQuery{Fields: fields, Query: stringOf(cond.Value), Dialect: c.Dialect}
		if cond.Op == filter.OpNotSearch {
			return Not(q), nil
		}
		return q, nil
	}

	sf := f.Projection.Field()
	if sf == nil {
		return nil, qerror.NewInternalInvariantViolation("scalar filter without a field")
	}
	col := c.path(sf.DBName())
	insensitive := f.Mode == filter.ModeInsensitive
	oid := sf.IsObjectID()

	switch cond.Op {
	case filter.OpEquals:
		return &TermQuery{Field: col, Value: cond.Value, Insensitive: insensitive, ObjectID: oid}, nil
	case filter.OpNotEquals:
		return Not(&TermQuery{Field: col, Value: cond.Value, Insensitive: insensitive, ObjectID: oid}), nil
	case filter.OpContains:
		return &MatchQuery{Field: col, Value: stringOf(cond.Value), Insensitive: insensitive}, nil
	case filter.OpNotContains:
		return Not(&MatchQuery{Field: col, Value: stringOf(cond.Value), Insensitive: insensitive}), nil
	case filter.OpStartsWith:
		return &PrefixQuery{Field: col, Value: stringOf(cond.Value), Insensitive: insensitive}, nil
	case filter.OpNotStartsWith:
		return Not(&PrefixQuery{Field: col, Value: stringOf(cond.Value), Insensitive: insensitive}), nil
	case filter.OpEndsWith:
		return &WildcardQuery{Field: col, Value: "*" + EscapeWildcard(stringOf(cond.Value)), Insensitive: insensitive}, nil
	case filter.OpNotEndsWith:
		return Not(&WildcardQuery{Field: col, Value: "*" + EscapeWildcard(stringOf(cond.Value)), Insensitive: insensitive}), nil
	case filter.OpLessThan:
		return &RangeQuery{Field: col, Lt: cond.Value}, nil
	case filter.OpLessThanOrEquals:
		return &RangeQuery{Field: col, Lte: cond.Value}, nil
	case filter.OpGreaterThan:
		return &RangeQuery{Field: col, Gt: cond.Value}, nil
	case filter.OpGreaterThanOrEquals:
		return &RangeQuery{Field: col, Gte: cond.Value}, nil
	case filter.OpIn:
		return &TermsQuery{Field: col, Values: cond.Values, ObjectID: oid}, nil
	case filter.OpNotIn:
		return &TermsQuery{Field: col, Values: cond.Values, Negated: true, ObjectID: oid}, nil
	case filter.OpIsSet:
		set, _ := cond.Value.(value.Bool)
		return &ExistsQuery{Field: col, Negated: !bool(set), Strict: true}, nil
	}
	return nil, qerror.NewUnsupported("scalar operation " + cond.Op.String())
}

func (c *Compiler) composite(f *filter.CompositeFilter) (Query, error) {
	path := c.path(f.Field.DBName())
	switch f.Condition {
	case filter.CompositeEquals:
		return &TermQuery{Field: path, Value: f.Value}, nil
	case filter.CompositeIs, filter.CompositeIsNot:
		q, err := c.Nested(path).Compile(f.Nested)
		if err != nil {
			return nil, err
		}
		if f.Condition == filter.CompositeIsNot {
			return Not(q), nil
		}
		return q, nil
	case filter.CompositeEvery, filter.CompositeSome, filter.CompositeNone:
		where, err := c.Nested("").Compile(f.Nested)
		if err != nil {
			return nil, err
		}
		mode := ElemSome
		if f.Condition == filter.CompositeEvery {
			mode = ElemEvery
		} else if f.Condition == filter.CompositeNone {
			mode = ElemNone
		}
		return &ElemMatchQuery{Field: path, Where: where, Mode: mode}, nil
	case filter.CompositeIsEmpty:
		size := map[string]interface{}{"$size": 0}
		if f.Flag {
			return &RawQuery{Mongo: map[string]interface{}{path: size}}, nil
		}
		return &RawQuery{Mongo: map[string]interface{}{path: map[string]interface{}{"$not": size}}}, nil
	case filter.CompositeIsSet:
		return &ExistsQuery{Field: path, Negated: !f.Flag, Strict: true}, nil
	}
	return nil, qerror.NewUnsupported("composite operation " + f.Condition.String())
}
