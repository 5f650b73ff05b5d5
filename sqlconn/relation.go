package sqlconn

import (
	"github.com/hatlonely/qcore/filter"
	"github.com/hatlonely/qcore/query"
	"github.com/hatlonely/qcore/schema"
	"github.com/hatlonely/qcore/value"
)

// relations 将关系过滤编译为子查询
//
//	some:  linking IN (SELECT ref FROM related WHERE nested)
//	none:  linking NOT IN (SELECT ref FROM related WHERE nested)
//	every: linking NOT IN (SELECT ref FROM related WHERE NOT nested)
//
// 中间表关系再套一层 SELECT self FROM _Rel WHERE other IN (...)
type relations struct{}

func dbNames(fs []*schema.ScalarField) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.DBName()
	}
	return out
}

func (relations) Relation(c *query.Compiler, f *filter.RelationFilter) (query.Query, error) {
	nested, err := c.Compile(f.Nested)
	if err != nil {
		return nil, err
	}

	negated := false
	switch f.Condition {
	case filter.NoRelatedRecord:
		negated = true
	case filter.EveryRelatedRecord:
		negated = true
		nested = query.Not(nested)
	}

	rf := f.Field
	if rf.UsesJoinTable() {
		table, self, other := rf.JoinTable()
		related := rf.RelatedModel()
		return &query.SubQuery{
			Columns: dbNames(rf.Model().PrimaryIdentifier()),
			Negated: negated,
			Table:   table,
			Select:  []string{self},
			Where: &query.SubQuery{
				Columns: []string{other},
				Table:   related.DBName,
				Select:  dbNames(related.PrimaryIdentifier()),
				Where:   nested,
			},
		}, nil
	}

	return &query.SubQuery{
		Columns: dbNames(rf.LinkingFields()),
		Negated: negated,
		Table:   rf.RelatedModel().DBName,
		Select:  dbNames(rf.ReferencedFields()),
		Where:   nested,
	}, nil
}

func (relations) RelationIsNull(c *query.Compiler, f *filter.OneRelationIsNull) (query.Query, error) {
	rf := f.Field
	// 外键在本端时直接判断外键为空
	if rf.IsInlined() {
		qs := make([]query.Query, 0, len(rf.Fields))
		for _, sf := range rf.LinkingFields() {
			qs = append(qs, &query.TermQuery{Field: sf.DBName(), Value: value.Null{}})
		}
		return query.And(qs...), nil
	}
	return &query.SubQuery{
		Columns: dbNames(rf.LinkingFields()),
		Negated: true,
		Table:   rf.RelatedModel().DBName,
		Select:  dbNames(rf.ReferencedFields()),
	}, nil
}
