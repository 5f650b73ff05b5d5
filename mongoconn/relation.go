package mongoconn

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/hatlonely/qcore/connector"
	"github.com/hatlonely/qcore/filter"
	"github.com/hatlonely/qcore/query"
	"github.com/hatlonely/qcore/schema"
	"github.com/hatlonely/qcore/selection"
	"github.com/hatlonely/qcore/value"
)

// relations 文档数据库没有子查询，先查询关联集合得到键，再转换为 $in / $nin
//
//	some:  linking $in keys(nested)
//	none:  linking $nin keys(nested)
//	every: linking $nin keys(NOT nested)
//
// linking 为 id 数组时 $in 表示任一元素命中，$nin 表示所有元素都不命中
type relations struct {
	ctx context.Context
	o   *operations
}

func (r *relations) Relation(c *query.Compiler, f *filter.RelationFilter) (query.Query, error) {
	nested := f.Nested
	negated := false
	switch f.Condition {
	case filter.NoRelatedRecord:
		negated = true
	case filter.EveryRelatedRecord:
		negated = true
		nested = filter.NotOf(nested)
	}

	keys, err := r.o.relatedKeys(r.ctx, f.Field.RelatedModel(), nested, f.Field.ReferencedFields())
	if err != nil {
		return nil, err
	}
	return keysQuery(f.Field.LinkingFields(), keys, negated), nil
}

func (r *relations) RelationIsNull(c *query.Compiler, f *filter.OneRelationIsNull) (query.Query, error) {
	rf := f.Field
	if rf.IsInlined() {
		qs := make([]query.Query, 0, len(rf.Fields))
		for _, sf := range rf.LinkingFields() {
			qs = append(qs, &query.ExistsQuery{Field: sf.DBName(), Negated: true})
		}
		return query.And(qs...), nil
	}
	keys, err := r.o.relatedKeys(r.ctx, rf.RelatedModel(), filter.MatchAll(), rf.ReferencedFields())
	if err != nil {
		return nil, err
	}
	return keysQuery(rf.LinkingFields(), keys, true), nil
}

// relatedKeys 关联集合中满足条件的记录在 fields 上的取值，跳过空值
func (o *operations) relatedKeys(ctx context.Context, model *schema.Model, f filter.Filter, fields []*schema.ScalarField) ([][]value.Value, error) {
	sel := selection.FromScalars(fields)
	records, err := o.GetManyRecords(ctx, model, connector.QueryArguments{Filter: f}, sel)
	if err != nil {
		return nil, err
	}
	out := make([][]value.Value, 0, records.Len())
	for _, rec := range records.Records {
		keep := true
		for _, v := range rec.Values {
			if value.IsNull(v) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, rec.Values)
		}
	}
	return out, nil
}

func keysQuery(fields []*schema.ScalarField, keys [][]value.Value, negated bool) query.Query {
	if len(fields) == 1 {
		vs := make([]value.Value, 0, len(keys))
		for _, k := range keys {
			vs = append(vs, k[0])
		}
		return &query.TermsQuery{
			Field:    fields[0].DBName(),
			Values:   filter.Dedup(vs),
			Negated:  negated,
			ObjectID: fields[0].IsObjectID(),
		}
	}

	rows := make([]query.Query, 0, len(keys))
	for _, k := range keys {
		terms := make([]query.Query, len(fields))
		for i, f := range fields {
			terms[i] = &query.TermQuery{Field: f.DBName(), Value: k[i], ObjectID: f.IsObjectID()}
		}
		rows = append(rows, query.And(terms...))
	}
	if negated {
		return query.Not(query.Or(rows...))
	}
	return query.Or(rows...)
}

// idFilter 主键集合对应的过滤条件
func idFilter(ids []selection.SelectionResult) bson.M {
	if len(ids) == 0 {
		return bson.M{"$nor": bson.A{bson.M{}}}
	}
	fields := ids[0].Fields()
	keys := make([][]value.Value, len(ids))
	for i, id := range ids {
		keys[i] = id.Values()
	}
	m, _ := keysQuery(fields, keys, false).ToMongo()
	return bson.M(m)
}
