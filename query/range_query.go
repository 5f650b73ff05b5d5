package query

import (
	"strings"

	"github.com/hatlonely/qcore/value"
)

// RangeQuery 范围查询，nil 表示该端不限
type RangeQuery struct {
	Field string      `json:"field"`
	Gt    value.Value `json:"gt,omitempty"`
	Gte   value.Value `json:"gte,omitempty"`
	Lt    value.Value `json:"lt,omitempty"`
	Lte   value.Value `json:"lte,omitempty"`
}

type bound struct {
	es, sql, mongo string
	v              value.Value
}

func (q *RangeQuery) bounds() []bound {
	var out []bound
	for _, b := range []bound{
		{"gt", ">", "$gt", q.Gt},
		{"gte", ">=", "$gte", q.Gte},
		{"lt", "<", "$lt", q.Lt},
		{"lte", "<=", "$lte", q.Lte},
	} {
		if b.v != nil {
			out = append(out, b)
		}
	}
	return out
}

func (q *RangeQuery) Type() QueryType {
	return QueryTypeRange
}

func (q *RangeQuery) ToES() map[string]interface{} {
	rangeQuery := make(map[string]interface{})
	for _, b := range q.bounds() {
		rangeQuery[b.es] = esArg(b.v)
	}
	return map[string]interface{}{
		"range": map[string]interface{}{
			q.Field: rangeQuery,
		},
	}
}

func (q *RangeQuery) ToSQL() (string, []interface{}, error) {
	var conditions []string
	var args []interface{}
	for _, b := range q.bounds() {
		conditions = append(conditions, QuoteIdent(q.Field)+" "+b.sql+" ?")
		args = append(args, sqlArg(b.v))
	}

	if len(conditions) == 0 {
		return "1=1", nil, nil
	}

	return strings.Join(conditions, " AND "), args, nil
}

func (q *RangeQuery) ToMongo() (map[string]interface{}, error) {
	condition := make(map[string]interface{})
	for _, b := range q.bounds() {
		condition[b.mongo] = mongoArg(b.v, false)
	}
	return map[string]interface{}{
		q.Field: condition,
	}, nil
}
