package query

import (
	"regexp"

	"github.com/hatlonely/qcore/value"
)

// TermQuery 精确匹配查询，Value 为 Null 时匹配空值
type TermQuery struct {
	Field       string      `json:"field"`
	Value       value.Value `json:"value"`
	Insensitive bool        `json:"insensitive,omitempty"`
	// ObjectID mongo 中按 ObjectID 比较
	ObjectID bool `json:"objectId,omitempty"`
}

func (q *TermQuery) Type() QueryType {
	return QueryTypeTerm
}

func (q *TermQuery) isNull() bool {
	return value.IsNull(q.Value)
}

func (q *TermQuery) ToES() map[string]interface{} {
	if q.isNull() {
		return Not(&ExistsQuery{Field: q.Field}).ToES()
	}
	if q.Insensitive {
		return map[string]interface{}{
			"term": map[string]interface{}{
				q.Field: map[string]interface{}{"value": esArg(q.Value), "case_insensitive": true},
			},
		}
	}
	return map[string]interface{}{
		"term": map[string]interface{}{
			q.Field: esArg(q.Value),
		},
	}
}

func (q *TermQuery) ToSQL() (string, []interface{}, error) {
	if q.isNull() {
		return QuoteIdent(q.Field) + " IS NULL", nil, nil
	}
	if q.Insensitive {
		return "LOWER(" + QuoteIdent(q.Field) + ") = LOWER(?)", []interface{}{sqlArg(q.Value)}, nil
	}
	return QuoteIdent(q.Field) + " = ?", []interface{}{sqlArg(q.Value)}, nil
}

func (q *TermQuery) ToMongo() (map[string]interface{}, error) {
	if q.Insensitive && !q.isNull() {
		return regexMongo(q.Field, "^"+regexp.QuoteMeta(stringOf(q.Value))+"$", true), nil
	}
	return map[string]interface{}{
		q.Field: mongoArg(q.Value, q.ObjectID),
	}, nil
}
