package query

import (
	"github.com/hatlonely/qcore/value"
)

// TermsQuery 集合匹配，Negated 时为 NOT IN
//
// 空集合的 IN 不匹配任何记录，空集合的 NOT IN 匹配全部
type TermsQuery struct {
	Field    string        `json:"field"`
	Values   []value.Value `json:"values"`
	Negated  bool          `json:"negated,omitempty"`
	ObjectID bool          `json:"objectId,omitempty"`
}

func (q *TermsQuery) Type() QueryType {
	return QueryTypeTerms
}

func (q *TermsQuery) ToES() map[string]interface{} {
	vs := make([]interface{}, len(q.Values))
	for i, v := range q.Values {
		vs[i] = esArg(v)
	}
	terms := map[string]interface{}{
		"terms": map[string]interface{}{q.Field: vs},
	}
	if q.Negated {
		return map[string]interface{}{
			"bool": map[string]interface{}{"must_not": []interface{}{terms}},
		}
	}
	return terms
}

func (q *TermsQuery) ToSQL() (string, []interface{}, error) {
	if len(q.Values) == 0 {
		if q.Negated {
			return "1=1", nil, nil
		}
		return "1=0", nil, nil
	}
	args := make([]interface{}, len(q.Values))
	for i, v := range q.Values {
		args[i] = sqlArg(v)
	}
	op := " IN ("
	if q.Negated {
		op = " NOT IN ("
	}
	return QuoteIdent(q.Field) + op + placeholders(len(args)) + ")", args, nil
}

func (q *TermsQuery) ToMongo() (map[string]interface{}, error) {
	vs := make([]interface{}, len(q.Values))
	for i, v := range q.Values {
		vs[i] = mongoArg(v, q.ObjectID)
	}
	op := "$in"
	if q.Negated {
		op = "$nin"
	}
	return map[string]interface{}{
		q.Field: map[string]interface{}{op: vs},
	}, nil
}
