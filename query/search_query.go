package query

import (
	"regexp"
	"strings"
)

// SearchQuery 全文检索
//
// MySQL 使用 MATCH ... AGAINST 布尔模式，其他 SQL 方言退化为
// 每个检索词都在任一字段中出现（不区分大小写的 LIKE）
type SearchQuery struct {
	Fields  []string `json:"fields"`
	Query   string   `json:"query"`
	Dialect Dialect  `json:"dialect,omitempty"`
}

func (q *SearchQuery) Type() QueryType {
	return QueryTypeSearch
}

// Terms 去掉布尔模式操作符后的检索词
func (q *SearchQuery) Terms() []string {
	var terms []string
	for _, t := range strings.Fields(q.Query) {
		t = strings.Trim(t, `+-~<>()*"`)
		if t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}

// fallback 每个词在任一字段中出现
func (q *SearchQuery) fallback() Query {
	terms := q.Terms()
	if len(terms) == 0 {
		return MatchAll()
	}
	must := make([]Query, 0, len(terms))
	for _, t := range terms {
		should := make([]Query, 0, len(q.Fields))
		for _, f := range q.Fields {
			should = append(should, &MatchQuery{Field: f, Value: t, Insensitive: true})
		}
		must = append(must, Or(should...))
	}
	return And(must...)
}

func (q *SearchQuery) ToES() map[string]interface{} {
	return map[string]interface{}{
		"multi_match": map[string]interface{}{
			"query":    q.Query,
			"fields":   q.Fields,
			"operator": "and",
		},
	}
}

func (q *SearchQuery) ToSQL() (string, []interface{}, error) {
	if q.Dialect == DialectMySQL {
		cols := make([]string, len(q.Fields))
		for i, f := range q.Fields {
			cols[i] = QuoteIdent(f)
		}
		return "MATCH (" + strings.Join(cols, ",") + ") AGAINST (? IN BOOLEAN MODE)", []interface{}{q.Query}, nil
	}
	return q.fallback().ToSQL()
}

func (q *SearchQuery) ToMongo() (map[string]interface{}, error) {
	terms := q.Terms()
	if len(terms) == 0 {
		return map[string]interface{}{}, nil
	}
	and := make([]interface{}, 0, len(terms))
	for _, t := range terms {
		or := make([]interface{}, 0, len(q.Fields))
		for _, f := range q.Fields {
			or = append(or, regexMongo(f, regexp.QuoteMeta(t), true))
		}
		and = append(and, map[string]interface{}{"$or": or})
	}
	if len(and) == 1 {
		return and[0].(map[string]interface{}), nil
	}
	return map[string]interface{}{"$and": and}, nil
}
