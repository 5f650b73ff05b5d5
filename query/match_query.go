package query

import (
	"regexp"
)

// MatchQuery 子串匹配
type MatchQuery struct {
	Field       string `json:"field"`
	Value       string `json:"value"`
	Insensitive bool   `json:"insensitive,omitempty"`
}

func (q *MatchQuery) Type() QueryType {
	return QueryTypeMatch
}

func (q *MatchQuery) ToES() map[string]interface{} {
	return (&WildcardQuery{Field: q.Field, Value: "*" + EscapeWildcard(q.Value) + "*", Insensitive: q.Insensitive}).ToES()
}

func (q *MatchQuery) ToSQL() (string, []interface{}, error) {
	sql, args := likeSQL(q.Field, "%"+escapeLike(q.Value)+"%", q.Insensitive)
	return sql, args, nil
}

func (q *MatchQuery) ToMongo() (map[string]interface{}, error) {
	return regexMongo(q.Field, regexp.QuoteMeta(q.Value), q.Insensitive), nil
}
