package query

import "regexp"

// PrefixQuery 前缀查询
type PrefixQuery struct {
	Field       string `json:"field"`
	Value       string `json:"value"`
	Insensitive bool   `json:"insensitive,omitempty"`
}

func (q *PrefixQuery) Type() QueryType {
	return QueryTypePrefix
}

func (q *PrefixQuery) ToES() map[string]interface{} {
	if q.Insensitive {
		return map[string]interface{}{
			"prefix": map[string]interface{}{
				q.Field: map[string]interface{}{"value": q.Value, "case_insensitive": true},
			},
		}
	}
	return map[string]interface{}{
		"prefix": map[string]interface{}{
			q.Field: q.Value,
		},
	}
}

func (q *PrefixQuery) ToSQL() (string, []interface{}, error) {
	sql, args := likeSQL(q.Field, escapeLike(q.Value)+"%", q.Insensitive)
	return sql, args, nil
}

func (q *PrefixQuery) ToMongo() (map[string]interface{}, error) {
	return regexMongo(q.Field, "^"+regexp.QuoteMeta(q.Value), q.Insensitive), nil
}
