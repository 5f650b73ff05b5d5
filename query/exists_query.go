package query

// ExistsQuery 字段非空查询，Negated 时匹配空值
//
// Strict 只在 mongo 中生效，按字段是否存在判断，不关心值是否为 null
type ExistsQuery struct {
	Field   string `json:"field"`
	Negated bool   `json:"negated,omitempty"`
	Strict  bool   `json:"strict,omitempty"`
}

func (q *ExistsQuery) Type() QueryType {
	return QueryTypeExists
}

func (q *ExistsQuery) ToES() map[string]interface{} {
	exists := map[string]interface{}{
		"exists": map[string]interface{}{
			"field": q.Field,
		},
	}
	if q.Negated {
		return map[string]interface{}{
			"bool": map[string]interface{}{"must_not": []interface{}{exists}},
		}
	}
	return exists
}

func (q *ExistsQuery) ToSQL() (string, []interface{}, error) {
	if q.Negated {
		return QuoteIdent(q.Field) + " IS NULL", nil, nil
	}
	return QuoteIdent(q.Field) + " IS NOT NULL", nil, nil
}

func (q *ExistsQuery) ToMongo() (map[string]interface{}, error) {
	if q.Strict {
		return map[string]interface{}{
			q.Field: map[string]interface{}{"$exists": !q.Negated},
		}, nil
	}
	if q.Negated {
		return map[string]interface{}{q.Field: nil}, nil
	}
	return map[string]interface{}{
		q.Field: map[string]interface{}{"$ne": nil},
	}, nil
}
