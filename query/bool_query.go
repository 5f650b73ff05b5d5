package query

import (
	"fmt"
	"strings"
)

// BoolQuery 布尔查询
//
// Must 全部满足，Should 至少满足 MinShouldMatch 个（默认 1），MustNot 全部不满足。
// 没有任何子句时匹配全部，Should 为空但设置了 MinShouldMatch 时不匹配任何记录
type BoolQuery struct {
	Must           []Query `json:"must,omitempty"`
	Should         []Query `json:"should,omitempty"`
	MustNot        []Query `json:"must_not,omitempty"`
	MinShouldMatch *int    `json:"minimum_should_match,omitempty"`
}

// And 全部满足，没有子句时匹配全部
func And(qs ...Query) *BoolQuery {
	return &BoolQuery{Must: qs}
}

// Or 任一满足，没有子句时不匹配任何记录
func Or(qs ...Query) *BoolQuery {
	one := 1
	return &BoolQuery{Should: qs, MinShouldMatch: &one}
}

// Not 全部不满足
func Not(qs ...Query) *BoolQuery {
	return &BoolQuery{MustNot: qs}
}

// MatchAll 匹配全部
func MatchAll() *BoolQuery {
	return &BoolQuery{}
}

// MatchNone 不匹配任何记录
func MatchNone() *BoolQuery {
	return Or()
}

func (q *BoolQuery) Type() QueryType {
	return QueryTypeBool
}

func (q *BoolQuery) matchesNone() bool {
	return len(q.Should) == 0 && q.MinShouldMatch != nil && *q.MinShouldMatch > 0
}

func (q *BoolQuery) minShould() int {
	if q.MinShouldMatch == nil {
		return 1
	}
	return *q.MinShouldMatch
}

func (q *BoolQuery) ToES() map[string]interface{} {
	if q.matchesNone() {
		return map[string]interface{}{"match_none": map[string]interface{}{}}
	}
	boolQuery := make(map[string]interface{})

	if len(q.Must) > 0 {
		must := make([]interface{}, len(q.Must))
		for i, query := range q.Must {
			must[i] = query.ToES()
		}
		boolQuery["must"] = must
	}

	if len(q.Should) > 0 {
		should := make([]interface{}, len(q.Should))
		for i, query := range q.Should {
			should[i] = query.ToES()
		}
		boolQuery["should"] = should
		boolQuery["minimum_should_match"] = q.minShould()
	}

	if len(q.MustNot) > 0 {
		mustNot := make([]interface{}, len(q.MustNot))
		for i, query := range q.MustNot {
			mustNot[i] = query.ToES()
		}
		boolQuery["must_not"] = mustNot
	}

	if len(boolQuery) == 0 {
		return map[string]interface{}{"match_all": map[string]interface{}{}}
	}
	return map[string]interface{}{"bool": boolQuery}
}

func (q *BoolQuery) ToSQL() (string, []interface{}, error) {
	if q.matchesNone() {
		return "1=0", nil, nil
	}

	var conditions []string
	var args []interface{}

	if len(q.Must) > 0 {
		mustConditions := make([]string, 0, len(q.Must))
		for _, query := range q.Must {
			sql, queryArgs, err := query.ToSQL()
			if err != nil {
				return "", nil, err
			}
			mustConditions = append(mustConditions, "("+sql+")")
			args = append(args, queryArgs...)
		}
		conditions = append(conditions, strings.Join(mustConditions, " AND "))
	}

	if len(q.Should) > 0 {
		shouldConditions := make([]string, 0, len(q.Should))
		for _, query := range q.Should {
			sql, queryArgs, err := query.ToSQL()
			if err != nil {
				return "", nil, err
			}
			shouldConditions = append(shouldConditions, sql)
			args = append(args, queryArgs...)
		}

		// MinShouldMatch 大于 1 时使用条件计数
		if n := q.minShould(); n > 1 {
			caseConditions := make([]string, len(shouldConditions))
			for i, condition := range shouldConditions {
				caseConditions[i] = fmt.Sprintf("CASE WHEN (%s) THEN 1 ELSE 0 END", condition)
			}
			conditions = append(conditions, fmt.Sprintf("(%s) >= %d", strings.Join(caseConditions, " + "), n))
		} else {
			for i, condition := range shouldConditions {
				shouldConditions[i] = "(" + condition + ")"
			}
			conditions = append(conditions, "("+strings.Join(shouldConditions, " OR ")+")")
		}
	}

	if len(q.MustNot) > 0 {
		mustNotConditions := make([]string, 0, len(q.MustNot))
		for _, query := range q.MustNot {
			sql, queryArgs, err := query.ToSQL()
			if err != nil {
				return "", nil, err
			}
			mustNotConditions = append(mustNotConditions, "NOT ("+sql+")")
			args = append(args, queryArgs...)
		}
		conditions = append(conditions, strings.Join(mustNotConditions, " AND "))
	}

	if len(conditions) == 0 {
		return "1=1", nil, nil
	}

	return strings.Join(conditions, " AND "), args, nil
}

func (q *BoolQuery) ToMongo() (map[string]interface{}, error) {
	if q.matchesNone() {
		return map[string]interface{}{"$nor": []interface{}{map[string]interface{}{}}}, nil
	}

	andConditions := make([]interface{}, 0)

	for _, query := range q.Must {
		condition, err := query.ToMongo()
		if err != nil {
			return nil, err
		}
		andConditions = append(andConditions, condition)
	}

	if len(q.Should) > 0 {
		orConditions := make([]interface{}, 0, len(q.Should))
		for _, query := range q.Should {
			condition, err := query.ToMongo()
			if err != nil {
				return nil, err
			}
			orConditions = append(orConditions, condition)
		}

		// MinShouldMatch 大于 1 时使用 $expr 条件计数
		if n := q.minShould(); n > 1 {
			condArray := make([]interface{}, len(orConditions))
			for i, condition := range orConditions {
				condArray[i] = map[string]interface{}{
					"$cond": []interface{}{condition, 1, 0},
				}
			}
			andConditions = append(andConditions, map[string]interface{}{
				"$expr": map[string]interface{}{
					"$gte": []interface{}{map[string]interface{}{"$add": condArray}, n},
				},
			})
		} else {
			andConditions = append(andConditions, map[string]interface{}{"$or": orConditions})
		}
	}

	if len(q.MustNot) > 0 {
		norConditions := make([]interface{}, 0, len(q.MustNot))
		for _, query := range q.MustNot {
			condition, err := query.ToMongo()
			if err != nil {
				return nil, err
			}
			norConditions = append(norConditions, condition)
		}
		andConditions = append(andConditions, map[string]interface{}{"$nor": norConditions})
	}

	if len(andConditions) == 0 {
		return map[string]interface{}{}, nil
	}

	if len(andConditions) == 1 {
		return andConditions[0].(map[string]interface{}), nil
	}

	return map[string]interface{}{"$and": andConditions}, nil
}
