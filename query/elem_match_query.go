package query

import (
	"github.com/hatlonely/qcore/qerror"
)

// ElemMatchMode 数组元素匹配方式
type ElemMatchMode int

const (
	ElemSome ElemMatchMode = iota
	ElemEvery
	ElemNone
)

// ElemMatchQuery 对象数组元素匹配，Where 中的字段相对于数组元素
//
// mongo 使用 $elemMatch，ES 使用 nested 查询，SQL 后端不支持
type ElemMatchQuery struct {
	Field string        `json:"field"`
	Where Query         `json:"where"`
	Mode  ElemMatchMode `json:"mode"`
}

func (q *ElemMatchQuery) Type() QueryType {
	return QueryTypeElemMatch
}

func (q *ElemMatchQuery) ToES() map[string]interface{} {
	nested := func(inner map[string]interface{}) map[string]interface{} {
		return map[string]interface{}{
			"nested": map[string]interface{}{"path": q.Field, "query": inner},
		}
	}
	switch q.Mode {
	case ElemEvery:
		return Not(&RawQuery{ES: nested(Not(q.Where).ToES())}).ToES()
	case ElemNone:
		return Not(&RawQuery{ES: nested(q.Where.ToES())}).ToES()
	}
	return nested(q.Where.ToES())
}

func (q *ElemMatchQuery) ToSQL() (string, []interface{}, error) {
	return "", nil, qerror.NewUnsupported("composite list filters are only available on document backends")
}

func (q *ElemMatchQuery) ToMongo() (map[string]interface{}, error) {
	where, err := q.Where.ToMongo()
	if err != nil {
		return nil, err
	}
	switch q.Mode {
	case ElemEvery:
		// 不存在不满足条件的元素
		return map[string]interface{}{
			q.Field: map[string]interface{}{
				"$not": map[string]interface{}{
					"$elemMatch": map[string]interface{}{"$nor": []interface{}{where}},
				},
			},
		}, nil
	case ElemNone:
		return map[string]interface{}{
			q.Field: map[string]interface{}{
				"$not": map[string]interface{}{"$elemMatch": where},
			},
		}, nil
	}
	return map[string]interface{}{
		q.Field: map[string]interface{}{"$elemMatch": where},
	}, nil
}
