package query

import (
	"github.com/hatlonely/qcore/qerror"
	"github.com/hatlonely/qcore/value"
)

// RawQuery 后端原生片段，未提供的后端返回 Unsupported
type RawQuery struct {
	SQL   string                 `json:"sql,omitempty"`
	Args  []value.Value          `json:"args,omitempty"`
	Mongo map[string]interface{} `json:"mongo,omitempty"`
	ES    map[string]interface{} `json:"es,omitempty"`
}

func (q *RawQuery) Type() QueryType {
	return QueryTypeRaw
}

func (q *RawQuery) ToES() map[string]interface{} {
	if q.ES == nil {
		return map[string]interface{}{"match_none": map[string]interface{}{}}
	}
	return q.ES
}

func (q *RawQuery) ToSQL() (string, []interface{}, error) {
	if q.SQL == "" {
		return "", nil, qerror.NewUnsupported("raw query has no sql form")
	}
	args := make([]interface{}, len(q.Args))
	for i, v := range q.Args {
		args[i] = sqlArg(v)
	}
	return q.SQL, args, nil
}

func (q *RawQuery) ToMongo() (map[string]interface{}, error) {
	if q.Mongo == nil {
		return nil, qerror.NewUnsupported("raw query has no mongo form")
	}
	return q.Mongo, nil
}
