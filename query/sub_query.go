package query

import (
	"strings"

	"github.com/hatlonely/qcore/qerror"
)

// SubQuery 子查询 col [NOT] IN (SELECT ... FROM ... WHERE ...)，仅 SQL 后端可用
//
// 多列时使用行值比较 (a, b) IN (SELECT x, y ...)
type SubQuery struct {
	Columns []string `json:"columns"`
	Negated bool     `json:"negated,omitempty"`
	Table   string   `json:"table"`
	Select  []string `json:"select"`
	Where   Query    `json:"where,omitempty"`
}

func (q *SubQuery) Type() QueryType {
	return QueryTypeSub
}

func (q *SubQuery) ToES() map[string]interface{} {
	return map[string]interface{}{"match_none": map[string]interface{}{}}
}

func quoteAll(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = QuoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

func (q *SubQuery) ToSQL() (string, []interface{}, error) {
	if len(q.Columns) == 0 || len(q.Columns) != len(q.Select) {
		return "", nil, qerror.NewInternalInvariantViolation("sub query columns do not match its select list")
	}
	var sb strings.Builder
	if len(q.Columns) == 1 {
		sb.WriteString(QuoteIdent(q.Columns[0]))
	} else {
		sb.WriteString("(" + quoteAll(q.Columns) + ")")
	}
	if q.Negated {
		sb.WriteString(" NOT")
	}
	sb.WriteString(" IN (SELECT " + quoteAll(q.Select) + " FROM " + QuoteIdent(q.Table))

	var conditions []string
	var args []interface{}
	if q.Where != nil {
		where, whereArgs, err := q.Where.ToSQL()
		if err != nil {
			return "", nil, err
		}
		conditions = append(conditions, "("+where+")")
		args = whereArgs
	}
	// NOT IN 遇到 NULL 时整体为 NULL，需要排除子查询中的空值
	if q.Negated {
		for _, s := range q.Select {
			conditions = append(conditions, QuoteIdent(s)+" IS NOT NULL")
		}
	}
	if len(conditions) > 0 {
		sb.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	}
	sb.WriteString(")")
	return sb.String(), args, nil
}

func (q *SubQuery) ToMongo() (map[string]interface{}, error) {
	return nil, qerror.NewUnsupported("sub queries are only available on SQL backends")
}
