package query

import (
	"regexp"
	"strings"
)

// WildcardQuery 通配符查询
//
// * 匹配任意数量字符，? 匹配单个字符，\ 转义下一个字符
type WildcardQuery struct {
	Field       string `json:"field"`
	Value       string `json:"value"`
	Insensitive bool   `json:"insensitive,omitempty"`
}

var wildcardEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`)

// EscapeWildcard 转义字面文本中的通配符
func EscapeWildcard(s string) string {
	return wildcardEscaper.Replace(s)
}

type wildcardToken struct {
	literal string
	any     bool
	one     bool
}

func parseWildcard(pattern string) []wildcardToken {
	var tokens []wildcardToken
	var sb strings.Builder
	flush := func() {
		if sb.Len() > 0 {
			tokens = append(tokens, wildcardToken{literal: sb.String()})
			sb.Reset()
		}
	}
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		switch r := runes[i]; r {
		case '\\':
			if i+1 < len(runes) {
				i++
				sb.WriteRune(runes[i])
			}
		case '*':
			flush()
			tokens = append(tokens, wildcardToken{any: true})
		case '?':
			flush()
			tokens = append(tokens, wildcardToken{one: true})
		default:
			sb.WriteRune(r)
		}
	}
	flush()
	return tokens
}

func (q *WildcardQuery) Type() QueryType {
	return QueryTypeWildcard
}

func (q *WildcardQuery) ToES() map[string]interface{} {
	if q.Insensitive {
		return map[string]interface{}{
			"wildcard": map[string]interface{}{
				q.Field: map[string]interface{}{"value": q.Value, "case_insensitive": true},
			},
		}
	}
	return map[string]interface{}{
		"wildcard": map[string]interface{}{
			q.Field: q.Value,
		},
	}
}

func (q *WildcardQuery) ToSQL() (string, []interface{}, error) {
	// * -> %，? -> _，字面文本按 LIKE 规则转义
	var sb strings.Builder
	for _, t := range parseWildcard(q.Value) {
		switch {
		case t.any:
			sb.WriteString("%")
		case t.one:
			sb.WriteString("_")
		default:
			sb.WriteString(escapeLike(t.literal))
		}
	}
	sql, args := likeSQL(q.Field, sb.String(), q.Insensitive)
	return sql, args, nil
}

func (q *WildcardQuery) ToMongo() (map[string]interface{}, error) {
	// * -> .*，? -> .
	var sb strings.Builder
	sb.WriteString("^")
	for _, t := range parseWildcard(q.Value) {
		switch {
		case t.any:
			sb.WriteString(".*")
		case t.one:
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(t.literal))
		}
	}
	sb.WriteString("$")
	return regexMongo(q.Field, sb.String(), q.Insensitive), nil
}
