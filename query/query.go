// Package query 后端无关的谓词树
//
// 每个节点可以渲染为 SQL 条件（? 占位）、mongo 过滤文档和 ES 查询 DSL，
// 由 Compiler 从 filter.Filter 编译得到
package query

import (
	"strings"

	"github.com/hatlonely/qcore/value"
)

// QueryType 查询类型
type QueryType string

const (
	QueryTypeBool      QueryType = "bool"
	QueryTypeTerm      QueryType = "term"
	QueryTypeTerms     QueryType = "terms"
	QueryTypeMatch     QueryType = "match"
	QueryTypeRange     QueryType = "range"
	QueryTypeExists    QueryType = "exists"
	QueryTypeWildcard  QueryType = "wildcard"
	QueryTypePrefix    QueryType = "prefix"
	QueryTypeSearch    QueryType = "search"
	QueryTypeSub       QueryType = "sub"
	QueryTypeElemMatch QueryType = "elemMatch"
	QueryTypeRaw       QueryType = "raw"
)

// Query 查询节点接口
type Query interface {
	Type() QueryType
	// 后端适配器接口
	ToES() map[string]interface{}
	ToSQL() (string, []interface{}, error)
	ToMongo() (map[string]interface{}, error)
}

// Dialect SQL 方言，影响全文检索的渲染
type Dialect string

const (
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// QuoteIdent 用反引号引用标识符，a.b 引用为 `a`.`b`
//
// MySQL 与 SQLite 都接受反引号
func QuoteIdent(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = "`" + strings.ReplaceAll(p, "`", "``") + "`"
	}
	return strings.Join(parts, ".")
}

func sqlArg(v value.Value) interface{} {
	return value.ToDriver(v)
}

func mongoArg(v value.Value, objectID bool) interface{} {
	return value.ToBSON(v, objectID)
}

func esArg(v value.Value) interface{} {
	return value.ToAny(v)
}

func stringOf(v value.Value) string {
	switch x := v.(type) {
	case value.String:
		return string(x)
	case value.Enum:
		return string(x)
	case nil, value.Null:
		return ""
	}
	return value.Format(v)
}

// likeEscape LIKE 的转义字符
const likeEscape = "!"

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// escapeLike 转义 LIKE 模式中的特殊字符
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// likeSQL 渲染 LIKE 条件，insensitive 时两侧都转小写
func likeSQL(field, pattern string, insensitive bool) (string, []interface{}) {
	if insensitive {
		return "LOWER(" + QuoteIdent(field) + ") LIKE LOWER(?) ESCAPE '" + likeEscape + "'", []interface{}{pattern}
	}
	return QuoteIdent(field) + " LIKE ? ESCAPE '" + likeEscape + "'", []interface{}{pattern}
}

func regexMongo(field, pattern string, insensitive bool) map[string]interface{} {
	cond := map[string]interface{}{"$regex": pattern}
	if insensitive {
		cond["$options"] = "i"
	}
	return map[string]interface{}{field: cond}
}

func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}
