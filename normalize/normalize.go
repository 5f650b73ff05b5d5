// Package normalize 将各后端驱动的原生错误归一化为 qerror.Error
package normalize

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"regexp"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/hatlonely/qcore/qerror"
	"github.com/hatlonely/qcore/schema"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
)

// Normalizer 错误归一化
type Normalizer interface {
	Normalize(err error) error
}

// NormalizerFunc 函数适配
type NormalizerFunc func(err error) error

func (f NormalizerFunc) Normalize(err error) error { return f(err) }

// For 根据后端类型选择归一化实现
func For(provider schema.Provider) Normalizer {
	switch provider {
	case schema.ProviderMySQL:
		return MySQL{}
	case schema.ProviderSQLite:
		return SQLite{}
	case schema.ProviderPostgres:
		return Postgres{}
	case schema.ProviderMongoDB:
		return Mongo{}
	case schema.ProviderElasticsearch:
		return Elasticsearch{}
	}
	return NormalizerFunc(func(err error) error {
		if out, ok := common(err); ok {
			return out
		}
		return err
	})
}

// common 所有后端共享的映射，ok 为 false 表示需要后端自己处理
func common(err error) (error, bool) {
	if err == nil {
		return nil, true
	}
	var qe *qerror.Error
	if errors.As(err, &qe) {
		return err, true
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return err, true
	case errors.Is(err, sql.ErrNoRows), errors.Is(err, mongo.ErrNoDocuments):
		return qerror.NewRecordDoesNotExist("").WithCause(err), true
	case errors.Is(err, sql.ErrTxDone):
		return qerror.NewTransactionAlreadyClosed("transaction has already been committed or rolled back").WithCause(err), true
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, mysql.ErrInvalidConn), errors.Is(err, mongo.ErrClientDisconnected), errors.Is(err, sql.ErrConnDone):
		return qerror.NewConnectionClosed().WithCause(err), true
	}
	return nil, false
}

var (
	quotedRe   = regexp.MustCompile("[`'\"]([^`'\"]+)[`'\"]")
	keyListRe  = regexp.MustCompile(`Key \(([^)]+)\)=`)
	constrRe   = regexp.MustCompile("CONSTRAINT [`\"]([^`\"]+)[`\"]")
	pgConstrRe = regexp.MustCompile(`constraint "([^"]+)"`)
)

// firstQuoted 取 marker 之后第一个被引号包围的名字
func firstQuoted(msg, marker string) (string, bool) {
	idx := strings.Index(msg, marker)
	if idx < 0 {
		return "", false
	}
	m := quotedRe.FindStringSubmatch(msg[idx+len(marker):])
	if m == nil {
		return "", false
	}
	return m[1], true
}

func splitFields(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		// 去掉表名前缀与引号
		if i := strings.LastIndex(part, "."); i >= 0 {
			part = part[i+1:]
		}
		out = append(out, strings.Trim(part, "`\"'"))
	}
	return out
}
