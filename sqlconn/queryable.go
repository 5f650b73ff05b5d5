package sqlconn

import (
	"context"
	"database/sql"
	"time"

	"github.com/hatlonely/qcore/log"
	"github.com/hatlonely/qcore/normalize"
	"github.com/hatlonely/qcore/schema"
)

// Flavour SQL 方言
type Flavour string

const (
	FlavourMySQL  Flavour = "mysql"
	FlavourSQLite Flavour = "sqlite"
)

func (f Flavour) provider() schema.Provider {
	if f == FlavourSQLite {
		return schema.ProviderSQLite
	}
	return schema.ProviderMySQL
}

// ResultSet 查询结果，Rows 中是驱动返回的原始值
type ResultSet struct {
	Columns []string
	Rows    [][]interface{}
}

func (r *ResultSet) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// InsertResult Rows 为 RETURNING 返回的行，LastInsertID 仅在驱动提供时有值
type InsertResult struct {
	Rows         *ResultSet
	LastInsertID *int64
	RowsAffected int64
}

// Queryable 执行语句的能力，由连接池和事务分别实现
//
// 返回的错误已经过 normalize 转换
type Queryable interface {
	Query(ctx context.Context, stmt string, args []interface{}) (*ResultSet, error)
	Execute(ctx context.Context, stmt string, args []interface{}) (int64, error)
	Insert(ctx context.Context, stmt string, args []interface{}, returning bool) (*InsertResult, error)
	RawCmd(ctx context.Context, stmt string) error
	Flavour() Flavour
}

// conn *sql.DB 和 *sql.Tx 的公共部分
type conn interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type queryable struct {
	conn       conn
	flavour    Flavour
	logger     log.Logger
	normalizer normalize.Normalizer
}

func newQueryable(c conn, flavour Flavour, logger log.Logger) *queryable {
	return &queryable{
		conn:       c,
		flavour:    flavour,
		logger:     logger,
		normalizer: normalize.For(flavour.provider()),
	}
}

func (q *queryable) Flavour() Flavour {
	return q.flavour
}

func (q *queryable) trace(ctx context.Context, stmt string, args []interface{}, start time.Time, err error) {
	if err != nil {
		q.logger.DebugContext(ctx, "sql failed", "sql", stmt, "args", len(args), "elapsed", time.Since(start), "error", err)
		return
	}
	q.logger.DebugContext(ctx, "sql", "sql", stmt, "args", len(args), "elapsed", time.Since(start))
}

func (q *queryable) Query(ctx context.Context, stmt string, args []interface{}) (*ResultSet, error) {
	start := time.Now()
	rs, err := q.query(ctx, stmt, args)
	q.trace(ctx, stmt, args, start, err)
	if err != nil {
		return nil, q.normalizer.Normalize(err)
	}
	return rs, nil
}

func (q *queryable) query(ctx context.Context, stmt string, args []interface{}) (*ResultSet, error) {
	rows, err := q.conn.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	rs := &ResultSet{Columns: columns}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rs.Rows = append(rs.Rows, values)
	}
	return rs, rows.Err()
}

func (q *queryable) Execute(ctx context.Context, stmt string, args []interface{}) (int64, error) {
	start := time.Now()
	res, err := q.conn.ExecContext(ctx, stmt, args...)
	q.trace(ctx, stmt, args, start, err)
	if err != nil {
		return 0, q.normalizer.Normalize(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, q.normalizer.Normalize(err)
	}
	return n, nil
}

func (q *queryable) Insert(ctx context.Context, stmt string, args []interface{}, returning bool) (*InsertResult, error) {
	if returning {
		rs, err := q.Query(ctx, stmt, args)
		if err != nil {
			return nil, err
		}
		return &InsertResult{Rows: rs, RowsAffected: int64(rs.Len())}, nil
	}

	start := time.Now()
	res, err := q.conn.ExecContext(ctx, stmt, args...)
	q.trace(ctx, stmt, args, start, err)
	if err != nil {
		return nil, q.normalizer.Normalize(err)
	}
	out := &InsertResult{}
	if n, err := res.RowsAffected(); err == nil {
		out.RowsAffected = n
	}
	if id, err := res.LastInsertId(); err == nil && id != 0 {
		out.LastInsertID = &id
	}
	return out, nil
}

func (q *queryable) RawCmd(ctx context.Context, stmt string) error {
	_, err := q.Execute(ctx, stmt, nil)
	return err
}
