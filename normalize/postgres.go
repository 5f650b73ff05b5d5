package normalize

import (
	"github.com/hatlonely/qcore/qerror"
	"github.com/pkg/errors"
)

// SQLStateError 任何暴露 SQLSTATE 的驱动错误，例如 pgconn.PgError
type SQLStateError interface {
	error
	SQLState() string
}

// Postgres 按 SQLSTATE 映射，不直接依赖具体驱动
type Postgres struct{}

func (Postgres) Normalize(err error) error {
	if out, ok := common(err); ok {
		return out
	}
	var se SQLStateError
	if !errors.As(err, &se) {
		return err
	}
	return postgresError(se.SQLState(), se.Error()).WithCause(err)
}

func postgresError(state, msg string) *qerror.Error {
	switch state {
	case "23505":
		return qerror.NewUniqueConstraintViolation(pgConstraint(msg))
	case "23502":
		if col, ok := firstQuoted(msg, "column"); ok {
			return qerror.NewNullConstraintViolation(qerror.FieldsConstraint(col))
		}
		return qerror.NewNullConstraintViolation(qerror.CannotParseConstraint())
	case "23503":
		if m := pgConstrRe.FindStringSubmatch(msg); m != nil {
			return qerror.NewForeignKeyConstraintViolation(qerror.IndexConstraint(m[1]))
		}
		return qerror.NewForeignKeyConstraintViolation(qerror.ForeignKeyConstraint())
	case "42P01":
		table, _ := firstQuoted(msg, "relation")
		return qerror.NewTableDoesNotExist(table)
	case "42703":
		col, _ := firstQuoted(msg, "column")
		return qerror.NewColumnDoesNotExist(col)
	case "22003":
		return qerror.NewValueOutOfRange(msg)
	case "22001":
		return qerror.NewLengthMismatch("", 0, 0)
	case "40001", "40P01":
		return qerror.NewTransactionWriteConflict(msg)
	case "25P02", "25000":
		return qerror.NewTransactionAlreadyClosed(msg)
	}
	return qerror.NewRawDatabaseError(state, msg)
}

// pgConstraint 优先取 Key (a, b)= 中的字段，其次取约束名
func pgConstraint(msg string) qerror.DatabaseConstraint {
	if m := keyListRe.FindStringSubmatch(msg); m != nil {
		if fields := splitFields(m[1]); len(fields) != 0 {
			return qerror.FieldsConstraint(fields...)
		}
	}
	if m := pgConstrRe.FindStringSubmatch(msg); m != nil {
		return qerror.IndexConstraint(m[1])
	}
	return qerror.CannotParseConstraint()
}
