package normalize

import (
	"strconv"
	"strings"

	"github.com/hatlonely/qcore/qerror"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// SQLite 按扩展错误码映射，约束的字段名从错误信息中解析
type SQLite struct{}

func (SQLite) Normalize(err error) error {
	if out, ok := common(err); ok {
		return out
	}
	var se sqlite3.Error
	if !errors.As(err, &se) {
		var sp *sqlite3.Error
		if !errors.As(err, &sp) {
			return err
		}
		se = *sp
	}
	return sqliteError(se).WithCause(err)
}

func sqliteError(se sqlite3.Error) *qerror.Error {
	msg := se.Error()
	switch se.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		return qerror.NewUniqueConstraintViolation(fieldsAfter(msg, "constraint failed:"))
	case sqlite3.ErrConstraintNotNull:
		return qerror.NewNullConstraintViolation(fieldsAfter(msg, "constraint failed:"))
	case sqlite3.ErrConstraintForeignKey:
		return qerror.NewForeignKeyConstraintViolation(qerror.ForeignKeyConstraint())
	}

	switch se.Code {
	case sqlite3.ErrBusy, sqlite3.ErrLocked:
		return qerror.NewTransactionWriteConflict(msg)
	case sqlite3.ErrTooBig:
		return qerror.NewLengthMismatch("", 0, 0)
	}

	switch {
	case strings.HasPrefix(msg, "no such table:"):
		return qerror.NewTableDoesNotExist(strings.TrimSpace(strings.TrimPrefix(msg, "no such table:")))
	case strings.HasPrefix(msg, "no such column:"):
		return qerror.NewColumnDoesNotExist(strings.TrimSpace(strings.TrimPrefix(msg, "no such column:")))
	case strings.Contains(msg, "has no column named"):
		return qerror.NewColumnDoesNotExist(strings.TrimSpace(msg[strings.Index(msg, "has no column named")+len("has no column named"):]))
	}
	return qerror.NewRawDatabaseError(strconv.Itoa(int(se.ExtendedCode)), msg)
}

func fieldsAfter(msg, marker string) qerror.DatabaseConstraint {
	idx := strings.Index(msg, marker)
	if idx < 0 {
		return qerror.CannotParseConstraint()
	}
	fields := splitFields(msg[idx+len(marker):])
	if len(fields) == 0 {
		return qerror.CannotParseConstraint()
	}
	return qerror.FieldsConstraint(fields...)
}
