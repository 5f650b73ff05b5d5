package normalize

import (
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/hatlonely/qcore/qerror"
	"github.com/pkg/errors"
)

// MySQL 按 MySQLError.Number 映射
type MySQL struct{}

func (MySQL) Normalize(err error) error {
	if out, ok := common(err); ok {
		return out
	}
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return err
	}
	return mysqlError(me).WithCause(err)
}

func mysqlError(me *mysql.MySQLError) *qerror.Error {
	msg := me.Message
	switch me.Number {
	case 1062:
		if idx, ok := firstQuoted(msg, "for key"); ok {
			if i := strings.LastIndex(idx, "."); i >= 0 {
				idx = idx[i+1:]
			}
			return qerror.NewUniqueConstraintViolation(qerror.IndexConstraint(idx))
		}
		return qerror.NewUniqueConstraintViolation(qerror.CannotParseConstraint())
	case 1048:
		if col, ok := firstQuoted(msg, "Column"); ok {
			return qerror.NewNullConstraintViolation(qerror.FieldsConstraint(col))
		}
		return qerror.NewNullConstraintViolation(qerror.CannotParseConstraint())
	case 1364:
		if col, ok := firstQuoted(msg, "Field"); ok {
			return qerror.NewNullConstraintViolation(qerror.FieldsConstraint(col))
		}
		return qerror.NewNullConstraintViolation(qerror.CannotParseConstraint())
	case 1451, 1452:
		if m := constrRe.FindStringSubmatch(msg); m != nil {
			return qerror.NewForeignKeyConstraintViolation(qerror.IndexConstraint(m[1]))
		}
		return qerror.NewForeignKeyConstraintViolation(qerror.ForeignKeyConstraint())
	case 1146:
		table, _ := firstQuoted(msg, "Table")
		return qerror.NewTableDoesNotExist(table)
	case 1054:
		col, _ := firstQuoted(msg, "Unknown column")
		return qerror.NewColumnDoesNotExist(col)
	case 1264, 1690:
		return qerror.NewValueOutOfRange(msg)
	case 1406:
		col, _ := firstQuoted(msg, "column")
		return qerror.NewLengthMismatch(col, 0, 0)
	case 1213:
		return qerror.NewTransactionWriteConflict(msg)
	case 1568, 1231:
		if strings.Contains(strings.ToLower(msg), "isolation") {
			return qerror.NewInvalidIsolationLevel(msg)
		}
	}
	return qerror.NewRawDatabaseError(strconv.Itoa(int(me.Number)), msg)
}
