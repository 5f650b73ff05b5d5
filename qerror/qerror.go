// Package qerror 定义查询引擎对外暴露的错误分类
//
// 所有连接器在返回前都会把驱动原生错误归一化为 *Error，
// 调用方通过 KindOf 或 errors.Is(err, qerror.ErrXxx) 判断错误类别，
// 不需要解析数据库返回的文本
package qerror

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Kind 错误类别
type Kind int

const (
	KindUnknown Kind = iota
	KindInputResolution
	KindConversion
	KindFieldNotFound
	KindUniqueConstraintViolation
	KindNullConstraintViolation
	KindForeignKeyConstraintViolation
	KindRecordDoesNotExist
	KindRecordsNotConnected
	KindTableDoesNotExist
	KindColumnDoesNotExist
	KindTransactionAlreadyClosed
	KindTransactionWriteConflict
	KindInvalidIsolationLevel
	KindValueOutOfRange
	KindLengthMismatch
	KindUnsupportedColumnType
	KindConnectionClosed
	KindRawDatabaseError
	KindInternalInvariantViolation
	KindUnsupported
	KindTransactionStartTimeout
)

var kindNames = map[Kind]string{
	KindUnknown:                       "Unknown",
	KindInputResolution:               "InputResolutionError",
	KindConversion:                    "ConversionError",
	KindFieldNotFound:                 "FieldNotFound",
	KindUniqueConstraintViolation:     "UniqueConstraintViolation",
	KindNullConstraintViolation:       "NullConstraintViolation",
	KindForeignKeyConstraintViolation: "ForeignKeyConstraintViolation",
	KindRecordDoesNotExist:            "RecordDoesNotExist",
	KindRecordsNotConnected:           "RecordsNotConnected",
	KindTableDoesNotExist:             "TableDoesNotExist",
	KindColumnDoesNotExist:            "ColumnDoesNotExist",
	KindTransactionAlreadyClosed:      "TransactionAlreadyClosed",
	KindTransactionWriteConflict:      "TransactionWriteConflict",
	KindInvalidIsolationLevel:         "InvalidIsolationLevel",
	KindValueOutOfRange:               "ValueOutOfRange",
	KindLengthMismatch:                "LengthMismatch",
	KindUnsupportedColumnType:         "UnsupportedColumnType",
	KindConnectionClosed:              "ConnectionClosed",
	KindRawDatabaseError:              "RawDatabaseError",
	KindInternalInvariantViolation:    "InternalInvariantViolation",
	KindUnsupported:                   "Unsupported",
	KindTransactionStartTimeout:       "TransactionStartTimeout",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// 用于 errors.Is 判断的类别哨兵
var (
	ErrInputResolution               = &Error{Kind: KindInputResolution}
	ErrConversion                    = &Error{Kind: KindConversion}
	ErrFieldNotFound                 = &Error{Kind: KindFieldNotFound}
	ErrUniqueConstraintViolation     = &Error{Kind: KindUniqueConstraintViolation}
	ErrNullConstraintViolation       = &Error{Kind: KindNullConstraintViolation}
	ErrForeignKeyConstraintViolation = &Error{Kind: KindForeignKeyConstraintViolation}
	ErrRecordDoesNotExist            = &Error{Kind: KindRecordDoesNotExist}
	ErrRecordsNotConnected           = &Error{Kind: KindRecordsNotConnected}
	ErrTableDoesNotExist             = &Error{Kind: KindTableDoesNotExist}
	ErrColumnDoesNotExist            = &Error{Kind: KindColumnDoesNotExist}
	ErrTransactionAlreadyClosed      = &Error{Kind: KindTransactionAlreadyClosed}
	ErrTransactionWriteConflict      = &Error{Kind: KindTransactionWriteConflict}
	ErrInvalidIsolationLevel         = &Error{Kind: KindInvalidIsolationLevel}
	ErrValueOutOfRange               = &Error{Kind: KindValueOutOfRange}
	ErrLengthMismatch                = &Error{Kind: KindLengthMismatch}
	ErrUnsupportedColumnType         = &Error{Kind: KindUnsupportedColumnType}
	ErrConnectionClosed              = &Error{Kind: KindConnectionClosed}
	ErrRawDatabaseError              = &Error{Kind: KindRawDatabaseError}
	ErrInternalInvariantViolation    = &Error{Kind: KindInternalInvariantViolation}
	ErrUnsupported                   = &Error{Kind: KindUnsupported}
	ErrTransactionStartTimeout       = &Error{Kind: KindTransactionStartTimeout}
)

// Error 引擎错误，按 Kind 携带结构化信息
type Error struct {
	Kind Kind

	Constraint DatabaseConstraint

	Model     string
	Field     string
	Container string
	Table     string
	Column    string

	From string
	To   string

	Expected int
	Actual   int

	Code    string
	Message string

	cause error
}

func (e *Error) Error() string {
	var msg string
	switch e.Kind {
	case KindInputResolution:
		msg = fmt.Sprintf("unable to resolve field %s on %s", e.Field, e.Container)
		if e.Message != "" {
			msg = e.Message
		}
	case KindConversion:
		msg = fmt.Sprintf("conversion failed: %s cannot be converted to %s", e.From, e.To)
	case KindFieldNotFound:
		msg = fmt.Sprintf("field %s not found in %s %s", e.Field, e.Message, e.Container)
	case KindUniqueConstraintViolation:
		msg = fmt.Sprintf("unique constraint failed on %s", e.Constraint)
	case KindNullConstraintViolation:
		msg = fmt.Sprintf("null constraint violation on %s", e.Constraint)
	case KindForeignKeyConstraintViolation:
		msg = fmt.Sprintf("foreign key constraint failed on %s", e.Constraint)
	case KindRecordDoesNotExist:
		msg = "record does not exist"
		if e.Message != "" {
			msg = e.Message
		}
	case KindRecordsNotConnected:
		msg = fmt.Sprintf("records for relation %s between %s and %s are not connected", e.Field, e.Model, e.Container)
	case KindTableDoesNotExist:
		msg = fmt.Sprintf("table %s does not exist", e.Table)
	case KindColumnDoesNotExist:
		msg = fmt.Sprintf("column %s does not exist", e.Column)
	case KindTransactionAlreadyClosed:
		msg = "transaction already closed"
		if e.Message != "" {
			msg += ": " + e.Message
		}
	case KindTransactionWriteConflict:
		msg = "transaction failed due to a write conflict or a deadlock"
	case KindInvalidIsolationLevel:
		msg = fmt.Sprintf("invalid isolation level %s", e.Message)
	case KindValueOutOfRange:
		msg = fmt.Sprintf("value out of range for the type: %s", e.Message)
	case KindLengthMismatch:
		if e.Column != "" {
			msg = fmt.Sprintf("value too long for column %s", e.Column)
		} else {
			msg = fmt.Sprintf("length mismatch: expected %d, got %d", e.Expected, e.Actual)
		}
	case KindUnsupportedColumnType:
		msg = fmt.Sprintf("unsupported column type %s", e.Column)
	case KindConnectionClosed:
		msg = "connection closed"
	case KindRawDatabaseError:
		msg = fmt.Sprintf("raw database error: code %s: %s", e.Code, e.Message)
	case KindInternalInvariantViolation:
		msg = "internal invariant violation: " + e.Message
	case KindUnsupported:
		msg = "unsupported: " + e.Message
	case KindTransactionStartTimeout:
		msg = "unable to start a transaction in the given time: " + e.Message
	default:
		msg = e.Message
	}
	return msg
}

// Is 同类别即视为相等
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func (e *Error) Cause() error {
	return e.cause
}

func (e *Error) Unwrap() error {
	return e.cause
}

// WithCause 记录底层错误，返回自身便于链式调用
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// KindOf 返回错误链中第一个 *Error 的类别
func KindOf(err error) Kind {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.Kind
	}
	return KindUnknown
}

// ConstraintKind 约束描述类型
type ConstraintKind int

const (
	ConstraintCannotParse ConstraintKind = iota
	ConstraintIndex
	ConstraintFields
	ConstraintForeignKey
)

// DatabaseConstraint 违反的约束，索引名 | 字段列表 | 外键 | 无法解析
type DatabaseConstraint struct {
	Kind   ConstraintKind
	Index  string
	Fields []string
}

func IndexConstraint(name string) DatabaseConstraint {
	return DatabaseConstraint{Kind: ConstraintIndex, Index: name}
}

func FieldsConstraint(fields ...string) DatabaseConstraint {
	return DatabaseConstraint{Kind: ConstraintFields, Fields: fields}
}

func ForeignKeyConstraint() DatabaseConstraint {
	return DatabaseConstraint{Kind: ConstraintForeignKey}
}

func CannotParseConstraint() DatabaseConstraint {
	return DatabaseConstraint{Kind: ConstraintCannotParse}
}

func (c DatabaseConstraint) String() string {
	switch c.Kind {
	case ConstraintIndex:
		return "`" + c.Index + "`"
	case ConstraintFields:
		quoted := make([]string, 0, len(c.Fields))
		for _, f := range c.Fields {
			quoted = append(quoted, "`"+f+"`")
		}
		return "(" + strings.Join(quoted, ",") + ")"
	case ConstraintForeignKey:
		return "foreign key"
	default:
		return "(not available)"
	}
}
