package qerror

import "fmt"

func NewInputResolution(key, container string) *Error {
	return &Error{
		Kind:      KindInputResolution,
		Field:     key,
		Container: container,
		Message:   fmt.Sprintf("Unable to resolve field %s to a field or set of scalar fields on model %s", key, container),
	}
}

// NewInvalidInput 输入结构不符合预期，例如分组操作符的值不是对象
func NewInvalidInput(key, container, reason string) *Error {
	return &Error{
		Kind:      KindInputResolution,
		Field:     key,
		Container: container,
		Message:   fmt.Sprintf("invalid input for %s on %s: %s", key, container, reason),
	}
}

func NewConversion(from, to string) *Error {
	return &Error{Kind: KindConversion, From: from, To: to}
}

func NewFieldNotFound(field, container, containerType string) *Error {
	return &Error{Kind: KindFieldNotFound, Field: field, Container: container, Message: containerType}
}

func NewUniqueConstraintViolation(c DatabaseConstraint) *Error {
	return &Error{Kind: KindUniqueConstraintViolation, Constraint: c}
}

func NewNullConstraintViolation(c DatabaseConstraint) *Error {
	return &Error{Kind: KindNullConstraintViolation, Constraint: c}
}

func NewForeignKeyConstraintViolation(c DatabaseConstraint) *Error {
	return &Error{Kind: KindForeignKeyConstraintViolation, Constraint: c}
}

func NewRecordDoesNotExist(message string) *Error {
	return &Error{Kind: KindRecordDoesNotExist, Message: message}
}

func NewRecordsNotConnected(relation, parent, child string) *Error {
	return &Error{Kind: KindRecordsNotConnected, Field: relation, Model: parent, Container: child}
}

func NewTableDoesNotExist(table string) *Error {
	return &Error{Kind: KindTableDoesNotExist, Table: table}
}

func NewColumnDoesNotExist(column string) *Error {
	return &Error{Kind: KindColumnDoesNotExist, Column: column}
}

func NewTransactionAlreadyClosed(message string) *Error {
	return &Error{Kind: KindTransactionAlreadyClosed, Message: message}
}

func NewTransactionStartTimeout(message string) *Error {
	return &Error{Kind: KindTransactionStartTimeout, Message: message}
}

func NewTransactionWriteConflict(message string) *Error {
	return &Error{Kind: KindTransactionWriteConflict, Message: message}
}

func NewInvalidIsolationLevel(level string) *Error {
	return &Error{Kind: KindInvalidIsolationLevel, Message: level}
}

func NewValueOutOfRange(message string) *Error {
	return &Error{Kind: KindValueOutOfRange, Message: message}
}

// NewLengthMismatch 列值超长时 column 非空；数量不一致时使用 expected/actual
func NewLengthMismatch(column string, expected, actual int) *Error {
	return &Error{Kind: KindLengthMismatch, Column: column, Expected: expected, Actual: actual}
}

func NewUnsupportedColumnType(column string) *Error {
	return &Error{Kind: KindUnsupportedColumnType, Column: column}
}

func NewConnectionClosed() *Error {
	return &Error{Kind: KindConnectionClosed}
}

func NewRawDatabaseError(code, message string) *Error {
	return &Error{Kind: KindRawDatabaseError, Code: code, Message: message}
}

func NewInternalInvariantViolation(message string) *Error {
	return &Error{Kind: KindInternalInvariantViolation, Message: message}
}

func NewUnsupported(message string) *Error {
	return &Error{Kind: KindUnsupported, Message: message}
}
