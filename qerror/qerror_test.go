package qerror

import (
	"testing"

	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDatabaseConstraint(t *testing.T) {
	Convey("测试 DatabaseConstraint 渲染", t, func() {
		So(IndexConstraint("User_email_key").String(), ShouldEqual, "`User_email_key`")
		So(FieldsConstraint("a", "b").String(), ShouldEqual, "(`a`,`b`)")
		So(ForeignKeyConstraint().String(), ShouldEqual, "foreign key")
		So(CannotParseConstraint().String(), ShouldEqual, "(not available)")
	})
}

func TestErrorKind(t *testing.T) {
	Convey("测试错误类别判断", t, func() {
		Convey("errors.Is 按类别匹配", func() {
			err := NewUniqueConstraintViolation(FieldsConstraint("email"))
			So(errors.Is(err, ErrUniqueConstraintViolation), ShouldBeTrue)
			So(errors.Is(err, ErrNullConstraintViolation), ShouldBeFalse)
		})

		Convey("包装后仍然可以识别", func() {
			err := errors.WithMessage(NewTransactionAlreadyClosed("expired"), "commit")
			So(KindOf(err), ShouldEqual, KindTransactionAlreadyClosed)
			So(errors.Is(err, ErrTransactionAlreadyClosed), ShouldBeTrue)
		})

		Convey("普通错误的类别为 Unknown", func() {
			So(KindOf(errors.New("boom")), ShouldEqual, KindUnknown)
		})

		Convey("保留底层错误", func() {
			cause := errors.New("driver error")
			err := NewRawDatabaseError("1234", "oops").WithCause(cause)
			So(errors.Cause(err), ShouldEqual, cause)
			So(err.Error(), ShouldEqual, "raw database error: code 1234: oops")
		})
	})
}

func TestErrorMessage(t *testing.T) {
	Convey("测试错误信息", t, func() {
		So(NewInputResolution("foo", "User").Error(), ShouldEqual,
			"Unable to resolve field foo to a field or set of scalar fields on model User")
		So(NewConversion("String", "Int").Error(), ShouldEqual,
			"conversion failed: String cannot be converted to Int")
		So(NewFieldNotFound("zip", "Address", "composite type").Error(), ShouldEqual,
			"field zip not found in composite type Address")
		So(NewLengthMismatch("name", 0, 0).Error(), ShouldEqual, "value too long for column name")
		So(NewLengthMismatch("", 2, 3).Error(), ShouldEqual, "length mismatch: expected 2, got 3")
		So(KindInternalInvariantViolation.String(), ShouldEqual, "InternalInvariantViolation")
	})
}
