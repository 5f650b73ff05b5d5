package normalize

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/hatlonely/qcore/qerror"
	"github.com/hatlonely/qcore/schema"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
	"go.mongodb.org/mongo-driver/mongo"
)

type pgError struct {
	state string
	msg   string
}

func (e *pgError) Error() string    { return e.msg }
func (e *pgError) SQLState() string { return e.state }

func asQError(err error) *qerror.Error {
	var qe *qerror.Error
	if errors.As(err, &qe) {
		return qe
	}
	return nil
}

func TestCommon(t *testing.T) {
	Convey("测试通用映射", t, func() {
		n := For(schema.ProviderSQLite)
		So(n.Normalize(nil), ShouldBeNil)
		So(qerror.KindOf(n.Normalize(sql.ErrNoRows)), ShouldEqual, qerror.KindRecordDoesNotExist)
		So(qerror.KindOf(n.Normalize(sql.ErrTxDone)), ShouldEqual, qerror.KindTransactionAlreadyClosed)
		So(qerror.KindOf(n.Normalize(driver.ErrBadConn)), ShouldEqual, qerror.KindConnectionClosed)
		So(qerror.KindOf(For(schema.ProviderMySQL).Normalize(mysql.ErrInvalidConn)), ShouldEqual, qerror.KindConnectionClosed)
		So(qerror.KindOf(For(schema.ProviderMongoDB).Normalize(mongo.ErrNoDocuments)), ShouldEqual, qerror.KindRecordDoesNotExist)

		Convey("超时原样返回", func() {
			err := errors.Wrap(context.DeadlineExceeded, "query")
			So(n.Normalize(err), ShouldEqual, err)
		})

		Convey("已归一化的错误原样返回", func() {
			err := qerror.NewUnsupported("x")
			So(n.Normalize(err), ShouldEqual, err)
		})

		Convey("未识别的错误原样返回", func() {
			err := errors.New("boom")
			So(n.Normalize(err), ShouldEqual, err)
			So(For(schema.ProviderElasticsearch).Normalize(err), ShouldEqual, err)
		})
	})
}

func TestMySQL(t *testing.T) {
	Convey("测试 MySQL 错误映射", t, func() {
		n := MySQL{}

		Convey("唯一约束", func() {
			err := n.Normalize(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'a@b.c' for key 'users.email_unique'"})
			qe := asQError(err)
			So(qe.Kind, ShouldEqual, qerror.KindUniqueConstraintViolation)
			So(qe.Constraint, ShouldResemble, qerror.IndexConstraint("email_unique"))
			So(errors.Is(err, qerror.ErrUniqueConstraintViolation), ShouldBeTrue)
		})

		Convey("非空约束", func() {
			qe := asQError(n.Normalize(&mysql.MySQLError{Number: 1048, Message: "Column 'name' cannot be null"}))
			So(qe.Constraint, ShouldResemble, qerror.FieldsConstraint("name"))
			qe = asQError(n.Normalize(&mysql.MySQLError{Number: 1364, Message: "Field 'age' doesn't have a default value"}))
			So(qe.Kind, ShouldEqual, qerror.KindNullConstraintViolation)
			So(qe.Constraint, ShouldResemble, qerror.FieldsConstraint("age"))
		})

		Convey("外键约束", func() {
			qe := asQError(n.Normalize(&mysql.MySQLError{Number: 1452, Message: "Cannot add or update a child row: a foreign key constraint fails (`db`.`posts`, CONSTRAINT `posts_author_fk` FOREIGN KEY (`authorId`) REFERENCES `users` (`id`))"}))
			So(qe.Kind, ShouldEqual, qerror.KindForeignKeyConstraintViolation)
			So(qe.Constraint, ShouldResemble, qerror.IndexConstraint("posts_author_fk"))
		})

		Convey("表和列不存在", func() {
			qe := asQError(n.Normalize(&mysql.MySQLError{Number: 1146, Message: "Table 'db.users' doesn't exist"}))
			So(qe.Kind, ShouldEqual, qerror.KindTableDoesNotExist)
			So(qe.Table, ShouldEqual, "db.users")
			qe = asQError(n.Normalize(&mysql.MySQLError{Number: 1054, Message: "Unknown column 'nick' in 'field list'"}))
			So(qe.Column, ShouldEqual, "nick")
		})

		Convey("其他", func() {
			So(qerror.KindOf(n.Normalize(&mysql.MySQLError{Number: 1264, Message: "Out of range value"})), ShouldEqual, qerror.KindValueOutOfRange)
			qe := asQError(n.Normalize(&mysql.MySQLError{Number: 1406, Message: "Data too long for column 'name' at row 1"}))
			So(qe.Kind, ShouldEqual, qerror.KindLengthMismatch)
			So(qe.Column, ShouldEqual, "name")
			So(qerror.KindOf(n.Normalize(&mysql.MySQLError{Number: 1213, Message: "Deadlock found"})), ShouldEqual, qerror.KindTransactionWriteConflict)
			So(qerror.KindOf(n.Normalize(&mysql.MySQLError{Number: 1231, Message: "Variable 'transaction_isolation' can't be set to the value of 'X'"})), ShouldEqual, qerror.KindInvalidIsolationLevel)
			qe = asQError(n.Normalize(&mysql.MySQLError{Number: 1234, Message: "weird"}))
			So(qe.Kind, ShouldEqual, qerror.KindRawDatabaseError)
			So(qe.Code, ShouldEqual, "1234")
		})

		Convey("保留底层错误", func() {
			raw := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}
			err := n.Normalize(errors.Wrap(raw, "insert"))
			var me *mysql.MySQLError
			So(errors.As(err, &me), ShouldBeTrue)
			So(asQError(err).Constraint, ShouldResemble, qerror.CannotParseConstraint())
		})
	})
}

func TestSQLite(t *testing.T) {
	Convey("测试 SQLite 错误映射", t, func() {
		n := SQLite{}

		Convey("唯一约束按字段", func() {
			se := sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}
			qe := asQError(sqliteError(se))
			So(qe.Kind, ShouldEqual, qerror.KindUniqueConstraintViolation)
			So(fieldsAfter("UNIQUE constraint failed: User.a, User.b", "constraint failed:"), ShouldResemble, qerror.FieldsConstraint("a", "b"))
		})

		Convey("非空与外键", func() {
			So(fieldsAfter("NOT NULL constraint failed: User.name", "constraint failed:"), ShouldResemble, qerror.FieldsConstraint("name"))
			se := sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintForeignKey}
			So(qerror.KindOf(n.Normalize(se)), ShouldEqual, qerror.KindForeignKeyConstraintViolation)
		})

		Convey("锁冲突", func() {
			se := sqlite3.Error{Code: sqlite3.ErrBusy}
			So(qerror.KindOf(n.Normalize(se)), ShouldEqual, qerror.KindTransactionWriteConflict)
		})
	})
}

func TestPostgres(t *testing.T) {
	Convey("测试 Postgres 错误映射", t, func() {
		n := Postgres{}

		qe := asQError(n.Normalize(&pgError{state: "23505", msg: `duplicate key value violates unique constraint "users_email_key" Key (email)=(a) already exists.`}))
		So(qe.Kind, ShouldEqual, qerror.KindUniqueConstraintViolation)
		So(qe.Constraint, ShouldResemble, qerror.FieldsConstraint("email"))

		qe = asQError(n.Normalize(&pgError{state: "23505", msg: `duplicate key value violates unique constraint "users_email_key"`}))
		So(qe.Constraint, ShouldResemble, qerror.IndexConstraint("users_email_key"))

		qe = asQError(n.Normalize(&pgError{state: "23502", msg: `null value in column "name" violates not-null constraint`}))
		So(qe.Constraint, ShouldResemble, qerror.FieldsConstraint("name"))

		qe = asQError(n.Normalize(&pgError{state: "42P01", msg: `relation "users" does not exist`}))
		So(qe.Table, ShouldEqual, "users")

		So(qerror.KindOf(n.Normalize(&pgError{state: "40001", msg: "could not serialize access"})), ShouldEqual, qerror.KindTransactionWriteConflict)
		So(asQError(n.Normalize(&pgError{state: "XX000", msg: "internal"})).Code, ShouldEqual, "XX000")
	})
}

func TestMongo(t *testing.T) {
	Convey("测试 Mongo 错误映射", t, func() {
		n := Mongo{}

		err := mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000, Message: `E11000 duplicate key error collection: db.users index: email_1 dup key: { email: "a" }`}}}
		qe := asQError(n.Normalize(err))
		So(qe.Kind, ShouldEqual, qerror.KindUniqueConstraintViolation)
		So(qe.Constraint, ShouldResemble, qerror.IndexConstraint("email_1"))

		So(qerror.KindOf(n.Normalize(mongo.CommandError{Code: 112, Message: "WriteConflict"})), ShouldEqual, qerror.KindTransactionWriteConflict)
		So(qerror.KindOf(n.Normalize(mongo.CommandError{Code: 251, Message: "NoSuchTransaction"})), ShouldEqual, qerror.KindTransactionAlreadyClosed)
		So(asQError(n.Normalize(mongo.CommandError{Code: 2, Message: "BadValue"})).Code, ShouldEqual, "2")
	})
}

func TestElasticsearch(t *testing.T) {
	Convey("测试 elasticsearch 错误映射", t, func() {
		n := For(schema.ProviderElasticsearch)

		qe := asQError(n.Normalize(&ESError{Status: 409, Type: "version_conflict_engine_exception", Reason: "[1]: version conflict, document already exists"}))
		So(qe.Kind, ShouldEqual, qerror.KindUniqueConstraintViolation)
		So(qe.Constraint, ShouldResemble, qerror.FieldsConstraint("_id"))

		qe = asQError(n.Normalize(&ESError{Status: 404, Type: "index_not_found_exception", Index: "users"}))
		So(qe.Table, ShouldEqual, "users")

		So(qerror.KindOf(n.Normalize(errors.Wrap(&ESError{Status: 404, Type: "document_missing_exception"}, "update"))), ShouldEqual, qerror.KindRecordDoesNotExist)
		So(asQError(n.Normalize(&ESError{Status: 500, Reason: "boom"})).Code, ShouldEqual, "500")
	})
}
