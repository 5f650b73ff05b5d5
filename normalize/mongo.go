package normalize

import (
	"regexp"
	"strconv"

	"github.com/hatlonely/qcore/qerror"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
)

var mongoIndexRe = regexp.MustCompile(`index: (\S+) dup key`)

// Mongo 按服务端错误码映射
type Mongo struct{}

func (Mongo) Normalize(err error) error {
	if out, ok := common(err); ok {
		return out
	}
	code, msg, ok := mongoCode(err)
	if !ok {
		return err
	}
	return mongoError(code, msg).WithCause(err)
}

// mongoCode 取第一个写错误或命令错误的错误码
func mongoCode(err error) (int, string, bool) {
	var we mongo.WriteException
	if errors.As(err, &we) {
		if len(we.WriteErrors) != 0 {
			return we.WriteErrors[0].Code, we.WriteErrors[0].Message, true
		}
		if we.WriteConcernError != nil {
			return we.WriteConcernError.Code, we.WriteConcernError.Message, true
		}
	}
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) {
		if len(bwe.WriteErrors) != 0 {
			return bwe.WriteErrors[0].Code, bwe.WriteErrors[0].Message, true
		}
		if bwe.WriteConcernError != nil {
			return bwe.WriteConcernError.Code, bwe.WriteConcernError.Message, true
		}
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		return int(ce.Code), ce.Message, true
	}
	return 0, "", false
}

func mongoError(code int, msg string) *qerror.Error {
	switch code {
	case 11000, 11001:
		if m := mongoIndexRe.FindStringSubmatch(msg); m != nil {
			return qerror.NewUniqueConstraintViolation(qerror.IndexConstraint(m[1]))
		}
		return qerror.NewUniqueConstraintViolation(qerror.CannotParseConstraint())
	case 112:
		return qerror.NewTransactionWriteConflict(msg)
	case 251:
		return qerror.NewTransactionAlreadyClosed(msg)
	case 26:
		return qerror.NewTableDoesNotExist(msg)
	}
	return qerror.NewRawDatabaseError(strconv.Itoa(code), msg)
}
