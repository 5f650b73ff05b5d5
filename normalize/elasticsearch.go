package normalize

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/hatlonely/qcore/qerror"
	"github.com/pkg/errors"
)

// ESError elasticsearch 返回的错误响应
type ESError struct {
	Status int
	Type   string
	Reason string
	Index  string
}

func (e *ESError) Error() string {
	return fmt.Sprintf("elasticsearch error [%d] %s: %s", e.Status, e.Type, e.Reason)
}

// Elasticsearch 按状态码和错误类型映射
type Elasticsearch struct{}

func (Elasticsearch) Normalize(err error) error {
	if out, ok := common(err); ok {
		return out
	}
	var ee *ESError
	if !errors.As(err, &ee) {
		return err
	}
	return esError(ee).WithCause(err)
}

func esError(e *ESError) *qerror.Error {
	switch {
	case e.Type == "index_not_found_exception":
		return qerror.NewTableDoesNotExist(e.Index)
	case e.Type == "version_conflict_engine_exception", e.Status == http.StatusConflict:
		return qerror.NewUniqueConstraintViolation(qerror.FieldsConstraint("_id"))
	case e.Type == "document_missing_exception", e.Status == http.StatusNotFound:
		return qerror.NewRecordDoesNotExist(e.Reason)
	case e.Type == "mapper_parsing_exception", e.Type == "illegal_argument_exception":
		return qerror.NewRawDatabaseError(e.Type, e.Reason)
	}
	return qerror.NewRawDatabaseError(strconv.Itoa(e.Status), e.Reason)
}
