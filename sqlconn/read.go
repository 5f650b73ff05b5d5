package sqlconn

import (
	"context"
	"encoding/json"

	"github.com/hatlonely/qcore/connector"
	"github.com/hatlonely/qcore/filter"
	"github.com/hatlonely/qcore/log"
	"github.com/hatlonely/qcore/qerror"
	"github.com/hatlonely/qcore/schema"
	"github.com/hatlonely/qcore/selection"
	"github.com/hatlonely/qcore/value"
	"github.com/hatlonely/qcore/write"
)

// operations 读写操作的实现，连接池和事务共用
type operations struct {
	q       Queryable
	b       *builder
	options *SQLOptions
	logger  log.Logger
	// returning 是否支持 INSERT ... RETURNING
	returning bool
}

func newOperations(q Queryable, options *SQLOptions, logger log.Logger, returning bool) *operations {
	return &operations{
		q:         q,
		b:         newBuilder(q.Flavour()),
		options:   options,
		logger:    logger,
		returning: returning,
	}
}

func (o *operations) GetManyRecords(ctx context.Context, model *schema.Model, args connector.QueryArguments, selected selection.FieldSelection) (*connector.ManyRecords, error) {
	stmt, qargs, err := o.b.selectRecords(model, args, selected)
	if err != nil {
		return nil, err
	}
	rs, err := o.q.Query(ctx, stmt, qargs)
	if err != nil {
		return nil, err
	}

	records := connector.NewManyRecords(selected.DBNames())
	for _, raw := range rs.Rows {
		values, err := decodeRow(selected, raw)
		if err != nil {
			return nil, err
		}
		records.Push(values)
	}
	return records, nil
}

func (o *operations) GetSingleRecord(ctx context.Context, model *schema.Model, f filter.Filter, selected selection.FieldSelection) (*connector.SingleRecord, error) {
	one := 1
	records, err := o.GetManyRecords(ctx, model, connector.QueryArguments{Filter: f, Take: &one}, selected)
	if err != nil {
		return nil, err
	}
	return records.First(), nil
}

// selectIDs 按过滤条件查询主键
func (o *operations) selectIDs(ctx context.Context, model *schema.Model, f filter.Filter, take *int) ([]selection.SelectionResult, error) {
	pk := selection.PrimaryKey(model)
	records, err := o.GetManyRecords(ctx, model, connector.QueryArguments{Filter: f, Take: take}, pk)
	if err != nil {
		return nil, err
	}
	return records.Identifiers(pk)
}

func decodeRow(selected selection.FieldSelection, raw []interface{}) ([]value.Value, error) {
	if len(raw) != len(selected.Fields) {
		return nil, qerror.NewLengthMismatch("", len(selected.Fields), len(raw))
	}
	out := make([]value.Value, len(raw))
	for i, f := range selected.Fields {
		var err error
		switch x := f.(type) {
		case *selection.ScalarSelection:
			out[i], err = decodeScalar(x.Field, raw[i])
		case *selection.VirtualSelection:
			out[i], err = value.FromDriver(raw[i], value.TypeInt)
		default:
			err = qerror.NewUnsupported("selection " + f.Name() + " on SQL backends")
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// decodeScalar 列表字段以 JSON 数组保存
func decodeScalar(f *schema.ScalarField, raw interface{}) (value.Value, error) {
	if !f.IsList() || raw == nil {
		return value.FromDriver(raw, f.Type)
	}
	var data []byte
	switch x := raw.(type) {
	case []byte:
		data = x
	case string:
		data = []byte(x)
	default:
		return value.FromDriver(raw, f.Type)
	}
	var items []interface{}
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, qerror.NewConversion("String", "List")
	}
	return value.Coerce(value.FromAny(items), f.Type)
}

// identifiersOf 记录过滤条件对应的主键，带 selectors 时直接使用
func (o *operations) identifiersOf(ctx context.Context, model *schema.Model, rf write.RecordFilter, limit *write.Limit) ([]selection.SelectionResult, error) {
	if rf.HasSelectors() {
		return limit.Slice(rf.Selectors), nil
	}
	var take *int
	if n, ok := limit.Remaining(); ok {
		take = &n
	}
	return o.selectIDs(ctx, model, rf.Filter, take)
}

// chunkSize 每条语句可以带的主键数量
func (o *operations) chunkSize(model *schema.Model, reserved int) int {
	n := (o.options.maxBindValues() - reserved) / len(model.PrimaryIdentifier())
	if n < 1 {
		return 1
	}
	return n
}

func chunks(ids []selection.SelectionResult, size int) [][]selection.SelectionResult {
	if size < 1 {
		size = 1
	}
	var out [][]selection.SelectionResult
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}
