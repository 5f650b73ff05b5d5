package write

import (
	"fmt"

	"github.com/hatlonely/qcore/filter"
	"github.com/hatlonely/qcore/qerror"
	"github.com/hatlonely/qcore/schema"
	"github.com/hatlonely/qcore/selection"
	"github.com/hatlonely/qcore/value"
)

// RecordFilter 写操作的目标记录
//
// Selectors 非空时直接按主键定位，否则按 Filter 查询
type RecordFilter struct {
	Filter    filter.Filter
	Selectors []selection.SelectionResult
}

func NewRecordFilter(f filter.Filter) RecordFilter {
	if f == nil {
		f = filter.Empty{}
	}
	return RecordFilter{Filter: f}
}

// Everything 匹配所有记录
func Everything() RecordFilter {
	return RecordFilter{Filter: filter.Empty{}}
}

func (r RecordFilter) WithSelectors(selectors []selection.SelectionResult) RecordFilter {
	r.Selectors = selectors
	return r
}

func (r RecordFilter) HasSelectors() bool {
	return len(r.Selectors) > 0
}

// ResolveIdentifier 插入后确定新记录的主键，按以下顺序：
//  1. 后端 RETURNING 返回的行
//  2. 参数中完整给出的主键
//  3. 单列自增主键使用 last insert id
//
// 都不满足时返回 InternalInvariantViolation
func ResolveIdentifier(pk []*schema.ScalarField, returned []value.Value, args *WriteArgs, lastInsertID *int64) (selection.SelectionResult, error) {
	if len(returned) > 0 {
		return selection.FromScalars(pk).Assimilate(returned)
	}

	if r, ok := args.AsSelectionResult(pk); ok {
		return r, nil
	}

	if len(pk) == 1 && lastInsertID != nil && pk[0].IsAutoincrement() {
		v, err := value.Coerce(value.Int(*lastInsertID), pk[0].Type)
		if err != nil {
			return selection.SelectionResult{}, err
		}
		return selection.NewSelectionResultBuilder().Add(pk[0], v).Build(), nil
	}

	names := make([]string, 0, len(pk))
	for _, f := range pk {
		names = append(names, f.Name())
	}
	return selection.SelectionResult{}, qerror.NewInternalInvariantViolation(
		fmt.Sprintf("could not resolve the identifier %v of the created record", names))
}

// Limit 批量更新、删除时剩余可处理的记录数
type Limit struct {
	remaining int
	bounded   bool
}

// NewLimit limit 为 nil 表示不限制
func NewLimit(limit *int) *Limit {
	if limit == nil {
		return &Limit{}
	}
	n := *limit
	if n < 0 {
		n = 0
	}
	return &Limit{remaining: n, bounded: true}
}

// Remaining 不限制时 ok 为 false
func (l *Limit) Remaining() (n int, ok bool) {
	return l.remaining, l.bounded
}

// Consume 扣除已处理的行数
func (l *Limit) Consume(rowsAffected int) {
	if !l.bounded {
		return
	}
	l.remaining -= rowsAffected
	if l.remaining < 0 {
		l.remaining = 0
	}
}

func (l *Limit) Exhausted() bool {
	return l.bounded && l.remaining <= 0
}

// Slice 取前 remaining 个
func (l *Limit) Slice(ids []selection.SelectionResult) []selection.SelectionResult {
	if !l.bounded || len(ids) <= l.remaining {
		return ids
	}
	return ids[:l.remaining]
}
