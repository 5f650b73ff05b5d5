package sqlconn

import (
	"context"

	"github.com/hatlonely/qcore/connector"
	"github.com/hatlonely/qcore/filter"
	"github.com/hatlonely/qcore/qerror"
	"github.com/hatlonely/qcore/schema"
	"github.com/hatlonely/qcore/selection"
	"github.com/hatlonely/qcore/write"
)

// UpdateRecords 参数为空时不访问数据库
func (o *operations) UpdateRecords(ctx context.Context, model *schema.Model, rf write.RecordFilter, args *write.WriteArgs, limit *int) (int, error) {
	if args.IsEmpty() {
		return 0, nil
	}
	lim := write.NewLimit(limit)
	if lim.Exhausted() {
		return 0, nil
	}

	var ids []selection.SelectionResult
	if rf.HasSelectors() {
		ids = rf.Selectors
	} else {
		var err error
		if ids, err = o.identifiersOf(ctx, model, rf, lim); err != nil {
			return 0, err
		}
	}
	return o.updateByIDs(ctx, model, ids, args, lim)
}

// updateByIDs 分批更新，每批扣减 limit，耗尽后停止
func (o *operations) updateByIDs(ctx context.Context, model *schema.Model, ids []selection.SelectionResult, args *write.WriteArgs, lim *write.Limit) (int, error) {
	total := 0
	for _, chunk := range chunks(ids, o.chunkSize(model, args.Len())) {
		if lim.Exhausted() {
			break
		}
		chunk = lim.Slice(chunk)
		stmt, qargs, err := o.b.update(model, args, selection.FiltersFor(chunk))
		if err != nil {
			return total, err
		}
		n, err := o.q.Execute(ctx, stmt, qargs)
		if err != nil {
			return total, err
		}
		total += int(n)
		lim.Consume(int(n))
	}
	return total, nil
}

func (o *operations) UpdateRecord(ctx context.Context, model *schema.Model, rf write.RecordFilter, args *write.WriteArgs, selected selection.FieldSelection) (*connector.SingleRecord, error) {
	var id selection.SelectionResult
	if rf.HasSelectors() {
		id = rf.Selectors[0]
	} else {
		one := 1
		ids, err := o.selectIDs(ctx, model, rf.Filter, &one)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, qerror.NewRecordDoesNotExist("no " + model.Name + " record matches the update filter")
		}
		id = ids[0]
	}

	if !args.IsEmpty() {
		n, err := o.updateByIDs(ctx, model, []selection.SelectionResult{id}, args, write.NewLimit(nil))
		if err != nil {
			return nil, err
		}
		if n == 0 && !o.matchedWithoutChange(ctx, model, id) {
			return nil, qerror.NewRecordDoesNotExist("no " + model.Name + " record matches the update filter")
		}
		// 更新可能修改了主键
		id = applyToID(id, args)
	}

	return o.readBack(ctx, model, id, selected)
}

// matchedWithoutChange MySQL 的影响行数不包括值没有变化的行
func (o *operations) matchedWithoutChange(ctx context.Context, model *schema.Model, id selection.SelectionResult) bool {
	if o.q.Flavour() != FlavourMySQL {
		return false
	}
	record, err := o.GetSingleRecord(ctx, model, id.Filter(), selection.PrimaryKey(model))
	return err == nil && record != nil
}

func applyToID(id selection.SelectionResult, args *write.WriteArgs) selection.SelectionResult {
	b := selection.NewSelectionResultBuilder()
	for _, p := range id.Pairs() {
		v := p.Value
		if e, ok := args.Get(p.Field.DBName()); ok {
			v = e.Op.Apply(v)
		}
		b.Add(p.Field, v)
	}
	return b.Build()
}

func (o *operations) DeleteRecords(ctx context.Context, model *schema.Model, rf write.RecordFilter, limit *int) (int, error) {
	lim := write.NewLimit(limit)
	if lim.Exhausted() {
		return 0, nil
	}
	ids, err := o.identifiersOf(ctx, model, rf, lim)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, chunk := range chunks(ids, o.chunkSize(model, 0)) {
		if lim.Exhausted() {
			break
		}
		chunk = lim.Slice(chunk)
		stmt, qargs, err := o.b.delete(model, selection.FiltersFor(chunk))
		if err != nil {
			return total, err
		}
		n, err := o.q.Execute(ctx, stmt, qargs)
		if err != nil {
			return total, err
		}
		total += int(n)
		lim.Consume(int(n))
	}
	return total, nil
}

// DeleteRecord 先读取再删除，返回删除前的记录
func (o *operations) DeleteRecord(ctx context.Context, model *schema.Model, rf write.RecordFilter, selected selection.FieldSelection) (*connector.SingleRecord, error) {
	f := rf.Filter
	if rf.HasSelectors() {
		f = filter.AndOf(selection.FiltersFor(rf.Selectors[:1]), rf.Filter)
	}
	record, err := o.GetSingleRecord(ctx, model, f, selected)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, qerror.NewRecordDoesNotExist("no " + model.Name + " record matches the delete filter")
	}

	pk := selection.PrimaryKey(model)
	var id selection.SelectionResult
	if selected.IsSupersetOf(pk) {
		id, err = record.Identifier(pk)
	} else {
		var ids []selection.SelectionResult
		one := 1
		ids, err = o.selectIDs(ctx, model, f, &one)
		if err == nil && len(ids) == 0 {
			return nil, qerror.NewRecordDoesNotExist("no " + model.Name + " record matches the delete filter")
		}
		if err == nil {
			id = ids[0]
		}
	}
	if err != nil {
		return nil, err
	}

	stmt, qargs, err := o.b.delete(model, id.Filter())
	if err != nil {
		return nil, err
	}
	n, err := o.q.Execute(ctx, stmt, qargs)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, qerror.NewRecordDoesNotExist("no " + model.Name + " record matches the delete filter")
	}
	return record, nil
}
