package engine

import (
	"context"

	"github.com/hatlonely/qcore/connector"
	"github.com/hatlonely/qcore/document"
	"github.com/hatlonely/qcore/extract"
	"github.com/hatlonely/qcore/filter"
	"github.com/hatlonely/qcore/qerror"
	"github.com/hatlonely/qcore/schema"
	"github.com/hatlonely/qcore/selection"
	"github.com/hatlonely/qcore/value"
	"github.com/hatlonely/qcore/write"
)

// CreateOne 创建一条记录并返回选中的字段
//
//	{data: {email: "a@b.c", name: "a"}, select: {id: true}}
func (e *Engine) CreateOne(ctx context.Context, model string, args *document.ParsedInputMap) (value.Object, error) {
	m, err := e.model(model)
	if err != nil {
		return nil, err
	}
	data, err := requiredMapArg(args, "data")
	if err != nil {
		return nil, err
	}
	sel, err := parseSelection(m, args)
	if err != nil {
		return nil, err
	}

	var out value.Object
	err = e.run(ctx, func(ctx context.Context, ops operations, inTx bool) error {
		wa, err := write.FromInput(ctx, m, data, write.ModeCreate, e.defaults)
		if err != nil {
			return err
		}
		rec, err := ops.CreateRecord(ctx, m, wa, sel)
		if err != nil {
			return err
		}
		out, err = rec.Project(sel).ToObject(sel)
		return err
	})
	return out, err
}

// CreateMany 批量创建记录，返回创建的条数
//
//	{data: [{...}, {...}], skipDuplicates: true}
func (e *Engine) CreateMany(ctx context.Context, model string, args *document.ParsedInputMap) (int, error) {
	m, err := e.model(model)
	if err != nil {
		return 0, err
	}
	v, ok := args.Get("data")
	if !ok {
		return 0, qerror.NewInvalidInput("data", "arguments", "argument is required")
	}
	var items []*document.ParsedInputMap
	switch x := v.(type) {
	case *document.ParsedInputMap:
		items = append(items, x)
	case document.List:
		for _, item := range x {
			im, ok := item.(*document.ParsedInputMap)
			if !ok {
				return 0, qerror.NewInvalidInput("data", m.Name, "expected a list of objects")
			}
			items = append(items, im)
		}
	default:
		return 0, qerror.NewInvalidInput("data", m.Name, "expected an object or a list")
	}
	skipDuplicates, err := boolArg(args, "skipDuplicates")
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}

	var n int
	err = e.run(ctx, func(ctx context.Context, ops operations, inTx bool) error {
		was := make([]*write.WriteArgs, 0, len(items))
		for _, item := range items {
			wa, err := write.FromInput(ctx, m, item, write.ModeCreate, e.defaults)
			if err != nil {
				return err
			}
			was = append(was, wa)
		}
		var err error
		n, err = ops.CreateRecords(ctx, m, was, skipDuplicates)
		return err
	})
	return n, err
}

// UpdateOne 按唯一条件更新一条记录，记录不存在时返回 RecordDoesNotExist
//
//	{where: {id: 1}, data: {views: {increment: 1}}}
func (e *Engine) UpdateOne(ctx context.Context, model string, args *document.ParsedInputMap) (value.Object, error) {
	m, err := e.model(model)
	if err != nil {
		return nil, err
	}
	f, err := uniqueWhere(m, args)
	if err != nil {
		return nil, err
	}
	data, err := requiredMapArg(args, "data")
	if err != nil {
		return nil, err
	}
	sel, err := parseSelection(m, args)
	if err != nil {
		return nil, err
	}
	wa, err := write.FromInput(ctx, m, data, write.ModeUpdate, nil)
	if err != nil {
		return nil, err
	}

	var out value.Object
	err = e.run(ctx, func(ctx context.Context, ops operations, inTx bool) error {
		// 主键可能被修改，先取出旧主键
		var old []selection.SelectionResult
		if e.cache != nil {
			ids, err := e.selectIDs(ctx, ops, m, f, nil)
			if err != nil {
				return err
			}
			old = ids
		}

		query := selection.Union(sel, selection.PrimaryKey(m))
		rec, err := ops.UpdateRecord(ctx, m, write.NewRecordFilter(f), wa, query)
		if err != nil {
			return err
		}
		if rec == nil {
			return qerror.NewRecordDoesNotExist("no record was found for an update")
		}
		if e.cache != nil {
			if id, err := identifier(m, rec); err == nil {
				old = append(old, id)
			}
			e.invalidate(ctx, m, old...)
		}
		out, err = rec.Project(sel).ToObject(sel)
		return err
	})
	return out, err
}

// UpdateMany 更新匹配的记录，返回更新的条数
//
//	{where: {published: false}, data: {published: true}, limit: 100}
func (e *Engine) UpdateMany(ctx context.Context, model string, args *document.ParsedInputMap) (int, error) {
	m, err := e.model(model)
	if err != nil {
		return 0, err
	}
	f, err := whereFilter(m, args)
	if err != nil {
		return 0, err
	}
	data, err := requiredMapArg(args, "data")
	if err != nil {
		return 0, err
	}
	limit, err := intArg(args, "limit")
	if err != nil {
		return 0, err
	}
	wa, err := write.FromInput(ctx, m, data, write.ModeUpdate, nil)
	if err != nil {
		return 0, err
	}
	if wa.IsEmpty() {
		return 0, nil
	}

	var n int
	err = e.run(ctx, func(ctx context.Context, ops operations, inTx bool) error {
		rf := write.NewRecordFilter(f)
		var ids []selection.SelectionResult
		if e.cache != nil {
			// 先取出主键，按主键更新，更新后删除这些记录的缓存
			var err error
			if ids, err = e.selectIDs(ctx, ops, m, f, limit); err != nil {
				return err
			}
			if len(ids) == 0 {
				return nil
			}
			rf = rf.WithSelectors(ids)
		}
		var err error
		n, err = ops.UpdateRecords(ctx, m, rf, wa, limit)
		if err != nil {
			return err
		}
		e.invalidate(ctx, m, ids...)
		return nil
	})
	return n, err
}

// DeleteOne 按唯一条件删除一条记录并返回删除前的数据
func (e *Engine) DeleteOne(ctx context.Context, model string, args *document.ParsedInputMap) (value.Object, error) {
	m, err := e.model(model)
	if err != nil {
		return nil, err
	}
	f, err := uniqueWhere(m, args)
	if err != nil {
		return nil, err
	}
	sel, err := parseSelection(m, args)
	if err != nil {
		return nil, err
	}

	var out value.Object
	err = e.run(ctx, func(ctx context.Context, ops operations, inTx bool) error {
		query := selection.Union(sel, selection.PrimaryKey(m))
		rec, err := ops.DeleteRecord(ctx, m, write.NewRecordFilter(f), query)
		if err != nil {
			return err
		}
		if rec == nil {
			return qerror.NewRecordDoesNotExist("no record was found for a delete")
		}
		if id, err := identifier(m, rec); err == nil {
			e.invalidate(ctx, m, id)
		}
		out, err = rec.Project(sel).ToObject(sel)
		return err
	})
	return out, err
}

// DeleteMany 删除匹配的记录，返回删除的条数
//
//	{where: {createdAt: {lt: "2024-01-01T00:00:00Z"}}, limit: 1000}
func (e *Engine) DeleteMany(ctx context.Context, model string, args *document.ParsedInputMap) (int, error) {
	m, err := e.model(model)
	if err != nil {
		return 0, err
	}
	f, err := whereFilter(m, args)
	if err != nil {
		return 0, err
	}
	limit, err := intArg(args, "limit")
	if err != nil {
		return 0, err
	}

	var n int
	err = e.run(ctx, func(ctx context.Context, ops operations, inTx bool) error {
		rf := write.NewRecordFilter(f)
		var ids []selection.SelectionResult
		if e.cache != nil {
			var err error
			if ids, err = e.selectIDs(ctx, ops, m, f, limit); err != nil {
				return err
			}
			if len(ids) == 0 {
				return nil
			}
			rf = rf.WithSelectors(ids)
		}
		var err error
		n, err = ops.DeleteRecords(ctx, m, rf, limit)
		if err != nil {
			return err
		}
		e.invalidate(ctx, m, ids...)
		return nil
	})
	return n, err
}

func uniqueWhere(m *schema.Model, args *document.ParsedInputMap) (filter.Filter, error) {
	where, err := requiredMapArg(args, "where")
	if err != nil {
		return nil, err
	}
	return extract.ExtractUniqueFilter(where, m)
}

// selectIDs 查询匹配记录的主键，limit 为 nil 时不限制
func (e *Engine) selectIDs(ctx context.Context, ops operations, m *schema.Model, f filter.Filter, limit *int) ([]selection.SelectionResult, error) {
	records, err := ops.GetManyRecords(ctx, m, connector.QueryArguments{Filter: f, Take: limit}, selection.PrimaryKey(m))
	if err != nil {
		return nil, err
	}
	out := make([]selection.SelectionResult, 0, records.Len())
	for _, r := range records.Records {
		id, err := identifier(m, &connector.SingleRecord{Record: r, FieldNames: records.FieldNames})
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
