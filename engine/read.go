package engine

import (
	"context"

	"github.com/hatlonely/qcore/cache"
	"github.com/hatlonely/qcore/connector"
	"github.com/hatlonely/qcore/document"
	"github.com/hatlonely/qcore/extract"
	"github.com/hatlonely/qcore/filter"
	"github.com/hatlonely/qcore/schema"
	"github.com/hatlonely/qcore/selection"
	"github.com/hatlonely/qcore/value"
)

// FindUnique 按唯一条件查询一条记录，不存在时返回 nil
//
//	{where: {email: "a@b.c"}, select: {id: true, name: true}}
func (e *Engine) FindUnique(ctx context.Context, model string, args *document.ParsedInputMap) (value.Object, error) {
	m, err := e.model(model)
	if err != nil {
		return nil, err
	}
	where, err := requiredMapArg(args, "where")
	if err != nil {
		return nil, err
	}
	f, err := extract.ExtractUniqueFilter(where, m)
	if err != nil {
		return nil, err
	}
	sel, err := parseSelection(m, args)
	if err != nil {
		return nil, err
	}

	var out value.Object
	err = e.run(ctx, func(ctx context.Context, ops operations, inTx bool) error {
		id, byKey := primaryKeyOf(m, where)
		useCache := byKey && e.cache != nil && !inTx && cache.Cacheable(m, sel)
		if useCache {
			rec, err := e.cache.Get(ctx, m, id, sel)
			if err != nil {
				e.logger.WarnContext(ctx, "read record cache failed", "model", m.Name, "error", err)
			} else if rec != nil {
				out, err = rec.ToObject(sel)
				return err
			}
		}

		query := selection.Union(sel, selection.PrimaryKey(m))
		rec, err := ops.GetSingleRecord(ctx, m, f, query)
		if err != nil || rec == nil {
			return err
		}
		if e.cache != nil && !inTx {
			e.cachePut(ctx, m, rec, query)
		}
		out, err = rec.Project(sel).ToObject(sel)
		return err
	})
	return out, err
}

// FindFirst 按 where、orderBy、skip 查询第一条记录，不存在时返回 nil
func (e *Engine) FindFirst(ctx context.Context, model string, args *document.ParsedInputMap) (value.Object, error) {
	m, err := e.model(model)
	if err != nil {
		return nil, err
	}
	qa, err := queryArguments(m, args)
	if err != nil {
		return nil, err
	}
	one := 1
	qa.Take = &one
	sel, err := parseSelection(m, args)
	if err != nil {
		return nil, err
	}

	var out value.Object
	err = e.run(ctx, func(ctx context.Context, ops operations, inTx bool) error {
		records, err := ops.GetManyRecords(ctx, m, qa, sel)
		if err != nil {
			return err
		}
		rec := records.First()
		if rec == nil {
			return nil
		}
		out, err = rec.Project(sel).ToObject(sel)
		return err
	})
	return out, err
}

// FindMany 查询多条记录
//
//	{where: {...}, orderBy: [{createdAt: "desc"}], take: 10, skip: 20, select: {...}}
func (e *Engine) FindMany(ctx context.Context, model string, args *document.ParsedInputMap) ([]value.Object, error) {
	m, err := e.model(model)
	if err != nil {
		return nil, err
	}
	qa, err := queryArguments(m, args)
	if err != nil {
		return nil, err
	}
	if qa.Take, err = intArg(args, "take"); err != nil {
		return nil, err
	}
	sel, err := parseSelection(m, args)
	if err != nil {
		return nil, err
	}

	var out []value.Object
	err = e.run(ctx, func(ctx context.Context, ops operations, inTx bool) error {
		records, err := ops.GetManyRecords(ctx, m, qa, sel)
		if err != nil {
			return err
		}
		out, err = records.Project(sel).ToObjects(sel)
		return err
	})
	return out, err
}

func queryArguments(m *schema.Model, args *document.ParsedInputMap) (connector.QueryArguments, error) {
	var qa connector.QueryArguments
	f, err := whereFilter(m, args)
	if err != nil {
		return qa, err
	}
	qa.Filter = f
	if qa.OrderBy, err = parseOrderBy(m, args); err != nil {
		return qa, err
	}
	skip, err := intArg(args, "skip")
	if err != nil {
		return qa, err
	}
	if skip != nil {
		qa.Skip = *skip
	}
	return qa, nil
}

// whereFilter 没有 where 时匹配全部记录
func whereFilter(m *schema.Model, args *document.ParsedInputMap) (filter.Filter, error) {
	where, err := mapArg(args, "where")
	if err != nil {
		return nil, err
	}
	if where == nil {
		return filter.MatchAll(), nil
	}
	return extract.ExtractFilter(where, m)
}

// identifier 取出记录主键并按字段类型转换，保证缓存键与查询条件得到的键一致
func identifier(m *schema.Model, rec *connector.SingleRecord) (selection.SelectionResult, error) {
	id, err := rec.Identifier(selection.PrimaryKey(m))
	if err != nil {
		return id, err
	}
	b := selection.NewSelectionResultBuilder()
	for _, p := range id.Pairs() {
		v, err := value.Coerce(p.Value, p.Field.Type)
		if err != nil {
			v = p.Value
		}
		b.Add(p.Field, v)
	}
	return b.Build(), nil
}

// cachePut 只缓存标量字段，关系计数会随关联模型的写入变化
func (e *Engine) cachePut(ctx context.Context, m *schema.Model, rec *connector.SingleRecord, query selection.FieldSelection) {
	id, err := identifier(m, rec)
	if err != nil {
		e.logger.WarnContext(ctx, "record has no identifier", "model", m.Name, "error", err)
		return
	}
	scalars := selection.FromScalars(query.Scalars())
	if err := e.cache.Put(ctx, m, id, rec.Project(scalars)); err != nil {
		e.logger.WarnContext(ctx, "write record cache failed", "model", m.Name, "error", err)
	}
}

// invalidate 写入之后删除缓存，失败只记录日志
func (e *Engine) invalidate(ctx context.Context, m *schema.Model, ids ...selection.SelectionResult) {
	if e.cache == nil || len(ids) == 0 {
		return
	}
	if err := e.cache.Invalidate(ctx, m, ids...); err != nil {
		e.logger.WarnContext(ctx, "invalidate record cache failed", "model", m.Name, "count", len(ids), "error", err)
	}
}
