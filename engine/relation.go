package engine

import (
	"context"

	"github.com/hatlonely/qcore/document"
	"github.com/hatlonely/qcore/extract"
	"github.com/hatlonely/qcore/qerror"
	"github.com/hatlonely/qcore/schema"
	"github.com/hatlonely/qcore/selection"
)

// Connect 为多对多关系添加关联
//
//	Connect(ctx, "Post", "tags", {where: {id: 1}, connect: [{id: 2}, {name: "go"}]})
func (e *Engine) Connect(ctx context.Context, model string, relation string, args *document.ParsedInputMap) error {
	return e.m2m(ctx, model, relation, args, "connect")
}

// Disconnect 移除多对多关系的关联，参数与 Connect 相同，子记录列表使用 disconnect 键
func (e *Engine) Disconnect(ctx context.Context, model string, relation string, args *document.ParsedInputMap) error {
	return e.m2m(ctx, model, relation, args, "disconnect")
}

func (e *Engine) m2m(ctx context.Context, model string, relation string, args *document.ParsedInputMap, action string) error {
	m, err := e.model(model)
	if err != nil {
		return err
	}
	rf, ok := m.FindRelation(relation)
	if !ok {
		return qerror.NewFieldNotFound(relation, m.Name, "model")
	}
	if !rf.IsManyToMany() {
		return qerror.NewUnsupported(action + " on a relation that is not many-to-many: " + m.Name + "." + relation)
	}
	where, err := requiredMapArg(args, "where")
	if err != nil {
		return err
	}
	children, err := childWheres(args, action)
	if err != nil {
		return err
	}
	if len(children) == 0 {
		return nil
	}

	return e.run(ctx, func(ctx context.Context, ops operations, inTx bool) error {
		parent, err := e.resolveUnique(ctx, ops, m, where)
		if err != nil {
			return err
		}
		related := rf.RelatedModel()
		ids := make([]selection.SelectionResult, 0, len(children))
		for _, child := range children {
			id, err := e.resolveUnique(ctx, ops, related, child)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}

		if action == "connect" {
			err = ops.M2MConnect(ctx, rf, parent, ids)
		} else {
			err = ops.M2MDisconnect(ctx, rf, parent, ids)
		}
		if err != nil {
			return err
		}
		// 文档数据库的关联保存在两侧记录的字段中
		e.invalidate(ctx, m, parent)
		e.invalidate(ctx, related, ids...)
		return nil
	})
}

func childWheres(args *document.ParsedInputMap, key string) ([]*document.ParsedInputMap, error) {
	v, ok := args.Get(key)
	if !ok {
		return nil, qerror.NewInvalidInput(key, "arguments", "argument is required")
	}
	switch x := v.(type) {
	case *document.ParsedInputMap:
		return []*document.ParsedInputMap{x}, nil
	case document.List:
		out := make([]*document.ParsedInputMap, 0, len(x))
		for _, item := range x {
			m, ok := item.(*document.ParsedInputMap)
			if !ok {
				return nil, qerror.NewInvalidInput(key, "arguments", "expected a list of objects")
			}
			out = append(out, m)
		}
		return out, nil
	}
	return nil, qerror.NewInvalidInput(key, "arguments", "expected an object or a list")
}

// resolveUnique 按唯一条件查出记录主键，记录不存在时返回 RecordDoesNotExist
func (e *Engine) resolveUnique(ctx context.Context, ops operations, m *schema.Model, where *document.ParsedInputMap) (selection.SelectionResult, error) {
	f, err := extract.ExtractUniqueFilter(where, m)
	if err != nil {
		return selection.SelectionResult{}, err
	}
	rec, err := ops.GetSingleRecord(ctx, m, f, selection.PrimaryKey(m))
	if err != nil {
		return selection.SelectionResult{}, err
	}
	if rec == nil {
		return selection.SelectionResult{}, qerror.NewRecordDoesNotExist("no '" + m.Name + "' record was found for the relation")
	}
	return identifier(m, rec)
}
