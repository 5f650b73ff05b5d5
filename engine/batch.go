package engine

import (
	"context"

	"github.com/pkg/errors"

	"github.com/hatlonely/qcore/document"
	"github.com/hatlonely/qcore/itx"
	"github.com/hatlonely/qcore/qerror"
	"github.com/hatlonely/qcore/value"
)

const (
	ActionFindUnique = "findUnique"
	ActionFindFirst  = "findFirst"
	ActionFindMany   = "findMany"
	ActionCreateOne  = "createOne"
	ActionCreateMany = "createMany"
	ActionUpdateOne  = "updateOne"
	ActionUpdateMany = "updateMany"
	ActionDeleteOne  = "deleteOne"
	ActionDeleteMany = "deleteMany"
)

// Operation 批量请求中的一个操作
type Operation struct {
	Model  string
	Action string
	Args   *document.ParsedInputMap
}

// Result 单条记录的操作返回一条或零条 Records，计数类操作返回 Count
type Result struct {
	Records []value.Object
	Count   int
	Err     error
}

// Batch 按顺序执行 ops
//
// transactional 为 false 时每个操作单独执行，失败不影响后续操作；
// 为 true 时所有操作在同一个事务中执行，任何一个失败都回滚并返回该错误
func (e *Engine) Batch(ctx context.Context, ops []Operation, transactional bool) ([]Result, error) {
	if !transactional {
		results := make([]Result, 0, len(ops))
		for _, op := range ops {
			results = append(results, e.execute(ctx, op))
		}
		return results, nil
	}

	// 已经在事务中时直接复用
	if _, ok := TransactionFrom(ctx); ok {
		return e.batchIn(ctx, ops)
	}

	id, err := e.itx.Begin(ctx, e.conn, itx.TxOptions{})
	if err != nil {
		return nil, errors.WithMessage(err, "begin batch transaction failed")
	}
	results, err := e.batchIn(WithTransaction(ctx, id), ops)
	if err != nil {
		if rerr := e.itx.Rollback(context.WithoutCancel(ctx), id); rerr != nil && qerror.KindOf(rerr) != qerror.KindTransactionAlreadyClosed {
			e.logger.WarnContext(ctx, "rollback batch transaction failed", "id", id, "error", rerr)
		}
		return results, err
	}
	if err := e.itx.Commit(ctx, id); err != nil {
		return results, err
	}
	return results, nil
}

func (e *Engine) batchIn(ctx context.Context, ops []Operation) ([]Result, error) {
	results := make([]Result, 0, len(ops))
	for i, op := range ops {
		r := e.execute(ctx, op)
		results = append(results, r)
		if r.Err != nil {
			return results, errors.WithMessagef(r.Err, "batch operation %d (%s.%s) failed", i, op.Model, op.Action)
		}
	}
	return results, nil
}

func (e *Engine) execute(ctx context.Context, op Operation) Result {
	args := op.Args
	if args == nil {
		args = document.NewParsedInputMap()
	}

	var r Result
	switch op.Action {
	case ActionFindUnique, ActionFindFirst, ActionCreateOne, ActionUpdateOne, ActionDeleteOne:
		var obj value.Object
		obj, r.Err = e.single(ctx, op.Action, op.Model, args)
		if obj != nil {
			r.Records = []value.Object{obj}
			r.Count = 1
		}
	case ActionFindMany:
		r.Records, r.Err = e.FindMany(ctx, op.Model, args)
		r.Count = len(r.Records)
	case ActionCreateMany:
		r.Count, r.Err = e.CreateMany(ctx, op.Model, args)
	case ActionUpdateMany:
		r.Count, r.Err = e.UpdateMany(ctx, op.Model, args)
	case ActionDeleteMany:
		r.Count, r.Err = e.DeleteMany(ctx, op.Model, args)
	default:
		r.Err = qerror.NewInvalidInput(op.Action, "batch", "unknown action")
	}
	return r
}

func (e *Engine) single(ctx context.Context, action string, model string, args *document.ParsedInputMap) (value.Object, error) {
	switch action {
	case ActionFindUnique:
		return e.FindUnique(ctx, model, args)
	case ActionFindFirst:
		return e.FindFirst(ctx, model, args)
	case ActionCreateOne:
		return e.CreateOne(ctx, model, args)
	case ActionUpdateOne:
		return e.UpdateOne(ctx, model, args)
	default:
		return e.DeleteOne(ctx, model, args)
	}
}
