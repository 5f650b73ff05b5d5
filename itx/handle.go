package itx

import (
	"context"

	"github.com/hatlonely/qcore/connector"
	"github.com/hatlonely/qcore/filter"
	"github.com/hatlonely/qcore/schema"
	"github.com/hatlonely/qcore/selection"
	"github.com/hatlonely/qcore/write"
)

// handle 由 Get 返回，操作经过管理器串行执行并刷新空闲计时
type handle struct {
	m  *Manager
	id string
}

func (h *handle) GetSingleRecord(ctx context.Context, model *schema.Model, f filter.Filter, selected selection.FieldSelection) (*connector.SingleRecord, error) {
	var r *connector.SingleRecord
	err := h.m.Execute(ctx, h.id, func(ctx context.Context, tx connector.Transaction) error {
		var err error
		r, err = tx.GetSingleRecord(ctx, model, f, selected)
		return err
	})
	return r, err
}

func (h *handle) GetManyRecords(ctx context.Context, model *schema.Model, args connector.QueryArguments, selected selection.FieldSelection) (*connector.ManyRecords, error) {
	var r *connector.ManyRecords
	err := h.m.Execute(ctx, h.id, func(ctx context.Context, tx connector.Transaction) error {
		var err error
		r, err = tx.GetManyRecords(ctx, model, args, selected)
		return err
	})
	return r, err
}

func (h *handle) CreateRecord(ctx context.Context, model *schema.Model, args *write.WriteArgs, selected selection.FieldSelection) (*connector.SingleRecord, error) {
	var r *connector.SingleRecord
	err := h.m.Execute(ctx, h.id, func(ctx context.Context, tx connector.Transaction) error {
		var err error
		r, err = tx.CreateRecord(ctx, model, args, selected)
		return err
	})
	return r, err
}

func (h *handle) CreateRecords(ctx context.Context, model *schema.Model, args []*write.WriteArgs, skipDuplicates bool) (int, error) {
	var n int
	err := h.m.Execute(ctx, h.id, func(ctx context.Context, tx connector.Transaction) error {
		var err error
		n, err = tx.CreateRecords(ctx, model, args, skipDuplicates)
		return err
	})
	return n, err
}

func (h *handle) UpdateRecord(ctx context.Context, model *schema.Model, rf write.RecordFilter, args *write.WriteArgs, selected selection.FieldSelection) (*connector.SingleRecord, error) {
	var r *connector.SingleRecord
	err := h.m.Execute(ctx, h.id, func(ctx context.Context, tx connector.Transaction) error {
		var err error
		r, err = tx.UpdateRecord(ctx, model, rf, args, selected)
		return err
	})
	return r, err
}

func (h *handle) UpdateRecords(ctx context.Context, model *schema.Model, rf write.RecordFilter, args *write.WriteArgs, limit *int) (int, error) {
	var n int
	err := h.m.Execute(ctx, h.id, func(ctx context.Context, tx connector.Transaction) error {
		var err error
		n, err = tx.UpdateRecords(ctx, model, rf, args, limit)
		return err
	})
	return n, err
}

func (h *handle) DeleteRecord(ctx context.Context, model *schema.Model, rf write.RecordFilter, selected selection.FieldSelection) (*connector.SingleRecord, error) {
	var r *connector.SingleRecord
	err := h.m.Execute(ctx, h.id, func(ctx context.Context, tx connector.Transaction) error {
		var err error
		r, err = tx.DeleteRecord(ctx, model, rf, selected)
		return err
	})
	return r, err
}

func (h *handle) DeleteRecords(ctx context.Context, model *schema.Model, rf write.RecordFilter, limit *int) (int, error) {
	var n int
	err := h.m.Execute(ctx, h.id, func(ctx context.Context, tx connector.Transaction) error {
		var err error
		n, err = tx.DeleteRecords(ctx, model, rf, limit)
		return err
	})
	return n, err
}

func (h *handle) M2MConnect(ctx context.Context, field *schema.RelationField, parent selection.SelectionResult, children []selection.SelectionResult) error {
	return h.m.Execute(ctx, h.id, func(ctx context.Context, tx connector.Transaction) error {
		return tx.M2MConnect(ctx, field, parent, children)
	})
}

func (h *handle) M2MDisconnect(ctx context.Context, field *schema.RelationField, parent selection.SelectionResult, children []selection.SelectionResult) error {
	return h.m.Execute(ctx, h.id, func(ctx context.Context, tx connector.Transaction) error {
		return tx.M2MDisconnect(ctx, field, parent, children)
	})
}

func (h *handle) Commit(ctx context.Context) error {
	return h.m.Commit(ctx, h.id)
}

func (h *handle) Rollback(ctx context.Context) error {
	return h.m.Rollback(ctx, h.id)
}
