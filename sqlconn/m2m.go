package sqlconn

import (
	"context"
	"strings"

	"github.com/hatlonely/qcore/qerror"
	"github.com/hatlonely/qcore/schema"
	"github.com/hatlonely/qcore/selection"
	"github.com/hatlonely/qcore/value"
)

// joinValue 中间表只支持单列主键
func joinValue(r selection.SelectionResult) (interface{}, error) {
	if r.Len() != 1 {
		return nil, qerror.NewUnsupported("many-to-many relations on compound primary keys")
	}
	return value.ToDriver(r.Values()[0]), nil
}

func joinTable(field *schema.RelationField) (string, string, string, error) {
	if !field.UsesJoinTable() {
		return "", "", "", qerror.NewUnsupported("connect and disconnect of " + field.Name() + " without a join table")
	}
	table, self, other := field.JoinTable()
	return table, self, other, nil
}

// M2MConnect 已存在的关联忽略
func (o *operations) M2MConnect(ctx context.Context, field *schema.RelationField, parent selection.SelectionResult, children []selection.SelectionResult) error {
	table, self, other, err := joinTable(field)
	if err != nil {
		return err
	}
	if len(children) == 0 {
		return nil
	}
	parentValue, err := joinValue(parent)
	if err != nil {
		return err
	}

	ignore := "INSERT IGNORE INTO "
	if o.q.Flavour() == FlavourSQLite {
		ignore = "INSERT OR IGNORE INTO "
	}
	for _, chunk := range chunks(children, o.options.maxBindValues()/2) {
		tuples := make([]string, 0, len(chunk))
		args := make([]interface{}, 0, len(chunk)*2)
		for _, child := range chunk {
			childValue, err := joinValue(child)
			if err != nil {
				return err
			}
			tuples = append(tuples, "(?, ?)")
			args = append(args, parentValue, childValue)
		}
		stmt := ignore + quote(table) + " (" + quote(self) + ", " + quote(other) + ") VALUES " + strings.Join(tuples, ", ")
		if _, err := o.q.Execute(ctx, stmt, args); err != nil {
			return err
		}
	}
	return nil
}

func (o *operations) M2MDisconnect(ctx context.Context, field *schema.RelationField, parent selection.SelectionResult, children []selection.SelectionResult) error {
	table, self, other, err := joinTable(field)
	if err != nil {
		return err
	}
	if len(children) == 0 {
		return nil
	}
	parentValue, err := joinValue(parent)
	if err != nil {
		return err
	}

	for _, chunk := range chunks(children, o.options.maxBindValues()-1) {
		args := []interface{}{parentValue}
		for _, child := range chunk {
			childValue, err := joinValue(child)
			if err != nil {
				return err
			}
			args = append(args, childValue)
		}
		stmt := "DELETE FROM " + quote(table) + " WHERE " + quote(self) + " = ? AND " + quote(other) +
			" IN (" + strings.TrimSuffix(strings.Repeat("?, ", len(chunk)), ", ") + ")"
		if _, err := o.q.Execute(ctx, stmt, args); err != nil {
			return err
		}
	}
	return nil
}
