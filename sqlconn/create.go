package sqlconn

import (
	"context"
	"strings"

	"github.com/hatlonely/qcore/connector"
	"github.com/hatlonely/qcore/qerror"
	"github.com/hatlonely/qcore/schema"
	"github.com/hatlonely/qcore/selection"
	"github.com/hatlonely/qcore/value"
	"github.com/hatlonely/qcore/write"
)

// mysqlGenerators MySQL 不支持 RETURNING，dbgenerated 的 uuid 主键需要先查询生成
var mysqlGenerators = map[string]string{
	"uuid()":                "uuid()",
	"uuid_to_bin(uuid())":   "uuid_to_bin(uuid())",
	"uuid_to_bin(uuid(),0)": "uuid_to_bin(uuid())",
	"uuid_to_bin(uuid(),1)": "uuid_to_bin(uuid(), 1)",
}

func normalizeExpr(expr string) string {
	expr = strings.ToLower(strings.ReplaceAll(expr, " ", ""))
	for strings.HasPrefix(expr, "(") && strings.HasSuffix(expr, ")") {
		inner := expr[1 : len(expr)-1]
		// "(a)(b)" 这类不能去掉外层括号
		if strings.Count(inner, "(") != strings.Count(inner, ")") || strings.Index(inner, ")") < strings.Index(inner, "(") {
			break
		}
		expr = inner
	}
	return expr
}

// generateIDs 在插入前通过 SELECT 生成 dbgenerated 主键，并写入 args
func (o *operations) generateIDs(ctx context.Context, pk []*schema.ScalarField, args *write.WriteArgs) error {
	var fields []*schema.ScalarField
	var exprs []string
	for _, f := range pk {
		if !f.IsDBGenerated() || args.HasArgFor(f.DBName()) {
			continue
		}
		fn, ok := mysqlGenerators[normalizeExpr(f.Default.Expr)]
		if !ok {
			continue
		}
		fields = append(fields, f)
		exprs = append(exprs, fn+" AS "+quote(f.DBName()))
	}
	if len(fields) == 0 {
		return nil
	}

	rs, err := o.q.Query(ctx, "SELECT "+strings.Join(exprs, ", "), nil)
	if err != nil {
		return err
	}
	if rs.Len() != 1 || len(rs.Rows[0]) != len(fields) {
		return qerror.NewInternalInvariantViolation("generating primary key values returned no row")
	}
	for i, f := range fields {
		v, err := value.FromDriver(rs.Rows[0][i], f.Type)
		if err != nil {
			return err
		}
		args.Insert(f, write.Set(v))
	}
	return nil
}

func (o *operations) CreateRecord(ctx context.Context, model *schema.Model, args *write.WriteArgs, selected selection.FieldSelection) (*connector.SingleRecord, error) {
	pk := model.PrimaryIdentifier()
	args = args.Clone()
	if o.q.Flavour() == FlavourMySQL {
		if err := o.generateIDs(ctx, pk, args); err != nil {
			return nil, err
		}
	}

	row, err := rowFromArgs(args)
	if err != nil {
		return nil, err
	}
	var returning []*schema.ScalarField
	if o.returning {
		returning = pk
	}
	stmt, qargs := o.b.insert(model, []insertRow{row}, false, returning)
	res, err := o.q.Insert(ctx, stmt, qargs, len(returning) > 0)
	if err != nil {
		return nil, err
	}

	var returned []value.Value
	if res.Rows.Len() > 0 {
		returned, err = decodeRow(selection.PrimaryKey(model), res.Rows.Rows[0])
		if err != nil {
			return nil, err
		}
	}
	id, err := write.ResolveIdentifier(pk, returned, args, res.LastInsertID)
	if err != nil {
		return nil, err
	}

	return o.readBack(ctx, model, id, selected)
}

// readBack 只选了主键时直接用 id 组装，否则重新查询
func (o *operations) readBack(ctx context.Context, model *schema.Model, id selection.SelectionResult, selected selection.FieldSelection) (*connector.SingleRecord, error) {
	if onlyScalars(selected) && selection.PrimaryKey(model).IsSupersetOf(selected) {
		values := make([]value.Value, 0, len(selected.Fields))
		for _, f := range selected.Scalars() {
			v, _ := id.Get(f.Name())
			values = append(values, v)
		}
		return &connector.SingleRecord{Record: connector.Record{Values: values}, FieldNames: selected.DBNames()}, nil
	}

	record, err := o.GetSingleRecord(ctx, model, id.Filter(), selected)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, qerror.NewRecordDoesNotExist("record " + id.String() + " of " + model.Name + " was not found after write")
	}
	return record, nil
}

func onlyScalars(sel selection.FieldSelection) bool {
	for _, f := range sel.Fields {
		if _, ok := f.(*selection.ScalarSelection); !ok {
			return false
		}
	}
	return true
}

// CreateRecords 按列集合分组，每组按占位符上限和 MaxRows 分批插入
func (o *operations) CreateRecords(ctx context.Context, model *schema.Model, args []*write.WriteArgs, skipDuplicates bool) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}

	rows := make([]insertRow, 0, len(args))
	allEmpty := true
	for _, a := range args {
		row, err := rowFromArgs(a)
		if err != nil {
			return 0, err
		}
		if len(row.columns) > 0 {
			allEmpty = false
		}
		rows = append(rows, row)
	}

	if allEmpty {
		total := 0
		for range rows {
			stmt, qargs := o.b.insert(model, []insertRow{{}}, skipDuplicates, nil)
			res, err := o.q.Insert(ctx, stmt, qargs, false)
			if err != nil {
				return total, err
			}
			total += int(res.RowsAffected)
		}
		return total, nil
	}

	total := 0
	for _, batch := range o.batches(rows) {
		stmt, qargs := o.b.insert(model, batch, skipDuplicates, nil)
		res, err := o.q.Insert(ctx, stmt, qargs, false)
		if err != nil {
			return total, err
		}
		total += int(res.RowsAffected)
	}
	return total, nil
}

// batches 相同列集合的行合并，保持首次出现的顺序
func (o *operations) batches(rows []insertRow) [][]insertRow {
	var order []string
	groups := map[string][]insertRow{}
	for _, r := range rows {
		sig := r.signature()
		if _, ok := groups[sig]; !ok {
			order = append(order, sig)
		}
		groups[sig] = append(groups[sig], r)
	}

	var out [][]insertRow
	for _, sig := range order {
		group := groups[sig]
		// 没有列的行只能逐行插入默认值
		size := 1
		if n := len(group[0].columns); n > 0 {
			size = o.options.maxBindValues() / n
		}
		if o.options.MaxRows > 0 && o.options.MaxRows < size {
			size = o.options.MaxRows
		}
		if size < 1 {
			size = 1
		}
		for len(group) > size {
			out = append(out, group[:size])
			group = group[size:]
		}
		out = append(out, group)
	}
	return out
}
