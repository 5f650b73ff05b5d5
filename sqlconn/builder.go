package sqlconn

import (
	"strconv"
	"strings"

	"github.com/hatlonely/qcore/connector"
	"github.com/hatlonely/qcore/filter"
	"github.com/hatlonely/qcore/qerror"
	"github.com/hatlonely/qcore/query"
	"github.com/hatlonely/qcore/schema"
	"github.com/hatlonely/qcore/selection"
	"github.com/hatlonely/qcore/value"
	"github.com/hatlonely/qcore/write"
)

// 查询主表和计数子查询使用的别名
const (
	outerAlias = "t0"
	innerAlias = "t1"
)

var quote = query.QuoteIdent

type builder struct {
	flavour  Flavour
	compiler *query.Compiler
}

func newBuilder(flavour Flavour) *builder {
	return &builder{
		flavour:  flavour,
		compiler: query.NewCompiler(query.Dialect(flavour), relations{}),
	}
}

func (b *builder) where(f filter.Filter) (string, []interface{}, error) {
	q, err := b.compiler.Compile(f)
	if err != nil {
		return "", nil, err
	}
	return q.ToSQL()
}

func column(alias, name string) string {
	return quote(alias) + "." + quote(name)
}

// projection 选中字段对应的列表达式，顺序与 selected 一致
func (b *builder) projection(model *schema.Model, selected selection.FieldSelection) ([]string, error) {
	exprs := make([]string, 0, len(selected.Fields))
	for _, f := range selected.Fields {
		switch x := f.(type) {
		case *selection.ScalarSelection:
			exprs = append(exprs, column(outerAlias, x.Field.DBName()))
		case *selection.VirtualSelection:
			exprs = append(exprs, countExpr(x.Field)+" AS "+quote(x.DBAlias()))
		case *selection.CompositeSelection:
			return nil, qerror.NewUnsupported("composite fields on SQL backends")
		default:
			return nil, qerror.NewUnsupported("nested relation selection " + f.Name())
		}
	}
	return exprs, nil
}

// countExpr 关联记录数的相关子查询
func countExpr(rf *schema.RelationField) string {
	var table string
	var inner, outer []string
	if rf.UsesJoinTable() {
		joinTable, self, _ := rf.JoinTable()
		table = joinTable
		inner = []string{self}
		for _, f := range rf.Model().PrimaryIdentifier() {
			outer = append(outer, f.DBName())
		}
	} else {
		table = rf.RelatedModel().DBName
		for _, f := range rf.ReferencedFields() {
			inner = append(inner, f.DBName())
		}
		for _, f := range rf.LinkingFields() {
			outer = append(outer, f.DBName())
		}
	}
	conditions := make([]string, len(inner))
	for i := range inner {
		conditions[i] = column(innerAlias, inner[i]) + " = " + column(outerAlias, outer[i])
	}
	return "(SELECT COUNT(*) FROM " + quote(table) + " AS " + quote(innerAlias) +
		" WHERE " + strings.Join(conditions, " AND ") + ")"
}

func (b *builder) selectRecords(model *schema.Model, args connector.QueryArguments, selected selection.FieldSelection) (string, []interface{}, error) {
	exprs, err := b.projection(model, selected)
	if err != nil {
		return "", nil, err
	}
	where, whereArgs, err := b.where(args.Filter)
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + strings.Join(exprs, ", "))
	sb.WriteString(" FROM " + quote(model.DBName) + " AS " + quote(outerAlias))
	sb.WriteString(" WHERE " + where)

	orderBy := args.OrderBy
	// 分页时按主键排序保证结果稳定
	if len(orderBy) == 0 && (args.Take != nil || args.Skip > 0) {
		for _, f := range model.PrimaryIdentifier() {
			orderBy = append(orderBy, connector.OrderBy{Field: f})
		}
	}
	if len(orderBy) > 0 {
		parts := make([]string, len(orderBy))
		for i, o := range orderBy {
			parts[i] = column(outerAlias, o.Field.DBName())
			if o.Desc {
				parts[i] += " DESC"
			} else {
				parts[i] += " ASC"
			}
		}
		sb.WriteString(" ORDER BY " + strings.Join(parts, ", "))
	}

	if args.Take != nil {
		sb.WriteString(" LIMIT " + strconv.Itoa(*args.Take))
	} else if args.Skip > 0 {
		// OFFSET 必须跟在 LIMIT 之后
		if b.flavour == FlavourSQLite {
			sb.WriteString(" LIMIT -1")
		} else {
			sb.WriteString(" LIMIT 18446744073709551615")
		}
	}
	if args.Skip > 0 {
		sb.WriteString(" OFFSET " + strconv.Itoa(args.Skip))
	}
	return sb.String(), whereArgs, nil
}

// insertRow 一行待插入的值
type insertRow struct {
	columns []string
	args    []interface{}
}

func rowFromArgs(args *write.WriteArgs) (insertRow, error) {
	var row insertRow
	for _, e := range args.Entries() {
		if _, ok := e.Field.(*schema.ScalarField); !ok {
			return row, qerror.NewUnsupported("composite fields on SQL backends")
		}
		if e.Op.Kind != write.OpSet {
			return row, qerror.NewInvalidInput(e.Field.Name(), e.Field.Container().ContainerName(),
				e.Op.Kind.String()+" is not allowed when creating a record")
		}
		row.columns = append(row.columns, e.Field.DBName())
		row.args = append(row.args, value.ToDriver(e.Op.Value))
	}
	return row, nil
}

func (r insertRow) signature() string {
	return strings.Join(r.columns, "\x00")
}

// insert 多行的列必须相同；没有列时只能插入一行默认值
func (b *builder) insert(model *schema.Model, rows []insertRow, ignore bool, returning []*schema.ScalarField) (string, []interface{}) {
	var sb strings.Builder
	sb.WriteString("INSERT ")
	if ignore {
		if b.flavour == FlavourSQLite {
			sb.WriteString("OR IGNORE ")
		} else {
			sb.WriteString("IGNORE ")
		}
	}
	sb.WriteString("INTO " + quote(model.DBName))

	var args []interface{}
	columns := rows[0].columns
	if len(columns) == 0 {
		if b.flavour == FlavourSQLite {
			sb.WriteString(" DEFAULT VALUES")
		} else {
			sb.WriteString(" () VALUES ()")
		}
	} else {
		quoted := make([]string, len(columns))
		for i, c := range columns {
			quoted[i] = quote(c)
		}
		sb.WriteString(" (" + strings.Join(quoted, ", ") + ") VALUES ")
		values := make([]string, len(rows))
		tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
		for i, r := range rows {
			values[i] = tuple
			args = append(args, r.args...)
		}
		sb.WriteString(strings.Join(values, ", "))
	}

	if len(returning) > 0 {
		names := make([]string, len(returning))
		for i, f := range returning {
			names[i] = quote(f.DBName())
		}
		sb.WriteString(" RETURNING " + strings.Join(names, ", "))
	}
	return sb.String(), args
}

// update 生成 UPDATE，算术操作基于列的当前值
func (b *builder) update(model *schema.Model, args *write.WriteArgs, f filter.Filter) (string, []interface{}, error) {
	sets := make([]string, 0, args.Len())
	var setArgs []interface{}
	for _, e := range args.Entries() {
		if _, ok := e.Field.(*schema.ScalarField); !ok {
			return "", nil, qerror.NewUnsupported("composite fields on SQL backends")
		}
		col := quote(e.Field.DBName())
		switch e.Op.Kind {
		case write.OpSet:
			sets = append(sets, col+" = ?")
			setArgs = append(setArgs, value.ToDriver(e.Op.Value))
		case write.OpUnset:
			sets = append(sets, col+" = NULL")
		case write.OpIncrement:
			sets = append(sets, col+" = "+col+" + ?")
			setArgs = append(setArgs, value.ToDriver(e.Op.Value))
		case write.OpDecrement:
			sets = append(sets, col+" = "+col+" - ?")
			setArgs = append(setArgs, value.ToDriver(e.Op.Value))
		case write.OpMultiply:
			sets = append(sets, col+" = "+col+" * ?")
			setArgs = append(setArgs, value.ToDriver(e.Op.Value))
		case write.OpDivide:
			sets = append(sets, col+" = "+col+" / ?")
			setArgs = append(setArgs, value.ToDriver(e.Op.Value))
		}
	}

	where, whereArgs, err := b.where(f)
	if err != nil {
		return "", nil, err
	}
	stmt := "UPDATE " + quote(model.DBName) + " SET " + strings.Join(sets, ", ") + " WHERE " + where
	return stmt, append(setArgs, whereArgs...), nil
}

func (b *builder) delete(model *schema.Model, f filter.Filter) (string, []interface{}, error) {
	where, args, err := b.where(f)
	if err != nil {
		return "", nil, err
	}
	return "DELETE FROM " + quote(model.DBName) + " WHERE " + where, args, nil
}
