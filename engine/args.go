package engine

import (
	"strings"

	"github.com/hatlonely/qcore/connector"
	"github.com/hatlonely/qcore/document"
	"github.com/hatlonely/qcore/qerror"
	"github.com/hatlonely/qcore/schema"
	"github.com/hatlonely/qcore/selection"
	"github.com/hatlonely/qcore/value"
)

const countKey = "_count"

func mapArg(args *document.ParsedInputMap, key string) (*document.ParsedInputMap, error) {
	v, ok := args.Get(key)
	if !ok {
		return nil, nil
	}
	switch x := v.(type) {
	case *document.ParsedInputMap:
		return x, nil
	case document.Single:
		if value.IsNull(x.Value) {
			return nil, nil
		}
	}
	return nil, qerror.NewInvalidInput(key, "arguments", "expected an object")
}

func requiredMapArg(args *document.ParsedInputMap, key string) (*document.ParsedInputMap, error) {
	m, err := mapArg(args, key)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, qerror.NewInvalidInput(key, "arguments", "argument is required")
	}
	return m, nil
}

// intArg 参数不存在时返回 nil
func intArg(args *document.ParsedInputMap, key string) (*int, error) {
	v, ok := args.Get(key)
	if !ok {
		return nil, nil
	}
	s, ok := v.(document.Single)
	if !ok {
		return nil, qerror.NewInvalidInput(key, "arguments", "expected an integer")
	}
	if value.IsNull(s.Value) {
		return nil, nil
	}
	c, err := value.Coerce(s.Value, value.TypeInt)
	if err != nil {
		return nil, qerror.NewInvalidInput(key, "arguments", "expected an integer")
	}
	n := int(c.(value.Int))
	if n < 0 {
		return nil, qerror.NewInvalidInput(key, "arguments", "must not be negative")
	}
	return &n, nil
}

func boolArg(args *document.ParsedInputMap, key string) (bool, error) {
	v, ok := args.Get(key)
	if !ok {
		return false, nil
	}
	s, ok := v.(document.Single)
	if ok {
		if b, ok := s.Value.(value.Bool); ok {
			return bool(b), nil
		}
	}
	return false, qerror.NewInvalidInput(key, "arguments", "expected a boolean")
}

func isTrue(v document.ParsedInputValue) bool {
	s, ok := v.(document.Single)
	if !ok {
		return false
	}
	b, ok := s.Value.(value.Bool)
	return ok && bool(b)
}

// parseSelection 解析 select 参数，没有 select 时选中全部标量和复合字段
//
//	{id: true, name: true, _count: {select: {posts: true}}}
func parseSelection(model *schema.Model, args *document.ParsedInputMap) (selection.FieldSelection, error) {
	sel, err := mapArg(args, "select")
	if err != nil {
		return selection.FieldSelection{}, err
	}
	all := selection.FromModel(model)
	if sel == nil {
		return all, nil
	}

	var fields []selection.SelectedField
	sel.Iter(func(key string, v document.ParsedInputValue) bool {
		if key == countKey {
			var counts []selection.SelectedField
			counts, err = parseCount(model, v)
			fields = append(fields, counts...)
			return err == nil
		}
		if _, ok := v.(*document.ParsedInputMap); !ok && !isTrue(v) {
			return true
		}
		if f, ok := all.Find(key); ok {
			fields = append(fields, f)
			return true
		}
		if _, ok := model.FindRelation(key); ok {
			err = qerror.NewUnsupported("selecting relation " + model.Name + "." + key)
			return false
		}
		err = qerror.NewFieldNotFound(key, model.Name, "model")
		return false
	})
	if err != nil {
		return selection.FieldSelection{}, err
	}
	if len(fields) == 0 {
		return selection.FieldSelection{}, qerror.NewInvalidInput("select", model.Name, "at least one field must be selected")
	}
	return selection.New(fields...), nil
}

// parseCount 解析 _count: true 或 _count: {select: {rel: true}}
func parseCount(model *schema.Model, v document.ParsedInputValue) ([]selection.SelectedField, error) {
	var out []selection.SelectedField
	if isTrue(v) {
		for _, rf := range model.RelationFields() {
			if rf.IsList() {
				out = append(out, selection.Count(rf))
			}
		}
		return out, nil
	}
	m, ok := v.(*document.ParsedInputMap)
	if !ok {
		return nil, qerror.NewInvalidInput(countKey, model.Name, "expected true or an object")
	}
	inner, err := mapArg(m, "select")
	if err != nil || inner == nil {
		return nil, qerror.NewInvalidInput(countKey, model.Name, "expected a select object")
	}
	inner.Iter(func(key string, v document.ParsedInputValue) bool {
		if !isTrue(v) {
			return true
		}
		rf, ok := model.FindRelation(key)
		if !ok || !rf.IsList() {
			err = qerror.NewFieldNotFound(key, model.Name, "list relations of model")
			return false
		}
		out = append(out, selection.Count(rf))
		return true
	})
	return out, err
}

// parseOrderBy 支持 {field: "asc"} 和 [{a: "asc"}, {b: "desc"}]
func parseOrderBy(model *schema.Model, args *document.ParsedInputMap) ([]connector.OrderBy, error) {
	v, ok := args.Get("orderBy")
	if !ok {
		return nil, nil
	}
	var items []*document.ParsedInputMap
	switch x := v.(type) {
	case *document.ParsedInputMap:
		items = append(items, x)
	case document.List:
		for _, e := range x {
			m, ok := e.(*document.ParsedInputMap)
			if !ok {
				return nil, qerror.NewInvalidInput("orderBy", model.Name, "expected a list of objects")
			}
			items = append(items, m)
		}
	default:
		return nil, qerror.NewInvalidInput("orderBy", model.Name, "expected an object or a list")
	}

	var out []connector.OrderBy
	var err error
	for _, item := range items {
		item.Iter(func(key string, v document.ParsedInputValue) bool {
			sf, ok := model.FindScalar(key)
			if !ok {
				err = qerror.NewFieldNotFound(key, model.Name, "model")
				return false
			}
			s, _ := v.(document.Single)
			dir, _ := s.Value.(value.String)
			switch strings.ToLower(string(dir)) {
			case "asc":
				out = append(out, connector.OrderBy{Field: sf})
			case "desc":
				out = append(out, connector.OrderBy{Field: sf, Desc: true})
			default:
				err = qerror.NewInvalidInput(key, "orderBy", "expected asc or desc")
				return false
			}
			return true
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// primaryKeyOf where 只由主键等值条件组成时返回主键，用于缓存
//
//	{id: 1}  {tenant_code: {tenant: "a", code: "b"}}
func primaryKeyOf(model *schema.Model, where *document.ParsedInputMap) (selection.SelectionResult, bool) {
	pk := model.PrimaryIdentifier()
	if where == nil || where.Len() != 1 || len(pk) == 0 {
		return selection.SelectionResult{}, false
	}

	source := where
	if len(pk) > 1 {
		key := where.Keys()[0]
		fields, ok := model.FindCompound(key)
		if !ok || len(fields) != len(pk) {
			return selection.SelectionResult{}, false
		}
		for i := range fields {
			if fields[i] != pk[i] {
				return selection.SelectionResult{}, false
			}
		}
		v, _ := where.Get(key)
		inner, ok := v.(*document.ParsedInputMap)
		if !ok || inner.Len() != len(pk) {
			return selection.SelectionResult{}, false
		}
		source = inner
	}

	b := selection.NewSelectionResultBuilder()
	for _, f := range pk {
		v, ok := source.Get(f.Name())
		if !ok {
			return selection.SelectionResult{}, false
		}
		s, ok := v.(document.Single)
		if !ok || value.IsNull(s.Value) {
			return selection.SelectionResult{}, false
		}
		c, err := value.Coerce(s.Value, f.Type)
		if err != nil {
			return selection.SelectionResult{}, false
		}
		b.Add(f, c)
	}
	return b.Build(), true
}
