package esconn

import (
	"context"
	"encoding/json"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/hatlonely/qcore/connector"
	"github.com/hatlonely/qcore/filter"
	"github.com/hatlonely/qcore/qerror"
	"github.com/hatlonely/qcore/query"
	"github.com/hatlonely/qcore/schema"
	"github.com/hatlonely/qcore/selection"
	"github.com/hatlonely/qcore/value"
)

const idField = "_id"

type hit struct {
	ID     string                 `json:"_id"`
	Source map[string]interface{} `json:"_source"`
}

type searchResponse struct {
	Hits struct {
		Hits []hit `json:"hits"`
	} `json:"hits"`
}

// compile 关系过滤在 elasticsearch 上不支持
func compile(f filter.Filter) (map[string]interface{}, error) {
	q, err := query.NewCompiler(query.Dialect(schema.ProviderElasticsearch), nil).Compile(f)
	if err != nil {
		return nil, err
	}
	return q.ToES(), nil
}

// sourceFields 需要从 _source 中取回的字段，主键取自 _id
func sourceFields(model *schema.Model, selected selection.FieldSelection) ([]string, error) {
	seen := map[string]bool{idField: true}
	var out []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, f := range selected.Fields {
		switch x := f.(type) {
		case *selection.ScalarSelection:
			if !isIDField(model, x.Field) {
				add(x.DBName())
			}
		case *selection.CompositeSelection:
			add(x.DBName())
		case *selection.VirtualSelection:
			for _, lf := range x.Field.LinkingFields() {
				if !isIDField(model, lf) {
					add(lf.DBName())
				}
			}
		default:
			return nil, qerror.NewUnsupported("nested relation selection " + f.Name() + " on elasticsearch")
		}
	}
	return out, nil
}

func isIDField(model *schema.Model, f *schema.ScalarField) bool {
	pk := model.PrimaryIdentifier()
	return len(pk) == 1 && pk[0] == f
}

func (e *ES) GetManyRecords(ctx context.Context, model *schema.Model, args connector.QueryArguments, selected selection.FieldSelection) (*connector.ManyRecords, error) {
	records := connector.NewManyRecords(selected.DBNames())
	size := e.options.MaxResultWindow
	if args.Take != nil {
		if *args.Take == 0 {
			return records, nil
		}
		size = *args.Take
	}

	q, err := compile(args.Filter)
	if err != nil {
		return nil, err
	}
	fields, err := sourceFields(model, selected)
	if err != nil {
		return nil, err
	}
	body := map[string]interface{}{
		"query": q,
		"size":  size,
	}
	if args.Skip > 0 {
		body["from"] = args.Skip
	}
	if len(fields) == 0 {
		body["_source"] = false
	} else {
		body["_source"] = fields
	}
	if len(args.OrderBy) > 0 {
		sort := make([]interface{}, 0, len(args.OrderBy))
		for _, ob := range args.OrderBy {
			order := "asc"
			if ob.Desc {
				order = "desc"
			}
			sort = append(sort, map[string]interface{}{ob.Field.DBName(): map[string]interface{}{"order": order}})
		}
		body["sort"] = sort
	}

	reader, err := jsonBody(body)
	if err != nil {
		return nil, err
	}
	var resp searchResponse
	if err := e.do(ctx, esapi.SearchRequest{Index: []string{model.DBName}, Body: reader}, model.DBName, &resp); err != nil {
		return nil, err
	}
	e.logger.DebugContext(ctx, "search", "index", model.DBName, "hits", len(resp.Hits.Hits))

	for _, h := range resp.Hits.Hits {
		values, err := e.decodeHit(ctx, model, selected, h)
		if err != nil {
			return nil, err
		}
		records.Push(values)
	}
	return records, nil
}

func (e *ES) GetSingleRecord(ctx context.Context, model *schema.Model, f filter.Filter, selected selection.FieldSelection) (*connector.SingleRecord, error) {
	one := 1
	records, err := e.GetManyRecords(ctx, model, connector.QueryArguments{Filter: f, Take: &one}, selected)
	if err != nil {
		return nil, err
	}
	return records.First(), nil
}

func (e *ES) selectIDs(ctx context.Context, model *schema.Model, f filter.Filter, take *int) ([]selection.SelectionResult, error) {
	pk := selection.PrimaryKey(model)
	records, err := e.GetManyRecords(ctx, model, connector.QueryArguments{Filter: f, Take: take}, pk)
	if err != nil {
		return nil, err
	}
	return records.Identifiers(pk)
}

func rawOf(model *schema.Model, f *schema.ScalarField, h hit) interface{} {
	if isIDField(model, f) {
		return h.ID
	}
	return h.Source[f.DBName()]
}

func (e *ES) decodeHit(ctx context.Context, model *schema.Model, selected selection.FieldSelection, h hit) ([]value.Value, error) {
	out := make([]value.Value, len(selected.Fields))
	for i, f := range selected.Fields {
		switch x := f.(type) {
		case *selection.ScalarSelection:
			v, err := value.Coerce(value.FromAny(rawOf(model, x.Field, h)), x.Field.Type)
			if err != nil {
				return nil, err
			}
			out[i] = v
		case *selection.CompositeSelection:
			out[i] = value.FromAny(h.Source[x.DBName()])
		case *selection.VirtualSelection:
			n, err := e.countRelated(ctx, model, x.Field, h)
			if err != nil {
				return nil, err
			}
			out[i] = value.Int(n)
		}
	}
	return out, nil
}

// countRelated 统计关联索引中引用本文档的记录数
func (e *ES) countRelated(ctx context.Context, model *schema.Model, rf *schema.RelationField, h hit) (int64, error) {
	refs := rf.ReferencedFields()
	terms := make([]query.Query, 0, len(refs))
	for i, lf := range rf.LinkingFields() {
		raw := rawOf(model, lf, h)
		if raw == nil {
			return 0, nil
		}
		v := value.FromAny(raw)
		if lf.IsList() {
			terms = append(terms, &query.TermsQuery{Field: refs[i].DBName(), Values: listOf(v)})
			continue
		}
		terms = append(terms, &query.TermQuery{Field: refs[i].DBName(), Value: v})
	}

	reader, err := jsonBody(map[string]interface{}{"query": query.And(terms...).ToES()})
	if err != nil {
		return 0, err
	}
	index := rf.RelatedModel().DBName
	var resp struct {
		Count json.Number `json:"count"`
	}
	if err := e.do(ctx, esapi.CountRequest{Index: []string{index}, Body: reader}, index, &resp); err != nil {
		return 0, err
	}
	return resp.Count.Int64()
}

func listOf(v value.Value) []value.Value {
	if l, ok := v.(value.List); ok {
		return l
	}
	return []value.Value{v}
}
