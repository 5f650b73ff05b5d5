package esconn

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/google/uuid"

	"github.com/hatlonely/qcore/connector"
	"github.com/hatlonely/qcore/filter"
	"github.com/hatlonely/qcore/normalize"
	"github.com/hatlonely/qcore/qerror"
	"github.com/hatlonely/qcore/schema"
	"github.com/hatlonely/qcore/selection"
	"github.com/hatlonely/qcore/value"
	"github.com/hatlonely/qcore/write"
)

func primaryField(model *schema.Model) (*schema.ScalarField, error) {
	pk := model.PrimaryIdentifier()
	if len(pk) != 1 {
		return nil, qerror.NewUnsupported("compound primary key of " + model.Name + " on elasticsearch")
	}
	return pk[0], nil
}

func docID(v value.Value) string {
	switch x := v.(type) {
	case value.String:
		return string(x)
	case value.Int:
		return strconv.FormatInt(int64(x), 10)
	case value.UUID:
		return uuid.UUID(x).String()
	}
	return value.Format(v)
}

// document 创建时只允许 Set，_id 不写入文档
func document(pk *schema.ScalarField, args *write.WriteArgs) (map[string]interface{}, string, error) {
	doc := map[string]interface{}{}
	id := ""
	for _, e := range args.Entries() {
		if e.Op.Kind != write.OpSet {
			return nil, "", qerror.NewInvalidInput(e.Field.Name(), e.Field.Container().ContainerName(),
				e.Op.Kind.String()+" is not allowed when creating a record")
		}
		if e.Field.DBName() == pk.DBName() {
			id = docID(e.Op.Value)
		}
		if e.Field.DBName() != idField {
			doc[e.Field.DBName()] = value.ToAny(e.Op.Value)
		}
	}
	// 主键保存在文档中时需要客户端生成
	if id == "" && pk.DBName() != idField {
		if pk.Type != value.TypeString {
			return nil, "", qerror.NewInputResolution(pk.Name(), pk.Container().ContainerName())
		}
		id = uuid.NewString()
		doc[pk.DBName()] = id
	}
	return doc, id, nil
}

func (e *ES) CreateRecord(ctx context.Context, model *schema.Model, args *write.WriteArgs, selected selection.FieldSelection) (*connector.SingleRecord, error) {
	pk, err := primaryField(model)
	if err != nil {
		return nil, err
	}
	doc, id, err := document(pk, args)
	if err != nil {
		return nil, err
	}
	reader, err := jsonBody(doc)
	if err != nil {
		return nil, err
	}

	var resp struct {
		ID string `json:"_id"`
	}
	req := esapi.IndexRequest{Index: model.DBName, DocumentID: id, Body: reader, OpType: "create", Refresh: e.options.Refresh}
	if err := e.do(ctx, req, model.DBName, &resp); err != nil {
		return nil, err
	}

	if resp.ID != "" {
		id = resp.ID
	}
	var returned []value.Value
	if id != "" {
		v, err := value.Coerce(value.String(id), pk.Type)
		if err != nil {
			return nil, err
		}
		returned = []value.Value{v}
	}
	idResult, err := write.ResolveIdentifier([]*schema.ScalarField{pk}, returned, args, nil)
	if err != nil {
		return nil, err
	}
	return e.readBack(ctx, model, idResult, selected)
}

func (e *ES) readBack(ctx context.Context, model *schema.Model, id selection.SelectionResult, selected selection.FieldSelection) (*connector.SingleRecord, error) {
	if len(selected.Virtuals()) == 0 && selection.PrimaryKey(model).IsSupersetOf(selected) {
		values := make([]value.Value, 0, len(selected.Fields))
		for _, f := range selected.Scalars() {
			v, _ := id.Get(f.Name())
			values = append(values, v)
		}
		return &connector.SingleRecord{Record: connector.Record{Values: values}, FieldNames: selected.DBNames()}, nil
	}
	record, err := e.GetSingleRecord(ctx, model, id.Filter(), selected)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, qerror.NewRecordDoesNotExist("record " + id.String() + " of " + model.Name + " was not found after write")
	}
	return record, nil
}

type bulkItem struct {
	ID     string          `json:"_id"`
	Status int             `json:"status"`
	Error  json.RawMessage `json:"error"`
}

type bulkResponse struct {
	Errors bool                  `json:"errors"`
	Items  []map[string]bulkItem `json:"items"`
}

func (i bulkItem) err(index string) *normalize.ESError {
	out := &normalize.ESError{Status: i.Status, Index: index}
	var eb errorBody
	if json.Unmarshal(i.Error, &eb) == nil {
		out.Type, out.Reason = eb.Type, eb.Reason
	}
	return out
}

// bulk lines 中每个元素序列化为一行 NDJSON
func (e *ES) bulk(ctx context.Context, index string, lines []interface{}) ([]bulkItem, error) {
	var sb strings.Builder
	for _, line := range lines {
		buf, err := json.Marshal(line)
		if err != nil {
			return nil, err
		}
		sb.Write(buf)
		sb.WriteByte('\n')
	}
	var resp bulkResponse
	req := esapi.BulkRequest{Index: index, Body: strings.NewReader(sb.String()), Refresh: e.options.Refresh}
	if err := e.do(ctx, req, index, &resp); err != nil {
		return nil, err
	}
	items := make([]bulkItem, 0, len(resp.Items))
	for _, it := range resp.Items {
		for _, item := range it {
			items = append(items, item)
		}
	}
	return items, nil
}

func action(op, id string) map[string]interface{} {
	meta := map[string]interface{}{}
	if id != "" {
		meta["_id"] = id
	}
	return map[string]interface{}{op: meta}
}

// CreateRecords skipDuplicates 时 409 的条目不计入插入数
func (e *ES) CreateRecords(ctx context.Context, model *schema.Model, args []*write.WriteArgs, skipDuplicates bool) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}
	pk, err := primaryField(model)
	if err != nil {
		return 0, err
	}
	lines := make([]interface{}, 0, 2*len(args))
	for _, a := range args {
		doc, id, err := document(pk, a)
		if err != nil {
			return 0, err
		}
		lines = append(lines, action("create", id), doc)
	}

	items, err := e.bulk(ctx, model.DBName, lines)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, item := range items {
		switch {
		case item.Status < 300:
			n++
		case item.Status == 409 && skipDuplicates:
		default:
			return n, e.normalize(item.err(model.DBName))
		}
	}
	return n, nil
}

// script 更新操作转换为 painless 脚本
func script(args *write.WriteArgs) (map[string]interface{}, error) {
	lines := make([]string, 0, args.Len())
	params := map[string]interface{}{}
	for i, e := range args.Entries() {
		name := e.Field.DBName()
		if name == idField {
			return nil, qerror.NewInvalidInput(e.Field.Name(), e.Field.Container().ContainerName(), "the document id cannot be updated")
		}
		p := fmt.Sprintf("p%d", i)
		target := "ctx._source['" + name + "']"
		switch e.Op.Kind {
		case write.OpSet:
			lines = append(lines, target+" = params."+p)
		case write.OpIncrement:
			lines = append(lines, target+" += params."+p)
		case write.OpDecrement:
			lines = append(lines, target+" -= params."+p)
		case write.OpMultiply:
			lines = append(lines, target+" *= params."+p)
		case write.OpDivide:
			lines = append(lines, target+" /= params."+p)
		case write.OpUnset:
			lines = append(lines, "ctx._source.remove('"+name+"')")
			continue
		}
		params[p] = value.ToAny(e.Op.Value)
	}
	return map[string]interface{}{
		"lang":   "painless",
		"source": strings.Join(lines, "; "),
		"params": params,
	}, nil
}

// UpdateRecords 参数为空时不访问数据库；没有指定主键时使用 _update_by_query
func (e *ES) UpdateRecords(ctx context.Context, model *schema.Model, rf write.RecordFilter, args *write.WriteArgs, limit *int) (int, error) {
	if args.IsEmpty() {
		return 0, nil
	}
	lim := write.NewLimit(limit)
	if lim.Exhausted() {
		return 0, nil
	}
	s, err := script(args)
	if err != nil {
		return 0, err
	}

	if rf.HasSelectors() {
		lines := make([]interface{}, 0, 2*len(rf.Selectors))
		for _, id := range lim.Slice(rf.Selectors) {
			lines = append(lines, action("update", idOf(id)), map[string]interface{}{"script": s})
		}
		return e.countBulk(ctx, model.DBName, lines)
	}

	q, err := compile(rf.Filter)
	if err != nil {
		return 0, err
	}
	reader, err := jsonBody(map[string]interface{}{"query": q, "script": s})
	if err != nil {
		return 0, err
	}
	req := esapi.UpdateByQueryRequest{Index: []string{model.DBName}, Body: reader, Conflicts: "proceed", Refresh: e.options.refreshBool()}
	if n, ok := lim.Remaining(); ok {
		req.MaxDocs = &n
	}
	var resp struct {
		Updated int `json:"updated"`
	}
	if err := e.do(ctx, req, model.DBName, &resp); err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

// countBulk 统计成功的条目，404 表示文档已不存在
func (e *ES) countBulk(ctx context.Context, index string, lines []interface{}) (int, error) {
	if len(lines) == 0 {
		return 0, nil
	}
	items, err := e.bulk(ctx, index, lines)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, item := range items {
		switch {
		case item.Status < 300:
			n++
		case item.Status == 404:
		default:
			return n, e.normalize(item.err(index))
		}
	}
	return n, nil
}

func idOf(id selection.SelectionResult) string {
	return docID(id.Values()[0])
}

func (e *ES) UpdateRecord(ctx context.Context, model *schema.Model, rf write.RecordFilter, args *write.WriteArgs, selected selection.FieldSelection) (*connector.SingleRecord, error) {
	id, err := e.firstID(ctx, model, rf, "update")
	if err != nil {
		return nil, err
	}
	if !args.IsEmpty() {
		s, err := script(args)
		if err != nil {
			return nil, err
		}
		reader, err := jsonBody(map[string]interface{}{"script": s})
		if err != nil {
			return nil, err
		}
		req := esapi.UpdateRequest{Index: model.DBName, DocumentID: idOf(id), Body: reader, Refresh: e.options.Refresh}
		if err := e.do(ctx, req, model.DBName, nil); err != nil {
			return nil, err
		}
	}
	return e.readBack(ctx, model, id, selected)
}

func (e *ES) firstID(ctx context.Context, model *schema.Model, rf write.RecordFilter, op string) (selection.SelectionResult, error) {
	if _, err := primaryField(model); err != nil {
		return selection.SelectionResult{}, err
	}
	if rf.HasSelectors() {
		return rf.Selectors[0], nil
	}
	one := 1
	ids, err := e.selectIDs(ctx, model, rf.Filter, &one)
	if err != nil {
		return selection.SelectionResult{}, err
	}
	if len(ids) == 0 {
		return selection.SelectionResult{}, qerror.NewRecordDoesNotExist("no " + model.Name + " record matches the " + op + " filter")
	}
	return ids[0], nil
}

// DeleteRecords 没有指定主键时使用 _delete_by_query
func (e *ES) DeleteRecords(ctx context.Context, model *schema.Model, rf write.RecordFilter, limit *int) (int, error) {
	lim := write.NewLimit(limit)
	if lim.Exhausted() {
		return 0, nil
	}
	if rf.HasSelectors() {
		lines := make([]interface{}, 0, len(rf.Selectors))
		for _, id := range lim.Slice(rf.Selectors) {
			lines = append(lines, action("delete", idOf(id)))
		}
		return e.countBulk(ctx, model.DBName, lines)
	}

	q, err := compile(rf.Filter)
	if err != nil {
		return 0, err
	}
	reader, err := jsonBody(map[string]interface{}{"query": q})
	if err != nil {
		return 0, err
	}
	req := esapi.DeleteByQueryRequest{Index: []string{model.DBName}, Body: reader, Conflicts: "proceed", Refresh: e.options.refreshBool()}
	if n, ok := lim.Remaining(); ok {
		req.MaxDocs = &n
	}
	var resp struct {
		Deleted int `json:"deleted"`
	}
	if err := e.do(ctx, req, model.DBName, &resp); err != nil {
		return 0, err
	}
	return resp.Deleted, nil
}

func (e *ES) DeleteRecord(ctx context.Context, model *schema.Model, rf write.RecordFilter, selected selection.FieldSelection) (*connector.SingleRecord, error) {
	if _, err := primaryField(model); err != nil {
		return nil, err
	}
	f := rf.Filter
	if rf.HasSelectors() {
		f = filter.AndOf(selection.FiltersFor(rf.Selectors[:1]), rf.Filter)
	}
	pk := selection.PrimaryKey(model)
	record, err := e.GetSingleRecord(ctx, model, f, selection.Union(selected, pk))
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, qerror.NewRecordDoesNotExist("no " + model.Name + " record matches the delete filter")
	}
	id, err := record.Identifier(pk)
	if err != nil {
		return nil, err
	}
	req := esapi.DeleteRequest{Index: model.DBName, DocumentID: idOf(id), Refresh: e.options.Refresh}
	if err := e.do(ctx, req, model.DBName, nil); err != nil {
		return nil, err
	}

	return record.Project(selected), nil
}
