package esconn

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hatlonely/qcore/connector"
	"github.com/hatlonely/qcore/filter"
	"github.com/hatlonely/qcore/log"
	"github.com/hatlonely/qcore/qerror"
	"github.com/hatlonely/qcore/schema"
	"github.com/hatlonely/qcore/selection"
	"github.com/hatlonely/qcore/value"
	"github.com/hatlonely/qcore/write"
	. "github.com/smartystreets/goconvey/convey"
)

type esRequest struct {
	Method string
	Path   string
	Query  string
	Body   string
}

// fakeES 按路径前缀返回预设响应
type fakeES struct {
	mutex     sync.Mutex
	requests  []esRequest
	responses map[string]fakeResponse
}

type fakeResponse struct {
	status int
	body   string
}

func newFakeES() (*fakeES, *httptest.Server) {
	f := &fakeES{responses: map[string]fakeResponse{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/" {
			_, _ = w.Write([]byte(`{"version":{"number":"8.19.0"},"tagline":"You Know, for Search"}`))
			return
		}

		f.mutex.Lock()
		f.requests = append(f.requests, esRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: string(body)})
		key := r.URL.Path
		resp, best := fakeResponse{status: 404, body: `{"error":{"type":"resource_not_found_exception","reason":"no route"},"status":404}`}, ""
		for prefix, rsp := range f.responses {
			if strings.HasPrefix(key, prefix) && len(prefix) > len(best) {
				resp, best = rsp, prefix
			}
		}
		f.mutex.Unlock()

		w.WriteHeader(resp.status)
		_, _ = w.Write([]byte(resp.body))
	}))
	return f, srv
}

func (f *fakeES) on(prefix string, status int, body string) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.responses[prefix] = fakeResponse{status: status, body: body}
}

func (f *fakeES) last() esRequest {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.requests[len(f.requests)-1]
}

func (f *fakeES) count() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return len(f.requests)
}

func newTestES(t *testing.T) (*ES, *fakeES) {
	fake, srv := newFakeES()
	t.Cleanup(srv.Close)
	es, err := NewESWithOptions(&ESOptions{
		Addresses:       []string{srv.URL},
		Timeout:         5 * time.Second,
		Refresh:         "wait_for",
		MaxResultWindow: 100,
	}, log.Discard())
	if err != nil {
		t.Fatal(err)
	}
	return es, fake
}

func librarySchema() *schema.Schema {
	b := schema.NewBuilder(schema.ProviderElasticsearch)
	b.Model("Article", func(m *schema.ModelBuilder) {
		m.DB("articles")
		m.Scalar("id", value.TypeString).ID().DB("_id")
		m.Scalar("title", value.TypeString)
		m.Scalar("views", value.TypeInt)
		m.Scalar("authorId", value.TypeString).Optional()
		m.Relation("author", "Author").Optional().Fields("authorId").References("id")
	})
	b.Model("Author", func(m *schema.ModelBuilder) {
		m.DB("authors")
		m.Scalar("id", value.TypeString).ID().DB("_id")
		m.Scalar("name", value.TypeString)
		m.Relation("articles", "Article").List()
	})
	b.Model("Note", func(m *schema.ModelBuilder) {
		m.DB("notes")
		m.Scalar("code", value.TypeString).ID()
		m.Scalar("text", value.TypeString)
	})
	return b.MustBuild()
}

func mustModel(s *schema.Schema, name string) *schema.Model {
	m, ok := s.FindModel(name)
	if !ok {
		panic("model not found: " + name)
	}
	return m
}

func mustScalar(m *schema.Model, name string) *schema.ScalarField {
	f, ok := m.FindScalar(name)
	if !ok {
		panic("field not found: " + name)
	}
	return f
}

func decodeJSON(s string) map[string]interface{} {
	var out map[string]interface{}
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

func TestESRead(t *testing.T) {
	Convey("测试 elasticsearch 查询", t, func() {
		ctx := context.Background()
		es, fake := newTestES(t)
		sc := librarySchema()
		article := mustModel(sc, "Article")
		author := mustModel(sc, "Author")

		fake.on("/articles/_search", 200, `{"hits":{"hits":[
			{"_id":"a1","_source":{"title":"go","views":3}},
			{"_id":"a2","_source":{"title":"rust","views":5}}
		]}}`)

		Convey("查询条件和排序转换为请求体", func() {
			take := 2
			records, err := es.GetManyRecords(ctx, article, connector.QueryArguments{
				Filter:  filter.Equals(mustScalar(article, "title"), value.String("go")),
				Take:    &take,
				Skip:    1,
				OrderBy: []connector.OrderBy{{Field: mustScalar(article, "views"), Desc: true}},
			}, selection.FromScalars([]*schema.ScalarField{mustScalar(article, "id"), mustScalar(article, "title"), mustScalar(article, "views")}))
			So(err, ShouldBeNil)
			So(records.Len(), ShouldEqual, 2)
			So(records.Records[0].Values, ShouldResemble, []value.Value{value.String("a1"), value.String("go"), value.Int(3)})

			body := decodeJSON(fake.last().Body)
			So(body["query"], ShouldResemble, map[string]interface{}{"term": map[string]interface{}{"title": "go"}})
			So(body["size"], ShouldEqual, float64(2))
			So(body["from"], ShouldEqual, float64(1))
			So(body["_source"], ShouldResemble, []interface{}{"title", "views"})
			So(body["sort"], ShouldResemble, []interface{}{map[string]interface{}{"views": map[string]interface{}{"order": "desc"}}})
		})

		Convey("take 为 0 时不发请求", func() {
			zero := 0
			records, err := es.GetManyRecords(ctx, article, connector.QueryArguments{Take: &zero}, selection.PrimaryKey(article))
			So(err, ShouldBeNil)
			So(records.Len(), ShouldEqual, 0)
			So(fake.count(), ShouldEqual, 0)
		})

		Convey("关系过滤不支持", func() {
			f := &filter.RelationFilter{Field: mustRelationField(author, "articles"), Condition: filter.AtLeastOneRelatedRecord, Nested: filter.MatchAll()}
			_, err := es.GetManyRecords(ctx, author, connector.QueryArguments{Filter: f}, selection.PrimaryKey(author))
			So(qerror.KindOf(err), ShouldEqual, qerror.KindUnsupported)
		})

		Convey("关联计数使用 _count", func() {
			fake.on("/authors/_search", 200, `{"hits":{"hits":[{"_id":"u1","_source":{}}]}}`)
			fake.on("/articles/_count", 200, `{"count":7}`)
			sel := selection.New(selection.Count(mustRelationField(author, "articles")))
			records, err := es.GetManyRecords(ctx, author, connector.QueryArguments{}, sel)
			So(err, ShouldBeNil)
			So(records.Records[0].Values, ShouldResemble, []value.Value{value.Int(7)})
			So(decodeJSON(fake.last().Body)["query"], ShouldResemble, map[string]interface{}{
				"bool": map[string]interface{}{"must": []interface{}{map[string]interface{}{"term": map[string]interface{}{"authorId": "u1"}}}},
			})
		})

		Convey("索引不存在", func() {
			fake.on("/articles/_search", 404, `{"error":{"type":"index_not_found_exception","reason":"no such index [articles]","index":"articles"},"status":404}`)
			_, err := es.GetManyRecords(ctx, article, connector.QueryArguments{}, selection.PrimaryKey(article))
			So(qerror.KindOf(err), ShouldEqual, qerror.KindTableDoesNotExist)
		})
	})
}

func mustRelationField(m *schema.Model, name string) *schema.RelationField {
	f, ok := m.FindRelation(name)
	if !ok {
		panic("relation not found: " + name)
	}
	return f
}

func TestESCreate(t *testing.T) {
	Convey("测试 elasticsearch 创建", t, func() {
		ctx := context.Background()
		es, fake := newTestES(t)
		sc := librarySchema()
		article := mustModel(sc, "Article")
		note := mustModel(sc, "Note")

		Convey("没有主键时使用服务端生成的 _id", func() {
			fake.on("/articles/_doc", 201, `{"_id":"gen-1","result":"created"}`)
			args := write.NewWriteArgs().Insert(mustScalar(article, "title"), write.Set(value.String("go")))
			rec, err := es.CreateRecord(ctx, article, args, selection.PrimaryKey(article))
			So(err, ShouldBeNil)
			So(rec.Record.Values, ShouldResemble, []value.Value{value.String("gen-1")})
			So(fake.count(), ShouldEqual, 1)
			So(fake.last().Query, ShouldContainSubstring, "op_type=create")
			So(decodeJSON(fake.last().Body), ShouldResemble, map[string]interface{}{"title": "go"})
		})

		Convey("文档已存在", func() {
			fake.on("/articles/_doc/a1", 409, `{"error":{"type":"version_conflict_engine_exception","reason":"[a1]: version conflict, document already exists"},"status":409}`)
			args := write.NewWriteArgs().
				Insert(mustScalar(article, "id"), write.Set(value.String("a1"))).
				Insert(mustScalar(article, "title"), write.Set(value.String("go")))
			_, err := es.CreateRecord(ctx, article, args, selection.PrimaryKey(article))
			So(qerror.KindOf(err), ShouldEqual, qerror.KindUniqueConstraintViolation)
		})

		Convey("主键保存在文档中时客户端生成", func() {
			fake.on("/notes/_doc/", 201, `{"result":"created"}`)
			args := write.NewWriteArgs().Insert(mustScalar(note, "text"), write.Set(value.String("hi")))
			rec, err := es.CreateRecord(ctx, note, args, selection.PrimaryKey(note))
			So(err, ShouldBeNil)
			code := string(rec.Record.Values[0].(value.String))
			So(len(code), ShouldEqual, 36)
			So(fake.last().Path, ShouldEqual, "/notes/_doc/"+code)
			So(decodeJSON(fake.last().Body)["code"], ShouldEqual, code)
		})

		Convey("创建时不允许算术操作", func() {
			args := write.NewWriteArgs().Insert(mustScalar(article, "views"), write.Increment(value.Int(1)))
			_, err := es.CreateRecord(ctx, article, args, selection.PrimaryKey(article))
			So(qerror.KindOf(err), ShouldEqual, qerror.KindInputResolution)
			So(fake.count(), ShouldEqual, 0)
		})

		Convey("批量创建跳过重复", func() {
			fake.on("/articles/_bulk", 200, `{"errors":true,"items":[
				{"create":{"_id":"a1","status":201}},
				{"create":{"_id":"a2","status":409,"error":{"type":"version_conflict_engine_exception","reason":"exists"}}},
				{"create":{"_id":"x","status":201}}
			]}`)
			args := []*write.WriteArgs{
				write.NewWriteArgs().Insert(mustScalar(article, "id"), write.Set(value.String("a1"))),
				write.NewWriteArgs().Insert(mustScalar(article, "id"), write.Set(value.String("a2"))),
				write.NewWriteArgs().Insert(mustScalar(article, "title"), write.Set(value.String("t"))),
			}
			n, err := es.CreateRecords(ctx, article, args, true)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 2)

			lines := strings.Split(strings.TrimSpace(fake.last().Body), "\n")
			So(len(lines), ShouldEqual, 6)
			So(decodeJSON(lines[0]), ShouldResemble, map[string]interface{}{"create": map[string]interface{}{"_id": "a1"}})
			So(decodeJSON(lines[4]), ShouldResemble, map[string]interface{}{"create": map[string]interface{}{}})

			_, err = es.CreateRecords(ctx, article, args, false)
			So(qerror.KindOf(err), ShouldEqual, qerror.KindUniqueConstraintViolation)
		})
	})
}

func TestESUpdate(t *testing.T) {
	Convey("测试 elasticsearch 更新", t, func() {
		ctx := context.Background()
		es, fake := newTestES(t)
		sc := librarySchema()
		article := mustModel(sc, "Article")
		views := mustScalar(article, "views")
		title := mustScalar(article, "title")

		Convey("参数为空时不发请求", func() {
			n, err := es.UpdateRecords(ctx, article, write.Everything(), write.NewWriteArgs(), nil)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 0)
			So(fake.count(), ShouldEqual, 0)
		})

		Convey("按条件更新使用 _update_by_query", func() {
			fake.on("/articles/_update_by_query", 200, `{"updated":4}`)
			limit := 4
			args := write.NewWriteArgs().Insert(views, write.Increment(value.Int(1))).Insert(title, write.Unset())
			n, err := es.UpdateRecords(ctx, article, write.NewRecordFilter(filter.Equals(title, value.String("go"))), args, &limit)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 4)
			So(fake.last().Query, ShouldContainSubstring, "max_docs=4")
			So(fake.last().Query, ShouldContainSubstring, "conflicts=proceed")
			So(decodeJSON(fake.last().Body)["script"], ShouldResemble, map[string]interface{}{
				"lang":   "painless",
				"source": "ctx._source['views'] += params.p0; ctx._source.remove('title')",
				"params": map[string]interface{}{"p0": float64(1)},
			})
		})

		Convey("按主键更新使用 bulk", func() {
			fake.on("/articles/_bulk", 200, `{"errors":true,"items":[{"update":{"_id":"a1","status":200}},{"update":{"_id":"a2","status":404}}]}`)
			ids := []selection.SelectionResult{
				selection.NewSelectionResultBuilder().Add(mustScalar(article, "id"), value.String("a1")).Build(),
				selection.NewSelectionResultBuilder().Add(mustScalar(article, "id"), value.String("a2")).Build(),
			}
			n, err := es.UpdateRecords(ctx, article, write.Everything().WithSelectors(ids), write.NewWriteArgs().Insert(views, write.Set(value.Int(0))), nil)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
		})

		Convey("不能修改 _id", func() {
			args := write.NewWriteArgs().Insert(mustScalar(article, "id"), write.Set(value.String("b")))
			_, err := es.UpdateRecords(ctx, article, write.Everything(), args, nil)
			So(qerror.KindOf(err), ShouldEqual, qerror.KindInputResolution)
		})

		Convey("单条更新文档不存在", func() {
			fake.on("/articles/_search", 200, `{"hits":{"hits":[{"_id":"a1"}]}}`)
			fake.on("/articles/_update/a1", 404, `{"error":{"type":"document_missing_exception","reason":"[a1]: document missing"},"status":404}`)
			_, err := es.UpdateRecord(ctx, article, write.Everything(), write.NewWriteArgs().Insert(views, write.Set(value.Int(1))), selection.PrimaryKey(article))
			So(qerror.KindOf(err), ShouldEqual, qerror.KindRecordDoesNotExist)
		})
	})
}

func TestESDelete(t *testing.T) {
	Convey("测试 elasticsearch 删除", t, func() {
		ctx := context.Background()
		es, fake := newTestES(t)
		sc := librarySchema()
		article := mustModel(sc, "Article")

		Convey("按条件删除使用 _delete_by_query", func() {
			fake.on("/articles/_delete_by_query", 200, `{"deleted":3}`)
			n, err := es.DeleteRecords(ctx, article, write.Everything(), nil)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 3)
			So(decodeJSON(fake.last().Body)["query"], ShouldResemble, map[string]interface{}{"match_all": map[string]interface{}{}})
		})

		Convey("删除单条返回删除前的记录", func() {
			fake.on("/articles/_search", 200, `{"hits":{"hits":[{"_id":"a1","_source":{"title":"go"}}]}}`)
			fake.on("/articles/_doc/a1", 200, `{"result":"deleted"}`)
			sel := selection.FromScalars([]*schema.ScalarField{mustScalar(article, "title")})
			rec, err := es.DeleteRecord(ctx, article, write.Everything(), sel)
			So(err, ShouldBeNil)
			So(rec.FieldNames, ShouldResemble, []string{"title"})
			So(rec.Record.Values, ShouldResemble, []value.Value{value.String("go")})
			So(fake.last().Method, ShouldEqual, http.MethodDelete)
		})

		Convey("没有匹配的记录", func() {
			fake.on("/articles/_search", 200, `{"hits":{"hits":[]}}`)
			_, err := es.DeleteRecord(ctx, article, write.Everything(), selection.PrimaryKey(article))
			So(qerror.KindOf(err), ShouldEqual, qerror.KindRecordDoesNotExist)
		})
	})
}

func TestESUnsupported(t *testing.T) {
	Convey("测试 elasticsearch 不支持事务和多对多", t, func() {
		es, _ := newTestES(t)
		author := mustModel(librarySchema(), "Author")
		_, err := es.BeginTx(context.Background(), connector.IsolationDefault)
		So(qerror.KindOf(err), ShouldEqual, qerror.KindUnsupported)
		err = es.M2MConnect(context.Background(), mustRelationField(author, "articles"), selection.SelectionResult{}, nil)
		So(qerror.KindOf(err), ShouldEqual, qerror.KindUnsupported)
	})
}
