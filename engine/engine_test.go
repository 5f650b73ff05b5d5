package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/hatlonely/qcore/cache"
	"github.com/hatlonely/qcore/document"
	"github.com/hatlonely/qcore/itx"
	"github.com/hatlonely/qcore/log"
	"github.com/hatlonely/qcore/metrics"
	"github.com/hatlonely/qcore/qerror"
	"github.com/hatlonely/qcore/schema"
	"github.com/hatlonely/qcore/sqlconn"
	"github.com/hatlonely/qcore/value"
)

const blogDefinition = `
provider: sqlite
models:
  - name: User
    fields:
      - { name: id, type: Int, id: true, default: "autoincrement()" }
      - { name: email, type: String, unique: true }
      - { name: name, type: String }
      - { name: code, type: String, default: "cuid()" }
      - { name: views, type: Int, default: "0" }
      - { name: posts, relation: Post, list: true }
      - { name: groups, relation: Group, list: true }
  - name: Post
    fields:
      - { name: id, type: Int, id: true, default: "autoincrement()" }
      - { name: title, type: String }
      - { name: authorId, type: Int, optional: true }
      - { name: author, relation: User, optional: true, fields: [authorId], references: [id] }
  - name: Group
    fields:
      - { name: id, type: Int, id: true, default: "autoincrement()" }
      - { name: name, type: String, unique: true }
      - { name: users, relation: User, list: true }
`

var blogDDL = []string{
	"CREATE TABLE `User` (`id` INTEGER PRIMARY KEY AUTOINCREMENT, `email` TEXT NOT NULL UNIQUE, `name` TEXT NOT NULL, `code` TEXT NOT NULL, `views` INTEGER NOT NULL DEFAULT 0)",
	"CREATE TABLE `Post` (`id` INTEGER PRIMARY KEY AUTOINCREMENT, `title` TEXT NOT NULL, `authorId` INTEGER REFERENCES `User` (`id`) ON DELETE SET NULL)",
	"CREATE TABLE `Group` (`id` INTEGER PRIMARY KEY AUTOINCREMENT, `name` TEXT NOT NULL UNIQUE)",
	"CREATE TABLE `_GroupToUser` (`A` INTEGER NOT NULL REFERENCES `Group` (`id`) ON DELETE CASCADE, `B` INTEGER NOT NULL REFERENCES `User` (`id`) ON DELETE CASCADE, UNIQUE (`A`, `B`))",
}

func testOptions(t *testing.T) *Options {
	return &Options{
		Schema: SchemaOptions{Inline: blogDefinition},
		Datasource: DatasourceOptions{
			Options: map[string]interface{}{
				"database": filepath.Join(t.TempDir(), "blog.db"),
				"maxConns": 2,
				"maxIdle":  2,
			},
		},
		Transaction: itx.ManagerOptions{
			Defaults: itx.TxOptions{MaxWait: time.Second, Timeout: 3 * time.Second},
		},
		Log: log.Options{Level: "error", Output: "stderr"},
	}
}

func newTestEngine(t *testing.T, options *Options) *Engine {
	e, err := NewEngineWithOptions(options, prometheus.NewRegistry())
	So(err, ShouldBeNil)
	for _, ddl := range blogDDL {
		So(rawExec(e, ddl), ShouldBeNil)
	}
	return e
}

func rawExec(e *Engine, sql string) error {
	conn := e.conn.(*metrics.ObservableConnector).Unwrap().(*sqlconn.SQL)
	return conn.Queryable().RawCmd(context.Background(), sql)
}

func field(obj value.Object, key string) value.Value {
	v, _ := obj.Get(key)
	return v
}

func createUser(ctx context.Context, e *Engine, email, name string) value.Object {
	obj, err := e.CreateOne(ctx, "User", document.Map("data", document.Map("email", email, "name", name)))
	So(err, ShouldBeNil)
	return obj
}

func TestEngineCRUD(t *testing.T) {
	Convey("测试 Engine 读写", t, func() {
		ctx := context.Background()
		e := newTestEngine(t, testOptions(t))
		defer e.Close(ctx)

		alice := createUser(ctx, e, "alice@x.com", "alice")
		bob := createUser(ctx, e, "bob@x.com", "bob")

		Convey("创建时填充默认值", func() {
			So(field(alice, "id"), ShouldEqual, value.Int(1))
			So(field(bob, "id"), ShouldEqual, value.Int(2))
			code, ok := field(alice, "code").(value.String)
			So(ok, ShouldBeTrue)
			So(len(code), ShouldEqual, 25)
			So(field(alice, "views"), ShouldEqual, value.Int(0))
		})

		Convey("FindUnique", func() {
			obj, err := e.FindUnique(ctx, "User", document.Map(
				"where", document.Map("email", "bob@x.com"),
				"select", document.Map("name", true),
			))
			So(err, ShouldBeNil)
			So(obj.Keys(), ShouldResemble, []string{"name"})
			So(field(obj, "name"), ShouldEqual, value.String("bob"))

			obj, err = e.FindUnique(ctx, "User", document.Map("where", document.Map("email", "nobody@x.com")))
			So(err, ShouldBeNil)
			So(obj, ShouldBeNil)

			_, err = e.FindUnique(ctx, "User", document.Map("where", document.Map("name", "bob")))
			So(qerror.KindOf(err), ShouldEqual, qerror.KindInputResolution)

			_, err = e.FindUnique(ctx, "Nobody", document.Map("where", document.Map("id", 1)))
			So(qerror.KindOf(err), ShouldEqual, qerror.KindInputResolution)
		})

		Convey("FindMany 支持过滤、排序和分页", func() {
			createUser(ctx, e, "carol@x.com", "carol")
			objs, err := e.FindMany(ctx, "User", document.Map(
				"where", document.Map("email", document.Map("endsWith", "@x.com")),
				"orderBy", document.Map("name", "desc"),
				"take", 2,
				"skip", 1,
				"select", document.Map("name", true),
			))
			So(err, ShouldBeNil)
			So(len(objs), ShouldEqual, 2)
			So(field(objs[0], "name"), ShouldEqual, value.String("bob"))
			So(field(objs[1], "name"), ShouldEqual, value.String("alice"))

			first, err := e.FindFirst(ctx, "User", document.Map("orderBy", document.Map("id", "desc")))
			So(err, ShouldBeNil)
			So(field(first, "email"), ShouldEqual, value.String("carol@x.com"))

			_, err = e.FindMany(ctx, "User", document.Map("take", -1))
			So(qerror.KindOf(err), ShouldEqual, qerror.KindInputResolution)
		})

		Convey("关系计数", func() {
			n, err := e.CreateMany(ctx, "Post", document.Map("data", []any{
				document.Map("title", "a", "authorId", 1),
				document.Map("title", "b", "authorId", 1),
				document.Map("title", "c", "authorId", 2),
			}))
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 3)

			objs, err := e.FindMany(ctx, "User", document.Map(
				"orderBy", document.Map("id", "asc"),
				"select", document.Map("name", true, "_count", document.Map("select", document.Map("posts", true))),
			))
			So(err, ShouldBeNil)
			So(len(objs), ShouldEqual, 2)
			counts, _ := field(objs[0], "_count").(value.Object)
			So(field(counts, "posts"), ShouldEqual, value.Int(2))

			posts, err := e.FindMany(ctx, "Post", document.Map("where", document.Map(
				"author", document.Map("is", document.Map("name", "bob")),
			)))
			So(err, ShouldBeNil)
			So(len(posts), ShouldEqual, 1)
			So(field(posts[0], "title"), ShouldEqual, value.String("c"))
		})

		Convey("CreateMany 跳过重复记录", func() {
			n, err := e.CreateMany(ctx, "User", document.Map(
				"data", []any{
					document.Map("email", "alice@x.com", "name", "dup"),
					document.Map("email", "dave@x.com", "name", "dave"),
				},
				"skipDuplicates", true,
			))
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)

			_, err = e.CreateOne(ctx, "User", document.Map("data", document.Map("email", "bob@x.com", "name", "dup")))
			So(qerror.KindOf(err), ShouldEqual, qerror.KindUniqueConstraintViolation)
		})

		Convey("UpdateOne 与 UpdateMany", func() {
			obj, err := e.UpdateOne(ctx, "User", document.Map(
				"where", document.Map("id", 1),
				"data", document.Map("views", document.Map("increment", 5)),
			))
			So(err, ShouldBeNil)
			So(field(obj, "views"), ShouldEqual, value.Int(5))

			_, err = e.UpdateOne(ctx, "User", document.Map(
				"where", document.Map("id", 100),
				"data", document.Map("name", "x"),
			))
			So(qerror.KindOf(err), ShouldEqual, qerror.KindRecordDoesNotExist)

			n, err := e.UpdateMany(ctx, "User", document.Map(
				"data", document.Map("views", document.Map("increment", 1)),
				"limit", 1,
			))
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)

			n, err = e.UpdateMany(ctx, "User", document.Map("data", document.Map()))
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 0)
		})

		Convey("单条写入要求唯一条件", func() {
			createUser(ctx, e, "same1@x.com", "same")
			createUser(ctx, e, "same2@x.com", "same")

			_, err := e.UpdateOne(ctx, "User", document.Map(
				"where", document.Map("name", "same"),
				"data", document.Map("name", "changed"),
			))
			So(qerror.KindOf(err), ShouldEqual, qerror.KindInputResolution)

			_, err = e.DeleteOne(ctx, "User", document.Map("where", document.Map("name", "same")))
			So(qerror.KindOf(err), ShouldEqual, qerror.KindInputResolution)

			objs, err := e.FindMany(ctx, "User", document.Map("where", document.Map("name", "same")))
			So(err, ShouldBeNil)
			So(len(objs), ShouldEqual, 2)

			obj, err := e.UpdateOne(ctx, "User", document.Map(
				"where", document.Map("email", "same1@x.com", "name", "same"),
				"data", document.Map("name", "changed"),
			))
			So(err, ShouldBeNil)
			So(field(obj, "name"), ShouldEqual, value.String("changed"))
		})

		Convey("DeleteOne 与 DeleteMany", func() {
			obj, err := e.DeleteOne(ctx, "User", document.Map("where", document.Map("email", "alice@x.com")))
			So(err, ShouldBeNil)
			So(field(obj, "name"), ShouldEqual, value.String("alice"))

			_, err = e.DeleteOne(ctx, "User", document.Map("where", document.Map("email", "alice@x.com")))
			So(qerror.KindOf(err), ShouldEqual, qerror.KindRecordDoesNotExist)

			n, err := e.DeleteMany(ctx, "User", document.Map())
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
		})

		Convey("多对多关系", func() {
			_, err := e.CreateOne(ctx, "Group", document.Map("data", document.Map("name", "admins")))
			So(err, ShouldBeNil)

			err = e.Connect(ctx, "Group", "users", document.Map(
				"where", document.Map("name", "admins"),
				"connect", []any{document.Map("email", "alice@x.com"), document.Map("id", 2)},
			))
			So(err, ShouldBeNil)

			users, err := e.FindMany(ctx, "User", document.Map("where", document.Map(
				"groups", document.Map("some", document.Map("name", "admins")),
			)))
			So(err, ShouldBeNil)
			So(len(users), ShouldEqual, 2)

			err = e.Disconnect(ctx, "Group", "users", document.Map(
				"where", document.Map("name", "admins"),
				"disconnect", document.Map("id", 1),
			))
			So(err, ShouldBeNil)
			users, err = e.FindMany(ctx, "User", document.Map("where", document.Map(
				"groups", document.Map("some", document.Map("name", "admins")),
			)))
			So(err, ShouldBeNil)
			So(len(users), ShouldEqual, 1)

			err = e.Connect(ctx, "Group", "users", document.Map(
				"where", document.Map("name", "nobody"),
				"connect", document.Map("id", 1),
			))
			So(qerror.KindOf(err), ShouldEqual, qerror.KindRecordDoesNotExist)

			err = e.Connect(ctx, "Post", "author", document.Map(
				"where", document.Map("id", 1),
				"connect", document.Map("id", 1),
			))
			So(qerror.KindOf(err), ShouldEqual, qerror.KindUnsupported)
		})
	})
}

func TestEngineTransaction(t *testing.T) {
	Convey("测试 Engine 交互式事务", t, func() {
		ctx := context.Background()
		e := newTestEngine(t, testOptions(t))
		defer e.Close(ctx)

		Convey("提交后可见", func() {
			id, err := e.StartTransaction(ctx, itx.TxOptions{})
			So(err, ShouldBeNil)
			txCtx := WithTransaction(ctx, id)
			createUser(txCtx, e, "alice@x.com", "alice")

			obj, err := e.FindUnique(txCtx, "User", document.Map("where", document.Map("email", "alice@x.com")))
			So(err, ShouldBeNil)
			So(obj, ShouldNotBeNil)

			So(e.Commit(ctx, id), ShouldBeNil)
			obj, err = e.FindUnique(ctx, "User", document.Map("where", document.Map("email", "alice@x.com")))
			So(err, ShouldBeNil)
			So(field(obj, "name"), ShouldEqual, value.String("alice"))

			_, err = e.FindMany(txCtx, "User", document.Map())
			So(qerror.KindOf(err), ShouldEqual, qerror.KindTransactionAlreadyClosed)
			So(err.Error(), ShouldContainSubstring, "committed")
		})

		Convey("回滚后不可见", func() {
			id, err := e.StartTransaction(ctx, itx.TxOptions{})
			So(err, ShouldBeNil)
			createUser(WithTransaction(ctx, id), e, "bob@x.com", "bob")
			So(e.Rollback(ctx, id), ShouldBeNil)

			objs, err := e.FindMany(ctx, "User", document.Map())
			So(err, ShouldBeNil)
			So(len(objs), ShouldEqual, 0)
		})

		Convey("空闲超时后自动回滚", func() {
			id, err := e.StartTransaction(ctx, itx.TxOptions{IdleTimeout: 100 * time.Millisecond})
			So(err, ShouldBeNil)
			createUser(WithTransaction(ctx, id), e, "carol@x.com", "carol")
			time.Sleep(300 * time.Millisecond)

			err = e.Commit(ctx, id)
			So(qerror.KindOf(err), ShouldEqual, qerror.KindTransactionAlreadyClosed)
			So(err.Error(), ShouldContainSubstring, "expired")

			objs, err := e.FindMany(ctx, "User", document.Map())
			So(err, ShouldBeNil)
			So(len(objs), ShouldEqual, 0)
		})

		Convey("隔离级别不合法", func() {
			_, err := e.StartTransaction(ctx, itx.TxOptions{Isolation: "whatever"})
			So(qerror.KindOf(err), ShouldEqual, qerror.KindInvalidIsolationLevel)
		})
	})
}

func TestEngineBatch(t *testing.T) {
	Convey("测试 Engine.Batch", t, func() {
		ctx := context.Background()
		e := newTestEngine(t, testOptions(t))
		defer e.Close(ctx)

		args, err := document.DecodeMap([]byte(`{"data": {"email": "alice@x.com", "name": "alice"}}`))
		So(err, ShouldBeNil)

		Convey("非事务批量，失败不影响其他操作", func() {
			results, err := e.Batch(ctx, []Operation{
				{Model: "User", Action: ActionCreateOne, Args: args},
				{Model: "User", Action: ActionCreateOne, Args: args},
				{Model: "User", Action: ActionFindMany},
				{Model: "User", Action: "upsertOne"},
			}, false)
			So(err, ShouldBeNil)
			So(len(results), ShouldEqual, 4)
			So(results[0].Err, ShouldBeNil)
			So(results[0].Count, ShouldEqual, 1)
			So(qerror.KindOf(results[1].Err), ShouldEqual, qerror.KindUniqueConstraintViolation)
			So(results[2].Count, ShouldEqual, 1)
			So(qerror.KindOf(results[3].Err), ShouldEqual, qerror.KindInputResolution)
		})

		Convey("事务批量，任何一个失败全部回滚", func() {
			results, err := e.Batch(ctx, []Operation{
				{Model: "User", Action: ActionCreateOne, Args: args},
				{Model: "User", Action: ActionUpdateMany, Args: document.Map("data", document.Map("name", "x"))},
				{Model: "User", Action: ActionCreateOne, Args: args},
			}, true)
			So(qerror.KindOf(err), ShouldEqual, qerror.KindUniqueConstraintViolation)
			So(len(results), ShouldEqual, 3)
			So(results[1].Count, ShouldEqual, 1)

			objs, err := e.FindMany(ctx, "User", document.Map())
			So(err, ShouldBeNil)
			So(len(objs), ShouldEqual, 0)
		})

		Convey("事务批量全部成功时提交", func() {
			results, err := e.Batch(ctx, []Operation{
				{Model: "User", Action: ActionCreateOne, Args: args},
				{Model: "User", Action: ActionDeleteMany, Args: document.Map("where", document.Map("name", "nobody"))},
				{Model: "User", Action: ActionFindUnique, Args: document.Map("where", document.Map("email", "alice@x.com"))},
			}, true)
			So(err, ShouldBeNil)
			So(results[1].Count, ShouldEqual, 0)
			So(len(results[2].Records), ShouldEqual, 1)

			obj, err := e.FindUnique(ctx, "User", document.Map("where", document.Map("email", "alice@x.com")))
			So(err, ShouldBeNil)
			So(obj, ShouldNotBeNil)
		})
	})
}

func TestEngineCache(t *testing.T) {
	Convey("测试 Engine 记录缓存", t, func() {
		ctx := context.Background()
		options := testOptions(t)
		options.Cache = &cache.RecordCacheOptions{Type: "freecache"}
		e := newTestEngine(t, options)
		defer e.Close(ctx)
		So(e.cache, ShouldNotBeNil)

		createUser(ctx, e, "alice@x.com", "alice")
		byID := document.Map("where", document.Map("id", 1), "select", document.Map("name", true))

		obj, err := e.FindUnique(ctx, "User", byID)
		So(err, ShouldBeNil)
		So(field(obj, "name"), ShouldEqual, value.String("alice"))

		Convey("命中时不访问数据库", func() {
			So(rawExec(e, "UPDATE `User` SET `name` = 'changed' WHERE `id` = 1"), ShouldBeNil)
			obj, err := e.FindUnique(ctx, "User", byID)
			So(err, ShouldBeNil)
			So(field(obj, "name"), ShouldEqual, value.String("alice"))

			Convey("经过引擎的写入使缓存失效", func() {
				_, err := e.UpdateMany(ctx, "User", document.Map("data", document.Map("views", 3)))
				So(err, ShouldBeNil)
				obj, err := e.FindUnique(ctx, "User", byID)
				So(err, ShouldBeNil)
				So(field(obj, "name"), ShouldEqual, value.String("changed"))
			})
		})

		Convey("请求的字段超出缓存时回源", func() {
			obj, err := e.FindUnique(ctx, "User", document.Map("where", document.Map("id", 1)))
			So(err, ShouldBeNil)
			So(field(obj, "email"), ShouldEqual, value.String("alice@x.com"))
		})

		Convey("删除后不再命中", func() {
			_, err := e.DeleteOne(ctx, "User", document.Map("where", document.Map("id", 1)))
			So(err, ShouldBeNil)
			obj, err := e.FindUnique(ctx, "User", byID)
			So(err, ShouldBeNil)
			So(obj, ShouldBeNil)
		})

		Convey("事务内不读缓存", func() {
			So(rawExec(e, "UPDATE `User` SET `name` = 'changed' WHERE `id` = 1"), ShouldBeNil)
			id, err := e.StartTransaction(ctx, itx.TxOptions{})
			So(err, ShouldBeNil)
			obj, err := e.FindUnique(WithTransaction(ctx, id), "User", byID)
			So(err, ShouldBeNil)
			So(field(obj, "name"), ShouldEqual, value.String("changed"))
			So(e.Commit(ctx, id), ShouldBeNil)
		})
	})
}

func TestNewEngineFromFile(t *testing.T) {
	Convey("测试从配置文件创建引擎并热更新", t, func() {
		dir := t.TempDir()
		So(os.WriteFile(filepath.Join(dir, "schema.yaml"), []byte(blogDefinition), 0644), ShouldBeNil)
		path := filepath.Join(dir, "engine.yaml")
		config := func(level string, timeout string) []byte {
			return []byte(`
schema:
  path: ` + filepath.Join(dir, "schema.yaml") + `
datasource:
  options:
    database: ` + filepath.Join(dir, "blog.db") + `
transaction:
  defaults:
    timeout: ` + timeout + `
log:
  level: ` + level + `
  output: stderr
`)
		}
		So(os.WriteFile(path, config("info", "3s"), 0644), ShouldBeNil)

		e, err := NewEngineFromFile(path)
		So(err, ShouldBeNil)
		defer e.Close(context.Background())
		So(e.Schema().Provider, ShouldEqual, schema.ProviderSQLite)
		So(e.itx.Defaults().Timeout, ShouldEqual, 3*time.Second)

		So(os.WriteFile(path, config("debug", "7s"), 0644), ShouldBeNil)
		So(waitFor(func() bool { return e.itx.Defaults().Timeout == 7*time.Second }), ShouldBeTrue)
	})
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return false
}
