package sqlconn

import (
	"context"
	"path/filepath"
	"testing"

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

func blogSchema() *schema.Schema {
	b := schema.NewBuilder(schema.ProviderSQLite)
	b.Model("User", func(m *schema.ModelBuilder) {
		m.Scalar("id", value.TypeInt).ID().Autoincrement()
		m.Scalar("email", value.TypeString).Unique()
		m.Scalar("name", value.TypeString)
		m.Scalar("age", value.TypeInt).Optional()
		m.Relation("posts", "Post").List()
		m.Relation("groups", "Group").List()
	})
	b.Model("Post", func(m *schema.ModelBuilder) {
		m.Scalar("id", value.TypeInt).ID().Autoincrement()
		m.Scalar("title", value.TypeString)
		m.Scalar("views", value.TypeInt)
		m.Scalar("authorId", value.TypeInt).Optional()
		m.Relation("author", "User").Optional().Fields("authorId").References("id")
	})
	b.Model("Group", func(m *schema.ModelBuilder) {
		m.Scalar("id", value.TypeInt).ID()
		m.Scalar("name", value.TypeString)
		m.Relation("users", "User").List()
	})
	b.Model("Tag", func(m *schema.ModelBuilder) {
		m.Scalar("id", value.TypeInt).ID().Autoincrement()
		m.Scalar("label", value.TypeString).Optional()
	})
	return b.MustBuild()
}

var blogDDL = []string{
	"CREATE TABLE `User` (`id` INTEGER PRIMARY KEY AUTOINCREMENT, `email` TEXT NOT NULL UNIQUE, `name` TEXT NOT NULL, `age` INTEGER)",
	"CREATE TABLE `Post` (`id` INTEGER PRIMARY KEY AUTOINCREMENT, `title` TEXT NOT NULL, `views` INTEGER NOT NULL DEFAULT 0, `authorId` INTEGER REFERENCES `User` (`id`) ON DELETE SET NULL)",
	"CREATE TABLE `Group` (`id` INTEGER PRIMARY KEY, `name` TEXT NOT NULL)",
	"CREATE TABLE `_GroupToUser` (`A` INTEGER NOT NULL REFERENCES `Group` (`id`) ON DELETE CASCADE, `B` INTEGER NOT NULL REFERENCES `User` (`id`) ON DELETE CASCADE, UNIQUE (`A`, `B`))",
	"CREATE TABLE `Tag` (`id` INTEGER PRIMARY KEY AUTOINCREMENT, `label` TEXT DEFAULT 'none')",
}

func newTestSQLite(t *testing.T) *SQL {
	s, err := NewSQLWithOptions(&SQLOptions{
		Driver:   "sqlite3",
		Database: filepath.Join(t.TempDir(), "blog.db"),
		MaxConns: 4,
		MaxIdle:  4,
	}, log.Discard())
	So(err, ShouldBeNil)
	for _, ddl := range blogDDL {
		So(s.Queryable().RawCmd(context.Background(), ddl), ShouldBeNil)
	}
	return s
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

func mustRelation(m *schema.Model, name string) *schema.RelationField {
	f, ok := m.FindRelation(name)
	if !ok {
		panic("relation not found: " + name)
	}
	return f
}

func argsOf(m *schema.Model, kv ...interface{}) *write.WriteArgs {
	args := write.NewWriteArgs()
	for i := 0; i < len(kv); i += 2 {
		f := mustScalar(m, kv[i].(string))
		switch v := kv[i+1].(type) {
		case write.WriteOperation:
			args.Insert(f, v)
		case value.Value:
			args.Insert(f, write.Set(v))
		}
	}
	return args
}

func fieldOf(rec *connector.SingleRecord, name string) value.Value {
	v, _ := rec.Record.Get(rec.FieldNames, name)
	return v
}

func createUser(ctx context.Context, s *SQL, m *schema.Model, email, name string, age int64) *connector.SingleRecord {
	rec, err := s.CreateRecord(ctx, m, argsOf(m, "email", value.String(email), "name", value.String(name), "age", value.Int(age)), selection.FromModel(m))
	So(err, ShouldBeNil)
	return rec
}

func TestSupportsReturning(t *testing.T) {
	Convey("测试 sqlite 版本判断", t, func() {
		So(supportsReturning("3.35.0"), ShouldBeTrue)
		So(supportsReturning("3.45.1"), ShouldBeTrue)
		So(supportsReturning("3.34.1"), ShouldBeFalse)
		So(supportsReturning("4.0"), ShouldBeTrue)
		So(supportsReturning("bad"), ShouldBeFalse)
	})
}

func TestSQLiteCreate(t *testing.T) {
	Convey("测试 sqlite 创建记录", t, func() {
		ctx := context.Background()
		s := newTestSQLite(t)
		defer s.Close()
		sc := blogSchema()
		user := mustModel(sc, "User")
		tag := mustModel(sc, "Tag")

		Convey("自增主键并读回选中字段", func() {
			rec := createUser(ctx, s, user, "a@x.com", "a", 20)
			So(fieldOf(rec, "id"), ShouldEqual, value.Int(1))
			So(fieldOf(rec, "email"), ShouldEqual, value.String("a@x.com"))
			So(fieldOf(rec, "age"), ShouldEqual, value.Int(20))

			rec = createUser(ctx, s, user, "b@x.com", "b", 30)
			So(fieldOf(rec, "id"), ShouldEqual, value.Int(2))
		})

		Convey("只选主键时不再查询", func() {
			rec, err := s.CreateRecord(ctx, user, argsOf(user, "email", value.String("a@x.com"), "name", value.String("a")), selection.PrimaryKey(user))
			So(err, ShouldBeNil)
			So(rec.FieldNames, ShouldResemble, []string{"id"})
			So(fieldOf(rec, "id"), ShouldEqual, value.Int(1))
		})

		Convey("唯一约束冲突", func() {
			createUser(ctx, s, user, "a@x.com", "a", 20)
			_, err := s.CreateRecord(ctx, user, argsOf(user, "email", value.String("a@x.com"), "name", value.String("c")), selection.FromModel(user))
			So(err, ShouldNotBeNil)
			So(qerror.KindOf(err), ShouldEqual, qerror.KindUniqueConstraintViolation)
		})

		Convey("非空约束冲突", func() {
			_, err := s.CreateRecord(ctx, user, argsOf(user, "email", value.String("a@x.com")), selection.FromModel(user))
			So(qerror.KindOf(err), ShouldEqual, qerror.KindNullConstraintViolation)
		})

		Convey("创建时不允许算术操作", func() {
			_, err := s.CreateRecord(ctx, user, argsOf(user, "age", write.Increment(value.Int(1))), selection.FromModel(user))
			So(qerror.KindOf(err), ShouldEqual, qerror.KindInputResolution)
		})

		Convey("批量创建跳过重复", func() {
			n, err := s.CreateRecords(ctx, user, []*write.WriteArgs{
				argsOf(user, "email", value.String("a@x.com"), "name", value.String("a")),
				argsOf(user, "email", value.String("b@x.com"), "name", value.String("b")),
				argsOf(user, "email", value.String("a@x.com"), "name", value.String("c")),
			}, true)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 2)

			_, err = s.CreateRecords(ctx, user, []*write.WriteArgs{
				argsOf(user, "email", value.String("b@x.com"), "name", value.String("b")),
			}, false)
			So(qerror.KindOf(err), ShouldEqual, qerror.KindUniqueConstraintViolation)
		})

		Convey("批量创建按列集合分组并受占位符限制", func() {
			s.options.MaxBindValues = 4
			var args []*write.WriteArgs
			for i := 0; i < 5; i++ {
				args = append(args, argsOf(user, "email", value.String(string(rune('a'+i))+"@x.com"), "name", value.String("n")))
			}
			args = append(args, argsOf(user, "email", value.String("z@x.com"), "name", value.String("z"), "age", value.Int(9)))
			n, err := s.CreateRecords(ctx, user, args, false)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 6)

			records, err := s.GetManyRecords(ctx, user, connector.QueryArguments{Filter: filter.MatchAll()}, selection.FromModel(user))
			So(err, ShouldBeNil)
			So(records.Len(), ShouldEqual, 6)
		})

		Convey("全部为空时每个元素插入一行默认值", func() {
			n, err := s.CreateRecords(ctx, tag, []*write.WriteArgs{write.NewWriteArgs(), write.NewWriteArgs(), write.NewWriteArgs()}, false)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 3)

			records, err := s.GetManyRecords(ctx, tag, connector.QueryArguments{Filter: filter.MatchAll()}, selection.FromModel(tag))
			So(err, ShouldBeNil)
			So(records.Len(), ShouldEqual, 3)
			So(fieldOf(records.First(), "label"), ShouldEqual, value.String("none"))
		})

		Convey("空参数创建单条记录", func() {
			rec, err := s.CreateRecord(ctx, tag, write.NewWriteArgs(), selection.FromModel(tag))
			So(err, ShouldBeNil)
			So(fieldOf(rec, "id"), ShouldEqual, value.Int(1))
		})
	})
}

func TestSQLiteRead(t *testing.T) {
	Convey("测试 sqlite 查询", t, func() {
		ctx := context.Background()
		s := newTestSQLite(t)
		defer s.Close()
		sc := blogSchema()
		user := mustModel(sc, "User")
		post := mustModel(sc, "Post")
		alice := createUser(ctx, s, user, "alice@x.com", "alice", 30)
		createUser(ctx, s, user, "bob@x.com", "bob", 20)
		createUser(ctx, s, user, "carol@x.com", "carol", 40)
		aliceID := fieldOf(alice, "id")
		for _, title := range []string{"go", "rust"} {
			_, err := s.CreateRecord(ctx, post, argsOf(post, "title", value.String(title), "views", value.Int(1), "authorId", aliceID), selection.PrimaryKey(post))
			So(err, ShouldBeNil)
		}

		Convey("排序和分页", func() {
			records, err := s.GetManyRecords(ctx, user, connector.QueryArguments{
				Filter:  filter.MatchAll(),
				OrderBy: []connector.OrderBy{{Field: mustScalar(user, "age"), Desc: true}},
				Skip:    1,
			}, selection.FromModel(user))
			So(err, ShouldBeNil)
			So(records.Len(), ShouldEqual, 2)
			So(fieldOf(records.First(), "name"), ShouldEqual, value.String("alice"))

			take := 1
			records, err = s.GetManyRecords(ctx, user, connector.QueryArguments{Filter: filter.MatchAll(), Take: &take, Skip: 2}, selection.FromModel(user))
			So(err, ShouldBeNil)
			So(records.Len(), ShouldEqual, 1)
			So(fieldOf(records.First(), "name"), ShouldEqual, value.String("carol"))
		})

		Convey("没有匹配时返回 nil", func() {
			rec, err := s.GetSingleRecord(ctx, user, filter.Equals(mustScalar(user, "email"), value.String("none")), selection.FromModel(user))
			So(err, ShouldBeNil)
			So(rec, ShouldBeNil)
		})

		Convey("大小写不敏感和模糊匹配", func() {
			f := &filter.ScalarFilter{
				Projection: filter.Single(mustScalar(user, "name")),
				Condition:  filter.Condition{Op: filter.OpStartsWith, Value: value.String("AL")},
				Mode:       filter.ModeInsensitive,
			}
			records, err := s.GetManyRecords(ctx, user, connector.QueryArguments{Filter: f}, selection.FromModel(user))
			So(err, ShouldBeNil)
			So(records.Len(), ShouldEqual, 1)
		})

		Convey("关系过滤", func() {
			posts := mustRelation(user, "posts")
			some := &filter.RelationFilter{Field: posts, Condition: filter.AtLeastOneRelatedRecord,
				Nested: filter.Equals(mustScalar(post, "title"), value.String("go"))}
			records, err := s.GetManyRecords(ctx, user, connector.QueryArguments{Filter: some}, selection.FromModel(user))
			So(err, ShouldBeNil)
			So(records.Len(), ShouldEqual, 1)
			So(fieldOf(records.First(), "name"), ShouldEqual, value.String("alice"))

			none := &filter.RelationFilter{Field: posts, Condition: filter.NoRelatedRecord, Nested: filter.MatchAll()}
			records, err = s.GetManyRecords(ctx, user, connector.QueryArguments{Filter: none}, selection.FromModel(user))
			So(err, ShouldBeNil)
			So(records.Len(), ShouldEqual, 2)

			author := mustRelation(post, "author")
			isNull := &filter.OneRelationIsNull{Field: author}
			records, err = s.GetManyRecords(ctx, post, connector.QueryArguments{Filter: isNull}, selection.FromModel(post))
			So(err, ShouldBeNil)
			So(records.Len(), ShouldEqual, 0)
		})

		Convey("关联记录计数", func() {
			sel := selection.New(selection.Scalar(mustScalar(user, "name")), selection.Count(mustRelation(user, "posts")))
			records, err := s.GetManyRecords(ctx, user, connector.QueryArguments{Filter: filter.MatchAll(),
				OrderBy: []connector.OrderBy{{Field: mustScalar(user, "id")}}}, sel)
			So(err, ShouldBeNil)
			So(records.Len(), ShouldEqual, 3)
			v, _ := records.Records[0].Get(records.FieldNames, "_aggr_count_posts")
			So(v, ShouldEqual, value.Int(2))
			v, _ = records.Records[1].Get(records.FieldNames, "_aggr_count_posts")
			So(v, ShouldEqual, value.Int(0))
		})
	})
}

func TestSQLiteUpdate(t *testing.T) {
	Convey("测试 sqlite 更新", t, func() {
		ctx := context.Background()
		s := newTestSQLite(t)
		sc := blogSchema()
		user := mustModel(sc, "User")
		age := mustScalar(user, "age")
		for i, name := range []string{"a", "b", "c"} {
			createUser(ctx, s, user, name+"@x.com", name, int64(10*(i+1)))
		}

		Convey("参数为空时不访问数据库", func() {
			// 关闭连接后仍然成功说明没有执行语句
			So(s.Close(), ShouldBeNil)
			n, err := s.UpdateRecords(ctx, user, write.Everything(), write.NewWriteArgs(), nil)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 0)
		})

		Convey("算术更新", func() {
			defer s.Close()
			n, err := s.UpdateRecords(ctx, user, write.Everything(), argsOf(user, "age", write.Increment(value.Int(1))), nil)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 3)

			rec, err := s.GetSingleRecord(ctx, user, filter.Equals(mustScalar(user, "name"), value.String("c")), selection.FromModel(user))
			So(err, ShouldBeNil)
			So(fieldOf(rec, "age"), ShouldEqual, value.Int(31))

			_, err = s.UpdateRecords(ctx, user, write.Everything(), argsOf(user, "age", write.Multiply(value.Int(2))), nil)
			So(err, ShouldBeNil)
			_, err = s.UpdateRecords(ctx, user, write.Everything(), argsOf(user, "age", write.Unset()), nil)
			So(err, ShouldBeNil)
			rec, _ = s.GetSingleRecord(ctx, user, filter.Equals(mustScalar(user, "name"), value.String("c")), selection.FromModel(user))
			So(value.IsNull(fieldOf(rec, "age")), ShouldBeTrue)
		})

		Convey("限制更新行数", func() {
			defer s.Close()
			limit := 2
			n, err := s.UpdateRecords(ctx, user, write.NewRecordFilter(filter.NewScalar(age, filter.OpGreaterThan, value.Int(0))),
				argsOf(user, "name", value.String("x")), &limit)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 2)

			zero := 0
			n, err = s.UpdateRecords(ctx, user, write.Everything(), argsOf(user, "name", value.String("y")), &zero)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 0)
		})

		Convey("按主键分批更新", func() {
			defer s.Close()
			s.options.MaxBindValues = 2
			n, err := s.UpdateRecords(ctx, user, write.Everything(), argsOf(user, "name", value.String("x")), nil)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 3)
		})

		Convey("更新单条记录并读回", func() {
			defer s.Close()
			rf := write.NewRecordFilter(filter.Equals(mustScalar(user, "email"), value.String("b@x.com")))
			rec, err := s.UpdateRecord(ctx, user, rf, argsOf(user, "age", write.Decrement(value.Int(5))), selection.FromModel(user))
			So(err, ShouldBeNil)
			So(fieldOf(rec, "age"), ShouldEqual, value.Int(15))

			// 修改主键后按新主键读回
			rec, err = s.UpdateRecord(ctx, user, rf, argsOf(user, "id", value.Int(100)), selection.FromModel(user))
			So(err, ShouldBeNil)
			So(fieldOf(rec, "id"), ShouldEqual, value.Int(100))
		})

		Convey("更新不存在的记录", func() {
			defer s.Close()
			rf := write.NewRecordFilter(filter.Equals(mustScalar(user, "email"), value.String("none")))
			_, err := s.UpdateRecord(ctx, user, rf, argsOf(user, "age", value.Int(1)), selection.FromModel(user))
			So(qerror.KindOf(err), ShouldEqual, qerror.KindRecordDoesNotExist)
		})

		Convey("空参数的单条更新直接读回", func() {
			defer s.Close()
			rf := write.NewRecordFilter(filter.Equals(mustScalar(user, "email"), value.String("a@x.com")))
			rec, err := s.UpdateRecord(ctx, user, rf, write.NewWriteArgs(), selection.FromModel(user))
			So(err, ShouldBeNil)
			So(fieldOf(rec, "name"), ShouldEqual, value.String("a"))
		})
	})
}

func TestSQLiteDelete(t *testing.T) {
	Convey("测试 sqlite 删除", t, func() {
		ctx := context.Background()
		s := newTestSQLite(t)
		defer s.Close()
		sc := blogSchema()
		user := mustModel(sc, "User")
		for i, name := range []string{"a", "b", "c", "d"} {
			createUser(ctx, s, user, name+"@x.com", name, int64(i))
		}

		Convey("限制删除行数", func() {
			limit := 3
			n, err := s.DeleteRecords(ctx, user, write.Everything(), &limit)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 3)

			records, err := s.GetManyRecords(ctx, user, connector.QueryArguments{Filter: filter.MatchAll()}, selection.FromModel(user))
			So(err, ShouldBeNil)
			So(records.Len(), ShouldEqual, 1)
		})

		Convey("按选择器删除", func() {
			id := selection.NewSelectionResultBuilder().Add(mustScalar(user, "id"), value.Int(2)).Build()
			n, err := s.DeleteRecords(ctx, user, write.Everything().WithSelectors([]selection.SelectionResult{id}), nil)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)
		})

		Convey("删除单条记录返回删除前的值", func() {
			rf := write.NewRecordFilter(filter.Equals(mustScalar(user, "email"), value.String("c@x.com")))
			rec, err := s.DeleteRecord(ctx, user, rf, selection.New(selection.Scalar(mustScalar(user, "name"))))
			So(err, ShouldBeNil)
			So(fieldOf(rec, "name"), ShouldEqual, value.String("c"))

			_, err = s.DeleteRecord(ctx, user, rf, selection.FromModel(user))
			So(qerror.KindOf(err), ShouldEqual, qerror.KindRecordDoesNotExist)
		})
	})
}

func TestSQLiteM2M(t *testing.T) {
	Convey("测试 sqlite 多对多", t, func() {
		ctx := context.Background()
		s := newTestSQLite(t)
		defer s.Close()
		sc := blogSchema()
		user := mustModel(sc, "User")
		group := mustModel(sc, "Group")
		groups := mustRelation(user, "groups")
		createUser(ctx, s, user, "a@x.com", "a", 1)
		for i := int64(1); i <= 3; i++ {
			_, err := s.CreateRecord(ctx, group, argsOf(group, "id", value.Int(i), "name", value.String("g")), selection.PrimaryKey(group))
			So(err, ShouldBeNil)
		}

		parent := selection.NewSelectionResultBuilder().Add(mustScalar(user, "id"), value.Int(1)).Build()
		gid := mustScalar(group, "id")
		child := func(id int64) selection.SelectionResult {
			return selection.NewSelectionResultBuilder().Add(gid, value.Int(id)).Build()
		}
		countGroups := func() value.Value {
			sel := selection.New(selection.Count(groups))
			rec, err := s.GetSingleRecord(ctx, user, parent.Filter(), sel)
			So(err, ShouldBeNil)
			return fieldOf(rec, "_aggr_count_groups")
		}

		So(s.M2MConnect(ctx, groups, parent, []selection.SelectionResult{child(1), child(2)}), ShouldBeNil)
		So(countGroups(), ShouldEqual, value.Int(2))

		Convey("重复连接被忽略", func() {
			So(s.M2MConnect(ctx, groups, parent, []selection.SelectionResult{child(2), child(3)}), ShouldBeNil)
			So(countGroups(), ShouldEqual, value.Int(3))
		})

		Convey("断开连接", func() {
			So(s.M2MDisconnect(ctx, groups, parent, []selection.SelectionResult{child(1), child(3)}), ShouldBeNil)
			So(countGroups(), ShouldEqual, value.Int(1))
		})

		Convey("通过中间表过滤", func() {
			users := mustRelation(group, "users")
			f := &filter.RelationFilter{Field: users, Condition: filter.AtLeastOneRelatedRecord,
				Nested: filter.Equals(mustScalar(user, "email"), value.String("a@x.com"))}
			records, err := s.GetManyRecords(ctx, group, connector.QueryArguments{Filter: f}, selection.PrimaryKey(group))
			So(err, ShouldBeNil)
			So(records.Len(), ShouldEqual, 2)
		})

		Convey("外键关系不支持连接", func() {
			err := s.M2MConnect(ctx, mustRelation(user, "posts"), parent, []selection.SelectionResult{child(1)})
			So(qerror.KindOf(err), ShouldEqual, qerror.KindUnsupported)
		})
	})
}

func TestSQLiteTransaction(t *testing.T) {
	Convey("测试 sqlite 事务", t, func() {
		ctx := context.Background()
		s := newTestSQLite(t)
		defer s.Close()
		sc := blogSchema()
		user := mustModel(sc, "User")
		count := func() int {
			records, err := s.GetManyRecords(ctx, user, connector.QueryArguments{Filter: filter.MatchAll()}, selection.PrimaryKey(user))
			So(err, ShouldBeNil)
			return records.Len()
		}

		Convey("回滚丢弃写入", func() {
			tx, err := s.BeginTx(ctx, connector.IsolationDefault)
			So(err, ShouldBeNil)
			_, err = tx.CreateRecord(ctx, user, argsOf(user, "email", value.String("a@x.com"), "name", value.String("a")), selection.PrimaryKey(user))
			So(err, ShouldBeNil)
			So(tx.Rollback(ctx), ShouldBeNil)
			So(count(), ShouldEqual, 0)
		})

		Convey("提交后可见，重复提交报错", func() {
			tx, err := s.BeginTx(ctx, connector.Serializable)
			So(err, ShouldBeNil)
			_, err = tx.CreateRecord(ctx, user, argsOf(user, "email", value.String("a@x.com"), "name", value.String("a")), selection.PrimaryKey(user))
			So(err, ShouldBeNil)
			So(tx.Commit(ctx), ShouldBeNil)
			So(count(), ShouldEqual, 1)

			err = tx.Commit(ctx)
			So(qerror.KindOf(err), ShouldEqual, qerror.KindTransactionAlreadyClosed)
		})

		Convey("sqlite 只支持 Serializable", func() {
			_, err := s.BeginTx(ctx, connector.ReadCommitted)
			So(qerror.KindOf(err), ShouldEqual, qerror.KindInvalidIsolationLevel)
		})
	})
}

func TestSQLiteRegistry(t *testing.T) {
	Convey("测试通过注册表创建 sqlite 连接器", t, func() {
		c, err := connector.New(schema.ProviderSQLite, &connector.Options{
			Schema: blogSchema(),
			Logger: log.Discard(),
			Config: map[string]interface{}{"database": filepath.Join(t.TempDir(), "r.db")},
		})
		So(err, ShouldBeNil)
		So(c.Name(), ShouldEqual, "sqlite")
		So(c.Close(), ShouldBeNil)
	})
}
