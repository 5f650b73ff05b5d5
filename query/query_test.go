package query

import (
	"testing"

	"github.com/hatlonely/qcore/qerror"
	"github.com/hatlonely/qcore/value"
	. "github.com/smartystreets/goconvey/convey"
)

func TestQuoteIdent(t *testing.T) {
	Convey("测试标识符引用", t, func() {
		So(QuoteIdent("name"), ShouldEqual, "`name`")
		So(QuoteIdent("User.name"), ShouldEqual, "`User`.`name`")
		So(QuoteIdent("a`b"), ShouldEqual, "`a``b`")
	})
}

func TestTermQuery(t *testing.T) {
	Convey("测试 TermQuery", t, func() {
		q := &TermQuery{Field: "status", Value: value.String("active")}
		So(q.Type(), ShouldEqual, QueryTypeTerm)

		Convey("ToSQL", func() {
			sql, args, err := q.ToSQL()
			So(err, ShouldBeNil)
			So(sql, ShouldEqual, "`status` = ?")
			So(args, ShouldResemble, []interface{}{"active"})
		})

		Convey("ToMongo", func() {
			m, err := q.ToMongo()
			So(err, ShouldBeNil)
			So(m, ShouldResemble, map[string]interface{}{"status": "active"})
		})

		Convey("ToES", func() {
			So(q.ToES(), ShouldResemble, map[string]interface{}{
				"term": map[string]interface{}{"status": "active"},
			})
		})

		Convey("不区分大小写", func() {
			q := &TermQuery{Field: "name", Value: value.String("A.b"), Insensitive: true}
			sql, args, _ := q.ToSQL()
			So(sql, ShouldEqual, "LOWER(`name`) = LOWER(?)")
			So(args, ShouldResemble, []interface{}{"A.b"})
			m, _ := q.ToMongo()
			So(m, ShouldResemble, map[string]interface{}{
				"name": map[string]interface{}{"$regex": `^A\.b$`, "$options": "i"},
			})
			So(q.ToES(), ShouldResemble, map[string]interface{}{
				"term": map[string]interface{}{
					"name": map[string]interface{}{"value": "A.b", "case_insensitive": true},
				},
			})
		})

		Convey("空值", func() {
			q := &TermQuery{Field: "age", Value: value.Null{}}
			sql, args, _ := q.ToSQL()
			So(sql, ShouldEqual, "`age` IS NULL")
			So(args, ShouldBeNil)
			m, _ := q.ToMongo()
			So(m, ShouldResemble, map[string]interface{}{"age": nil})
		})
	})
}

func TestTermsQuery(t *testing.T) {
	Convey("测试 TermsQuery", t, func() {
		q := &TermsQuery{Field: "id", Values: []value.Value{value.Int(1), value.Int(2)}}
		sql, args, err := q.ToSQL()
		So(err, ShouldBeNil)
		So(sql, ShouldEqual, "`id` IN (?,?)")
		So(args, ShouldResemble, []interface{}{int64(1), int64(2)})

		m, _ := (&TermsQuery{Field: "id", Values: []value.Value{value.Int(1)}, Negated: true}).ToMongo()
		So(m, ShouldResemble, map[string]interface{}{"id": map[string]interface{}{"$nin": []interface{}{int64(1)}}})

		Convey("空集合", func() {
			sql, _, _ := (&TermsQuery{Field: "id"}).ToSQL()
			So(sql, ShouldEqual, "1=0")
			sql, _, _ = (&TermsQuery{Field: "id", Negated: true}).ToSQL()
			So(sql, ShouldEqual, "1=1")
		})
	})
}

func TestRangeQuery(t *testing.T) {
	Convey("测试 RangeQuery", t, func() {
		q := &RangeQuery{Field: "age", Gte: value.Int(18), Lt: value.Int(60)}
		sql, args, err := q.ToSQL()
		So(err, ShouldBeNil)
		So(sql, ShouldEqual, "`age` >= ? AND `age` < ?")
		So(args, ShouldResemble, []interface{}{int64(18), int64(60)})

		m, _ := q.ToMongo()
		So(m, ShouldResemble, map[string]interface{}{"age": map[string]interface{}{"$gte": int64(18), "$lt": int64(60)}})
		So(q.ToES(), ShouldResemble, map[string]interface{}{
			"range": map[string]interface{}{"age": map[string]interface{}{"gte": int64(18), "lt": int64(60)}},
		})

		sql, _, _ = (&RangeQuery{Field: "age"}).ToSQL()
		So(sql, ShouldEqual, "1=1")
	})
}

func TestStringQueries(t *testing.T) {
	Convey("测试字符串匹配", t, func() {
		Convey("MatchQuery 转义 LIKE 特殊字符", func() {
			sql, args, _ := (&MatchQuery{Field: "title", Value: "50%_off!"}).ToSQL()
			So(sql, ShouldEqual, "`title` LIKE ? ESCAPE '!'")
			So(args, ShouldResemble, []interface{}{"%50!%!_off!!%"})
			m, _ := (&MatchQuery{Field: "title", Value: "a+b", Insensitive: true}).ToMongo()
			So(m, ShouldResemble, map[string]interface{}{"title": map[string]interface{}{"$regex": `a\+b`, "$options": "i"}})
		})

		Convey("PrefixQuery", func() {
			sql, args, _ := (&PrefixQuery{Field: "name", Value: "ab", Insensitive: true}).ToSQL()
			So(sql, ShouldEqual, "LOWER(`name`) LIKE LOWER(?) ESCAPE '!'")
			So(args, ShouldResemble, []interface{}{"ab%"})
			m, _ := (&PrefixQuery{Field: "name", Value: "ab"}).ToMongo()
			So(m, ShouldResemble, map[string]interface{}{"name": map[string]interface{}{"$regex": "^ab"}})
		})

		Convey("WildcardQuery", func() {
			q := &WildcardQuery{Field: "file", Value: "*" + EscapeWildcard("a*.go")}
			sql, args, _ := q.ToSQL()
			So(sql, ShouldEqual, "`file` LIKE ? ESCAPE '!'")
			So(args, ShouldResemble, []interface{}{"%a*.go"})
			m, _ := q.ToMongo()
			So(m, ShouldResemble, map[string]interface{}{"file": map[string]interface{}{"$regex": `^.*a\*\.go$`}})

			sql, args, _ = (&WildcardQuery{Field: "code", Value: "a?c"}).ToSQL()
			So(args, ShouldResemble, []interface{}{"a_c"})
			So(sql, ShouldEqual, "`code` LIKE ? ESCAPE '!'")
		})
	})
}

func TestExistsQuery(t *testing.T) {
	Convey("测试 ExistsQuery", t, func() {
		sql, _, _ := (&ExistsQuery{Field: "email"}).ToSQL()
		So(sql, ShouldEqual, "`email` IS NOT NULL")
		sql, _, _ = (&ExistsQuery{Field: "email", Negated: true}).ToSQL()
		So(sql, ShouldEqual, "`email` IS NULL")

		m, _ := (&ExistsQuery{Field: "email", Strict: true, Negated: true}).ToMongo()
		So(m, ShouldResemble, map[string]interface{}{"email": map[string]interface{}{"$exists": false}})
		m, _ = (&ExistsQuery{Field: "email"}).ToMongo()
		So(m, ShouldResemble, map[string]interface{}{"email": map[string]interface{}{"$ne": nil}})
	})
}

func TestBoolQuery(t *testing.T) {
	Convey("测试 BoolQuery", t, func() {
		a := &TermQuery{Field: "a", Value: value.Int(1)}
		b := &TermQuery{Field: "b", Value: value.Int(2)}

		Convey("空的 And 匹配全部，空的 Or 不匹配", func() {
			sql, _, _ := MatchAll().ToSQL()
			So(sql, ShouldEqual, "1=1")
			sql, _, _ = MatchNone().ToSQL()
			So(sql, ShouldEqual, "1=0")

			m, _ := MatchAll().ToMongo()
			So(m, ShouldResemble, map[string]interface{}{})
			m, _ = MatchNone().ToMongo()
			So(m, ShouldResemble, map[string]interface{}{"$nor": []interface{}{map[string]interface{}{}}})

			So(MatchAll().ToES(), ShouldResemble, map[string]interface{}{"match_all": map[string]interface{}{}})
			So(MatchNone().ToES(), ShouldResemble, map[string]interface{}{"match_none": map[string]interface{}{}})
		})

		Convey("And / Or / Not", func() {
			sql, args, err := And(a, Or(a, b), Not(b)).ToSQL()
			So(err, ShouldBeNil)
			So(sql, ShouldEqual, "(`a` = ?) AND (((`a` = ?) OR (`b` = ?))) AND (NOT (`b` = ?))")
			So(args, ShouldHaveLength, 4)
		})

		Convey("单个条件直接返回", func() {
			m, err := And(a).ToMongo()
			So(err, ShouldBeNil)
			So(m, ShouldResemble, map[string]interface{}{"a": int64(1)})
		})

		Convey("MinShouldMatch 计数", func() {
			two := 2
			sql, _, _ := (&BoolQuery{Should: []Query{a, b}, MinShouldMatch: &two}).ToSQL()
			So(sql, ShouldEqual, "(CASE WHEN (`a` = ?) THEN 1 ELSE 0 END + CASE WHEN (`b` = ?) THEN 1 ELSE 0 END) >= 2")
		})
	})
}

func TestSearchQuery(t *testing.T) {
	Convey("测试 SearchQuery", t, func() {
		q := &SearchQuery{Fields: []string{"title", "body"}, Query: "+go -rust", Dialect: DialectMySQL}
		sql, args, err := q.ToSQL()
		So(err, ShouldBeNil)
		So(sql, ShouldEqual, "MATCH (`title`,`body`) AGAINST (? IN BOOLEAN MODE)")
		So(args, ShouldResemble, []interface{}{"+go -rust"})
		So(q.Terms(), ShouldResemble, []string{"go", "rust"})

		Convey("SQLite 退化为 LIKE", func() {
			q := &SearchQuery{Fields: []string{"title", "body"}, Query: "go", Dialect: DialectSQLite}
			sql, args, err := q.ToSQL()
			So(err, ShouldBeNil)
			So(sql, ShouldEqual, "(((LOWER(`title`) LIKE LOWER(?) ESCAPE '!') OR (LOWER(`body`) LIKE LOWER(?) ESCAPE '!')))")
			So(args, ShouldResemble, []interface{}{"%go%", "%go%"})
		})

		Convey("mongo 使用正则", func() {
			m, _ := (&SearchQuery{Fields: []string{"title"}, Query: "go"}).ToMongo()
			So(m, ShouldResemble, map[string]interface{}{
				"$or": []interface{}{map[string]interface{}{"title": map[string]interface{}{"$regex": "go", "$options": "i"}}},
			})
		})
	})
}

func TestSubQuery(t *testing.T) {
	Convey("测试 SubQuery", t, func() {
		q := &SubQuery{
			Columns: []string{"id"},
			Table:   "Post",
			Select:  []string{"authorId"},
			Where:   &TermQuery{Field: "title", Value: value.String("x")},
		}
		sql, args, err := q.ToSQL()
		So(err, ShouldBeNil)
		So(sql, ShouldEqual, "`id` IN (SELECT `authorId` FROM `Post` WHERE (`title` = ?))")
		So(args, ShouldResemble, []interface{}{"x"})

		q.Negated = true
		sql, _, _ = q.ToSQL()
		So(sql, ShouldEqual, "`id` NOT IN (SELECT `authorId` FROM `Post` WHERE (`title` = ?) AND `authorId` IS NOT NULL)")

		_, err = q.ToMongo()
		So(qerror.KindOf(err), ShouldEqual, qerror.KindUnsupported)

		_, _, err = (&SubQuery{Columns: []string{"a", "b"}, Select: []string{"x"}}).ToSQL()
		So(qerror.KindOf(err), ShouldEqual, qerror.KindInternalInvariantViolation)
	})
}

func TestElemMatchQuery(t *testing.T) {
	Convey("测试 ElemMatchQuery", t, func() {
		where := &TermQuery{Field: "city", Value: value.String("x")}
		m, err := (&ElemMatchQuery{Field: "branches", Where: where}).ToMongo()
		So(err, ShouldBeNil)
		So(m, ShouldResemble, map[string]interface{}{
			"branches": map[string]interface{}{"$elemMatch": map[string]interface{}{"city": "x"}},
		})

		m, _ = (&ElemMatchQuery{Field: "branches", Where: where, Mode: ElemEvery}).ToMongo()
		So(m, ShouldResemble, map[string]interface{}{
			"branches": map[string]interface{}{
				"$not": map[string]interface{}{
					"$elemMatch": map[string]interface{}{"$nor": []interface{}{map[string]interface{}{"city": "x"}}},
				},
			},
		})

		_, _, err = (&ElemMatchQuery{Field: "branches", Where: where}).ToSQL()
		So(qerror.KindOf(err), ShouldEqual, qerror.KindUnsupported)
	})
}
