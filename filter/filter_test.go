package filter

import (
	"fmt"
	"testing"

	"github.com/hatlonely/qcore/schema"
	"github.com/hatlonely/qcore/value"
	. "github.com/smartystreets/goconvey/convey"
)

func testModel() *schema.Model {
	b := schema.NewBuilder(schema.ProviderMySQL)
	b.Model("Article", func(m *schema.ModelBuilder) {
		m.Scalar("id", value.TypeInt).ID()
		m.Scalar("title", value.TypeString)
		m.Scalar("body", value.TypeString)
		m.Scalar("tags", value.TypeString).Optional()
		m.Scalar("views", value.TypeInt)
	})
	s := b.MustBuild()
	model, _ := s.FindModel("Article")
	return model
}

func scalar(m *schema.Model, name string) *schema.ScalarField {
	f, ok := m.FindScalar(name)
	if !ok {
		panic(name)
	}
	return f
}

func TestFlatten(t *testing.T) {
	Convey("测试 Flatten", t, func() {
		m := testModel()
		a := Equals(scalar(m, "title"), value.String("a"))
		b := Equals(scalar(m, "body"), value.String("b"))
		c := Equals(scalar(m, "views"), value.Int(3))

		Convey("And 嵌套 And 展开", func() {
			f := Flatten(AndOf(a, AndOf(b, AndOf(c))))
			So(f, ShouldResemble, Filter(AndOf(a, b, c)))
		})

		Convey("Or 嵌套 Or 展开，And 保留", func() {
			f := Flatten(OrOf(a, OrOf(b), AndOf(c)))
			So(f, ShouldResemble, Filter(OrOf(a, b, AndOf(c))))
		})

		Convey("Not 只吸收 Or", func() {
			f := Flatten(NotOf(a, OrOf(b, c)))
			So(f, ShouldResemble, Filter(NotOf(a, b, c)))
			g := Flatten(NotOf(NotOf(a)))
			So(g, ShouldResemble, Filter(NotOf(NotOf(a))))
		})

		Convey("幂等", func() {
			trees := []Filter{
				AndOf(a, AndOf(b, OrOf(c, OrOf(a))), NotOf(OrOf(b, AndOf(c)))),
				OrOf(AndOf(), OrOf(), a),
				NotOf(OrOf(OrOf(a, b)), NotOf(c)),
				a,
				Empty{},
			}
			for _, tree := range trees {
				once := Flatten(tree)
				So(Flatten(once), ShouldResemble, once)
			}
		})

		Convey("展开不改变求值结果", func() {
			tree := NotOf(a, OrOf(b, AndOf(c, OrOf(a, b))))
			rows := []map[string]value.Value{
				{"title": value.String("a"), "body": value.String("x"), "views": value.Int(1)},
				{"title": value.String("x"), "body": value.String("b"), "views": value.Int(3)},
				{"title": value.String("x"), "body": value.String("x"), "views": value.Int(3)},
				{"title": value.String("x"), "body": value.String("x"), "views": value.Int(1)},
			}
			for _, row := range rows {
				before, err := Match(tree, row)
				So(err, ShouldBeNil)
				after, err := Match(Flatten(tree), row)
				So(err, ShouldBeNil)
				So(after, ShouldEqual, before)
			}
		})
	})
}

func TestMergeSearchFilters(t *testing.T) {
	Convey("测试 MergeSearchFilters", t, func() {
		m := testModel()
		title, body, tags := scalar(m, "title"), scalar(m, "body"), scalar(m, "tags")

		Convey("相同检索语句合并字段", func() {
			f := MergeSearchFilters(AndOf(Search("cat", title), Search("cat", body), Search("dog", tags)))
			and := f.(*And)
			So(len(and.Filters), ShouldEqual, 2)
			first := and.Filters[0].(*ScalarFilter)
			So(first.Projection.Fields, ShouldResemble, []*schema.ScalarField{title, body})
			So(first.Condition.Value, ShouldEqual, value.String("cat"))
			second := and.Filters[1].(*ScalarFilter)
			So(second.Projection.Fields, ShouldResemble, []*schema.ScalarField{tags})
		})

		Convey("先展开再合并", func() {
			f := MergeSearchFilters(AndOf(Search("cat", title), AndOf(Search("cat", body))))
			and := f.(*And)
			So(len(and.Filters), ShouldEqual, 1)
			So(len(and.Filters[0].(*ScalarFilter).Projection.Fields), ShouldEqual, 2)
		})

		Convey("不同极性不合并", func() {
			neg := Search("cat", body)
			neg.Condition = neg.Condition.Invert()
			f := MergeSearchFilters(OrOf(Search("cat", title), neg))
			So(len(f.(*Or).Filters), ShouldEqual, 2)
		})

		Convey("不同分组不合并", func() {
			f := MergeSearchFilters(AndOf(Search("cat", title), OrOf(Search("cat", body), Equals(title, value.String("x")))))
			and := f.(*And)
			So(len(and.Filters), ShouldEqual, 2)
			So(len(and.Filters[0].(*ScalarFilter).Projection.Fields), ShouldEqual, 1)
		})

		Convey("不修改输入", func() {
			s1, s2 := Search("cat", title), Search("cat", body)
			_ = MergeSearchFilters(AndOf(s1, s2))
			So(len(s1.Projection.Fields), ShouldEqual, 1)
		})

		Convey("Or 分组内合并前后结果一致", func() {
			tree := OrOf(Search("red fox", title), OrOf(Search("red fox", body)), Search("red fox", tags))
			merged := MergeSearchFilters(tree)
			So(len(merged.(*Or).Filters), ShouldEqual, 1)
			rows := []map[string]value.Value{
				{"title": value.String("The red fox"), "body": value.String("")},
				{"title": value.String("blue"), "body": value.String("a RED FOX runs")},
				{"title": value.String("blue"), "body": value.String("green"), "tags": value.String("fox red")},
				{"title": value.String("blue"), "body": value.String("green")},
			}
			for _, row := range rows {
				before, _ := Match(tree, row)
				after, _ := Match(merged, row)
				So(after, ShouldEqual, before)
			}
		})
	})
}

func TestBatch(t *testing.T) {
	Convey("测试 Batch", t, func() {
		m := testModel()
		id := scalar(m, "id")
		var vs []value.Value
		for i := 0; i < 12; i++ {
			vs = append(vs, value.Int(i))
		}
		vs = append(vs, value.Int(3), value.Int(5))

		Convey("In 拆分为 Or", func() {
			f := Batch(In(id, vs), 5)
			or, ok := f.(*Or)
			So(ok, ShouldBeTrue)
			So(len(or.Filters), ShouldEqual, 3)
			So(len(or.Filters[2].(*ScalarFilter).Condition.Values), ShouldEqual, 2)
		})

		Convey("NotIn 拆分为 And", func() {
			f := Batch(NotOf(NotIn(id, vs)), 5)
			not := f.(*Not)
			_, ok := not.Filters[0].(*And)
			So(ok, ShouldBeTrue)
		})

		Convey("去重后不超过上限不拆分", func() {
			f := Batch(In(id, vs), 12)
			So(len(f.(*ScalarFilter).Condition.Values), ShouldEqual, 12)
		})

		Convey("Chunk", func() {
			So(Chunk([]int{1, 2, 3}, 2), ShouldResemble, [][]int{{1, 2}, {3}})
			So(len(Chunk([]int{}, 2)), ShouldEqual, 1)
		})
	})
}

func TestMatch(t *testing.T) {
	Convey("测试 Match", t, func() {
		m := testModel()
		title, views := scalar(m, "title"), scalar(m, "views")
		row := map[string]value.Value{"title": value.String("Hello World"), "views": value.Int(10)}

		for _, c := range []struct {
			f      Filter
			expect bool
		}{
			{Equals(title, value.String("Hello World")), true},
			{&ScalarFilter{Projection: Single(title), Condition: Condition{Op: OpEquals, Value: value.String("hello world")}, Mode: ModeInsensitive}, true},
			{NewScalar(title, OpContains, value.String("World")), true},
			{NewScalar(title, OpStartsWith, value.String("World")), false},
			{NewScalar(title, OpEndsWith, value.String("World")), true},
			{NewScalar(views, OpGreaterThan, value.Int(9)), true},
			{NewScalar(views, OpLessThanOrEquals, value.Float(9.5)), false},
			{In(views, []value.Value{value.Int(1), value.Int(10)}), true},
			{NotIn(views, []value.Value{value.Int(10)}), false},
			{NewScalar(scalar(m, "tags"), OpIsSet, value.Bool(false)), true},
			{MatchAll(), true},
			{MatchNone(), false},
			{NotOf(), true},
		} {
			ok, err := Match(c.f, row)
			So(err, ShouldBeNil)
			So(ok, ShouldEqual, c.expect)
		}

		Convey("关系过滤不支持", func() {
			_, err := Match(&OneRelationIsNull{}, row)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestOpInvert(t *testing.T) {
	Convey("测试 Op.Invert", t, func() {
		for op := OpEquals; op < OpIsSet; op++ {
			So(op.Invert().Invert(), ShouldEqual, op)
			So(op.Invert(), ShouldNotEqual, op)
		}
		c := Condition{Op: OpIsSet, Value: value.Bool(true)}.Invert()
		So(c.Value, ShouldEqual, value.Bool(false))
		So(fmt.Sprint(OpLessThan), ShouldEqual, "lt")
	})
}
