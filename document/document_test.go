package document

import (
	"testing"

	"github.com/hatlonely/qcore/value"
	. "github.com/smartystreets/goconvey/convey"
)

func TestParsedInputMap(t *testing.T) {
	Convey("测试 ParsedInputMap", t, func() {
		m := Map("b", 1, "a", "x", "c", Map("equals", true))

		Convey("保持插入顺序", func() {
			So(m.Keys(), ShouldResemble, []string{"b", "a", "c"})
			m.Set("b", From(2))
			So(m.Keys(), ShouldResemble, []string{"b", "a", "c"})
		})

		Convey("Remove 返回被删除的值", func() {
			v, ok := m.Remove("a")
			So(ok, ShouldBeTrue)
			So(v, ShouldResemble, Single{Value: value.String("x")})
			So(m.Keys(), ShouldResemble, []string{"b", "c"})
			_, ok = m.Remove("a")
			So(ok, ShouldBeFalse)
		})

		Convey("关系过滤包装键", func() {
			So(m.IsRelationEnvelope(), ShouldBeFalse)
			So(Map("some", Map("id", 1)).IsRelationEnvelope(), ShouldBeTrue)
		})

		Convey("转换为 Value", func() {
			So(ToValue(Map("x", []any{1, "y"})), ShouldResemble, value.Object{
				{Key: "x", Value: value.List{value.Int(1), value.String("y")}},
			})
		})
	})
}

func TestDecode(t *testing.T) {
	Convey("测试 Decode", t, func() {
		Convey("JSON 文档保持键顺序", func() {
			m, err := DecodeMap([]byte(`{"z": 1, "a": {"in": [1, 2.5, "s", null, true]}, "m": "insensitive"}`))
			So(err, ShouldBeNil)
			So(m.Keys(), ShouldResemble, []string{"z", "a", "m"})
			a, _ := m.Get("a")
			in, _ := a.(*ParsedInputMap).Get("in")
			So(in, ShouldResemble, List{
				Single{Value: value.Int(1)},
				Single{Value: value.Float(2.5)},
				Single{Value: value.String("s")},
				Single{Value: value.Null{}},
				Single{Value: value.Bool(true)},
			})
		})

		Convey("YAML 文档", func() {
			m, err := DecodeMap([]byte("AND:\n  - name: a\n  - age: {gt: 3}\n"))
			So(err, ShouldBeNil)
			and, _ := m.Get("AND")
			So(len(and.(List)), ShouldEqual, 2)
		})

		Convey("顶层不是对象", func() {
			_, err := DecodeMap([]byte(`[1, 2]`))
			So(err, ShouldNotBeNil)
		})
	})
}
