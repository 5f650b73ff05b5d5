package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/bytedance/mockey"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/hatlonely/qcore/connector"
	"github.com/hatlonely/qcore/log"
	"github.com/hatlonely/qcore/schema"
	"github.com/hatlonely/qcore/selection"
	"github.com/hatlonely/qcore/value"
)

func shopSchema() *schema.Schema {
	b := schema.NewBuilder(schema.ProviderPostgres)
	b.Model("Product", func(m *schema.ModelBuilder) {
		m.Scalar("id", value.TypeInt).ID()
		m.Scalar("name", value.TypeString).DB("product_name")
		m.Scalar("price", value.TypeFloat)
		m.Scalar("createdAt", value.TypeDateTime)
		m.Relation("reviews", "Review").List()
	})
	b.Model("Review", func(m *schema.ModelBuilder) {
		m.Scalar("id", value.TypeInt).ID()
		m.Scalar("productId", value.TypeInt)
		m.Relation("product", "Product").Fields("productId").References("id")
	})
	return b.MustBuild()
}

func productModel() *schema.Model {
	m, ok := shopSchema().FindModel("Product")
	if !ok {
		panic("model not found: Product")
	}
	return m
}

func productID(m *schema.Model, id int64) selection.SelectionResult {
	pk := m.PrimaryIdentifier()[0]
	return selection.NewSelectionResultBuilder().Add(pk, value.Int(id)).Build()
}

func scalars(m *schema.Model, names ...string) selection.FieldSelection {
	var fields []selection.SelectedField
	for _, n := range names {
		f, ok := m.FindScalar(n)
		if !ok {
			panic("scalar not found: " + n)
		}
		fields = append(fields, selection.Scalar(f))
	}
	return selection.New(fields...)
}

func newFreecacheRecordCache() *RecordCache {
	store := NewFreecacheStoreWithOptions[Entry](&FreecacheStoreOptions{Size: 1024 * 1024, DefaultTTL: time.Minute})
	return NewRecordCache(store, "test", time.Minute, log.Discard())
}

func TestFreecacheStore(t *testing.T) {
	Convey("FreecacheStore", t, func() {
		ctx := context.Background()
		store := NewFreecacheStoreWithOptions[Entry](&FreecacheStoreOptions{Size: 1024 * 1024, DefaultTTL: time.Minute})
		defer store.Close()

		Convey("不存在的键返回 ErrKeyNotFound", func() {
			_, err := store.Get(ctx, "missing")
			So(errors.Is(err, ErrKeyNotFound), ShouldBeTrue)
		})

		Convey("写入后读取", func() {
			So(store.Set(ctx, "k", Entry{Columns: []string{"id"}, Values: []interface{}{int64(1)}}), ShouldBeNil)
			e, err := store.Get(ctx, "k")
			So(err, ShouldBeNil)
			So(e.Columns, ShouldResemble, []string{"id"})
			So(value.FromAny(e.Values[0]), ShouldEqual, value.Int(1))

			So(store.Del(ctx, "k", "not-exist"), ShouldBeNil)
			_, err = store.Get(ctx, "k")
			So(errors.Is(err, ErrKeyNotFound), ShouldBeTrue)
		})
	})
}

func TestRedisStore(t *testing.T) {
	Convey("RedisStore", t, func() {
		ctx := context.Background()
		mr := miniredis.RunT(t)
		store, err := NewRedisStoreWithOptions[Entry](&RedisStoreOptions{Endpoint: mr.Addr(), DefaultTTL: time.Minute})
		So(err, ShouldBeNil)
		defer store.Close()

		Convey("写入后读取", func() {
			So(store.Set(ctx, "k", Entry{Columns: []string{"name"}, Values: []interface{}{"apple"}}), ShouldBeNil)
			e, err := store.Get(ctx, "k")
			So(err, ShouldBeNil)
			So(e.Values, ShouldResemble, []interface{}{"apple"})
			So(mr.TTL("k"), ShouldEqual, time.Minute)
		})

		Convey("自定义过期时间", func() {
			So(store.Set(ctx, "k", Entry{}, WithExpiration(5*time.Second)), ShouldBeNil)
			So(mr.TTL("k"), ShouldEqual, 5*time.Second)
			mr.FastForward(6 * time.Second)
			_, err := store.Get(ctx, "k")
			So(errors.Is(err, ErrKeyNotFound), ShouldBeTrue)
		})

		Convey("未配置地址", func() {
			_, err := NewRedisStoreWithOptions[Entry](&RedisStoreOptions{})
			So(err, ShouldNotBeNil)
		})

		Convey("连接失败", func() {
			addr := mr.Addr()
			mr.Close()
			_, err := NewRedisStoreWithOptions[Entry](&RedisStoreOptions{Endpoint: addr, DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
			So(err, ShouldNotBeNil)
		})
	})
}

func TestRecordCache(t *testing.T) {
	Convey("RecordCache", t, func() {
		ctx := context.Background()
		m := productModel()
		c := newFreecacheRecordCache()
		defer c.Close()

		created := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)
		full := scalars(m, "id", "name", "price", "createdAt")
		record := &connector.SingleRecord{
			Record:     connector.Record{Values: []value.Value{value.Int(7), value.String("pen"), value.Float(2.5), value.DateTime(created)}},
			FieldNames: full.DBNames(),
		}

		Convey("未缓存时不命中", func() {
			r, err := c.Get(ctx, m, productID(m, 7), full)
			So(err, ShouldBeNil)
			So(r, ShouldBeNil)
		})

		Convey("缓存的字段覆盖请求时按请求顺序返回", func() {
			So(c.Put(ctx, m, productID(m, 7), record), ShouldBeNil)

			requested := scalars(m, "price", "name")
			r, err := c.Get(ctx, m, productID(m, 7), requested)
			So(err, ShouldBeNil)
			So(r, ShouldNotBeNil)
			So(r.FieldNames, ShouldResemble, []string{"price", "product_name"})
			So(r.Record.Values, ShouldResemble, []value.Value{value.Float(2.5), value.String("pen")})

			r, err = c.Get(ctx, m, productID(m, 7), full)
			So(err, ShouldBeNil)
			So(value.Equal(r.Record.Values[3], value.DateTime(created)), ShouldBeTrue)

			r, err = c.Get(ctx, m, productID(m, 8), requested)
			So(err, ShouldBeNil)
			So(r, ShouldBeNil)
		})

		Convey("缓存的字段不足时不命中", func() {
			partial := scalars(m, "id", "name")
			So(c.Put(ctx, m, productID(m, 7), &connector.SingleRecord{
				Record:     connector.Record{Values: []value.Value{value.Int(7), value.String("pen")}},
				FieldNames: partial.DBNames(),
			}), ShouldBeNil)

			r, err := c.Get(ctx, m, productID(m, 7), full)
			So(err, ShouldBeNil)
			So(r, ShouldBeNil)

			Convey("再次写入后合并已缓存的列", func() {
				So(c.Put(ctx, m, productID(m, 7), &connector.SingleRecord{
					Record:     connector.Record{Values: []value.Value{value.Float(3), value.DateTime(created)}},
					FieldNames: scalars(m, "price", "createdAt").DBNames(),
				}), ShouldBeNil)
				r, err := c.Get(ctx, m, productID(m, 7), full)
				So(err, ShouldBeNil)
				So(r, ShouldNotBeNil)
				So(r.Record.Values[1], ShouldEqual, value.String("pen"))
				So(r.Record.Values[2], ShouldEqual, value.Float(3))
			})
		})

		Convey("关系计数可以缓存", func() {
			rf, _ := m.FindRelation("reviews")
			sel := selection.New(selection.Scalar(m.PrimaryIdentifier()[0]), selection.Count(rf))
			So(c.Put(ctx, m, productID(m, 7), &connector.SingleRecord{
				Record:     connector.Record{Values: []value.Value{value.Int(7), value.Int(3)}},
				FieldNames: sel.DBNames(),
			}), ShouldBeNil)
			r, err := c.Get(ctx, m, productID(m, 7), sel)
			So(err, ShouldBeNil)
			So(r.Record.Values, ShouldResemble, []value.Value{value.Int(7), value.Int(3)})
		})

		Convey("包含关系字段的请求不走缓存", func() {
			So(c.Put(ctx, m, productID(m, 7), record), ShouldBeNil)
			rf, _ := m.FindRelation("reviews")
			requested := full.Merge(selection.New(&selection.RelationSelection{Field: rf}))
			So(Cacheable(m, requested), ShouldBeFalse)
			r, err := c.Get(ctx, m, productID(m, 7), requested)
			So(err, ShouldBeNil)
			So(r, ShouldBeNil)
		})

		Convey("失效后不命中", func() {
			So(c.Put(ctx, m, productID(m, 7), record), ShouldBeNil)
			So(c.Invalidate(ctx, m, productID(m, 7), productID(m, 9)), ShouldBeNil)
			r, err := c.Get(ctx, m, productID(m, 7), full)
			So(err, ShouldBeNil)
			So(r, ShouldBeNil)
		})

		Convey("无法转换的缓存值被丢弃", func() {
			So(c.store.Set(ctx, c.key(m, productID(m, 7)), Entry{Columns: []string{"price"}, Values: []interface{}{"not a number"}}), ShouldBeNil)
			r, err := c.Get(ctx, m, productID(m, 7), scalars(m, "price"))
			So(err, ShouldBeNil)
			So(r, ShouldBeNil)
			_, err = c.store.Get(ctx, c.key(m, productID(m, 7)))
			So(errors.Is(err, ErrKeyNotFound), ShouldBeTrue)
		})
	})
}

func TestRecordCacheRedis(t *testing.T) {
	PatchConvey("RecordCache redis", t, func() {
		ctx := context.Background()
		mr := miniredis.RunT(t)
		m := productModel()
		c, err := NewRecordCacheWithOptions(&RecordCacheOptions{
			Type:      "redis",
			KeyPrefix: "shop",
			TTL:       30 * time.Second,
			Redis:     RedisStoreOptions{Endpoint: mr.Addr()},
		}, log.Discard())
		So(err, ShouldBeNil)
		defer c.Close()

		sel := scalars(m, "id", "name")
		So(c.Put(ctx, m, productID(m, 1), &connector.SingleRecord{
			Record:     connector.Record{Values: []value.Value{value.Int(1), value.String("cup")}},
			FieldNames: sel.DBNames(),
		}), ShouldBeNil)

		Convey("键由前缀、模型名和主键组成", func() {
			So(mr.Exists("shop:Product:"+productID(m, 1).Key()), ShouldBeTrue)
			So(mr.TTL("shop:Product:"+productID(m, 1).Key()), ShouldEqual, 30*time.Second)
		})

		Convey("读取", func() {
			r, err := c.Get(ctx, m, productID(m, 1), sel)
			So(err, ShouldBeNil)
			So(r.Record.Values, ShouldResemble, []value.Value{value.Int(1), value.String("cup")})
		})

		Convey("redis 异常时返回错误", func() {
			Mock((*redis.StringCmd).Bytes).Return(nil, errors.New("connection reset")).Build()
			r, err := c.Get(ctx, m, productID(m, 1), sel)
			So(err, ShouldNotBeNil)
			So(r, ShouldBeNil)
		})
	})
}
