package mongoconn

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/hatlonely/qcore/connector"
	"github.com/hatlonely/qcore/filter"
	"github.com/hatlonely/qcore/log"
	"github.com/hatlonely/qcore/normalize"
	"github.com/hatlonely/qcore/qerror"
	"github.com/hatlonely/qcore/query"
	"github.com/hatlonely/qcore/schema"
	"github.com/hatlonely/qcore/selection"
	"github.com/hatlonely/qcore/value"
)

// operations 读写操作的实现，连接池和会话共用
type operations struct {
	store      Store
	logger     log.Logger
	normalizer normalize.Normalizer
}

func newOperations(store Store, logger log.Logger) *operations {
	return &operations{
		store:      store,
		logger:     logger,
		normalizer: normalize.For(schema.ProviderMongoDB),
	}
}

func (o *operations) normalize(err error) error {
	if err == nil {
		return nil
	}
	return o.normalizer.Normalize(err)
}

// compile 关系过滤在编译时先查询关联集合
func (o *operations) compile(ctx context.Context, f filter.Filter) (bson.M, error) {
	c := query.NewCompiler(query.Dialect(schema.ProviderMongoDB), &relations{ctx: ctx, o: o})
	q, err := c.Compile(f)
	if err != nil {
		return nil, err
	}
	m, err := q.ToMongo()
	if err != nil {
		return nil, err
	}
	return bson.M(m), nil
}

func (o *operations) GetManyRecords(ctx context.Context, model *schema.Model, args connector.QueryArguments, selected selection.FieldSelection) (*connector.ManyRecords, error) {
	f, err := o.compile(ctx, args.Filter)
	if err != nil {
		return nil, err
	}
	projection, err := projectionOf(selected)
	if err != nil {
		return nil, err
	}

	opts := FindOptions{Projection: projection, Skip: int64(args.Skip)}
	orderBy := args.OrderBy
	if len(orderBy) == 0 && (args.Take != nil || args.Skip > 0) {
		for _, pk := range model.PrimaryIdentifier() {
			orderBy = append(orderBy, connector.OrderBy{Field: pk})
		}
	}
	for _, ob := range orderBy {
		dir := 1
		if ob.Desc {
			dir = -1
		}
		opts.Sort = append(opts.Sort, bson.E{Key: ob.Field.DBName(), Value: dir})
	}
	if args.Take != nil {
		if *args.Take == 0 {
			return connector.NewManyRecords(selected.DBNames()), nil
		}
		opts.Limit = int64(*args.Take)
	}

	docs, err := o.store.Find(ctx, model.DBName, f, opts)
	if err != nil {
		return nil, o.normalize(err)
	}

	records := connector.NewManyRecords(selected.DBNames())
	for _, doc := range docs {
		values, err := o.decodeDoc(ctx, selected, docMap(doc))
		if err != nil {
			return nil, err
		}
		records.Push(values)
	}
	return records, nil
}

func (o *operations) GetSingleRecord(ctx context.Context, model *schema.Model, f filter.Filter, selected selection.FieldSelection) (*connector.SingleRecord, error) {
	one := 1
	records, err := o.GetManyRecords(ctx, model, connector.QueryArguments{Filter: f, Take: &one}, selected)
	if err != nil {
		return nil, err
	}
	return records.First(), nil
}

func (o *operations) selectIDs(ctx context.Context, model *schema.Model, f filter.Filter, take *int) ([]selection.SelectionResult, error) {
	pk := selection.PrimaryKey(model)
	records, err := o.GetManyRecords(ctx, model, connector.QueryArguments{Filter: f, Take: take}, pk)
	if err != nil {
		return nil, err
	}
	return records.Identifiers(pk)
}

// projectionOf 计数需要的关联字段也要取回
func projectionOf(selected selection.FieldSelection) (bson.D, error) {
	seen := map[string]bool{}
	var out bson.D
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, bson.E{Key: name, Value: 1})
		}
	}
	for _, f := range selected.Fields {
		switch x := f.(type) {
		case *selection.ScalarSelection, *selection.CompositeSelection:
			add(x.DBName())
		case *selection.VirtualSelection:
			for _, lf := range x.Field.LinkingFields() {
				add(lf.DBName())
			}
		default:
			return nil, qerror.NewUnsupported("nested relation selection " + f.Name())
		}
	}
	return out, nil
}

func docMap(doc bson.D) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for _, e := range doc {
		out[e.Key] = e.Value
	}
	return out
}

func (o *operations) decodeDoc(ctx context.Context, selected selection.FieldSelection, doc map[string]interface{}) ([]value.Value, error) {
	out := make([]value.Value, len(selected.Fields))
	for i, f := range selected.Fields {
		var err error
		switch x := f.(type) {
		case *selection.ScalarSelection:
			out[i], err = value.FromBSON(doc[x.DBName()], x.Field.Type)
		case *selection.CompositeSelection:
			out[i], err = value.FromBSON(doc[x.DBName()], value.TypeUnsupported)
		case *selection.VirtualSelection:
			var n int64
			n, err = o.countRelated(ctx, x.Field, doc)
			out[i] = value.Int(n)
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// countRelated 外键数组时统计数组中的 id，否则统计引用本文档的记录
func (o *operations) countRelated(ctx context.Context, rf *schema.RelationField, doc map[string]interface{}) (int64, error) {
	linking := rf.LinkingFields()
	refs := rf.ReferencedFields()
	f := bson.M{}
	for i, lf := range linking {
		raw := doc[lf.DBName()]
		if raw == nil {
			return 0, nil
		}
		if arr, ok := raw.(primitive.A); ok {
			if len(arr) == 0 {
				return 0, nil
			}
			f[refs[i].DBName()] = bson.M{"$in": arr}
			continue
		}
		f[refs[i].DBName()] = raw
	}
	n, err := o.store.Count(ctx, rf.RelatedModel().DBName, f)
	if err != nil {
		return 0, o.normalize(err)
	}
	return n, nil
}
