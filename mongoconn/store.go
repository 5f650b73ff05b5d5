package mongoconn

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hatlonely/qcore/log"
)

// FindOptions 查询参数，Limit 为 0 表示不限制
type FindOptions struct {
	Projection bson.D
	Sort       bson.D
	Skip       int64
	Limit      int64
}

// Store 集合级别的读写，由连接池和会话分别实现
//
// 返回驱动的原始错误，由调用方统一转换
type Store interface {
	Find(ctx context.Context, coll string, filter bson.M, opts FindOptions) ([]bson.D, error)
	Count(ctx context.Context, coll string, filter bson.M) (int64, error)
	InsertOne(ctx context.Context, coll string, doc bson.D) (interface{}, error)
	InsertMany(ctx context.Context, coll string, docs []interface{}, ordered bool) error
	// UpdateMany 返回匹配的文档数，update 可以是操作符文档或者聚合管道
	UpdateMany(ctx context.Context, coll string, filter bson.M, update interface{}) (int64, error)
	DeleteMany(ctx context.Context, coll string, filter bson.M) (int64, error)
}

type mongoStore struct {
	db      *mongo.Database
	session mongo.Session
	logger  log.Logger
}

func newMongoStore(db *mongo.Database, session mongo.Session, logger log.Logger) *mongoStore {
	return &mongoStore{db: db, session: session, logger: logger}
}

// context 在会话中执行时携带会话
func (s *mongoStore) context(ctx context.Context) context.Context {
	if s.session == nil {
		return ctx
	}
	return mongo.NewSessionContext(ctx, s.session)
}

func (s *mongoStore) trace(ctx context.Context, op string, coll string, filter interface{}, start time.Time, err error) {
	if err != nil {
		s.logger.DebugContext(ctx, "mongo failed", "op", op, "collection", coll, "filter", filter, "elapsed", time.Since(start), "error", err)
		return
	}
	s.logger.DebugContext(ctx, "mongo", "op", op, "collection", coll, "filter", filter, "elapsed", time.Since(start))
}

func (s *mongoStore) Find(ctx context.Context, coll string, filter bson.M, opts FindOptions) ([]bson.D, error) {
	start := time.Now()
	findOptions := options.Find()
	if len(opts.Projection) > 0 {
		findOptions.SetProjection(opts.Projection)
	}
	if len(opts.Sort) > 0 {
		findOptions.SetSort(opts.Sort)
	}
	if opts.Skip > 0 {
		findOptions.SetSkip(opts.Skip)
	}
	if opts.Limit > 0 {
		findOptions.SetLimit(opts.Limit)
	}

	var docs []bson.D
	cursor, err := s.db.Collection(coll).Find(s.context(ctx), filter, findOptions)
	if err == nil {
		defer cursor.Close(ctx)
		err = cursor.All(s.context(ctx), &docs)
	}
	s.trace(ctx, "find", coll, filter, start, err)
	return docs, err
}

func (s *mongoStore) Count(ctx context.Context, coll string, filter bson.M) (int64, error) {
	start := time.Now()
	n, err := s.db.Collection(coll).CountDocuments(s.context(ctx), filter)
	s.trace(ctx, "count", coll, filter, start, err)
	return n, err
}

func (s *mongoStore) InsertOne(ctx context.Context, coll string, doc bson.D) (interface{}, error) {
	start := time.Now()
	res, err := s.db.Collection(coll).InsertOne(s.context(ctx), doc)
	s.trace(ctx, "insertOne", coll, nil, start, err)
	if err != nil {
		return nil, err
	}
	return res.InsertedID, nil
}

func (s *mongoStore) InsertMany(ctx context.Context, coll string, docs []interface{}, ordered bool) error {
	start := time.Now()
	_, err := s.db.Collection(coll).InsertMany(s.context(ctx), docs, options.InsertMany().SetOrdered(ordered))
	s.trace(ctx, "insertMany", coll, nil, start, err)
	return err
}

func (s *mongoStore) UpdateMany(ctx context.Context, coll string, filter bson.M, update interface{}) (int64, error) {
	start := time.Now()
	res, err := s.db.Collection(coll).UpdateMany(s.context(ctx), filter, update)
	s.trace(ctx, "updateMany", coll, filter, start, err)
	if err != nil {
		return 0, err
	}
	return res.MatchedCount, nil
}

func (s *mongoStore) DeleteMany(ctx context.Context, coll string, filter bson.M) (int64, error) {
	start := time.Now()
	res, err := s.db.Collection(coll).DeleteMany(s.context(ctx), filter)
	s.trace(ctx, "deleteMany", coll, filter, start, err)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
