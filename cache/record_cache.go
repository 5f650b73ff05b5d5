package cache

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/hatlonely/qcore/connector"
	"github.com/hatlonely/qcore/log"
	"github.com/hatlonely/qcore/schema"
	"github.com/hatlonely/qcore/selection"
	"github.com/hatlonely/qcore/value"
)

type RecordCacheOptions struct {
	// Type 存储类型：freecache 或 redis
	Type      string                `cfg:"type" def:"freecache" validate:"oneof=freecache redis"`
	KeyPrefix string                `cfg:"keyPrefix" def:"qcore"`
	TTL       time.Duration         `cfg:"ttl" def:"1m"`
	Freecache FreecacheStoreOptions `cfg:"freecache"`
	Redis     RedisStoreOptions     `cfg:"redis"`
}

// Entry 缓存的一行，Columns 为数据库字段名
type Entry struct {
	Columns []string      `msgpack:"c"`
	Values  []interface{} `msgpack:"v"`
}

func (e *Entry) index(name string) int {
	for i, c := range e.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// RecordCache 以 模型名+主键 为键缓存记录
//
// 只缓存标量字段和关系计数，关系字段和复合字段的查询不走缓存
type RecordCache struct {
	store  Store[Entry]
	prefix string
	ttl    time.Duration
	logger log.Logger
}

func NewRecordCacheWithOptions(options *RecordCacheOptions, logger log.Logger) (*RecordCache, error) {
	if logger == nil {
		logger = log.Default().With("module", "cache")
	}
	var store Store[Entry]
	switch options.Type {
	case "redis":
		s, err := NewRedisStoreWithOptions[Entry](&options.Redis)
		if err != nil {
			return nil, errors.WithMessage(err, "NewRedisStoreWithOptions failed")
		}
		store = s
	default:
		store = NewFreecacheStoreWithOptions[Entry](&options.Freecache)
	}
	return NewRecordCache(store, options.KeyPrefix, options.TTL, logger), nil
}

func NewRecordCache(store Store[Entry], prefix string, ttl time.Duration, logger log.Logger) *RecordCache {
	if logger == nil {
		logger = log.Default().With("module", "cache")
	}
	return &RecordCache{store: store, prefix: prefix, ttl: ttl, logger: logger}
}

func (c *RecordCache) key(model *schema.Model, id selection.SelectionResult) string {
	return c.prefix + ":" + model.Name + ":" + id.Key()
}

// Cacheable 请求的字段能否由缓存提供
func Cacheable(model *schema.Model, requested selection.FieldSelection) bool {
	_, ok := selection.FromDBNames(model, requested.DBNames())
	return ok
}

// Get 缓存的字段覆盖 requested 时返回按 requested 排列的记录，否则返回 nil
func (c *RecordCache) Get(ctx context.Context, model *schema.Model, id selection.SelectionResult, requested selection.FieldSelection) (*connector.SingleRecord, error) {
	if !Cacheable(model, requested) {
		return nil, nil
	}
	entry, err := c.store.Get(ctx, c.key(model, id))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WithMessage(err, "store.Get failed")
	}
	cached, ok := selection.FromDBNames(model, entry.Columns)
	if !ok || !cached.IsSupersetOf(requested) {
		return nil, nil
	}

	values := make([]value.Value, 0, requested.Len())
	for _, f := range requested.Fields {
		i := entry.index(f.DBName())
		if i < 0 || i >= len(entry.Values) {
			return nil, nil
		}
		v, err := selection.Coerce(f, value.FromAny(entry.Values[i]))
		if err != nil {
			c.logger.Warn("drop broken cache entry", "model", model.Name, "column", f.DBName(), "error", err)
			_ = c.store.Del(ctx, c.key(model, id))
			return nil, nil
		}
		values = append(values, v)
	}
	return &connector.SingleRecord{
		Record:     connector.Record{Values: values},
		FieldNames: requested.DBNames(),
	}, nil
}

// Put 写入记录，与已缓存的列合并，record 中的值优先
func (c *RecordCache) Put(ctx context.Context, model *schema.Model, id selection.SelectionResult, record *connector.SingleRecord) error {
	if record == nil {
		return nil
	}
	if _, ok := selection.FromDBNames(model, record.FieldNames); !ok {
		return nil
	}
	key := c.key(model, id)
	entry := Entry{
		Columns: append([]string{}, record.FieldNames...),
		Values:  make([]interface{}, 0, len(record.Record.Values)),
	}
	for _, v := range record.Record.Values {
		entry.Values = append(entry.Values, value.ToAny(v))
	}

	old, err := c.store.Get(ctx, key)
	if err == nil {
		for i, col := range old.Columns {
			if entry.index(col) >= 0 || i >= len(old.Values) {
				continue
			}
			entry.Columns = append(entry.Columns, col)
			entry.Values = append(entry.Values, old.Values[i])
		}
	} else if !errors.Is(err, ErrKeyNotFound) {
		return errors.WithMessage(err, "store.Get failed")
	}

	if err := c.store.Set(ctx, key, entry, WithExpiration(c.ttl)); err != nil {
		return errors.WithMessage(err, "store.Set failed")
	}
	return nil
}

// Invalidate 删除记录的缓存
func (c *RecordCache) Invalidate(ctx context.Context, model *schema.Model, ids ...selection.SelectionResult) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, c.key(model, id))
	}
	if err := c.store.Del(ctx, keys...); err != nil {
		return errors.WithMessage(err, "store.Del failed")
	}
	return nil
}

func (c *RecordCache) Close() error {
	return c.store.Close()
}
