package cache

import (
	"context"
	"time"

	"github.com/coocood/freecache"
	"github.com/pkg/errors"
)

type FreecacheStoreOptions struct {
	// Size 缓存总字节数，freecache 最小 512KB
	Size       int           `cfg:"size" def:"33554432" validate:"gte=524288"`
	DefaultTTL time.Duration `cfg:"defaultTTL" def:"1m"`
}

// FreecacheStore 进程内缓存，超过容量时按近似 LRU 淘汰
type FreecacheStore[V any] struct {
	cache      *freecache.Cache
	defaultTTL time.Duration
	serializer Serializer[V]
}

func NewFreecacheStoreWithOptions[V any](options *FreecacheStoreOptions) *FreecacheStore[V] {
	return &FreecacheStore[V]{
		cache:      freecache.NewCache(options.Size),
		defaultTTL: options.DefaultTTL,
		serializer: NewMsgPackSerializer[V](),
	}
}

func (s *FreecacheStore[V]) Set(ctx context.Context, key string, value V, opts ...setOption) error {
	buf, err := s.serializer.Serialize(value)
	if err != nil {
		return errors.Wrap(err, "serialize cache value failed")
	}
	expiration := applySetOptions(s.defaultTTL, opts)
	return s.cache.Set([]byte(key), buf, int(expiration.Seconds()))
}

func (s *FreecacheStore[V]) Get(ctx context.Context, key string) (V, error) {
	var zero V
	buf, err := s.cache.Get([]byte(key))
	if err != nil {
		return zero, ErrKeyNotFound
	}
	v, err := s.serializer.Deserialize(buf)
	if err != nil {
		return zero, errors.Wrap(err, "deserialize cache value failed")
	}
	return v, nil
}

func (s *FreecacheStore[V]) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		s.cache.Del([]byte(key))
	}
	return nil
}

func (s *FreecacheStore[V]) Close() error {
	s.cache.Clear()
	return nil
}
