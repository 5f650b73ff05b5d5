// Package cache 按主键缓存记录，命中条件是缓存的字段覆盖请求的字段
package cache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

var ErrKeyNotFound = errors.New("key not found")

type setOptions struct {
	Expiration time.Duration
}

type setOption func(*setOptions)

func WithExpiration(expiration time.Duration) setOption {
	return func(options *setOptions) {
		options.Expiration = expiration
	}
}

// Store 缓存存储
type Store[V any] interface {
	Set(ctx context.Context, key string, value V, opts ...setOption) error
	// Get 键不存在时返回 ErrKeyNotFound
	Get(ctx context.Context, key string) (V, error)
	// Del 键不存在时也返回成功
	Del(ctx context.Context, keys ...string) error
	Close() error
}

type Serializer[T any] interface {
	Serialize(from T) ([]byte, error)
	Deserialize(to []byte) (T, error)
}

type MsgPackSerializer[T any] struct{}

func NewMsgPackSerializer[T any]() *MsgPackSerializer[T] {
	return &MsgPackSerializer[T]{}
}

func (s *MsgPackSerializer[T]) Serialize(from T) ([]byte, error) {
	return msgpack.Marshal(from)
}

func (s *MsgPackSerializer[T]) Deserialize(to []byte) (T, error) {
	var result T
	err := msgpack.Unmarshal(to, &result)
	return result, err
}

func applySetOptions(defaultTTL time.Duration, opts []setOption) time.Duration {
	options := &setOptions{}
	for _, opt := range opts {
		opt(options)
	}
	if options.Expiration == 0 {
		return defaultTTL
	}
	return options.Expiration
}
