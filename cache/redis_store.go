package cache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type RedisStoreOptions struct {
	// host:port 地址
	Endpoint string `cfg:"endpoint"`
	// 集群节点地址列表，Endpoint 为空时使用
	Endpoints    []string      `cfg:"endpoints"`
	Username     string        `cfg:"username"`
	Password     string        `cfg:"password"`
	DB           int           `cfg:"db" def:"0"`
	DefaultTTL   time.Duration `cfg:"defaultTTL" def:"1m"`
	MaxRetries   int           `cfg:"maxRetries" def:"3"`
	DialTimeout  time.Duration `cfg:"dialTimeout" def:"5s"`
	ReadTimeout  time.Duration `cfg:"readTimeout" def:"3s"`
	WriteTimeout time.Duration `cfg:"writeTimeout" def:"3s"`
	PoolSize     int           `cfg:"poolSize" def:"100"`
}

// RedisStore 多个进程共享的缓存
type RedisStore[V any] struct {
	client     redis.UniversalClient
	defaultTTL time.Duration
	serializer Serializer[V]
}

func NewRedisStoreWithOptions[V any](options *RedisStoreOptions) (*RedisStore[V], error) {
	var client redis.UniversalClient
	if options.Endpoint != "" {
		client = redis.NewClient(&redis.Options{
			Addr:         options.Endpoint,
			Username:     options.Username,
			Password:     options.Password,
			DB:           options.DB,
			MaxRetries:   options.MaxRetries,
			DialTimeout:  options.DialTimeout,
			ReadTimeout:  options.ReadTimeout,
			WriteTimeout: options.WriteTimeout,
			PoolSize:     options.PoolSize,
		})
	} else if len(options.Endpoints) > 0 {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        options.Endpoints,
			Username:     options.Username,
			Password:     options.Password,
			MaxRetries:   options.MaxRetries,
			DialTimeout:  options.DialTimeout,
			ReadTimeout:  options.ReadTimeout,
			WriteTimeout: options.WriteTimeout,
			PoolSize:     options.PoolSize,
		})
	} else {
		return nil, errors.New("Endpoint or Endpoints must be set")
	}

	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, errors.WithMessage(err, "redis.client.Ping failed")
	}
	return &RedisStore[V]{
		client:     client,
		defaultTTL: options.DefaultTTL,
		serializer: NewMsgPackSerializer[V](),
	}, nil
}

func (s *RedisStore[V]) Set(ctx context.Context, key string, value V, opts ...setOption) error {
	buf, err := s.serializer.Serialize(value)
	if err != nil {
		return errors.Wrap(err, "serialize cache value failed")
	}
	expiration := applySetOptions(s.defaultTTL, opts)
	if err := s.client.Set(ctx, key, buf, expiration).Err(); err != nil {
		return errors.Wrap(err, "redis set failed")
	}
	return nil
}

func (s *RedisStore[V]) Get(ctx context.Context, key string) (V, error) {
	var zero V
	buf, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return zero, ErrKeyNotFound
	}
	if err != nil {
		return zero, errors.Wrap(err, "redis get failed")
	}
	v, err := s.serializer.Deserialize(buf)
	if err != nil {
		return zero, errors.Wrap(err, "deserialize cache value failed")
	}
	return v, nil
}

func (s *RedisStore[V]) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return errors.Wrap(err, "redis del failed")
	}
	return nil
}

func (s *RedisStore[V]) Close() error {
	return s.client.Close()
}
