package uid

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type RedisGeneratorOptions struct {
	Endpoint  string        `cfg:"endpoint" def:"localhost:6379"`
	Password  string        `cfg:"password"`
	DB        int           `cfg:"db" def:"0"`
	KeyPrefix string        `cfg:"keyPrefix" def:"qcore:seq"`
	Timeout   time.Duration `cfg:"timeout" def:"3s"`
}

// RedisGenerator 基于 redis INCR 的分布式计数器
type RedisGenerator struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

func NewRedisGeneratorWithOptions(options *RedisGeneratorOptions) (*RedisGenerator, error) {
	if options.Timeout == 0 {
		options.Timeout = 3 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:     options.Endpoint,
		Password: options.Password,
		DB:       options.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), options.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.WithMessage(err, "redis.client.Ping failed")
	}
	return &RedisGenerator{
		client:  client,
		prefix:  options.KeyPrefix,
		timeout: options.Timeout,
	}, nil
}

// Next 返回 key 对应计数器的下一个值，从 1 开始
func (g *RedisGenerator) Next(ctx context.Context, key string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	n, err := g.client.Incr(ctx, g.prefix+":"+key).Result()
	if err != nil {
		return 0, errors.Wrapf(err, "redis incr %s failed", key)
	}
	return n, nil
}

// Generate 高 52 位毫秒时间戳 + 低 12 位序列号，序列号由 redis 按毫秒计数
//
// redis 不可用时退化为本地时间戳，此时不保证唯一
func (g *RedisGenerator) Generate() int64 {
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	ts := time.Now().UnixMilli()
	key := g.prefix + ":ts:" + time.UnixMilli(ts).UTC().Format("20060102150405.000")
	n, err := g.client.Incr(ctx, key).Result()
	if err != nil {
		return ts << sequenceBits
	}
	g.client.Expire(ctx, key, 2*time.Second)

	if n > maxSequence+1 {
		time.Sleep(time.Millisecond)
		return g.Generate()
	}
	return (ts << sequenceBits) | (n - 1)
}

func (g *RedisGenerator) Close() error {
	return g.client.Close()
}
