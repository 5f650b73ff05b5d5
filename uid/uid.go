// Package uid 生成记录主键和应用层默认值：uuid、cuid、序列号
package uid

import "context"

// StrGenerator 生成字符串 id
type StrGenerator interface {
	Generate() string
}

// IntGenerator 生成 64 位整数 id，进程内唯一且递增
type IntGenerator interface {
	Generate() int64
}

// SequenceGenerator 按 key 分别计数的序列
type SequenceGenerator interface {
	Next(ctx context.Context, key string) (int64, error)
}

// IntSequence 用 IntGenerator 充当序列，所有 key 共享同一个 id 空间
type IntSequence struct {
	gen IntGenerator
}

func NewIntSequence(gen IntGenerator) *IntSequence {
	return &IntSequence{gen: gen}
}

func (s *IntSequence) Next(ctx context.Context, key string) (int64, error) {
	return s.gen.Generate(), nil
}
