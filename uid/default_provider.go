package uid

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/hatlonely/qcore/qerror"
	"github.com/hatlonely/qcore/schema"
	"github.com/hatlonely/qcore/value"
)

type SequenceOptions struct {
	// Type redis 按 模型.字段 分别计数；snowflake 和 timestamp 只保证唯一递增
	Type      string                `cfg:"type" def:"snowflake" validate:"oneof=redis snowflake timestamp"`
	Redis     RedisGeneratorOptions `cfg:"redis"`
	Snowflake SnowflakeOptions      `cfg:"snowflake"`
}

type DefaultProviderOptions struct {
	Sequence SequenceOptions `cfg:"sequence"`
}

// DefaultProvider 为 uuid()、cuid()、now()、sequence() 默认值取值
type DefaultProvider struct {
	uuid4    *UUIDGenerator
	uuid7    *UUIDGenerator
	cuid     StrGenerator
	sequence SequenceGenerator
	now      func() time.Time
}

func NewDefaultProviderWithOptions(options *DefaultProviderOptions) (*DefaultProvider, error) {
	var seq SequenceGenerator
	switch options.Sequence.Type {
	case "redis":
		g, err := NewRedisGeneratorWithOptions(&options.Sequence.Redis)
		if err != nil {
			return nil, errors.WithMessage(err, "NewRedisGeneratorWithOptions failed")
		}
		seq = g
	case "timestamp":
		seq = NewIntSequence(NewTimestampSeqGenerator())
	default:
		seq = NewIntSequence(NewSnowflakeGeneratorWithOptions(&options.Sequence.Snowflake))
	}
	return NewDefaultProvider(seq), nil
}

func NewDefaultProvider(seq SequenceGenerator) *DefaultProvider {
	return &DefaultProvider{
		uuid4:    NewUUIDGeneratorWithOptions(&UUIDOptions{Version: 4, WithHyphens: true}),
		uuid7:    NewUUIDGeneratorWithOptions(&UUIDOptions{Version: 7, WithHyphens: true}),
		cuid:     NewCUIDGenerator(),
		sequence: seq,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (p *DefaultProvider) Generate(ctx context.Context, model *schema.Model, field *schema.ScalarField) (value.Value, error) {
	if field.Default == nil {
		return nil, qerror.NewInternalInvariantViolation("field " + field.Name() + " has no default")
	}
	switch field.Default.Kind {
	case schema.DefaultUUID:
		g := p.uuid4
		if field.Default.Version == 7 {
			g = p.uuid7
		}
		if field.Type == value.TypeUUID {
			return value.UUID(g.NewUUID()), nil
		}
		return value.String(g.Generate()), nil
	case schema.DefaultCUID:
		return value.String(p.cuid.Generate()), nil
	case schema.DefaultNow:
		return value.DateTime(p.now()), nil
	case schema.DefaultSequence:
		if p.sequence == nil {
			return nil, qerror.NewUnsupported("sequence default without a sequence generator")
		}
		n, err := p.sequence.Next(ctx, model.Name+"."+field.Name())
		if err != nil {
			return nil, errors.WithMessage(err, "sequence.Next failed")
		}
		return value.Int(n), nil
	}
	return nil, qerror.NewUnsupported("default kind of field " + field.Name() + " is not generated by the application")
}
