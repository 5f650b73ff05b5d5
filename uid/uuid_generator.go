package uid

import (
	"encoding/hex"

	"github.com/google/uuid"
)

type UUIDOptions struct {
	// Version 4 或 7
	Version int `cfg:"version" def:"4" validate:"oneof=4 7"`
	// WithHyphens 是否包含中划线
	WithHyphens bool `cfg:"withHyphens" def:"true"`
}

type UUIDGenerator struct {
	version     int
	withHyphens bool
}

func NewUUIDGeneratorWithOptions(options *UUIDOptions) *UUIDGenerator {
	if options == nil {
		options = &UUIDOptions{Version: 4, WithHyphens: true}
	}
	version := options.Version
	if version != 7 {
		version = 4
	}
	return &UUIDGenerator{
		version:     version,
		withHyphens: options.WithHyphens,
	}
}

func (g *UUIDGenerator) NewUUID() uuid.UUID {
	if g.version == 7 {
		return uuid.Must(uuid.NewV7())
	}
	return uuid.New()
}

func (g *UUIDGenerator) Generate() string {
	u := g.NewUUID()
	if g.withHyphens {
		return u.String()
	}
	return hex.EncodeToString(u[:])
}
