package connector

import (
	"reflect"
	"sort"
	"sync"

	"github.com/hatlonely/qcore/cfg"
	"github.com/hatlonely/qcore/log"
	"github.com/hatlonely/qcore/schema"
	"github.com/pkg/errors"
)

// Options 创建连接器的参数
type Options struct {
	Schema *schema.Schema
	Logger log.Logger
	// Config 连接器自己的选项，可以是 cfg.Convertable、map[string]interface{}
	// 或者连接器选项结构体（指针）本身
	Config interface{}
}

// Decode 将 Config 转换到连接器选项 dst，并填充默认值、校验
func (o *Options) Decode(dst interface{}) error {
	rv := reflect.ValueOf(dst)
	if !rv.IsValid() || rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.New("dst must be a non-nil pointer")
	}

	var src interface{}
	if o != nil {
		src = o.Config
	}

	switch c := src.(type) {
	case nil:
		return cfg.NewMap(nil).ConvertTo(dst)
	case cfg.Convertable:
		return c.ConvertTo(dst)
	case map[string]interface{}:
		return cfg.NewMap(c).ConvertTo(dst)
	}

	sv := reflect.ValueOf(src)
	if sv.Kind() == reflect.Ptr && !sv.IsNil() {
		sv = sv.Elem()
	}
	if !sv.Type().AssignableTo(rv.Elem().Type()) {
		return errors.Errorf("cannot use %T as %T", src, dst)
	}
	rv.Elem().Set(sv)
	if err := cfg.SetDefaults(dst); err != nil {
		return errors.WithMessage(err, "cfg.SetDefaults failed")
	}
	return cfg.Validate(dst)
}

// Log 未设置时使用默认日志器
func (o *Options) Log() log.Logger {
	if o == nil || o.Logger == nil {
		return log.Default()
	}
	return o.Logger
}

type Factory func(options *Options) (Connector, error)

var (
	mu        sync.RWMutex
	factories = map[schema.Provider]Factory{}
)

// Register 注册数据源的连接器，重复注册返回错误
func Register(provider schema.Provider, factory Factory) error {
	if factory == nil {
		return errors.New("factory is nil")
	}
	mu.Lock()
	defer mu.Unlock()
	if _, ok := factories[provider]; ok {
		return errors.Errorf("connector for %q already registered", provider)
	}
	factories[provider] = factory
	return nil
}

func MustRegister(provider schema.Provider, factory Factory) {
	if err := Register(provider, factory); err != nil {
		panic(err)
	}
}

func New(provider schema.Provider, options *Options) (Connector, error) {
	mu.RLock()
	factory, ok := factories[provider]
	mu.RUnlock()
	if !ok {
		return nil, errors.Errorf("no connector registered for %q", provider)
	}
	if options == nil {
		options = &Options{}
	}
	conn, err := factory(options)
	if err != nil {
		return nil, errors.WithMessagef(err, "create %s connector failed", provider)
	}
	return conn, nil
}

// Providers 已注册的数据源
func Providers() []schema.Provider {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]schema.Provider, 0, len(factories))
	for p := range factories {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
