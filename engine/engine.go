// Package engine 查询引擎入口：按模型名执行读写、关系连接、交互式事务和批量操作
package engine

import (
	"context"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hatlonely/qcore/cache"
	"github.com/hatlonely/qcore/cfg"
	"github.com/hatlonely/qcore/connector"
	"github.com/hatlonely/qcore/itx"
	"github.com/hatlonely/qcore/log"
	"github.com/hatlonely/qcore/metrics"
	"github.com/hatlonely/qcore/qerror"
	"github.com/hatlonely/qcore/schema"
	"github.com/hatlonely/qcore/uid"
	"github.com/hatlonely/qcore/write"

	_ "github.com/hatlonely/qcore/esconn"
	_ "github.com/hatlonely/qcore/mongoconn"
	_ "github.com/hatlonely/qcore/sqlconn"
)

// operations 连接器和事务共有的读写操作
type operations interface {
	connector.ReadOperations
	connector.WriteOperations
}

type Engine struct {
	schema   *schema.Schema
	conn     connector.Connector
	itx      *itx.Manager
	cache    *cache.RecordCache
	defaults write.DefaultProvider
	logger   log.Logger

	slog    *log.SLog
	watcher *cfg.Watcher
}

// NewEngineWithOptions 加载 schema，创建连接器、事务管理器、缓存和指标
//
// reg 为 nil 时使用 prometheus.DefaultRegisterer
func NewEngineWithOptions(options *Options, reg prometheus.Registerer) (*Engine, error) {
	if err := cfg.SetDefaults(options); err != nil {
		return nil, errors.WithMessage(err, "cfg.SetDefaults failed")
	}
	if err := cfg.Validate(options); err != nil {
		return nil, errors.WithMessage(err, "invalid engine options")
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	slog, err := log.NewLoggerWithOptions(&options.Log)
	if err != nil {
		return nil, errors.WithMessage(err, "log.NewLoggerWithOptions failed")
	}
	logger := slog.With("module", "engine")

	s, err := loadSchema(&options.Schema)
	if err != nil {
		_ = slog.Close()
		return nil, err
	}

	provider := schema.Provider(options.Datasource.Provider)
	if provider == "" {
		provider = s.Provider
	}
	raw, err := connector.New(provider, &connector.Options{
		Schema: s,
		Logger: slog.With("module", "connector", "provider", string(provider)),
		Config: options.Datasource.Options,
	})
	if err != nil {
		_ = slog.Close()
		return nil, err
	}
	conn := metrics.NewObservableConnectorWithOptions(raw, &options.Observable, reg, slog)

	var rc *cache.RecordCache
	if options.Cache != nil {
		rc, err = cache.NewRecordCacheWithOptions(options.Cache, slog.With("module", "cache"))
		if err != nil {
			_ = conn.Close()
			_ = slog.Close()
			return nil, errors.WithMessage(err, "cache.NewRecordCacheWithOptions failed")
		}
	}

	defaults, err := uid.NewDefaultProviderWithOptions(&options.Defaults)
	if err != nil {
		_ = conn.Close()
		_ = slog.Close()
		return nil, errors.WithMessage(err, "uid.NewDefaultProviderWithOptions failed")
	}

	e := NewEngine(s, conn, itx.NewManagerWithOptions(&options.Transaction, reg, slog), rc, defaults, logger)
	e.slog = slog
	logger.Info("engine started",
		"provider", string(provider),
		"models", len(s.Models()),
		"cache", rc != nil,
	)
	return e, nil
}

// NewEngine 由已创建好的组件组装引擎，rc 为 nil 时不使用缓存
func NewEngine(s *schema.Schema, conn connector.Connector, manager *itx.Manager, rc *cache.RecordCache, defaults write.DefaultProvider, logger log.Logger) *Engine {
	if logger == nil {
		logger = log.Default().With("module", "engine")
	}
	return &Engine{
		schema:   s,
		conn:     conn,
		itx:      manager,
		cache:    rc,
		defaults: defaults,
		logger:   logger,
	}
}

// NewEngineFromFile 从配置文件创建引擎，并在文件变化时更新日志级别和事务默认参数
func NewEngineFromFile(path string) (*Engine, error) {
	m, err := cfg.Load(path)
	if err != nil {
		return nil, errors.WithMessage(err, "cfg.Load failed")
	}
	var options Options
	if err := m.ConvertTo(&options); err != nil {
		return nil, errors.WithMessage(err, "convert engine options failed")
	}
	e, err := NewEngineWithOptions(&options, nil)
	if err != nil {
		return nil, err
	}

	w, err := cfg.Watch(path, e.reload)
	if err != nil {
		_ = e.Close(context.Background())
		return nil, errors.WithMessage(err, "cfg.Watch failed")
	}
	w.OnError(func(err error) {
		e.logger.Warn("reload config failed", "path", path, "error", err)
	})
	e.watcher = w
	return e, nil
}

// reload 只有日志级别和事务默认参数支持热更新
func (e *Engine) reload(m *cfg.Map) error {
	var options Options
	if err := m.ConvertTo(&options); err != nil {
		return errors.WithMessage(err, "convert engine options failed")
	}
	if e.slog != nil {
		if err := e.slog.SetLevel(options.Log.Level); err != nil {
			return err
		}
	}
	e.itx.SetDefaults(options.Transaction.Defaults)
	e.logger.Info("config reloaded",
		"log_level", options.Log.Level,
		"tx_timeout_ms", options.Transaction.Defaults.Timeout.Milliseconds(),
	)
	return nil
}

func loadSchema(options *SchemaOptions) (*schema.Schema, error) {
	if options.Path != "" {
		s, err := schema.LoadFile(options.Path)
		if err != nil {
			return nil, errors.WithMessage(err, "schema.LoadFile failed")
		}
		return s, nil
	}
	if options.Inline == "" {
		return nil, errors.New("schema path or inline definition is required")
	}
	s, err := schema.LoadDefinition([]byte(options.Inline), options.Format)
	if err != nil {
		return nil, errors.WithMessage(err, "schema.LoadDefinition failed")
	}
	return s, nil
}

func (e *Engine) Schema() *schema.Schema {
	return e.schema
}

// Close 回滚所有打开的事务并关闭连接器
func (e *Engine) Close(ctx context.Context) error {
	var errs []error
	if e.watcher != nil {
		if err := e.watcher.Close(); err != nil {
			errs = append(errs, errors.WithMessage(err, "close watcher failed"))
		}
	}
	if err := e.itx.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if e.cache != nil {
		if err := e.cache.Close(); err != nil {
			errs = append(errs, errors.WithMessage(err, "close cache failed"))
		}
	}
	if err := e.conn.Close(); err != nil {
		errs = append(errs, errors.WithMessage(err, "close connector failed"))
	}
	if e.slog != nil {
		_ = e.slog.Close()
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func (e *Engine) model(name string) (*schema.Model, error) {
	m, ok := e.schema.FindModel(name)
	if !ok {
		return nil, qerror.NewInvalidInput(name, "schema", "unknown model")
	}
	return m, nil
}

type txKey struct{}

// WithTransaction 之后使用该 context 的操作都在事务 id 上执行
func WithTransaction(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, txKey{}, id)
}

// TransactionFrom 返回 context 中的事务 id
func TransactionFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(txKey{}).(string)
	return id, ok && id != ""
}

// run 在 context 中的事务上执行 fn，没有事务时直接使用连接器
//
// inTx 为 true 时 fn 不应读缓存，事务内读到的数据可能尚未提交
func (e *Engine) run(ctx context.Context, fn func(ctx context.Context, ops operations, inTx bool) error) error {
	id, ok := TransactionFrom(ctx)
	if !ok {
		return fn(ctx, e.conn, false)
	}
	return e.itx.Execute(ctx, id, func(ctx context.Context, tx connector.Transaction) error {
		return fn(ctx, tx, true)
	})
}

// StartTransaction 开启交互式事务，未设置的参数使用配置中的默认值
func (e *Engine) StartTransaction(ctx context.Context, options itx.TxOptions) (string, error) {
	return e.itx.Begin(ctx, e.conn, options)
}

func (e *Engine) Commit(ctx context.Context, id string) error {
	return e.itx.Commit(ctx, id)
}

func (e *Engine) Rollback(ctx context.Context, id string) error {
	return e.itx.Rollback(ctx, id)
}
