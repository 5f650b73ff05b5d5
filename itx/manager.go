// Package itx 交互式事务：按 id 管理跨请求的事务，超时或空闲过久的事务自动回滚
package itx

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hatlonely/qcore/connector"
	"github.com/hatlonely/qcore/log"
	"github.com/hatlonely/qcore/metrics"
	"github.com/hatlonely/qcore/qerror"
	"github.com/hatlonely/qcore/uid"
)

type transaction struct {
	id      string
	options TxOptions
	started time.Time

	// 事务生命周期的 context，过期时取消以中断进行中的操作
	ctx    context.Context
	cancel context.CancelFunc

	// mu 保证同一事务上的操作按调用顺序逐个执行
	mu    sync.Mutex
	tx    connector.Transaction
	done  bool
	timer *time.Timer
	idle  *time.Timer
	// gen 每次操作加一，过期回调据此忽略操作开始前已触发的空闲定时器
	gen uint64
}

type Manager struct {
	mu       sync.RWMutex
	open     map[string]*transaction
	closed   *closedRegistry
	ids      uid.StrGenerator
	defaults atomic.Pointer[TxOptions]
	gauge    prometheus.Gauge
	logger   log.Logger
}

func NewManagerWithOptions(options *ManagerOptions, reg prometheus.Registerer, logger log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	name := options.MetricsName
	if name == "" {
		name = "qcore"
	}
	size := options.ClosedCacheSize
	if size == 0 {
		size = 1024 * 1024
	}
	ttl := options.ClosedTTL
	if ttl == 0 {
		ttl = 10 * time.Minute
	}
	m := &Manager{
		open:   map[string]*transaction{},
		closed: newClosedRegistry(size, ttl),
		ids:    uid.NewUUIDGeneratorWithOptions(&uid.UUIDOptions{Version: 4, WithHyphens: true}),
		gauge: metrics.Register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: name + "_open_transactions",
			Help: "Number of open interactive transactions",
		})),
		logger: logger.With("module", "itx"),
	}
	defaults := options.Defaults
	m.defaults.Store(&defaults)
	return m
}

// SetDefaults 替换之后开启的事务使用的默认参数
func (m *Manager) SetDefaults(defaults TxOptions) {
	m.defaults.Store(&defaults)
}

func (m *Manager) Defaults() TxOptions {
	return *m.defaults.Load()
}

// Begin 开启事务并返回事务 id
func (m *Manager) Begin(ctx context.Context, conn connector.Connector, options TxOptions) (string, error) {
	options = options.merge(m.Defaults())
	level, err := options.isolation()
	if err != nil {
		return "", err
	}
	if options.Timeout <= 0 {
		return "", qerror.NewInvalidInput("timeout", "transaction", "must be positive")
	}

	t := &transaction{id: m.ids.Generate(), options: options}
	// database/sql 在 BeginTx 的 context 取消时回滚事务，这里用事务自己的 context
	t.ctx, t.cancel = context.WithCancel(context.WithoutCancel(ctx))

	type result struct {
		tx  connector.Transaction
		err error
	}
	ch := make(chan result, 1)
	go func() {
		tx, err := conn.BeginTx(t.ctx, level)
		ch <- result{tx, err}
	}()

	var wait <-chan time.Time
	if options.MaxWait > 0 {
		timer := time.NewTimer(options.MaxWait)
		defer timer.Stop()
		wait = timer.C
	}

	select {
	case r := <-ch:
		if r.err != nil {
			t.cancel()
			return "", r.err
		}
		t.tx = r.tx
	case <-wait:
		t.cancel()
		go func() {
			if r := <-ch; r.err == nil {
				_ = r.tx.Rollback(context.Background())
			}
		}()
		return "", qerror.NewTransactionStartTimeout(fmt.Sprintf("max wait %d ms", options.MaxWait.Milliseconds()))
	case <-ctx.Done():
		t.cancel()
		go func() {
			if r := <-ch; r.err == nil {
				_ = r.tx.Rollback(context.Background())
			}
		}()
		return "", errors.Wrap(ctx.Err(), "begin transaction canceled")
	}

	t.started = time.Now()
	t.timer = time.AfterFunc(options.Timeout, func() { m.expire(t, stateExpired, 0) })
	if options.IdleTimeout > 0 {
		t.idle = time.AfterFunc(options.IdleTimeout, func() { m.expire(t, stateIdleExpired, 0) })
	}

	m.mu.Lock()
	m.open[t.id] = t
	m.mu.Unlock()
	m.gauge.Inc()

	m.logger.InfoContext(ctx, "transaction started",
		"id", t.id,
		"isolation", level.String(),
		"timeout_ms", options.Timeout.Milliseconds(),
		"idle_timeout_ms", options.IdleTimeout.Milliseconds(),
	)
	return t.id, nil
}

func (m *Manager) lookup(id string) (*transaction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.open[id]
	return t, ok
}

func (m *Manager) closedError(id string, operation string) error {
	if rec, ok := m.closed.get(id); ok {
		return rec.error(operation)
	}
	return notFound(id, operation)
}

// finish 在持有 t.mu 时调用，从打开列表移除并记录关闭状态
func (m *Manager) finish(t *transaction, rec closedRecord) {
	t.done = true
	t.timer.Stop()
	if t.idle != nil {
		t.idle.Stop()
	}
	t.cancel()

	if err := m.closed.put(t.id, rec); err != nil {
		m.logger.Warn("record closed transaction failed", "id", t.id, "error", err)
	}
	m.mu.Lock()
	delete(m.open, t.id)
	m.mu.Unlock()
	m.gauge.Dec()
}

// expire 定时器回调，gen 为 0 表示绝对超时
func (m *Manager) expire(t *transaction, state closeState, gen uint64) {
	if state == stateExpired {
		// 先中断进行中的操作，再等待其释放锁
		t.cancel()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done || (state == stateIdleExpired && gen != t.gen) {
		return
	}

	timeout := t.options.Timeout
	if state == stateIdleExpired {
		timeout = t.options.IdleTimeout
	}
	elapsed := time.Since(t.started)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.tx.Rollback(ctx); err != nil {
		m.logger.Warn("rollback expired transaction failed", "id", t.id, "error", err)
	}
	m.finish(t, closedRecord{State: state, Timeout: timeout, Elapsed: elapsed})
	m.logger.Info("transaction expired",
		"id", t.id,
		"timeout_ms", timeout.Milliseconds(),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// Execute 在事务上执行 fn，同一事务上的调用依次执行
//
// fn 收到的 context 在事务过期时被取消
func (m *Manager) Execute(ctx context.Context, id string, fn func(ctx context.Context, tx connector.Transaction) error) error {
	return m.execute(ctx, id, "query", fn)
}

func (m *Manager) execute(ctx context.Context, id string, operation string, fn func(ctx context.Context, tx connector.Transaction) error) error {
	t, ok := m.lookup(id)
	if !ok {
		return m.closedError(id, operation)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return m.closedError(id, operation)
	}
	t.gen++
	if t.idle != nil {
		t.idle.Stop()
	}

	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(t.ctx, cancel)
	defer stop()

	err := fn(opCtx, t.tx)

	if t.idle != nil && !t.done {
		gen := t.gen
		t.idle.Stop()
		t.idle = time.AfterFunc(t.options.IdleTimeout, func() { m.expire(t, stateIdleExpired, gen) })
	}
	if err != nil && t.ctx.Err() != nil && !t.done {
		// 绝对超时触发时操作被中断，以过期错误代替驱动返回的 context 错误
		return qerror.NewTransactionAlreadyClosed(fmt.Sprintf(
			"a %s cannot be executed on an expired transaction. The timeout for this transaction was %d ms, however %d ms passed since the start of the transaction",
			operation, t.options.Timeout.Milliseconds(), time.Since(t.started).Milliseconds(),
		))
	}
	return err
}

// Commit 提交事务，之后对该事务的所有调用返回 TransactionAlreadyClosed
func (m *Manager) Commit(ctx context.Context, id string) error {
	return m.close(ctx, id, "commit", func(ctx context.Context, tx connector.Transaction) error {
		return tx.Commit(ctx)
	}, stateCommitted)
}

// Rollback 回滚事务
func (m *Manager) Rollback(ctx context.Context, id string) error {
	return m.close(ctx, id, "rollback", func(ctx context.Context, tx connector.Transaction) error {
		return tx.Rollback(ctx)
	}, stateRolledBack)
}

func (m *Manager) close(ctx context.Context, id string, operation string, fn func(context.Context, connector.Transaction) error, state closeState) error {
	t, ok := m.lookup(id)
	if !ok {
		return m.closedError(id, operation)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return m.closedError(id, operation)
	}

	err := fn(ctx, t.tx)
	if err != nil && state == stateCommitted {
		_ = t.tx.Rollback(context.Background())
		state = stateRolledBack
	}
	m.finish(t, closedRecord{State: state, Elapsed: time.Since(t.started)})
	m.logger.InfoContext(ctx, "transaction "+operation,
		"id", t.id,
		"elapsed_ms", time.Since(t.started).Milliseconds(),
		"success", err == nil,
	)
	return err
}

// Get 返回事务句柄，句柄上的每个操作都经过 Execute
func (m *Manager) Get(ctx context.Context, id string) (connector.Transaction, error) {
	t, ok := m.lookup(id)
	if !ok {
		return nil, m.closedError(id, "query")
	}
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()
	if done {
		return nil, m.closedError(id, "query")
	}
	return &handle{m: m, id: id}, nil
}

// Open 打开中的事务数
func (m *Manager) Open() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.open)
}

// Close 回滚所有打开的事务
func (m *Manager) Close(ctx context.Context) error {
	m.mu.RLock()
	ids := make([]string, 0, len(m.open))
	for id := range m.open {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	var errs []error
	for _, id := range ids {
		if err := m.Rollback(ctx, id); err != nil && qerror.KindOf(err) != qerror.KindTransactionAlreadyClosed {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.WithMessagef(errs[0], "rollback %d open transactions failed", len(errs))
	}
	return nil
}
