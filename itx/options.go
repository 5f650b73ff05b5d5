package itx

import (
	"time"

	"github.com/hatlonely/qcore/connector"
)

type TxOptions struct {
	// MaxWait 开启事务的最长等待时间
	MaxWait time.Duration `cfg:"maxWait" def:"2s"`
	// Timeout 事务从开启到提交的最长时间
	Timeout time.Duration `cfg:"timeout" def:"5s"`
	// IdleTimeout 两次操作之间的最长间隔，0 表示不限制
	IdleTimeout time.Duration `cfg:"idleTimeout" def:"0s"`
	Isolation   string        `cfg:"isolation"`
}

// merge 未设置的字段取 defaults 中的值
func (o TxOptions) merge(defaults TxOptions) TxOptions {
	if o.MaxWait == 0 {
		o.MaxWait = defaults.MaxWait
	}
	if o.Timeout == 0 {
		o.Timeout = defaults.Timeout
	}
	if o.IdleTimeout == 0 {
		o.IdleTimeout = defaults.IdleTimeout
	}
	if o.Isolation == "" {
		o.Isolation = defaults.Isolation
	}
	return o
}

func (o TxOptions) isolation() (connector.IsolationLevel, error) {
	return connector.ParseIsolationLevel(o.Isolation)
}

type ManagerOptions struct {
	Defaults TxOptions `cfg:"defaults"`
	// ClosedCacheSize 已关闭事务记录的缓存字节数
	ClosedCacheSize int           `cfg:"closedCacheSize" def:"1048576" validate:"gte=524288"`
	ClosedTTL       time.Duration `cfg:"closedTTL" def:"10m"`
	// MetricsName 指标名前缀
	MetricsName string `cfg:"metricsName" def:"qcore"`
}
