// Package metrics 为连接器添加 prometheus 指标、otel 链路追踪和操作日志
package metrics

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Register 注册 collector，同名 collector 已注册时返回已注册的实例
//
// 同一进程内多次创建引擎时共用指标
func Register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if reg == nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// ObservableMetrics 连接器操作指标
type ObservableMetrics struct {
	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	rowsAffected      *prometheus.CounterVec
}

func NewObservableMetrics(name string, reg prometheus.Registerer) *ObservableMetrics {
	return &ObservableMetrics{
		operationCounter: Register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: name + "_operations_total",
				Help: "Total number of connector operations",
			},
			[]string{"operation", "status"},
		)),
		operationDuration: Register(reg, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    name + "_operation_duration_seconds",
				Help:    "Duration of connector operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"operation"},
		)),
		rowsAffected: Register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: name + "_rows_affected",
				Help: "Number of records written by connector operations",
			},
			[]string{"operation"},
		)),
	}
}
