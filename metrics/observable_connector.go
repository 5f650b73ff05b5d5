package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hatlonely/qcore/connector"
	"github.com/hatlonely/qcore/filter"
	"github.com/hatlonely/qcore/log"
	"github.com/hatlonely/qcore/schema"
	"github.com/hatlonely/qcore/selection"
	"github.com/hatlonely/qcore/write"
)

type ObservableOptions struct {
	// Name 指标名前缀，同时作为日志和 span 的 component
	Name          string `cfg:"name" def:"qcore"`
	EnableMetrics bool   `cfg:"enableMetrics" def:"true"`
	EnableLogging bool   `cfg:"enableLogging" def:"true"`
	EnableTracing bool   `cfg:"enableTracing" def:"false"`
}

type observer struct {
	name    string
	logger  log.Logger
	metrics *ObservableMetrics
	tracer  trace.Tracer
}

// observe 统一的操作观测逻辑，fn 返回写入的记录数
func (o *observer) observe(ctx context.Context, operation string, model string, fn func(context.Context) (int, error)) error {
	start := time.Now()

	var span trace.Span
	if o.tracer != nil {
		ctx, span = o.tracer.Start(ctx, "connector."+operation,
			trace.WithAttributes(
				attribute.String("component", o.name),
				attribute.String("operation", operation),
				attribute.String("model", model),
			),
		)
		defer span.End()
	}

	rows, err := fn(ctx)
	duration := time.Since(start)

	if span != nil {
		span.SetAttributes(attribute.Int64("duration_ms", duration.Milliseconds()), attribute.Int("rows", rows))
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}

	if o.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		o.metrics.operationCounter.WithLabelValues(operation, status).Inc()
		o.metrics.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
		if rows > 0 {
			o.metrics.rowsAffected.WithLabelValues(operation).Add(float64(rows))
		}
	}

	if o.logger != nil {
		if err != nil {
			o.logger.ErrorContext(ctx, "connector operation failed",
				"component", o.name,
				"operation", operation,
				"model", model,
				"duration_ms", duration.Milliseconds(),
				"error", err.Error(),
			)
		} else {
			o.logger.DebugContext(ctx, "connector operation completed",
				"component", o.name,
				"operation", operation,
				"model", model,
				"rows", rows,
				"duration_ms", duration.Milliseconds(),
			)
		}
	}
	return err
}

func one(r *connector.SingleRecord) int {
	if r == nil {
		return 0
	}
	return 1
}

// operations 读写操作的观测包装，连接器和事务共用
type operations struct {
	ops interface {
		connector.ReadOperations
		connector.WriteOperations
	}
	obs *observer
}

func (o *operations) GetSingleRecord(ctx context.Context, model *schema.Model, f filter.Filter, selected selection.FieldSelection) (*connector.SingleRecord, error) {
	var r *connector.SingleRecord
	err := o.obs.observe(ctx, "get_single_record", model.Name, func(ctx context.Context) (int, error) {
		var err error
		r, err = o.ops.GetSingleRecord(ctx, model, f, selected)
		return 0, err
	})
	return r, err
}

func (o *operations) GetManyRecords(ctx context.Context, model *schema.Model, args connector.QueryArguments, selected selection.FieldSelection) (*connector.ManyRecords, error) {
	var r *connector.ManyRecords
	err := o.obs.observe(ctx, "get_many_records", model.Name, func(ctx context.Context) (int, error) {
		var err error
		r, err = o.ops.GetManyRecords(ctx, model, args, selected)
		return 0, err
	})
	return r, err
}

func (o *operations) CreateRecord(ctx context.Context, model *schema.Model, args *write.WriteArgs, selected selection.FieldSelection) (*connector.SingleRecord, error) {
	var r *connector.SingleRecord
	err := o.obs.observe(ctx, "create_record", model.Name, func(ctx context.Context) (int, error) {
		var err error
		r, err = o.ops.CreateRecord(ctx, model, args, selected)
		return one(r), err
	})
	return r, err
}

func (o *operations) CreateRecords(ctx context.Context, model *schema.Model, args []*write.WriteArgs, skipDuplicates bool) (int, error) {
	var n int
	err := o.obs.observe(ctx, "create_records", model.Name, func(ctx context.Context) (int, error) {
		var err error
		n, err = o.ops.CreateRecords(ctx, model, args, skipDuplicates)
		return n, err
	})
	return n, err
}

func (o *operations) UpdateRecord(ctx context.Context, model *schema.Model, rf write.RecordFilter, args *write.WriteArgs, selected selection.FieldSelection) (*connector.SingleRecord, error) {
	var r *connector.SingleRecord
	err := o.obs.observe(ctx, "update_record", model.Name, func(ctx context.Context) (int, error) {
		var err error
		r, err = o.ops.UpdateRecord(ctx, model, rf, args, selected)
		return one(r), err
	})
	return r, err
}

func (o *operations) UpdateRecords(ctx context.Context, model *schema.Model, rf write.RecordFilter, args *write.WriteArgs, limit *int) (int, error) {
	var n int
	err := o.obs.observe(ctx, "update_records", model.Name, func(ctx context.Context) (int, error) {
		var err error
		n, err = o.ops.UpdateRecords(ctx, model, rf, args, limit)
		return n, err
	})
	return n, err
}

func (o *operations) DeleteRecord(ctx context.Context, model *schema.Model, rf write.RecordFilter, selected selection.FieldSelection) (*connector.SingleRecord, error) {
	var r *connector.SingleRecord
	err := o.obs.observe(ctx, "delete_record", model.Name, func(ctx context.Context) (int, error) {
		var err error
		r, err = o.ops.DeleteRecord(ctx, model, rf, selected)
		return one(r), err
	})
	return r, err
}

func (o *operations) DeleteRecords(ctx context.Context, model *schema.Model, rf write.RecordFilter, limit *int) (int, error) {
	var n int
	err := o.obs.observe(ctx, "delete_records", model.Name, func(ctx context.Context) (int, error) {
		var err error
		n, err = o.ops.DeleteRecords(ctx, model, rf, limit)
		return n, err
	})
	return n, err
}

func (o *operations) M2MConnect(ctx context.Context, field *schema.RelationField, parent selection.SelectionResult, children []selection.SelectionResult) error {
	return o.obs.observe(ctx, "m2m_connect", field.Model().Name, func(ctx context.Context) (int, error) {
		return len(children), o.ops.M2MConnect(ctx, field, parent, children)
	})
}

func (o *operations) M2MDisconnect(ctx context.Context, field *schema.RelationField, parent selection.SelectionResult, children []selection.SelectionResult) error {
	return o.obs.observe(ctx, "m2m_disconnect", field.Model().Name, func(ctx context.Context) (int, error) {
		return len(children), o.ops.M2MDisconnect(ctx, field, parent, children)
	})
}

// ObservableConnector 装饰器，为任意连接器添加观测能力
type ObservableConnector struct {
	operations
	conn connector.Connector
}

func NewObservableConnectorWithOptions(conn connector.Connector, options *ObservableOptions, reg prometheus.Registerer, logger log.Logger) *ObservableConnector {
	obs := &observer{name: options.Name}
	if options.EnableMetrics {
		obs.metrics = NewObservableMetrics(options.Name, reg)
	}
	if options.EnableLogging {
		if logger == nil {
			logger = log.Default()
		}
		obs.logger = logger.WithGroup("observable")
	}
	if options.EnableTracing {
		obs.tracer = otel.Tracer("connector." + options.Name)
	}
	return &ObservableConnector{
		operations: operations{ops: conn, obs: obs},
		conn:       conn,
	}
}

// Unwrap 被包装的连接器
func (c *ObservableConnector) Unwrap() connector.Connector {
	return c.conn
}

func (c *ObservableConnector) BeginTx(ctx context.Context, level connector.IsolationLevel) (connector.Transaction, error) {
	var tx connector.Transaction
	err := c.obs.observe(ctx, "begin_tx", "", func(ctx context.Context) (int, error) {
		var err error
		tx, err = c.conn.BeginTx(ctx, level)
		return 0, err
	})
	if err != nil {
		return nil, err
	}
	return &observableTransaction{operations: operations{ops: tx, obs: c.obs}, tx: tx}, nil
}

func (c *ObservableConnector) Name() string {
	return c.conn.Name()
}

func (c *ObservableConnector) Close() error {
	return c.conn.Close()
}

type observableTransaction struct {
	operations
	tx connector.Transaction
}

func (t *observableTransaction) Commit(ctx context.Context) error {
	return t.obs.observe(ctx, "commit", "", func(ctx context.Context) (int, error) {
		return 0, t.tx.Commit(ctx)
	})
}

func (t *observableTransaction) Rollback(ctx context.Context) error {
	return t.obs.observe(ctx, "rollback", "", func(ctx context.Context) (int, error) {
		return 0, t.tx.Rollback(ctx)
	})
}
