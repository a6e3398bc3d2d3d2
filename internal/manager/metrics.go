package manager

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"task-api/internal/errorx"
)

const (
	opCreate         = "create"
	opCreateMany     = "create_many"
	opGet            = "get"
	opGetMany        = "get_many"
	opUpdate         = "update"
	opUpdateMany     = "update_many"
	opUpdateComplete = "update_many_completed"
	opDelete         = "delete"
	opDeleteMany     = "delete_many"
)

const (
	statusSuccess  = "success"
	statusInvalid  = "invalid"
	statusNotFound = "not_found"
	statusError    = "error"
)

var (
	taskOpCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskapi_task_operations_total",
			Help: "Total number of task operations",
		},
		[]string{"op", "status"},
	)

	taskOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskapi_task_operation_duration_seconds",
			Help:    "Duration of task operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	bulkItems = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskapi_bulk_items",
			Help:    "Number of items handled by a bulk operation",
			Buckets: []float64{1, 5, 10, 50, 100, 500, 1000},
		},
		[]string{"op"},
	)

	taskDescLength = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "taskapi_task_desc_length_bytes",
			Help:    "Length distribution of task descriptions",
			Buckets: []float64{50, 100, 500, 1000},
		},
	)
)

var tracer = otel.Tracer("task-api/internal/manager")

// operation times one executor call and records its outcome as metrics
// and on the span.
type operation struct {
	name  string
	start time.Time
	span  trace.Span
	bulk  bool
}

func startOp(ctx context.Context, name string) (context.Context, *operation) {
	ctx, span := tracer.Start(ctx, "TaskManager."+name)
	return ctx, &operation{name: name, start: time.Now(), span: span}
}

func startBulkOp(ctx context.Context, name string) (context.Context, *operation) {
	ctx, op := startOp(ctx, name)
	op.bulk = true
	return ctx, op
}

// end closes the span. items is the number of targets the call received.
func (o *operation) end(err error, items int) {
	defer o.span.End()

	taskOpDuration.WithLabelValues(o.name).Observe(time.Since(o.start).Seconds())
	if o.bulk {
		bulkItems.WithLabelValues(o.name).Observe(float64(items))
		o.span.SetAttributes(attribute.Int("task.items", items))
	}

	status := statusOf(err)
	taskOpCount.WithLabelValues(o.name, status).Inc()
	if err != nil {
		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, status)
	}
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return statusSuccess
	case errorx.IsInvalidArgumentError(err):
		return statusInvalid
	case errorx.IsNotFoundError(err):
		return statusNotFound
	default:
		return statusError
	}
}
