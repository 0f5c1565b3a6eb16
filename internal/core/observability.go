package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// PrometheusMetricsRecorder exports operation latency, outcome counts and
// stored chunk volume as Prometheus collectors.
type PrometheusMetricsRecorder struct {
	durations  *prometheus.HistogramVec
	operations *prometheus.CounterVec
	chunkBytes prometheus.Counter
}

// NewPrometheusMetricsRecorder registers the recorder's collectors with reg.
// A nil reg falls back to prometheus.DefaultRegisterer.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &PrometheusMetricsRecorder{
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "capturecore",
			Name:      "operation_duration_seconds",
			Help:      "Latency of registry operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "status"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "capturecore",
			Name:      "operations_total",
			Help:      "Registry operations by outcome.",
		}, []string{"operation", "status"}),
		chunkBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "capturecore",
			Name:      "chunk_bytes_total",
			Help:      "Audio chunk bytes written to blob storage.",
		}),
	}
	for _, c := range []prometheus.Collector{r.durations, r.operations, r.chunkBytes} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.durations.WithLabelValues(operation, status).Observe(duration.Seconds())
	r.operations.WithLabelValues(operation, status).Inc()
}

// AddChunkBytes implements ChunkBytesRecorder.
func (r *PrometheusMetricsRecorder) AddChunkBytes(n int64) {
	if n > 0 {
		r.chunkBytes.Add(float64(n))
	}
}

// OTelTracer opens OpenTelemetry spans named `capturecore.<operation>`.
type OTelTracer struct {
	tracer trace.Tracer
}

// NewOTelTracer uses provider, or the global provider when nil.
func NewOTelTracer(provider trace.TracerProvider) *OTelTracer {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &OTelTracer{tracer: provider.Tracer("capturecore/internal/core")}
}

// Start implements Tracer.
func (t *OTelTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	ctx, span := t.tracer.Start(ctx, "capturecore."+operation,
		trace.WithAttributes(attribute.String("capturecore.operation", operation)))
	return ctx, otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

func (s otelSpan) End(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}
