package core

import (
	"context"
	"time"
)

// Clock supplies timestamps for operation timing.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// Logger is the structured logging surface the service needs. *slog.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MetricsRecorder receives one observation per service operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// ChunkBytesRecorder is implemented by recorders that also count stored chunk bytes.
type ChunkBytesRecorder interface {
	AddChunkBytes(n int64)
}

// Tracer opens a span per service operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is closed with the operation's outcome.
type TraceSpan interface {
	End(err error)
}

// ServiceOption customises a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	clock         Clock
	logger        Logger
	metrics       MetricsRecorder
	tracer        Tracer
	directUploads bool
	presignExpiry time.Duration
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		clock:         ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:        noopLogger{},
		metrics:       noopMetricsRecorder{},
		tracer:        noopTracer{},
		presignExpiry: 15 * time.Minute,
	}
}

// WithClock overrides the clock used for operation timing.
func WithClock(clock Clock) ServiceOption {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger Logger) ServiceOption {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetricsRecorder sets the operation metrics sink.
func WithMetricsRecorder(recorder MetricsRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if recorder != nil {
			o.metrics = recorder
		}
	}
}

// WithTracer sets the operation tracer.
func WithTracer(tracer Tracer) ServiceOption {
	return func(o *serviceOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithDirectUploads makes RequestUploadSlot hand out presigned PUT urls when
// the blob backend can sign them. expiry <= 0 keeps the 15 minute default.
func WithDirectUploads(enabled bool, expiry time.Duration) ServiceOption {
	return func(o *serviceOptions) {
		o.directUploads = enabled
		if expiry > 0 {
			o.presignExpiry = expiry
		}
	}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}
