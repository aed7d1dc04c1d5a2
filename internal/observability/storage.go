package observability

import (
	"context"
	"errors"
	"ratelimiter/internal/models"
	"ratelimiter/internal/storage"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const storageScope = "ratelimiter/storage"

// InstrumentedStorage wraps a storage.Storage implementation with
// OpenTelemetry tracing and metrics instrumentation.
type InstrumentedStorage struct {
	inner    storage.Storage
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

// NewInstrumentedStorage creates a new storage wrapper that records trace spans,
// operation latency histograms, and error counters for every storage method call.
// A lookup that finds nothing is not counted as an error.
func NewInstrumentedStorage(inner storage.Storage) (*InstrumentedStorage, error) {
	tracer := otel.Tracer(storageScope)
	meter := otel.Meter(storageScope)

	duration, err := meter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Duration of storage operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"storage.operation.errors",
		metric.WithDescription("Number of storage operation errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedStorage{
		inner:    inner,
		tracer:   tracer,
		duration: duration,
		errors:   errCounter,
	}, nil
}

func (s *InstrumentedStorage) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "storage."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("storage.operation", operation),
		}, attrs...)...),
	)
}

func (s *InstrumentedStorage) record(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	elapsed := time.Since(start).Seconds()
	attrs := metric.WithAttributes(attribute.String("operation", operation))

	s.duration.Record(ctx, elapsed, attrs)

	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case errors.Is(err, storage.ErrNotFound):
		span.SetAttributes(attribute.Bool("storage.not_found", true))
	default:
		s.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.End()
}

func (s *InstrumentedStorage) GetAccountByAPIKeyHash(ctx context.Context, hash string) (*models.Account, error) {
	ctx, span := s.startSpan(ctx, "GetAccountByAPIKeyHash")
	start := time.Now()
	result, err := s.inner.GetAccountByAPIKeyHash(ctx, hash)
	s.record(ctx, span, "GetAccountByAPIKeyHash", start, err)
	return result, err
}

func (s *InstrumentedStorage) GetAccountByUserName(ctx context.Context, userName string) (*models.Account, error) {
	ctx, span := s.startSpan(ctx, "GetAccountByUserName", attribute.String("user_name", userName))
	start := time.Now()
	result, err := s.inner.GetAccountByUserName(ctx, userName)
	s.record(ctx, span, "GetAccountByUserName", start, err)
	return result, err
}

func (s *InstrumentedStorage) SaveAccount(ctx context.Context, account *models.Account) error {
	ctx, span := s.startSpan(ctx, "SaveAccount", attribute.String("user_name", account.UserName))
	start := time.Now()
	err := s.inner.SaveAccount(ctx, account)
	s.record(ctx, span, "SaveAccount", start, err)
	return err
}

func (s *InstrumentedStorage) Accounts(ctx context.Context) ([]*models.Account, error) {
	ctx, span := s.startSpan(ctx, "Accounts")
	start := time.Now()
	result, err := s.inner.Accounts(ctx)
	span.SetAttributes(attribute.Int("storage.result_count", len(result)))
	s.record(ctx, span, "Accounts", start, err)
	return result, err
}

func (s *InstrumentedStorage) Ping(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Ping")
	start := time.Now()
	err := s.inner.Ping(ctx)
	s.record(ctx, span, "Ping", start, err)
	return err
}

func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}
