// Package monitor periodically polls the dispatch statistics surface, emits
// operational warnings (observers accumulating errors or drops, transaction
// types with zero subscribers), and publishes per-observer and aggregate
// gauges through OpenTelemetry. It is strictly read-only over the registry:
// polling never disturbs observer state.
package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/delphian/tronrelic-sub011/internal/dispatch"
	"github.com/delphian/tronrelic-sub011/internal/pkg/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrServiceAlreadyStarted is returned if Start is called more than once.
var ErrServiceAlreadyStarted = errors.New("service already started")

// defaultPollInterval is how often stats are sampled when not overridden.
// Dashboards polling every few seconds is the intended usage of the stats
// surface.
const defaultPollInterval = 15 * time.Second

// meterName identifies this package's OpenTelemetry instrumentation scope.
const meterName = "tronrelic/monitor"

// StatsSource is the read-only monitoring surface the monitor polls. It is
// satisfied by *dispatch.Registry.
type StatsSource interface {
	AllObserverStats() []dispatch.ObserverStats
	AggregateStats() dispatch.AggregateStats
	SubscriptionStats() map[string]int
}

// Service is the monitor lifecycle entrypoint.
type Service interface {
	// Start launches the polling loop in the background. Returns
	// ErrServiceAlreadyStarted if called more than once.
	Start(ctx context.Context) error

	// Close stops the polling loop. Safe to call even if never started.
	Close()
}

// instruments bundles the OTel gauges the monitor records each poll.
type instruments struct {
	queueDepth     metric.Int64Gauge
	totalProcessed metric.Int64Gauge
	totalErrors    metric.Int64Gauge
	totalDropped   metric.Int64Gauge
	avgLatency     metric.Float64Gauge
	errorRate      metric.Float64Gauge
}

type service struct {
	mu        sync.Mutex
	isStarted bool
	closeFunc func()

	source       StatsSource
	pollInterval time.Duration
	watchedTypes []string
	instruments  *instruments
}

var _ Service = (*service)(nil)

// newInstruments creates the monitor's gauges on the global meter provider.
// With no telemetry configured the global provider is a no-op and recording is
// free.
func newInstruments() (*instruments, error) {
	meter := otel.Meter(meterName)

	queueDepth, err := meter.Int64Gauge("dispatch.observer.queue_depth",
		metric.WithDescription("Items currently waiting in the observer's queue"))
	if err != nil {
		return nil, err
	}

	totalProcessed, err := meter.Int64Gauge("dispatch.observer.processed_total",
		metric.WithDescription("Items processed successfully by the observer"))
	if err != nil {
		return nil, err
	}

	totalErrors, err := meter.Int64Gauge("dispatch.observer.errors_total",
		metric.WithDescription("Items whose processing callback failed"))
	if err != nil {
		return nil, err
	}

	totalDropped, err := meter.Int64Gauge("dispatch.observer.dropped_total",
		metric.WithDescription("Items discarded by queue-overflow clears"))
	if err != nil {
		return nil, err
	}

	avgLatency, err := meter.Float64Gauge("dispatch.observer.latency_avg_ms",
		metric.WithDescription("Mean successful callback latency in milliseconds"))
	if err != nil {
		return nil, err
	}

	errorRate, err := meter.Float64Gauge("dispatch.observer.error_rate",
		metric.WithDescription("Errors divided by processed items"))
	if err != nil {
		return nil, err
	}

	return &instruments{
		queueDepth:     queueDepth,
		totalProcessed: totalProcessed,
		totalErrors:    totalErrors,
		totalDropped:   totalDropped,
		avgLatency:     avgLatency,
		errorRate:      errorRate,
	}, nil
}

// record publishes one observer's snapshot to the gauges.
func (i *instruments) record(ctx context.Context, st dispatch.ObserverStats) {
	attrs := metric.WithAttributes(attribute.String("observer", st.Name))

	i.queueDepth.Record(ctx, int64(st.QueueDepth), attrs)
	i.totalProcessed.Record(ctx, int64(st.TotalProcessed), attrs)
	i.totalErrors.Record(ctx, int64(st.TotalErrors), attrs)
	i.totalDropped.Record(ctx, int64(st.TotalDropped), attrs)
	i.avgLatency.Record(ctx, st.AvgLatencyMs, attrs)
	i.errorRate.Record(ctx, st.ErrorRate, attrs)
}

// poll samples the stats surface once: per-observer gauges, aggregate summary
// logging, and subscription warnings.
func (s *service) poll(ctx context.Context) {
	for _, st := range s.source.AllObserverStats() {
		s.instruments.record(ctx, st)

		if st.TotalErrors > 0 || st.TotalDropped > 0 {
			logger.Warn(ctx, "observer reporting failures",
				"observer", st.Name,
				"queue.depth", st.QueueDepth,
				"total.errors", st.TotalErrors,
				"total.dropped", st.TotalDropped,
				"error.rate", st.ErrorRate,
			)
		}
	}

	agg := s.source.AggregateStats()
	logger.Debug(ctx, "dispatch aggregate stats",
		"observers", agg.ObserverCount,
		"total.processed", agg.TotalProcessed,
		"total.errors", agg.TotalErrors,
		"total.dropped", agg.TotalDropped,
		"queue.depth", agg.TotalQueueDepth,
		"latency.avg_ms", agg.AvgLatencyMs,
	)

	subscriptions := s.source.SubscriptionStats()
	for _, txType := range s.watchedTypes {
		if subscriptions[txType] == 0 {
			logger.Warn(ctx, "transaction type has zero subscribers",
				"transaction.type", txType,
			)
		}
	}
}

// run drives poll on the configured interval until the context is canceled.
func (s *service) run(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

// Start launches the polling loop in a background goroutine.
func (s *service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isStarted {
		return ErrServiceAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	go s.run(ctx)

	s.closeFunc = cancel
	s.isStarted = true
	return nil
}

// Close stops the polling loop.
func (s *service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closeFunc != nil {
		s.closeFunc()
	}
	s.closeFunc = nil
	s.isStarted = false
}

// Option configures the monitor at construction time.
type Option func(*service)

// WithPollInterval overrides the default 15 second sampling interval.
func WithPollInterval(d time.Duration) Option {
	return func(s *service) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithWatchedTypes lists transaction types that are expected to have at least
// one subscriber; each poll warns for any of them left unclaimed. An unclaimed
// type is an operational signal, not an error.
func WithWatchedTypes(types ...string) Option {
	return func(s *service) {
		s.watchedTypes = types
	}
}

// New creates a monitor over the given stats source.
func New(source StatsSource, opts ...Option) (*service, error) {
	instruments, err := newInstruments()
	if err != nil {
		return nil, err
	}

	s := &service{
		source:       source,
		pollInterval: defaultPollInterval,
		instruments:  instruments,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}
