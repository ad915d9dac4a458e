// Package metrics instruments a ps.Store with Prometheus counters and
// latency histograms.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/nickyhof/GitDB/ps"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "gitdb"
	subsystem = "store"
)

// Store primitives.
const (
	OpGet              = "get"
	OpPut              = "put"
	OpDelete           = "delete"
	OpRepositoryExists = "repository_exists"
)

// Outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeConflict = "conflict"
	OutcomeCanceled = "canceled"
	OutcomeError    = "error"
)

// Collectors holds the store metrics registered with one registerer.
type Collectors struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewCollectors registers the store metrics with reg.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	factory := promauto.With(reg)
	return &Collectors{
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "operations_total",
				Help:      "Backing-store operations by primitive and outcome",
			},
			[]string{"operation", "outcome"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "operation_duration_seconds",
				Help:      "Latency of backing-store operations",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
			},
			[]string{"operation"},
		),
	}
}

func (c *Collectors) observe(op string, start time.Time, err error) {
	c.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	c.operations.WithLabelValues(op, outcome(err)).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ps.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, ps.ErrConflict):
		return OutcomeConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	default:
		return OutcomeError
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// InstrumentStore wraps store so that every primitive is counted and timed.
func InstrumentStore(store ps.Store, c *Collectors) ps.Store {
	if c == nil {
		return store
	}
	return &instrumentedStore{next: store, metrics: c}
}

type instrumentedStore struct {
	next    ps.Store
	metrics *Collectors
}

func (s *instrumentedStore) Get(ctx context.Context, path string) (*ps.Object, error) {
	start := time.Now()
	obj, err := s.next.Get(ctx, path)
	s.metrics.observe(OpGet, start, err)
	return obj, err
}

func (s *instrumentedStore) Put(ctx context.Context, path string, data []byte, message, token string) (ps.Revision, error) {
	start := time.Now()
	rev, err := s.next.Put(ctx, path, data, message, token)
	s.metrics.observe(OpPut, start, err)
	return rev, err
}

func (s *instrumentedStore) Delete(ctx context.Context, path, message, token string) error {
	start := time.Now()
	err := s.next.Delete(ctx, path, message, token)
	s.metrics.observe(OpDelete, start, err)
	return err
}

func (s *instrumentedStore) RepositoryExists(ctx context.Context, owner, repo string) (bool, error) {
	start := time.Now()
	ok, err := s.next.RepositoryExists(ctx, owner, repo)
	s.metrics.observe(OpRepositoryExists, start, err)
	return ok, err
}

// Unwrap returns the decorated store.
func (s *instrumentedStore) Unwrap() ps.Store {
	return s.next
}
