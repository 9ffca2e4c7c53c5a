// Package metrics provides Prometheus instrumentation for the console session.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// APIRequestDuration tracks backend request latency.
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tony_console_api_request_duration_seconds",
			Help:    "Backend request duration in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15},
		},
		[]string{"op", "result"},
	)

	// APIRequestsTotal counts backend requests by outcome.
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tony_console_api_requests_total",
			Help: "Total backend requests",
		},
		[]string{"op", "result"},
	)

	// PollsTotal counts poll cycles.
	PollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tony_console_polls_total",
			Help: "Total conversation poll cycles",
		},
		[]string{"result"},
	)

	// Connected is 1 while the backend is reachable.
	Connected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tony_console_connected",
			Help: "Whether the session considers the backend reachable",
		},
	)

	// ConversationsLoaded tracks the store size after each refresh.
	ConversationsLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tony_console_conversations",
			Help: "Conversations held in the local store",
		},
	)

	// NotificationsTotal counts raised notifications.
	NotificationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tony_console_notifications_total",
			Help: "Total notifications raised for new user messages",
		},
	)

	// FallbackWritesTotal counts writes kept locally after the backend failed.
	FallbackWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tony_console_fallback_writes_total",
			Help: "Writes applied locally after a backend failure",
		},
		[]string{"op"},
	)
)

// ObserveRequest records one backend request. An empty kind is a success.
func ObserveRequest(op, kind string, elapsed time.Duration) {
	result := "ok"
	if kind != "" {
		result = kind
	}
	APIRequestDuration.WithLabelValues(op, result).Observe(elapsed.Seconds())
	APIRequestsTotal.WithLabelValues(op, result).Inc()
}

// SetConnected mirrors the session connection flag.
func SetConnected(connected bool) {
	if connected {
		Connected.Set(1)
		return
	}
	Connected.Set(0)
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
