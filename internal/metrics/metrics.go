package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Account outcome labels.
const (
	AccountOK       = "ok"
	AccountDegraded = "degraded"
	AccountFailed   = "failed"
)

var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelrank_api_requests_total",
			Help: "Total number of remote API attempts by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reelrank_api_request_duration_seconds",
			Help:    "Duration of single remote API attempts in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"operation"},
	)

	APIRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelrank_api_retries_total",
			Help: "Total number of retried remote API attempts",
		},
		[]string{"operation"},
	)

	AccountsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelrank_accounts_total",
			Help: "Accounts processed by outcome",
		},
		[]string{"status"},
	)

	ErrorRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelrank_error_records_total",
			Help: "Error log records emitted by context",
		},
		[]string{"context"},
	)

	ReelsExportedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reelrank_reels_exported_total",
			Help: "Reel rows written to the export",
		},
	)
)

// RecordRequest observes a single API attempt. outcome is "ok" or an error kind.
func RecordRequest(operation, outcome string, d time.Duration) {
	APIRequestsTotal.WithLabelValues(operation, outcome).Inc()
	APIRequestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordRetry counts one retried attempt for operation.
func RecordRetry(operation string) {
	APIRetriesTotal.WithLabelValues(operation).Inc()
}

// RecordAccount counts one account outcome.
func RecordAccount(status string) {
	AccountsTotal.WithLabelValues(status).Inc()
}

// RecordError counts one error log record.
func RecordError(context string) {
	ErrorRecordsTotal.WithLabelValues(context).Inc()
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "port", port, "err", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
