// Package metrics exposes Prometheus collectors for the import pipeline.
package metrics

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ImportsStarted counts accepted import submissions.
	ImportsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spendlens_imports_started_total",
		Help: "Number of statement imports submitted.",
	})

	// ImportsFinished counts terminal transitions by outcome and by who
	// detected it (executor vs reconciler).
	ImportsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spendlens_imports_finished_total",
		Help: "Number of statement imports that reached a terminal status.",
	}, []string{"status", "source"})

	// RowsProcessed counts per-row dispositions during ingestion.
	RowsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spendlens_import_rows_total",
		Help: "Number of statement rows handled, by disposition.",
	}, []string{"disposition"}) // committed | staged | skipped

	// ReviewsResolved counts duplicate review resolutions by action.
	ReviewsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spendlens_duplicate_reviews_resolved_total",
		Help: "Number of duplicate reviews resolved, by action.",
	}, []string{"action"})
)

// Serve starts the metrics endpoint on its own port. It blocks, so callers
// run it in a goroutine.
func Serve(port int, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("metrics server listening", slog.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server stopped", slog.Any("error", err))
	}
}
