package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/ALEYI17/InfraSight_gpuview/pkg/logutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const prefix = "perfview_"

var DebounceEvents = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: prefix + "debounce_events_total",
		Help: "Range change requests seen by the debouncer, by what happened to them",
	},
	[]string{"event"},
)

var RecomputeDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Name:    prefix + "recompute_duration_seconds",
		Help:    "Time taken to rebuild the metric tables of one cluster",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
	},
)

var Recomputes = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: prefix + "recomputes_total",
		Help: "Metric table recomputations, by outcome",
	},
	[]string{"outcome"},
)

var VisitedRecords = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: prefix + "visited_records_total",
		Help: "Raw event records delivered by background visitation",
	},
	[]string{"kind"},
)

var Snapshots = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: prefix + "snapshots_total",
		Help: "Snapshot render passes, by outcome",
	},
	[]string{"outcome"},
)

var LoadDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Name:    prefix + "load_duration_seconds",
		Help:    "Time taken to load an experiment",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	},
)

var Loads = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: prefix + "loads_total",
		Help: "Experiment loads, by outcome",
	},
	[]string{"outcome"},
)

var DatasetCacheLookups = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: prefix + "dataset_cache_lookups_total",
		Help: "Dataset cache lookups, by result",
	},
	[]string{"result"},
)

func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Serve exposes the default registry on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	logger := logutil.GetLogger()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving metrics", zap.String("address", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
