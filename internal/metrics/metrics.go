// Package metrics records how expensive the dependency-link overlay is to
// compute and exposes the figures for Prometheus.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

var ratioBuckets = []float64{0.25, 0.5, 1, 2, 4, 8, 16}

// Recorder owns a registry with pipegraph's collectors. A nil *Recorder
// records nothing.
type Recorder struct {
	registry *prometheus.Registry

	linksDuration prometheus.Histogram
	linksTotal    prometheus.Histogram
	linksPerGroup prometheus.Histogram
	fetches       *prometheus.CounterVec
	fallbacks     prometheus.Counter
}

// New returns a Recorder registered on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		linksDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pipegraph_links_duration_seconds",
			Help:    "Time taken to compute the dependency links of a pipeline.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		linksTotal: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pipegraph_links_total",
			Help:    "Number of dependency links drawn for a pipeline.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		linksPerGroup: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pipegraph_links_per_group_ratio",
			Help:    "Dependency links divided by job groups.",
			Buckets: ratioBuckets,
		}),
		fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipegraph_pipeline_fetches_total",
				Help: "Pipeline detail fetches by outcome.",
			},
			[]string{"outcome"},
		),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pipegraph_layer_fallbacks_total",
			Help: "Layer views that fell back to the stage view.",
		}),
	}
	r.registry.MustRegister(
		r.linksDuration,
		r.linksTotal,
		r.linksPerGroup,
		r.fetches,
		r.fallbacks,
	)
	return r
}

// ObserveLinks records one link computation.
func (r *Recorder) ObserveLinks(d time.Duration, links, groups int) {
	if r == nil {
		return
	}
	r.linksDuration.Observe(d.Seconds())
	r.linksTotal.Observe(float64(links))
	if groups > 0 {
		r.linksPerGroup.Observe(float64(links) / float64(groups))
	}
}

// ObserveFetch counts a pipeline fetch with the given outcome.
func (r *Recorder) ObserveFetch(outcome string) {
	if r == nil {
		return
	}
	r.fetches.WithLabelValues(outcome).Inc()
}

// ObserveFallback counts a layer view rendered as stages.
func (r *Recorder) ObserveFallback() {
	if r == nil {
		return
	}
	r.fallbacks.Inc()
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (r *Recorder) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
