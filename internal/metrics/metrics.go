// Package metrics exports crawl counters in the Prometheus format.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nao1215/friendcrawl/internal/store"
)

const namespace = "friendcrawl"

// Collector holds every friendcrawl metric in its own registry.
// It satisfies the gateway and engine observer interfaces.
type Collector struct {
	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	players   *prometheus.GaugeVec
	snapshots *prometheus.CounterVec
}

// New returns a Collector with all metrics registered, plus the Go runtime
// and process collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Web API attempts by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "Latency of Web API attempts.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"endpoint"}),
		players: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "players",
			Help:      "Known identities by state.",
		}, []string{"state"}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Store snapshots by result.",
		}, []string{"result"}),
	}
	c.registry.MustRegister(
		c.requests,
		c.duration,
		c.players,
		c.snapshots,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the registry holding the metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveRequest records one Web API attempt.
func (c *Collector) ObserveRequest(endpoint, outcome string, elapsed time.Duration) {
	c.requests.WithLabelValues(endpoint, outcome).Inc()
	c.duration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// ObserveSnapshot records a snapshot attempt.
func (c *Collector) ObserveSnapshot(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.snapshots.WithLabelValues(result).Inc()
}

// ObserveStats publishes the store counters as gauges.
func (c *Collector) ObserveStats(s store.Stats) {
	for state, v := range map[string]int{
		"total":          s.Total,
		"public":         s.Public,
		"private":        s.Private,
		"unknown":        s.UnknownVisibility,
		"owning":         s.Owning,
		"not_owning":     s.NotOwning,
		"unresolved":     s.UnresolvedOwnership,
		"games_hidden":   s.GamesHidden,
		"crawled":        s.Crawled,
		"friends_hidden": s.FriendsHidden,
		"frontier":       s.Frontier,
	} {
		c.players.WithLabelValues(state).Set(float64(v))
	}
}

// Handler serves the registry in the exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Serve serves /metrics on ln until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, ln net.Listener, h http.Handler, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	logger.Info("metrics listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
