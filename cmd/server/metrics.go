package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"pkt.systems/pslog"

	"github.com/nickyhof/QueryGate/db"
	"github.com/nickyhof/QueryGate/query"
)

const metricsNamespace = "querygate"

type metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	rejected prometheus.Counter
	active   prometheus.Gauge
}

func newMetrics(registry *db.Registry, queueLen func() int) *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "requests_total",
			Help:      "Requests served, by operation and outcome.",
		}, []string{"op", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "request_duration_seconds",
			Help:      "Time spent processing a request.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rejected_connections_total",
			Help:      "Connections answered with 503 because no worker was free.",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_requests",
			Help:      "Requests currently being served.",
		}),
	}
	m.registry.MustRegister(m.requests, m.duration, m.rejected, m.active)
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "queue_length",
		Help:      "Accepted connections waiting for a worker.",
	}, func() float64 { return float64(queueLen()) }))
	if registry != nil {
		m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "database_attach_total",
			Help:      "Database handles attached.",
		}, func() float64 { return float64(registry.Stats().Attached) }))
		m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "database_detach_total",
			Help:      "Database handles detached.",
		}, func() float64 { return float64(registry.Stats().Detached) }))
	}
	return m
}

func (m *metrics) observe(resp query.Response) {
	op := resp.Op
	if op == "" {
		op = "none"
	}
	outcome := "ok"
	if resp.Err != nil {
		outcome = "error"
	}
	m.requests.WithLabelValues(op, outcome).Inc()
	m.duration.WithLabelValues(op).Observe(resp.Duration.Seconds())
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// serveMetrics exposes /metrics on addr until ctx is done.
func serveMetrics(ctx context.Context, addr string, m *metrics, logger pslog.Logger) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server.metrics.error", "error", err)
		}
	}()
	return ln.Addr().String(), nil
}
