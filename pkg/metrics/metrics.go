// Package metrics counts filter decisions and exposes them in the Prometheus
// exposition format.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/offlinefirst/bouncekeys/pkg/bounce"
)

// Recorder holds the filter counters on a private registry.
type Recorder struct {
	registry   *prometheus.Registry
	presses    *prometheus.CounterVec
	suppressed *prometheus.CounterVec
	invalid    prometheus.Counter
	reloads    prometheus.Counter
}

// New registers the counters on a fresh registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		presses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bouncekeys_presses_total",
			Help: "Key presses processed by the filter, by decision.",
		}, []string{"decision"}),
		suppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bouncekeys_suppressed_total",
			Help: "Key presses suppressed as bounce, by key code.",
		}, []string{"code"}),
		invalid: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bouncekeys_invalid_signals_total",
			Help: "Signals rejected because they carried no key code.",
		}),
		reloads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bouncekeys_filter_reloads_total",
			Help: "Filters rebuilt after a configuration change.",
		}),
	}
	r.registry.MustRegister(
		r.presses,
		r.suppressed,
		r.invalid,
		r.reloads,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveDecision counts one processed press.
func (r *Recorder) ObserveDecision(code string, decision bounce.Decision) {
	r.presses.WithLabelValues(decision.String()).Inc()
	if decision == bounce.Suppress {
		r.suppressed.WithLabelValues(code).Inc()
	}
}

// ObserveInvalid counts one rejected signal.
func (r *Recorder) ObserveInvalid() {
	r.invalid.Inc()
}

// ObserveReload counts one filter rebuild.
func (r *Recorder) ObserveReload() {
	r.reloads.Inc()
}

// Registry exposes the underlying registry for tests and custom exporters.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry at /metrics.
func (r *Recorder) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	return mux
}

// Serve listens on addr until ctx is cancelled. The listener is bound before
// Serve returns so callers learn about port conflicts immediately.
func (r *Recorder) Serve(ctx context.Context, addr string, logger *zap.Logger) (net.Addr, <-chan error, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("listen for metrics on %s: %w", addr, err)
	}

	server := &http.Server{
		Handler:           r.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	done := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown metrics server", zap.Error(err))
		}
	}()
	go func() {
		err := server.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		done <- err
		close(done)
	}()

	logger.Info("serving metrics", zap.String("addr", listener.Addr().String()))
	return listener.Addr(), done, nil
}
