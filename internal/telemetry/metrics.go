package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "zenoh_tailscale"

// Metrics holds the lifecycle collectors. Each instance owns its registry so
// tests can create as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	MembershipReads  *prometheus.CounterVec
	Reconfigurations prometheus.Counter
	SessionOpen      prometheus.Gauge
	Endpoints        *prometheus.GaugeVec
	StepDuration     *prometheus.HistogramVec

	buildInfo *prometheus.GaugeVec
}

// NewMetrics creates and registers all collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		MembershipReads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "membership_reads_total",
				Help:      "Membership snapshot reads by result (unchanged, changed, error).",
			},
			[]string{"result"},
		),
		Reconfigurations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconfigurations_total",
			Help:      "Overlay sessions replaced after a membership change.",
		}),
		SessionOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_open",
			Help:      "1 while an overlay session is open.",
		}),
		Endpoints: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "endpoints",
				Help:      "Endpoints in the open session's configuration.",
			},
			[]string{"kind"},
		),
		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Latency of lifecycle steps.",
				// 1ms .. ~32s: zenohd readiness can take several seconds.
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
			},
			[]string{"step"},
		),
		buildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "build_info",
				Help:      "Build info (constant 1, labeled by version).",
			},
			[]string{"version"},
		),
	}
	m.Registry.MustRegister(
		m.MembershipReads,
		m.Reconfigurations,
		m.SessionOpen,
		m.Endpoints,
		m.StepDuration,
		m.buildInfo,
	)
	return m
}

// SetBuildInfo should be called once at startup.
func (m *Metrics) SetBuildInfo(version string) {
	if m == nil {
		return
	}
	m.buildInfo.WithLabelValues(version).Set(1)
}

// ObserveRead counts a membership read.
func (m *Metrics) ObserveRead(result string) {
	if m == nil {
		return
	}
	m.MembershipReads.WithLabelValues(result).Inc()
}

// ObserveStep records how long a lifecycle step took.
func (m *Metrics) ObserveStep(step string, start time.Time) {
	if m == nil {
		return
	}
	m.StepDuration.WithLabelValues(step).Observe(time.Since(start).Seconds())
}

// SessionOpened records an open session and its endpoint counts.
func (m *Metrics) SessionOpened(listen, connect int) {
	if m == nil {
		return
	}
	m.SessionOpen.Set(1)
	m.Endpoints.WithLabelValues("listen").Set(float64(listen))
	m.Endpoints.WithLabelValues("connect").Set(float64(connect))
}

// SessionClosed records that no session is open.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.SessionOpen.Set(0)
	m.Endpoints.Reset()
}

// Reconfigured counts a completed reconfiguration.
func (m *Metrics) Reconfigured() {
	if m == nil {
		return
	}
	m.Reconfigurations.Inc()
}

// Handler exposes the registry. Mount it with mux.Handle("/metrics", m.Handler()).
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve starts a /metrics endpoint on addr in the background. The server
// shuts down when ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen metrics on %s: %w", addr, err)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("Serving metrics.", "addr", ln.Addr().String())
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server exited", "err", err)
		}
	}()
	return nil
}
