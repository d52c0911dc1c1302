// Package session runs the overlay session lifecycle: open a session from
// the current mesh membership, poll for membership changes, and replace the
// session whole whenever membership differs.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmweis/zenoh-tailscale/internal/check"
	"github.com/dmweis/zenoh-tailscale/internal/journal"
	"github.com/dmweis/zenoh-tailscale/internal/membership"
	"github.com/dmweis/zenoh-tailscale/internal/overlay"
	"github.com/dmweis/zenoh-tailscale/internal/telemetry"
)

// DefaultPollInterval is how often membership is re-read.
const DefaultPollInterval = 5 * time.Second

// TickerFunc starts a ticker and returns its channel and a stop function.
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

// Option configures a Manager.
type Option func(*Manager)

// WithPollInterval sets the membership poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) { m.pollInterval = d }
}

// WithTicker replaces the wall-clock ticker.
func WithTicker(fn TickerFunc) Option {
	return func(m *Manager) { m.newTicker = fn }
}

// WithTracer sets the tracer used for lifecycle spans.
func WithTracer(t trace.Tracer) Option {
	return func(m *Manager) { m.tracer = t }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(metrics *telemetry.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithRecorder journals lifecycle events. Record failures are logged and
// never stop the manager.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// Manager owns the single live overlay session.
type Manager struct {
	provider   membership.Provider
	assembler  Assembler
	middleware overlay.Middleware

	pollInterval time.Duration
	newTicker    TickerFunc
	tracer       trace.Tracer
	metrics      *telemetry.Metrics
	recorder     Recorder

	phase atomic.Uint32

	// Touched only by the goroutine inside Run.
	session overlay.Session
	current membership.Snapshot
}

// New creates a lifecycle manager.
func New(provider membership.Provider, assembler Assembler, middleware overlay.Middleware, opts ...Option) *Manager {
	m := &Manager{
		provider:     provider,
		assembler:    assembler,
		middleware:   middleware,
		pollInterval: DefaultPollInterval,
		newTicker:    wallTicker,
		tracer:       telemetry.Tracer(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func wallTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Phase reports the current lifecycle phase. Safe for concurrent use.
func (m *Manager) Phase() Phase {
	return Phase(m.phase.Load())
}

func (m *Manager) setPhase(p Phase) {
	m.phase.Store(uint32(p))
}

// Run opens the initial session and reconciles it against membership until
// ctx is cancelled, then closes it. A nil return means a clean shutdown.
// Any failure is returned immediately; Run never retries. An operation that
// has already started (read, assemble, open, close) runs to completion even
// if ctx is cancelled meanwhile.
func (m *Manager) Run(ctx context.Context) (err error) {
	opCtx := context.WithoutCancel(ctx)
	defer func() {
		if err != nil {
			m.abort(opCtx)
		}
		m.setPhase(PhaseStopped)
	}()

	m.setPhase(PhaseStarting)
	if err := m.start(opCtx); err != nil {
		return err
	}

	ticks, stop := m.newTicker(m.pollInterval)
	defer stop()

	for {
		m.setPhase(PhaseRunning)
		select {
		case <-ctx.Done():
			return m.shutdown(opCtx)
		case <-ticks:
		}
		// A tick and cancellation can be ready together; cancellation wins.
		if ctx.Err() != nil {
			return m.shutdown(opCtx)
		}
		if err := m.tick(opCtx); err != nil {
			return err
		}
	}
}

func (m *Manager) start(ctx context.Context) error {
	op := telemetry.Start(ctx, m.tracer, "session.start")

	snap, err := m.read(op.Context())
	if err != nil {
		op.End(err)
		return err
	}
	op.SetAttributes(attribute.Int("peers", len(snap.Peers)))

	opened, err := m.open(op, snap)
	op.End(err)
	if err != nil {
		return err
	}
	m.record(ctx, journal.KindStart, snap, opened)
	return nil
}

func (m *Manager) tick(ctx context.Context) error {
	snap, err := m.read(ctx)
	if err != nil {
		return err
	}
	if membership.Equal(snap, m.current) {
		m.metrics.ObserveRead("unchanged")
		slog.Debug("Membership unchanged.")
		return nil
	}
	m.metrics.ObserveRead("changed")
	slog.Info("Membership changed, reconfiguring overlay session.",
		"self", snap.SelfAddrs, "peers", len(snap.Peers))
	return m.reconfigure(ctx, snap)
}

func (m *Manager) reconfigure(ctx context.Context, snap membership.Snapshot) error {
	op := telemetry.Start(ctx, m.tracer, "session.reconfigure", attribute.Int("peers", len(snap.Peers)))

	m.setPhase(PhaseReconfiguringClose)
	if err := op.RunStep("session.close", m.closeSession); err != nil {
		op.End(err)
		return err
	}

	m.setPhase(PhaseReconfiguringOpen)
	opened, err := m.open(op, snap)
	op.End(err)
	if err != nil {
		return err
	}
	m.metrics.Reconfigured()
	m.record(ctx, journal.KindReconfigure, snap, opened)
	return nil
}

func (m *Manager) shutdown(ctx context.Context) error {
	m.setPhase(PhaseShuttingDown)
	slog.Info("Shutting down overlay session.")

	op := telemetry.Start(ctx, m.tracer, "session.stop")
	err := op.RunStep("session.close", m.closeSession)
	op.End(err)
	if err != nil {
		return err
	}
	m.record(ctx, journal.KindStop, membership.Snapshot{}, openResult{})
	return nil
}

// abort closes a session left open by a fatal error.
func (m *Manager) abort(ctx context.Context) {
	if m.session == nil {
		return
	}
	if err := m.closeSession(ctx); err != nil {
		slog.Warn("Failed to close overlay session after error.", "err", err)
	}
}

func (m *Manager) read(ctx context.Context) (membership.Snapshot, error) {
	start := time.Now()
	snap, err := m.provider.Snapshot(ctx)
	m.metrics.ObserveStep("read", start)
	if err != nil {
		m.metrics.ObserveRead("error")
		return membership.Snapshot{}, fmt.Errorf("read membership: %w", err)
	}
	return snap, nil
}

type openResult struct {
	selfID  string
	listen  []string
	connect []string
}

// open assembles a config from snap and opens a session on it. The caller
// must not hold a session.
func (m *Manager) open(op *telemetry.Operation, snap membership.Snapshot) (openResult, error) {
	check.Assert(m.session == nil, "session opened while another is held")

	var cfg *overlay.Config
	err := op.RunStep("session.assemble", func(context.Context) error {
		var err error
		if cfg, err = m.assembler.Assemble(snap); err != nil {
			return fmt.Errorf("assemble config: %w", err)
		}
		return nil
	})
	if err != nil {
		return openResult{}, err
	}

	var sess overlay.Session
	err = op.RunStep("session.open", func(ctx context.Context) error {
		start := time.Now()
		var err error
		sess, err = m.middleware.Open(ctx, cfg)
		m.metrics.ObserveStep("open", start)
		if err != nil {
			return fmt.Errorf("open session: %w", err)
		}
		return nil
	})
	if err != nil {
		return openResult{}, err
	}

	m.session = sess
	m.current = snap.Clone()

	res := openResult{listen: cfg.ListenEndpoints(), connect: cfg.ConnectEndpoints()}
	m.metrics.SessionOpened(len(res.listen), len(res.connect))

	info, err := sess.Info(op.Context())
	if err != nil {
		slog.Warn("Failed to query overlay session info.", "err", err)
		return res, nil
	}
	res.selfID = info.SelfID
	slog.Info("Overlay session open.", "id", info.SelfID, "routers", info.Routers, "peers", info.Peers)
	return res, nil
}

// closeSession releases the held session. The handle is dropped before
// Close is called, so a failed close never leaves a stale session behind.
func (m *Manager) closeSession(ctx context.Context) error {
	sess := m.session
	m.session = nil
	if sess == nil {
		return nil
	}

	start := time.Now()
	err := sess.Close(ctx)
	m.metrics.ObserveStep("close", start)
	m.metrics.SessionClosed()
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

func (m *Manager) record(ctx context.Context, kind journal.Kind, snap membership.Snapshot, res openResult) {
	if m.recorder == nil {
		return
	}
	ev := journal.Event{
		Kind:     kind,
		SelfID:   res.selfID,
		Snapshot: snap,
		Listen:   res.listen,
		Connect:  res.connect,
	}
	if err := m.recorder.Record(ctx, ev); err != nil {
		slog.Warn("Failed to record session event.", "kind", kind, "err", err)
	}
}
