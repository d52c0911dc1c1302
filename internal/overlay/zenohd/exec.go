package zenohd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"os"
	"os/exec"
	"time"

	"github.com/dmweis/zenoh-tailscale/internal/overlay"
)

const defaultStopTimeout = 10 * time.Second

// Exec runs zenohd as a child process.
// Implements overlay.Middleware.
type Exec struct {
	binary      string
	paths       Paths
	adminAddr   netip.AddrPort
	readyCheck  ReadinessCheck
	stopTimeout time.Duration
	stdout      io.Writer
	stderr      io.Writer
}

// ExecOption configures an Exec runtime.
type ExecOption func(*Exec)

// WithBinary sets the path to the zenohd binary. Defaults to "zenohd"
// (found via PATH).
func WithBinary(path string) ExecOption {
	return func(e *Exec) { e.binary = path }
}

// WithExecReadinessCheck overrides the default readiness check (WaitReady).
func WithExecReadinessCheck(fn ReadinessCheck) ExecOption {
	return func(e *Exec) { e.readyCheck = fn }
}

// WithStopTimeout bounds how long Close waits after interrupting zenohd
// before killing it.
func WithStopTimeout(d time.Duration) ExecOption {
	return func(e *Exec) { e.stopTimeout = d }
}

// WithOutput redirects the child's stdout and stderr.
func WithOutput(stdout, stderr io.Writer) ExecOption {
	return func(e *Exec) { e.stdout, e.stderr = stdout, stderr }
}

// NewExec creates a child-process-based zenohd runtime.
func NewExec(paths Paths, adminAddr netip.AddrPort, opts ...ExecOption) *Exec {
	e := &Exec{
		binary:      "zenohd",
		paths:       paths,
		adminAddr:   adminAddr,
		readyCheck:  WaitReady,
		stopTimeout: defaultStopTimeout,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Open writes cfg, launches zenohd and waits for it to be ready.
func (e *Exec) Open(ctx context.Context, cfg *overlay.Config) (overlay.Session, error) {
	if err := writeConfig(e.paths, cfg); err != nil {
		return nil, err
	}

	// Not CommandContext: the process must outlive the Open call.
	cmd := exec.Command(e.binary, routerArgs(e.paths.Config, e.adminAddr)...)
	cmd.Stdout = e.stdout
	cmd.Stderr = e.stderr
	cmd.SysProcAttr = sysProcAttr()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start zenohd process: %w", overlay.ErrSessionOpen, err)
	}

	p := &process{
		cmd:         cmd,
		admin:       NewAdmin(e.adminAddr),
		stopTimeout: e.stopTimeout,
		exited:      make(chan struct{}),
	}
	go p.wait()

	if err := p.waitReady(ctx, e.readyCheck); err != nil {
		_ = cmd.Process.Kill() // best-effort cleanup
		<-p.exited
		return nil, fmt.Errorf("%w: %w", overlay.ErrSessionOpen, err)
	}

	slog.Info("zenohd process started.", "pid", cmd.Process.Pid, "admin", e.adminAddr)
	return p, nil
}

// process is a running zenohd child.
type process struct {
	cmd         *exec.Cmd
	admin       *Admin
	stopTimeout time.Duration

	exited  chan struct{}
	waitErr error
}

func (p *process) wait() {
	p.waitErr = p.cmd.Wait()
	close(p.exited)
}

// waitReady runs check until it passes, failing as soon as the child exits.
// A ready answer from a child that has already exited came from some other
// process holding the admin port.
func (p *process) waitReady(ctx context.Context, check ReadinessCheck) error {
	readyCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-p.exited:
			cancel()
		case <-readyCtx.Done():
		}
	}()

	err := check(readyCtx, p.admin)
	select {
	case <-p.exited:
		return fmt.Errorf("zenohd exited during startup: %v", p.waitErr)
	default:
	}
	return err
}

// Info implements overlay.Session.
func (p *process) Info(ctx context.Context) (overlay.Info, error) {
	return p.admin.Info(ctx)
}

// Close interrupts zenohd and waits for it to exit, killing it when it does
// not stop within the stop timeout.
func (p *process) Close(ctx context.Context) error {
	select {
	case <-p.exited:
		slog.Warn("zenohd had already exited.", "err", p.waitErr)
		return nil
	default:
	}

	if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
		slog.Debug("Interrupt zenohd failed.", "err", err)
	}

	timer := time.NewTimer(p.stopTimeout)
	defer timer.Stop()

	select {
	case <-p.exited:
		if p.waitErr != nil {
			// Exit status != 0 is expected on interrupt.
			slog.Debug("zenohd process exited.", "err", p.waitErr)
		}
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	_ = p.cmd.Process.Kill() // best-effort force kill
	<-p.exited
	slog.Warn("zenohd did not stop in time, killed.", "timeout", p.stopTimeout)
	return nil
}
