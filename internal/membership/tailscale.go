package membership

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Provider produces membership snapshots on demand.
type Provider interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// CommandRunner runs an external command and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Tailscale reads membership from `tailscale status --json`.
type Tailscale struct {
	binary string
	run    CommandRunner
}

// TailscaleOption configures a Tailscale provider.
type TailscaleOption func(*Tailscale)

// WithTailscaleBinary sets the tailscale CLI path. Defaults to "tailscale"
// (found via PATH).
func WithTailscaleBinary(path string) TailscaleOption {
	return func(t *Tailscale) { t.binary = path }
}

// WithCommandRunner replaces the command runner, mostly for tests.
func WithCommandRunner(run CommandRunner) TailscaleOption {
	return func(t *Tailscale) { t.run = run }
}

// NewTailscale creates a provider backed by the tailscale CLI.
func NewTailscale(opts ...TailscaleOption) *Tailscale {
	t := &Tailscale{binary: "tailscale", run: runCommand}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// tailscaleStatus is the subset of `tailscale status --json` we consume.
type tailscaleStatus struct {
	Self *tailscaleNode           `json:"Self"`
	Peer map[string]tailscaleNode `json:"Peer"`
}

type tailscaleNode struct {
	HostName     string   `json:"HostName"`
	TailscaleIPs []string `json:"TailscaleIPs"`
}

// Snapshot implements Provider.
func (t *Tailscale) Snapshot(ctx context.Context) (Snapshot, error) {
	out, err := t.run(ctx, t.binary, "status", "--json")
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: run %s status: %w", ErrRead, t.binary, err)
	}
	return decodeTailscaleStatus(out)
}

func decodeTailscaleStatus(data []byte) (Snapshot, error) {
	var status tailscaleStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return Snapshot{}, fmt.Errorf("%w: decode tailscale status: %w", ErrRead, err)
	}
	if status.Self == nil {
		return Snapshot{}, fmt.Errorf("%w: tailscale status has no Self entry", ErrRead)
	}

	snap := Snapshot{
		SelfAddrs: append([]string(nil), status.Self.TailscaleIPs...),
		Peers:     make(map[string]Peer, len(status.Peer)),
	}
	for id, node := range status.Peer {
		snap.Peers[id] = Peer{Addrs: append([]string(nil), node.TailscaleIPs...)}
	}
	return snap, nil
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return nil, fmt.Errorf("%w: %s", err, msg)
			}
		}
		return nil, err
	}
	return out, nil
}
