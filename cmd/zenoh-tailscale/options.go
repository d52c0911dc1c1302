package main

import (
	"errors"
	"fmt"
	"math"
	"net/netip"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/pflag"

	"github.com/dmweis/zenoh-tailscale/internal/endpoint"
	"github.com/dmweis/zenoh-tailscale/internal/membership"
	"github.com/dmweis/zenoh-tailscale/internal/overlay"
	"github.com/dmweis/zenoh-tailscale/internal/overlay/zenohd"
	"github.com/dmweis/zenoh-tailscale/internal/session"
)

const (
	membershipTailscale = "tailscale"
	membershipWireGuard = "wireguard"

	runtimeExec   = "exec"
	runtimeDocker = "docker"
)

type runOptions struct {
	zenohConfig string

	membership   string
	tailscaleBin string
	wgInterface  string

	runtime    string
	zenohdBin  string
	zenohImage string
	adminAddr  string

	dataDir string
	stateDB string

	port         uint16
	legacyPorts  []uint
	pollInterval time.Duration
	multihop     bool
	noMulticast  bool

	metricsAddr string
}

func defaultRunOptions() runOptions {
	legacy := make([]uint, 0, 1)
	for _, p := range endpoint.DefaultPorts().Legacy {
		legacy = append(legacy, uint(p))
	}
	return runOptions{
		membership:   membershipTailscale,
		tailscaleBin: "tailscale",
		wgInterface:  "wg0",
		runtime:      runtimeExec,
		zenohdBin:    "zenohd",
		zenohImage:   zenohd.DefaultImage,
		adminAddr:    zenohd.DefaultAdminAddr.String(),
		dataDir:      defaultDataDir(),
		port:         endpoint.DefaultPort,
		legacyPorts:  legacy,
		pollInterval: session.DefaultPollInterval,
		multihop:     true,
	}
}

func (o *runOptions) bindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.zenohConfig, "zenoh-config", o.zenohConfig, "Base Zenoh config file (JSON, YAML or TOML); library default when empty")
	fs.StringVar(&o.membership, "membership", o.membership, "Membership source (tailscale, wireguard)")
	fs.StringVar(&o.tailscaleBin, "tailscale-bin", o.tailscaleBin, "tailscale CLI binary")
	fs.StringVar(&o.wgInterface, "wg-interface", o.wgInterface, "WireGuard interface for --membership=wireguard")
	fs.StringVar(&o.runtime, "runtime", o.runtime, "zenohd runtime (exec, docker)")
	fs.StringVar(&o.zenohdBin, "zenohd-bin", o.zenohdBin, "zenohd binary for --runtime=exec")
	fs.StringVar(&o.zenohImage, "zenoh-image", o.zenohImage, "zenohd image for --runtime=docker")
	fs.StringVar(&o.adminAddr, "admin-addr", o.adminAddr, "Address of the zenohd REST admin API")
	fs.Uint16Var(&o.port, "port", o.port, "Discovery port to listen on and dial")
	fs.UintSliceVar(&o.legacyPorts, "legacy-port", o.legacyPorts, "Legacy discovery port to also dial (repeatable)")
	fs.DurationVar(&o.pollInterval, "poll-interval", o.pollInterval, "Membership poll interval")
	fs.BoolVar(&o.multihop, "multihop", o.multihop, "Enable multihop gossip scouting")
	fs.BoolVar(&o.noMulticast, "no-multicast", o.noMulticast, "Disable multicast scouting")
	fs.StringVar(&o.metricsAddr, "metrics-addr", o.metricsAddr, "Serve Prometheus metrics on this address")
}

func defaultDataDir() string {
	if runtime.GOOS == "darwin" {
		return "/usr/local/var/lib/zenoh-tailscale"
	}
	return "/var/lib/zenoh-tailscale"
}

func (o runOptions) statePath() string {
	if o.stateDB != "" {
		return o.stateDB
	}
	return filepath.Join(o.dataDir, "state.db")
}

func (o runOptions) ports() (endpoint.Ports, error) {
	if o.port == 0 {
		return endpoint.Ports{}, errors.New("--port must be non-zero")
	}
	p := endpoint.Ports{Current: o.port}
	for _, lp := range o.legacyPorts {
		if lp == 0 || lp > math.MaxUint16 {
			return endpoint.Ports{}, fmt.Errorf("--legacy-port %d out of range", lp)
		}
		p.Legacy = append(p.Legacy, uint16(lp))
	}
	return p, nil
}

func (o runOptions) assembler() (*overlay.Assembler, error) {
	ports, err := o.ports()
	if err != nil {
		return nil, err
	}
	a := overlay.NewAssembler(o.zenohConfig)
	a.Ports = ports
	a.Scouting = overlay.Scouting{MultihopGossip: o.multihop, DisableMulticast: o.noMulticast}
	return a, nil
}

func (o runOptions) provider() (membership.Provider, error) {
	switch o.membership {
	case membershipTailscale:
		return membership.NewTailscale(membership.WithTailscaleBinary(o.tailscaleBin)), nil
	case membershipWireGuard:
		return membership.NewWireGuard(o.wgInterface), nil
	default:
		return nil, fmt.Errorf("unknown membership source %q (want %s or %s)", o.membership, membershipTailscale, membershipWireGuard)
	}
}

func (o runOptions) admin() (netip.AddrPort, error) {
	addr, err := netip.ParseAddrPort(o.adminAddr)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("parse --admin-addr: %w", err)
	}
	return addr, nil
}

func (o runOptions) validate() error {
	if o.pollInterval <= 0 {
		return errors.New("--poll-interval must be positive")
	}
	switch o.runtime {
	case runtimeExec, runtimeDocker:
	default:
		return fmt.Errorf("unknown runtime %q (want %s or %s)", o.runtime, runtimeExec, runtimeDocker)
	}
	return nil
}
