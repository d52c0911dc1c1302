package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/docker/docker/client"

	"github.com/dmweis/zenoh-tailscale/internal/buildinfo"
	"github.com/dmweis/zenoh-tailscale/internal/journal"
	"github.com/dmweis/zenoh-tailscale/internal/overlay"
	"github.com/dmweis/zenoh-tailscale/internal/overlay/zenohd"
	"github.com/dmweis/zenoh-tailscale/internal/session"
	"github.com/dmweis/zenoh-tailscale/internal/telemetry"
)

func run(ctx context.Context, o runOptions) error {
	if err := o.validate(); err != nil {
		return err
	}
	assembler, err := o.assembler()
	if err != nil {
		return err
	}
	provider, err := o.provider()
	if err != nil {
		return err
	}
	adminAddr, err := o.admin()
	if err != nil {
		return err
	}

	middleware, closeRuntime, err := o.middleware(zenohd.NewPaths(o.dataDir), adminAddr)
	if err != nil {
		return err
	}
	defer closeRuntime()

	opts := []session.Option{session.WithPollInterval(o.pollInterval)}

	if o.metricsAddr != "" {
		metrics := telemetry.NewMetrics()
		metrics.SetBuildInfo(buildinfo.Version)
		if err := metrics.Serve(ctx, o.metricsAddr); err != nil {
			return err
		}
		opts = append(opts, session.WithMetrics(metrics))
	}

	store, err := journal.Open(o.statePath())
	if err != nil {
		slog.Warn("State journal unavailable, events will not be recorded.", "path", o.statePath(), "err", err)
	} else {
		defer store.Close()
		opts = append(opts, session.WithRecorder(store))
	}

	slog.Info("Starting zenoh-tailscale.",
		"version", buildinfo.Version,
		"membership", o.membership,
		"runtime", o.runtime,
		"ports", assembler.Ports.String(),
		"poll_interval", o.pollInterval,
	)
	return session.New(provider, assembler, middleware, opts...).Run(ctx)
}

// middleware builds the selected zenohd runtime. The returned func releases
// runtime resources and is always safe to call.
func (o runOptions) middleware(paths zenohd.Paths, adminAddr netip.AddrPort) (overlay.Middleware, func(), error) {
	switch o.runtime {
	case runtimeDocker:
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return nil, nil, fmt.Errorf("create docker client: %w", err)
		}
		rt := zenohd.NewContainer(cli, paths, adminAddr, zenohd.WithImage(o.zenohImage))
		return rt, func() { _ = cli.Close() }, nil
	default:
		return zenohd.NewExec(paths, adminAddr, zenohd.WithBinary(o.zenohdBin)), func() {}, nil
	}
}
