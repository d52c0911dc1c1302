package zenohd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dmweis/zenoh-tailscale/internal/overlay"
)

const (
	// DefaultAdminPort is zenohd's default REST port.
	DefaultAdminPort = 8000

	routerLocalPath = "/@/router/local"

	readyInitialInterval = 50 * time.Millisecond
	readyMaxInterval     = 1 * time.Second
	readyMaxElapsed      = 20 * time.Second
)

// DefaultAdminAddr is where the REST admin API is bound unless overridden.
var DefaultAdminAddr = netip.AddrPortFrom(netip.AddrFrom4([4]byte{127, 0, 0, 1}), DefaultAdminPort)

// Admin queries the zenohd REST admin space.
type Admin struct {
	base string
	http *http.Client
}

// NewAdmin creates an admin client for the REST API at addr.
func NewAdmin(addr netip.AddrPort) *Admin {
	return NewAdminURL("http://" + addr.String())
}

// NewAdminURL creates an admin client for a full base URL.
func NewAdminURL(base string) *Admin {
	return &Admin{base: base, http: &http.Client{Timeout: 5 * time.Second}}
}

// adminEntry is one key/value pair of an admin space reply.
type adminEntry struct {
	Key   string      `json:"key"`
	Value routerState `json:"value"`
}

type routerState struct {
	ZID      string         `json:"zid"`
	Sessions []sessionState `json:"sessions"`
}

type sessionState struct {
	Peer    string `json:"peer"`
	WhatAmI string `json:"whatami"`
}

// Info returns the router's own zid and the zids of routers and peers it
// currently has sessions with.
func (a *Admin) Info(ctx context.Context) (overlay.Info, error) {
	state, err := a.routerLocal(ctx)
	if err != nil {
		return overlay.Info{}, err
	}
	info := overlay.Info{SelfID: state.ZID}
	for _, s := range state.Sessions {
		switch s.WhatAmI {
		case "router":
			info.Routers = append(info.Routers, s.Peer)
		case "peer":
			info.Peers = append(info.Peers, s.Peer)
		}
	}
	slices.Sort(info.Routers)
	slices.Sort(info.Peers)
	return info, nil
}

func (a *Admin) routerLocal(ctx context.Context) (routerState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.base+routerLocalPath, nil)
	if err != nil {
		return routerState{}, fmt.Errorf("build admin request: %w", err)
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return routerState{}, fmt.Errorf("query zenohd admin: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return routerState{}, fmt.Errorf("query zenohd admin: status %d: %s", resp.StatusCode, body)
	}

	var entries []adminEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return routerState{}, fmt.Errorf("decode zenohd admin reply: %w", err)
	}
	for _, e := range entries {
		if e.Value.ZID != "" {
			return e.Value, nil
		}
	}
	return routerState{}, fmt.Errorf("zenohd admin reply has no router entry")
}

// ReadinessCheck blocks until zenohd answers on its admin API.
type ReadinessCheck func(ctx context.Context, admin *Admin) error

// WaitReady polls the admin API with exponential backoff until the router
// reports its zid.
func WaitReady(ctx context.Context, admin *Admin) error {
	check := func() error {
		_, err := admin.routerLocal(ctx)
		return err
	}

	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(readyInitialInterval),
		backoff.WithMaxInterval(readyMaxInterval),
		backoff.WithMaxElapsedTime(readyMaxElapsed),
	)
	if err := backoff.Retry(check, backoff.WithContext(b, ctx)); err != nil {
		return fmt.Errorf("wait ready: zenohd not responding after %s: %w", readyMaxElapsed, err)
	}
	return nil
}
