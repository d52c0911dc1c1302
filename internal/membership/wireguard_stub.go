//go:build !linux

package membership

import (
	"context"
	"fmt"
)

// WireGuard is only supported on Linux.
type WireGuard struct {
	iface string
}

// NewWireGuard creates a provider for the named WireGuard interface.
func NewWireGuard(iface string) *WireGuard {
	return &WireGuard{iface: iface}
}

// Snapshot implements Provider.
func (w *WireGuard) Snapshot(context.Context) (Snapshot, error) {
	return Snapshot{}, fmt.Errorf("%w: wireguard membership for %s is only supported on linux", ErrRead, w.iface)
}
