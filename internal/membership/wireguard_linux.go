//go:build linux

package membership

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"github.com/vishvananda/netlink"
	"golang.zx2c4.com/wireguard/wgctrl"
)

// WireGuard reads membership from a local WireGuard interface. Self
// addresses come from the interface, peer addresses from each peer's
// single-host AllowedIPs. Peers are keyed by public key.
type WireGuard struct {
	iface string
}

// NewWireGuard creates a provider for the named WireGuard interface.
func NewWireGuard(iface string) *WireGuard {
	return &WireGuard{iface: iface}
}

// Snapshot implements Provider.
func (w *WireGuard) Snapshot(_ context.Context) (Snapshot, error) {
	self, err := w.selfAddrs()
	if err != nil {
		return Snapshot{}, err
	}

	wg, err := wgctrl.New()
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: create wireguard client: %w", ErrRead, err)
	}
	defer wg.Close()

	dev, err := wg.Device(w.iface)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: inspect wireguard device %q: %w", ErrRead, w.iface, err)
	}

	snap := Snapshot{SelfAddrs: self, Peers: make(map[string]Peer, len(dev.Peers))}
	for _, p := range dev.Peers {
		snap.Peers[p.PublicKey.String()] = Peer{Addrs: hostAddrs(p.AllowedIPs)}
	}
	return snap, nil
}

func (w *WireGuard) selfAddrs() ([]string, error) {
	link, err := netlink.LinkByName(w.iface)
	if err != nil {
		return nil, fmt.Errorf("%w: find interface %s: %w", ErrRead, w.iface, err)
	}
	addrs, err := netlink.AddrList(link, netlink.FAMILY_ALL)
	if err != nil {
		return nil, fmt.Errorf("%w: list addresses on %s: %w", ErrRead, w.iface, err)
	}
	out := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		if addr.IPNet == nil {
			continue
		}
		ip, ok := netip.AddrFromSlice(addr.IP)
		if !ok {
			continue
		}
		out = append(out, ip.Unmap().String())
	}
	return out, nil
}

// hostAddrs keeps only /32 and /128 entries: wider AllowedIPs are routed
// subnets, not the peer's own address.
func hostAddrs(nets []net.IPNet) []string {
	out := make([]string, 0, len(nets))
	for _, n := range nets {
		ip, ok := netip.AddrFromSlice(n.IP)
		if !ok {
			continue
		}
		ip = ip.Unmap()
		ones, bits := n.Mask.Size()
		if ones != ip.BitLen() || bits != ip.BitLen() {
			continue
		}
		out = append(out, ip.String())
	}
	return out
}
