// Package endpoint turns mesh addresses into overlay discovery endpoints.
//
// Listen endpoints advertise the local node's mesh addresses; connect
// endpoints are the peer addresses the overlay dials. Only IPv4 addresses
// are used: other families are skipped without error.
package endpoint

import (
	"net/netip"
	"strconv"
)

// Transport is the overlay link protocol of an endpoint.
type Transport uint8

const (
	TCP Transport = iota + 1
	UDP
)

// Transports lists every transport an address is exposed on, in emit order.
var Transports = []Transport{TCP, UDP}

func (t Transport) String() string {
	switch t {
	case TCP:
		return "tcp"
	case UDP:
		return "udp"
	default:
		return "unknown"
	}
}

// Endpoint is a single discovery locator.
type Endpoint struct {
	Transport Transport
	Addr      netip.Addr
	Port      uint16
}

// New builds an endpoint.
func New(t Transport, addr netip.Addr, port uint16) Endpoint {
	return Endpoint{Transport: t, Addr: addr, Port: port}
}

// AddrPort returns the endpoint's socket address.
func (e Endpoint) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(e.Addr, e.Port)
}

// String renders the endpoint as an overlay locator, e.g. "tcp/100.64.0.1:7436".
func (e Endpoint) String() string {
	return e.Transport.String() + "/" + e.AddrPort().String()
}

// Strings renders a list of endpoints as locators.
func Strings(eps []Endpoint) []string {
	out := make([]string, len(eps))
	for i, ep := range eps {
		out[i] = ep.String()
	}
	return out
}

// Supported reports whether addr belongs to the address family used for
// discovery. Only IPv4 is supported.
func Supported(addr netip.Addr) bool {
	return addr.Is4()
}

// Ports is the set of discovery ports of a deployment.
type Ports struct {
	// Current is the port this node listens on and the preferred dial port.
	Current uint16
	// Legacy ports are also dialed so older deployments stay reachable
	// during a migration.
	Legacy []uint16
}

const (
	DefaultPort       uint16 = 7436
	DefaultLegacyPort uint16 = 7447
)

// DefaultPorts returns the ports of the current deployment generation.
func DefaultPorts() Ports {
	return Ports{Current: DefaultPort, Legacy: []uint16{DefaultLegacyPort}}
}

// Candidates returns the dial ports: legacy ports first, then the current
// port. Duplicates are dropped, keeping the first occurrence.
func (p Ports) Candidates() []uint16 {
	out := make([]uint16, 0, len(p.Legacy)+1)
	seen := make(map[uint16]struct{}, len(p.Legacy)+1)
	for _, port := range append(append([]uint16(nil), p.Legacy...), p.Current) {
		if _, ok := seen[port]; ok {
			continue
		}
		seen[port] = struct{}{}
		out = append(out, port)
	}
	return out
}

func (p Ports) String() string {
	s := "current=" + strconv.Itoa(int(p.Current))
	for _, port := range p.Legacy {
		s += " legacy=" + strconv.Itoa(int(port))
	}
	return s
}
