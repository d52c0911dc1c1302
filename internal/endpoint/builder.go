package endpoint

import (
	"net/netip"
	"slices"
)

// Listen returns a tcp and a udp endpoint on port for every supported self
// address.
func Listen(self []netip.Addr, port uint16) []Endpoint {
	out := make([]Endpoint, 0, 2*len(self))
	for _, addr := range self {
		if !Supported(addr) {
			continue
		}
		for _, t := range Transports {
			out = append(out, New(t, addr, port))
		}
	}
	return out
}

// ConnectAddr returns the dial endpoints for a single peer address: a tcp and
// a udp endpoint per candidate port, in port order. Unsupported addresses
// yield nothing.
func ConnectAddr(addr netip.Addr, ports []uint16) []Endpoint {
	if !Supported(addr) {
		return nil
	}
	out := make([]Endpoint, 0, 2*len(ports))
	for _, port := range ports {
		for _, t := range Transports {
			out = append(out, New(t, addr, port))
		}
	}
	return out
}

// Connect returns the dial endpoints for every address of every peer. Peers
// are visited in sorted id order, so the result does not depend on map
// iteration order.
func Connect(peers map[string][]netip.Addr, ports []uint16) []Endpoint {
	ids := make([]string, 0, len(peers))
	for id := range peers {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var out []Endpoint
	for _, id := range ids {
		for _, addr := range peers[id] {
			out = append(out, ConnectAddr(addr, ports)...)
		}
	}
	return out
}
