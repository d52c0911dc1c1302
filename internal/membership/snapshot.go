// Package membership describes who is on the mesh: the local node's own
// addresses and the addresses of every known peer.
package membership

import (
	"errors"
	"fmt"
	"net/netip"
	"slices"
)

// ErrRead marks a provider failure: the status source could not be queried
// or returned output that could not be decoded.
var ErrRead = errors.New("membership provider failed")

// Snapshot is a point-in-time view of mesh membership.
type Snapshot struct {
	SelfAddrs []string        `json:"self_addrs"`
	Peers     map[string]Peer `json:"peers"`
}

// Peer is a single remote mesh member.
type Peer struct {
	Addrs []string `json:"addrs"`
}

// Equal reports whether a and b describe the same membership. Address lists
// are compared as sets.
func Equal(a, b Snapshot) bool {
	if !sameSet(a.SelfAddrs, b.SelfAddrs) {
		return false
	}
	if len(a.Peers) != len(b.Peers) {
		return false
	}
	for id, pa := range a.Peers {
		pb, ok := b.Peers[id]
		if !ok {
			return false
		}
		if !sameSet(pa.Addrs, pb.Addrs) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{SelfAddrs: slices.Clone(s.SelfAddrs)}
	if s.Peers != nil {
		out.Peers = make(map[string]Peer, len(s.Peers))
		for id, p := range s.Peers {
			out.Peers[id] = Peer{Addrs: slices.Clone(p.Addrs)}
		}
	}
	return out
}

// PeerIDs returns the peer ids in sorted order.
func (s Snapshot) PeerIDs() []string {
	ids := make([]string, 0, len(s.Peers))
	for id := range s.Peers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// AddrParseError reports a membership address that is not an IP literal.
type AddrParseError struct {
	Peer string // empty for the local node
	Addr string
	Err  error
}

func (e *AddrParseError) Error() string {
	if e.Peer == "" {
		return fmt.Sprintf("parse self address %q: %v", e.Addr, e.Err)
	}
	return fmt.Sprintf("parse address %q of peer %s: %v", e.Addr, e.Peer, e.Err)
}

func (e *AddrParseError) Unwrap() error { return e.Err }

// Parsed is a Snapshot whose addresses have been validated.
type Parsed struct {
	Self  []netip.Addr
	Peers map[string][]netip.Addr
}

// Parse validates every address in the snapshot. The first invalid literal
// fails the whole snapshot with an *AddrParseError.
func (s Snapshot) Parse() (Parsed, error) {
	self, err := parseAddrs("", s.SelfAddrs)
	if err != nil {
		return Parsed{}, err
	}
	out := Parsed{Self: self, Peers: make(map[string][]netip.Addr, len(s.Peers))}
	for _, id := range s.PeerIDs() {
		addrs, err := parseAddrs(id, s.Peers[id].Addrs)
		if err != nil {
			return Parsed{}, err
		}
		out.Peers[id] = addrs
	}
	return out, nil
}

func parseAddrs(peer string, in []string) ([]netip.Addr, error) {
	out := make([]netip.Addr, 0, len(in))
	for _, raw := range in {
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, &AddrParseError{Peer: peer, Addr: raw, Err: err}
		}
		out = append(out, addr)
	}
	return out, nil
}

func sameSet(a, b []string) bool {
	return slices.Equal(normalize(a), normalize(b))
}

func normalize(in []string) []string {
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}
