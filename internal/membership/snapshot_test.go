package membership

import (
	"errors"
	"net/netip"
	"testing"
)

func TestEqual(t *testing.T) {
	t.Parallel()

	base := Snapshot{
		SelfAddrs: []string{"100.64.0.1", "fd7a:115c:a1e0::1"},
		Peers: map[string]Peer{
			"a": {Addrs: []string{"100.64.0.2"}},
			"b": {Addrs: []string{"100.64.0.3", "fd7a:115c:a1e0::3"}},
		},
	}

	tests := []struct {
		name string
		b    Snapshot
		want bool
	}{
		{name: "identical", b: base.Clone(), want: true},
		{
			name: "address order ignored",
			b: Snapshot{
				SelfAddrs: []string{"fd7a:115c:a1e0::1", "100.64.0.1"},
				Peers: map[string]Peer{
					"a": {Addrs: []string{"100.64.0.2"}},
					"b": {Addrs: []string{"fd7a:115c:a1e0::3", "100.64.0.3"}},
				},
			},
			want: true,
		},
		{
			name: "duplicates ignored",
			b: Snapshot{
				SelfAddrs: []string{"100.64.0.1", "100.64.0.1", "fd7a:115c:a1e0::1"},
				Peers:     base.Clone().Peers,
			},
			want: true,
		},
		{
			name: "self changed",
			b:    Snapshot{SelfAddrs: []string{"100.64.0.9"}, Peers: base.Clone().Peers},
			want: false,
		},
		{
			name: "peer removed",
			b: Snapshot{
				SelfAddrs: base.SelfAddrs,
				Peers:     map[string]Peer{"a": {Addrs: []string{"100.64.0.2"}}},
			},
			want: false,
		},
		{
			name: "peer renamed",
			b: Snapshot{
				SelfAddrs: base.SelfAddrs,
				Peers: map[string]Peer{
					"a": {Addrs: []string{"100.64.0.2"}},
					"c": {Addrs: []string{"100.64.0.3", "fd7a:115c:a1e0::3"}},
				},
			},
			want: false,
		},
		{
			name: "peer address changed",
			b: Snapshot{
				SelfAddrs: base.SelfAddrs,
				Peers: map[string]Peer{
					"a": {Addrs: []string{"100.64.0.4"}},
					"b": {Addrs: []string{"100.64.0.3", "fd7a:115c:a1e0::3"}},
				},
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Equal(base, tt.b); got != tt.want {
				t.Errorf("Equal() = %v, want %v", got, tt.want)
			}
			if got := Equal(tt.b, base); got != tt.want {
				t.Errorf("Equal() reversed = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEqual_NilAndEmptyPeers(t *testing.T) {
	t.Parallel()

	a := Snapshot{SelfAddrs: []string{"100.64.0.1"}}
	b := Snapshot{SelfAddrs: []string{"100.64.0.1"}, Peers: map[string]Peer{}}
	if !Equal(a, b) {
		t.Error("nil and empty peer maps should compare equal")
	}
}

func TestClone_IsDeep(t *testing.T) {
	t.Parallel()

	orig := Snapshot{
		SelfAddrs: []string{"100.64.0.1"},
		Peers:     map[string]Peer{"a": {Addrs: []string{"100.64.0.2"}}},
	}
	c := orig.Clone()
	c.SelfAddrs[0] = "100.64.0.9"
	c.Peers["a"].Addrs[0] = "100.64.0.9"
	c.Peers["b"] = Peer{}

	if orig.SelfAddrs[0] != "100.64.0.1" {
		t.Errorf("self addrs mutated through clone: %v", orig.SelfAddrs)
	}
	if orig.Peers["a"].Addrs[0] != "100.64.0.2" {
		t.Errorf("peer addrs mutated through clone: %v", orig.Peers["a"].Addrs)
	}
	if len(orig.Peers) != 1 {
		t.Errorf("peer map mutated through clone: %v", orig.Peers)
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	snap := Snapshot{
		SelfAddrs: []string{"100.64.0.1", "fd7a:115c:a1e0::1"},
		Peers:     map[string]Peer{"a": {Addrs: []string{"100.64.0.2"}}},
	}
	parsed, err := snap.Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(parsed.Self) != 2 || parsed.Self[0] != netip.MustParseAddr("100.64.0.1") {
		t.Errorf("self = %v", parsed.Self)
	}
	if got := parsed.Peers["a"]; len(got) != 1 || got[0] != netip.MustParseAddr("100.64.0.2") {
		t.Errorf("peer a = %v", got)
	}
}

func TestParse_InvalidAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		snap     Snapshot
		wantPeer string
		wantAddr string
	}{
		{
			name:     "self",
			snap:     Snapshot{SelfAddrs: []string{"100.64.0.300"}},
			wantAddr: "100.64.0.300",
		},
		{
			name: "peer",
			snap: Snapshot{
				SelfAddrs: []string{"100.64.0.1"},
				Peers:     map[string]Peer{"nodekey:abc": {Addrs: []string{"not-an-ip"}}},
			},
			wantPeer: "nodekey:abc",
			wantAddr: "not-an-ip",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := tt.snap.Parse()
			var perr *AddrParseError
			if !errors.As(err, &perr) {
				t.Fatalf("Parse() error = %v, want *AddrParseError", err)
			}
			if perr.Peer != tt.wantPeer || perr.Addr != tt.wantAddr {
				t.Errorf("AddrParseError = {%q %q}, want {%q %q}", perr.Peer, perr.Addr, tt.wantPeer, tt.wantAddr)
			}
		})
	}
}

func TestPeerIDs_Sorted(t *testing.T) {
	t.Parallel()

	snap := Snapshot{Peers: map[string]Peer{"c": {}, "a": {}, "b": {}}}
	got := snap.PeerIDs()
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("PeerIDs() = %v, want %v", got, want)
		}
	}
}
