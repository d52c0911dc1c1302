package overlay

import (
	"errors"
	"slices"
	"testing"

	"github.com/dmweis/zenoh-tailscale/internal/endpoint"
	"github.com/dmweis/zenoh-tailscale/internal/membership"
)

func sorted(in []string) []string {
	out := slices.Clone(in)
	slices.Sort(out)
	return out
}

func TestAssemble_Default(t *testing.T) {
	t.Parallel()

	a := NewAssembler("")
	cfg, err := a.Assemble(membership.Snapshot{
		SelfAddrs: []string{"100.64.0.1", "fd7a:115c:a1e0::1"},
		Peers: map[string]membership.Peer{
			"nodekey:a": {Addrs: []string{"100.64.0.2", "fd7a:115c:a1e0::2"}},
		},
	})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	wantListen := []string{"tcp/100.64.0.1:7436", "udp/100.64.0.1:7436"}
	if got := cfg.ListenEndpoints(); !slices.Equal(got, wantListen) {
		t.Errorf("listen = %v, want %v", got, wantListen)
	}
	wantConnect := []string{
		"tcp/100.64.0.2:7447",
		"udp/100.64.0.2:7447",
		"tcp/100.64.0.2:7436",
		"udp/100.64.0.2:7436",
	}
	if got := cfg.ConnectEndpoints(); !slices.Equal(got, wantConnect) {
		t.Errorf("connect = %v, want %v", got, wantConnect)
	}
}

func TestAssemble_ExtendsBaseFile(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "zenoh.json", `{
  "mode": "peer",
  "listen": {"endpoints": ["tcp/127.0.0.1:7447"]},
  "connect": {"endpoints": ["tcp/192.168.1.10:7447"]}
}`)
	a := &Assembler{BaseConfig: path, Ports: endpoint.Ports{Current: 9000}, Scouting: DefaultScouting()}
	cfg, err := a.Assemble(membership.Snapshot{
		SelfAddrs: []string{"100.64.0.1"},
		Peers:     map[string]membership.Peer{"b": {Addrs: []string{"100.64.0.3"}}},
	})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	wantListen := []string{"tcp/127.0.0.1:7447", "tcp/100.64.0.1:9000", "udp/100.64.0.1:9000"}
	if got := cfg.ListenEndpoints(); !slices.Equal(got, wantListen) {
		t.Errorf("listen = %v, want %v", got, wantListen)
	}
	wantConnect := []string{"tcp/192.168.1.10:7447", "tcp/100.64.0.3:9000", "udp/100.64.0.3:9000"}
	if got := cfg.ConnectEndpoints(); !slices.Equal(got, wantConnect) {
		t.Errorf("connect = %v, want %v", got, wantConnect)
	}
}

func TestAssemble_Idempotent(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "zenoh.yaml", "mode: peer\nlisten:\n  endpoints: [\"tcp/127.0.0.1:7447\"]\n")
	a := NewAssembler(path)

	first := membership.Snapshot{
		SelfAddrs: []string{"100.64.0.1"},
		Peers: map[string]membership.Peer{
			"a": {Addrs: []string{"100.64.0.2"}},
			"b": {Addrs: []string{"100.64.0.3"}},
			"c": {Addrs: []string{"100.64.0.4"}},
		},
	}
	second := first.Clone()

	c1, err := a.Assemble(first)
	if err != nil {
		t.Fatal(err)
	}
	c2, err := a.Assemble(second)
	if err != nil {
		t.Fatal(err)
	}

	if !slices.Equal(sorted(c1.ListenEndpoints()), sorted(c2.ListenEndpoints())) {
		t.Errorf("listen sets differ: %v vs %v", c1.ListenEndpoints(), c2.ListenEndpoints())
	}
	if !slices.Equal(sorted(c1.ConnectEndpoints()), sorted(c2.ConnectEndpoints())) {
		t.Errorf("connect sets differ: %v vs %v", c1.ConnectEndpoints(), c2.ConnectEndpoints())
	}
}

func TestAssemble_Errors(t *testing.T) {
	t.Parallel()

	good := membership.Snapshot{SelfAddrs: []string{"100.64.0.1"}}

	t.Run("missing base file", func(t *testing.T) {
		t.Parallel()
		_, err := NewAssembler("/nonexistent/zenoh.json").Assemble(good)
		if !errors.Is(err, ErrConfigLoad) {
			t.Fatalf("error = %v, want ErrConfigLoad", err)
		}
	})

	t.Run("bad address", func(t *testing.T) {
		t.Parallel()
		_, err := NewAssembler("").Assemble(membership.Snapshot{
			SelfAddrs: []string{"100.64.0.1"},
			Peers:     map[string]membership.Peer{"a": {Addrs: []string{"100.64.0"}}},
		})
		var perr *membership.AddrParseError
		if !errors.As(err, &perr) {
			t.Fatalf("error = %v, want *AddrParseError", err)
		}
	})

	t.Run("unsupported option", func(t *testing.T) {
		t.Parallel()
		path := writeFile(t, "zenoh.json", `{"scouting": {"gossip": {"enabled": false}}}`)
		_, err := NewAssembler(path).Assemble(good)
		if !errors.Is(err, ErrUnsupportedOption) {
			t.Fatalf("error = %v, want ErrUnsupportedOption", err)
		}
	})
}
