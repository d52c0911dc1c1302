package overlay

import (
	"fmt"
	"log/slog"

	"github.com/dmweis/zenoh-tailscale/internal/endpoint"
	"github.com/dmweis/zenoh-tailscale/internal/membership"
)

// Assembler builds session configurations from membership snapshots.
type Assembler struct {
	// BaseConfig is the path of the base configuration file. Empty selects
	// the library default.
	BaseConfig string
	Ports      endpoint.Ports
	Scouting   Scouting
}

// NewAssembler returns an assembler with the default ports and scouting.
func NewAssembler(baseConfig string) *Assembler {
	return &Assembler{
		BaseConfig: baseConfig,
		Ports:      endpoint.DefaultPorts(),
		Scouting:   DefaultScouting(),
	}
}

// Assemble loads the base configuration and extends it with endpoints
// derived from snap. The base file is re-read on every call so that each
// session starts from the same base.
func (a *Assembler) Assemble(snap membership.Snapshot) (*Config, error) {
	cfg, err := Load(a.BaseConfig)
	if err != nil {
		return nil, err
	}
	slog.Debug("Loaded base overlay config.", "path", a.BaseConfig, "mode", cfg.Mode(), "keys", cfg.Keys())

	if err := cfg.SetScouting(a.Scouting); err != nil {
		return nil, err
	}

	parsed, err := snap.Parse()
	if err != nil {
		return nil, err
	}

	listen := endpoint.Listen(parsed.Self, a.Ports.Current)
	connect := endpoint.Connect(parsed.Peers, a.Ports.Candidates())

	if err := cfg.ExtendListen(listen); err != nil {
		return nil, fmt.Errorf("extend listen endpoints: %w", err)
	}
	if err := cfg.ExtendConnect(connect); err != nil {
		return nil, fmt.Errorf("extend connect endpoints: %w", err)
	}

	slog.Info("Assembled overlay config.",
		"listen", cfg.ListenEndpoints(),
		"connect", cfg.ConnectEndpoints(),
	)
	return cfg, nil
}
