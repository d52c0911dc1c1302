// Package zenohd runs the Zenoh router as the overlay middleware.
// Two modes: exec (child process) and container (Docker). Both write the
// assembled configuration to the data directory, start zenohd with its REST
// admin API enabled and wait until it answers.
package zenohd

import (
	"fmt"
	"net/netip"
	"path/filepath"

	"github.com/dmweis/zenoh-tailscale/internal/overlay"
)

// Paths holds the filesystem layout of the zenohd data directory.
type Paths struct {
	Dir    string // root zenohd data dir
	Config string // config.json written before every start
}

// NewPaths derives all paths from a root data directory.
func NewPaths(dataDir string) Paths {
	dir := filepath.Join(dataDir, "zenohd")
	return Paths{
		Dir:    dir,
		Config: filepath.Join(dir, "config.json"),
	}
}

func writeConfig(paths Paths, cfg *overlay.Config) error {
	if err := cfg.WriteFile(paths.Config); err != nil {
		return fmt.Errorf("%w: %w", overlay.ErrSessionOpen, err)
	}
	return nil
}

func routerArgs(configPath string, adminAddr netip.AddrPort) []string {
	return []string{"-c", configPath, "--rest-http-port", adminAddr.String()}
}
