package session

import (
	"context"

	"github.com/dmweis/zenoh-tailscale/internal/journal"
	"github.com/dmweis/zenoh-tailscale/internal/membership"
	"github.com/dmweis/zenoh-tailscale/internal/overlay"
)

// Assembler turns a membership snapshot into a session configuration.
// *overlay.Assembler implements it.
type Assembler interface {
	Assemble(snap membership.Snapshot) (*overlay.Config, error)
}

// Recorder persists lifecycle events. *journal.Store implements it.
type Recorder interface {
	Record(ctx context.Context, ev journal.Event) error
}
