// Package overlay assembles Zenoh session configuration from mesh
// membership and defines the session surface the lifecycle manager drives.
package overlay

import (
	"context"
	"errors"
)

var (
	// ErrConfigLoad means the base configuration could not be read or decoded.
	ErrConfigLoad = errors.New("config load failed")
	// ErrUnsupportedOption means the loaded configuration cannot take a
	// requested option.
	ErrUnsupportedOption = errors.New("unsupported option")
	// ErrSessionOpen means the middleware failed to establish a session.
	ErrSessionOpen = errors.New("session open failed")
	// ErrSessionClose means the middleware failed to tear a session down.
	ErrSessionClose = errors.New("session close failed")
)

// Middleware opens overlay sessions.
type Middleware interface {
	Open(ctx context.Context, cfg *Config) (Session, error)
}

// Session is a live overlay session. Close must be called exactly once.
type Session interface {
	Close(ctx context.Context) error
	Info(ctx context.Context) (Info, error)
}

// Info is the diagnostic view of a session.
type Info struct {
	SelfID  string
	Routers []string
	Peers   []string
}
