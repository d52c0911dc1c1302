// Package buildinfo carries version metadata set at link time:
//
//	go build -ldflags "-X github.com/dmweis/zenoh-tailscale/internal/buildinfo.Version=v0.3.0"
package buildinfo

// Version is the release version, "dev" for local builds.
var Version = "dev"
