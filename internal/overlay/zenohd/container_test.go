package zenohd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/dmweis/zenoh-tailscale/internal/overlay"
)

var errNoSuchContainer = fmt.Errorf("no such container: %w", errdefs.ErrNotFound)

// fakeDocker records calls and returns configured responses.
type fakeDocker struct {
	inspectErr  error
	createErrs  []error // consumed one per ContainerCreate call
	startErr    error
	stopErr     error
	removeErr   error
	pulled      bool
	createdCfg  *container.Config
	createdHost *container.HostConfig
	createdName string

	calls []string
}

func (f *fakeDocker) ContainerInspect(context.Context, string) (container.InspectResponse, error) {
	f.calls = append(f.calls, "Inspect")
	return container.InspectResponse{}, f.inspectErr
}

func (f *fakeDocker) ContainerCreate(_ context.Context, cfg *container.Config, host *container.HostConfig, _ *network.NetworkingConfig, _ *ocispec.Platform, name string) (container.CreateResponse, error) {
	f.calls = append(f.calls, "Create")
	f.createdCfg, f.createdHost, f.createdName = cfg, host, name
	var err error
	if len(f.createErrs) > 0 {
		err, f.createErrs = f.createErrs[0], f.createErrs[1:]
	}
	return container.CreateResponse{}, err
}

func (f *fakeDocker) ContainerStart(context.Context, string, container.StartOptions) error {
	f.calls = append(f.calls, "Start")
	return f.startErr
}

func (f *fakeDocker) ContainerStop(context.Context, string, container.StopOptions) error {
	f.calls = append(f.calls, "Stop")
	return f.stopErr
}

func (f *fakeDocker) ContainerRemove(context.Context, string, container.RemoveOptions) error {
	f.calls = append(f.calls, "Remove")
	return f.removeErr
}

func (f *fakeDocker) ImagePull(context.Context, string, image.PullOptions) (io.ReadCloser, error) {
	f.calls = append(f.calls, "Pull")
	f.pulled = true
	return io.NopCloser(strings.NewReader(`{"status":"done"}`)), nil
}

func noopReady(context.Context, *Admin) error { return nil }

func newTestContainer(t *testing.T, docker *fakeDocker, opts ...ContainerOption) (*Container, Paths) {
	t.Helper()
	paths := NewPaths(t.TempDir())
	opts = append([]ContainerOption{WithReadinessCheck(noopReady)}, opts...)
	return NewContainer(docker, paths, netip.MustParseAddrPort("127.0.0.1:8000"), opts...), paths
}

func TestContainerOpen_CreatesFreshContainer(t *testing.T) {
	docker := &fakeDocker{inspectErr: errNoSuchContainer}
	c, paths := newTestContainer(t, docker)

	s, err := c.Open(context.Background(), overlay.Default())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s == nil {
		t.Fatal("Open returned nil session")
	}

	want := []string{"Inspect", "Create", "Start"}
	if !slices.Equal(docker.calls, want) {
		t.Errorf("calls = %v, want %v", docker.calls, want)
	}
	if docker.createdName != DefaultContainerName {
		t.Errorf("container name = %q, want %q", docker.createdName, DefaultContainerName)
	}
	if docker.createdHost.NetworkMode != "host" {
		t.Errorf("network mode = %q, want host", docker.createdHost.NetworkMode)
	}
	wantCmd := []string{"-c", paths.Config, "--rest-http-port", "127.0.0.1:8000"}
	if !slices.Equal([]string(docker.createdCfg.Cmd), wantCmd) {
		t.Errorf("cmd = %v, want %v", docker.createdCfg.Cmd, wantCmd)
	}
	if _, err := os.Stat(paths.Config); err != nil {
		t.Errorf("config not written: %v", err)
	}
}

func TestContainerOpen_RemovesStaleContainer(t *testing.T) {
	docker := &fakeDocker{}
	c, _ := newTestContainer(t, docker)

	if _, err := c.Open(context.Background(), overlay.Default()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	want := []string{"Inspect", "Stop", "Remove", "Create", "Start"}
	if !slices.Equal(docker.calls, want) {
		t.Errorf("calls = %v, want %v", docker.calls, want)
	}
}

func TestContainerOpen_PullsMissingImage(t *testing.T) {
	docker := &fakeDocker{
		inspectErr: errNoSuchContainer,
		createErrs: []error{fmt.Errorf("no such image: %w", errdefs.ErrNotFound)},
	}
	c, _ := newTestContainer(t, docker, WithImage("eclipse/zenoh:1.0.0"))

	if _, err := c.Open(context.Background(), overlay.Default()); err != nil {
		t.Fatalf("Open: %v", err)
	}

	want := []string{"Inspect", "Create", "Pull", "Create", "Start"}
	if !slices.Equal(docker.calls, want) {
		t.Errorf("calls = %v, want %v", docker.calls, want)
	}
	if docker.createdCfg.Image != "eclipse/zenoh:1.0.0" {
		t.Errorf("image = %q", docker.createdCfg.Image)
	}
}

func TestContainerOpen_InspectError(t *testing.T) {
	docker := &fakeDocker{inspectErr: errors.New("daemon down")}
	c, _ := newTestContainer(t, docker)

	_, err := c.Open(context.Background(), overlay.Default())
	if !errors.Is(err, overlay.ErrSessionOpen) {
		t.Fatalf("Open error = %v, want ErrSessionOpen", err)
	}
}

func TestContainerOpen_NotReadyRollsBack(t *testing.T) {
	docker := &fakeDocker{inspectErr: errNoSuchContainer}
	notReady := errors.New("admin down")
	c, _ := newTestContainer(t, docker, WithReadinessCheck(func(context.Context, *Admin) error { return notReady }))

	_, err := c.Open(context.Background(), overlay.Default())
	if !errors.Is(err, overlay.ErrSessionOpen) || !errors.Is(err, notReady) {
		t.Fatalf("Open error = %v, want ErrSessionOpen wrapping readiness error", err)
	}

	want := []string{"Inspect", "Create", "Start", "Stop", "Remove"}
	if !slices.Equal(docker.calls, want) {
		t.Errorf("calls = %v, want %v", docker.calls, want)
	}
}

func TestContainerClose(t *testing.T) {
	docker := &fakeDocker{inspectErr: errNoSuchContainer}
	c, _ := newTestContainer(t, docker)

	s, err := c.Open(context.Background(), overlay.Default())
	if err != nil {
		t.Fatal(err)
	}
	docker.calls = nil

	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	want := []string{"Stop", "Remove"}
	if !slices.Equal(docker.calls, want) {
		t.Errorf("calls = %v, want %v", docker.calls, want)
	}
}

func TestContainerClose_IgnoresMissing(t *testing.T) {
	docker := &fakeDocker{inspectErr: errNoSuchContainer}
	c, _ := newTestContainer(t, docker)

	s, err := c.Open(context.Background(), overlay.Default())
	if err != nil {
		t.Fatal(err)
	}
	docker.stopErr = errNoSuchContainer
	docker.removeErr = errNoSuchContainer

	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestContainerClose_Error(t *testing.T) {
	docker := &fakeDocker{inspectErr: errNoSuchContainer}
	c, _ := newTestContainer(t, docker)

	s, err := c.Open(context.Background(), overlay.Default())
	if err != nil {
		t.Fatal(err)
	}
	docker.stopErr = errors.New("permission denied")

	if err := s.Close(context.Background()); !errors.Is(err, overlay.ErrSessionClose) {
		t.Fatalf("Close error = %v, want ErrSessionClose", err)
	}
}

func TestNewPaths(t *testing.T) {
	p := NewPaths("/var/lib/zenoh-tailscale")
	if p.Dir != filepath.Join("/var/lib/zenoh-tailscale", "zenohd") {
		t.Errorf("Dir = %q", p.Dir)
	}
	if p.Config != filepath.Join(p.Dir, "config.json") {
		t.Errorf("Config = %q", p.Config)
	}
}
