package zenohd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/netip"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/dmweis/zenoh-tailscale/internal/overlay"
)

const (
	DefaultImage         = "eclipse/zenoh:latest"
	DefaultContainerName = "zenoh-tailscale-zenohd"
)

// DockerAPI is the subset of the Docker client the container runtime uses.
// *client.Client satisfies it.
type DockerAPI interface {
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
}

// Container runs zenohd as a Docker container on the host network, so it
// can bind the mesh addresses directly.
// Implements overlay.Middleware.
type Container struct {
	docker     DockerAPI
	image      string
	name       string
	paths      Paths
	adminAddr  netip.AddrPort
	readyCheck ReadinessCheck
}

// ContainerOption configures a Container runtime.
type ContainerOption func(*Container)

func WithImage(img string) ContainerOption {
	return func(c *Container) { c.image = img }
}

func WithContainerName(name string) ContainerOption {
	return func(c *Container) { c.name = name }
}

// WithReadinessCheck overrides the default readiness check (WaitReady).
func WithReadinessCheck(fn ReadinessCheck) ContainerOption {
	return func(c *Container) { c.readyCheck = fn }
}

// NewContainer creates a Docker-based zenohd runtime.
func NewContainer(docker DockerAPI, paths Paths, adminAddr netip.AddrPort, opts ...ContainerOption) *Container {
	c := &Container{
		docker:     docker,
		image:      DefaultImage,
		name:       DefaultContainerName,
		paths:      paths,
		adminAddr:  adminAddr,
		readyCheck: WaitReady,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open writes cfg and starts a fresh zenohd container. A container left
// behind by an earlier run is removed first: its config is stale.
func (c *Container) Open(ctx context.Context, cfg *overlay.Config) (overlay.Session, error) {
	if err := writeConfig(c.paths, cfg); err != nil {
		return nil, err
	}

	if _, err := c.docker.ContainerInspect(ctx, c.name); err == nil {
		slog.Info("Removing stale zenohd container.", "name", c.name)
		if err := c.remove(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", overlay.ErrSessionOpen, err)
		}
	} else if !errdefs.IsNotFound(err) {
		return nil, fmt.Errorf("%w: inspect zenohd container: %w", overlay.ErrSessionOpen, err)
	}

	if err := c.createAndStart(ctx); err != nil {
		return nil, fmt.Errorf("%w: start zenohd container: %w", overlay.ErrSessionOpen, err)
	}

	s := &containerSession{owner: c, admin: NewAdmin(c.adminAddr)}
	if err := c.readyCheck(ctx, s.admin); err != nil {
		if rmErr := c.remove(ctx); rmErr != nil {
			slog.Error("rollback: remove zenohd container", "err", rmErr)
		}
		return nil, fmt.Errorf("%w: %w", overlay.ErrSessionOpen, err)
	}

	slog.Info("zenohd container started.", "name", c.name, "image", c.image)
	return s, nil
}

func (c *Container) createAndStart(ctx context.Context) error {
	containerCfg := &container.Config{
		Image: c.image,
		Cmd:   routerArgs(c.paths.Config, c.adminAddr),
	}
	hostCfg := &container.HostConfig{
		NetworkMode: "host",
		Mounts: []mount.Mount{
			{
				Type:     mount.TypeBind,
				Source:   c.paths.Dir,
				Target:   c.paths.Dir,
				ReadOnly: true,
			},
		},
	}

	_, err := c.docker.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, c.name)
	if err != nil {
		if !errdefs.IsNotFound(err) {
			return fmt.Errorf("create container: %w", err)
		}
		if err := c.pullImage(ctx); err != nil {
			return err
		}
		if _, err = c.docker.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, c.name); err != nil {
			return fmt.Errorf("create container after pull: %w", err)
		}
	}

	if err := c.docker.ContainerStart(ctx, c.name, container.StartOptions{}); err != nil {
		return fmt.Errorf("start container: %w", err)
	}
	return nil
}

func (c *Container) pullImage(ctx context.Context) error {
	slog.Info("Pulling zenohd image.", "image", c.image)
	resp, err := c.docker.ImagePull(ctx, c.image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull zenohd image: %w", err)
	}
	defer resp.Close()
	// Drain the pull output to completion.
	if _, err := io.Copy(io.Discard, resp); err != nil {
		return fmt.Errorf("pull zenohd image: read response: %w", err)
	}
	return nil
}

// remove stops and removes the container, ignoring a missing one.
func (c *Container) remove(ctx context.Context) error {
	if err := c.docker.ContainerStop(ctx, c.name, container.StopOptions{}); err != nil {
		if !errdefs.IsNotFound(err) {
			return fmt.Errorf("stop zenohd container: %w", err)
		}
	}
	if err := c.docker.ContainerRemove(ctx, c.name, container.RemoveOptions{Force: true}); err != nil {
		if !errdefs.IsNotFound(err) {
			return fmt.Errorf("remove zenohd container: %w", err)
		}
	}
	return nil
}

type containerSession struct {
	owner *Container
	admin *Admin
}

// Info implements overlay.Session.
func (s *containerSession) Info(ctx context.Context) (overlay.Info, error) {
	return s.admin.Info(ctx)
}

// Close implements overlay.Session.
func (s *containerSession) Close(ctx context.Context) error {
	if err := s.owner.remove(ctx); err != nil {
		return fmt.Errorf("%w: %w", overlay.ErrSessionClose, err)
	}
	slog.Info("zenohd container removed.", "name", s.owner.name)
	return nil
}
