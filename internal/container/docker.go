package container

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/docker/docker/api/types"
	dcontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/go-connections/nat"
)

// dockerEngine drives a Docker daemon through the official SDK.
type dockerEngine struct {
	cli *client.Client
}

// NewDockerRuntime connects to the daemon described by the DOCKER_*
// environment and returns a Runtime publishing containers on host.
func NewDockerRuntime(ports *PortAllocator, host string) (*EngineRuntime, func() error, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, nil, fmt.Errorf("container: docker client: %w", err)
	}
	return newEngineRuntime(&dockerEngine{cli: cli}, ports, host), cli.Close, nil
}

func (e *dockerEngine) Build(ctx context.Context, tag string, buildContext io.Reader) error {
	resp, err := e.cli.ImageBuild(ctx, buildContext, types.ImageBuildOptions{
		Tags:        []string{tag},
		Dockerfile:  "Dockerfile",
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	// The daemon reports build failures inside the stream.
	return jsonmessage.DisplayJSONMessagesStream(resp.Body, io.Discard, 0, false, nil)
}

func (e *dockerEngine) Run(ctx context.Context, name, image string, containerPort, hostPort int) (string, error) {
	port, err := nat.NewPort("tcp", strconv.Itoa(containerPort))
	if err != nil {
		return "", err
	}
	created, err := e.cli.ContainerCreate(ctx,
		&dcontainer.Config{
			Image:        image,
			ExposedPorts: nat.PortSet{port: struct{}{}},
		},
		&dcontainer.HostConfig{
			PortBindings: nat.PortMap{
				port: []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: strconv.Itoa(hostPort)}},
			},
		},
		nil, nil, name)
	if err != nil {
		return "", err
	}
	if err := e.cli.ContainerStart(ctx, created.ID, dcontainer.StartOptions{}); err != nil {
		_ = e.cli.ContainerRemove(context.WithoutCancel(ctx), created.ID, dcontainer.RemoveOptions{Force: true})
		return "", err
	}
	return created.ID, nil
}

func (e *dockerEngine) StopAndRemove(ctx context.Context, id string) error {
	if err := e.cli.ContainerStop(ctx, id, dcontainer.StopOptions{}); err != nil {
		return notFound(err)
	}
	return notFound(e.cli.ContainerRemove(ctx, id, dcontainer.RemoveOptions{Force: true}))
}

func (e *dockerEngine) State(ctx context.Context, id string) (string, error) {
	info, err := e.cli.ContainerInspect(ctx, id)
	if err != nil {
		return "", notFound(err)
	}
	if info.ContainerJSONBase == nil || info.State == nil {
		return "", fmt.Errorf("container: inspect %s: no state", id)
	}
	return info.State.Status, nil
}

func notFound(err error) error {
	if err != nil && errdefs.IsNotFound(err) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}
