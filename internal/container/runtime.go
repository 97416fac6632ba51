package container

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// ErrNotFound is returned when the runtime no longer knows a container.
var ErrNotFound = errors.New("container: not found")

// Deployment describes a started container.
type Deployment struct {
	ContainerID string
	Image       string
	Name        string
	HostPort    int
	URL         string
	Stack       string
}

// Runtime runs projects as containers.
type Runtime interface {
	Deploy(ctx context.Context, projectName string, files []File) (Deployment, error)
	// Stop stops and removes the container and frees hostPort.
	Stop(ctx context.Context, containerID string, hostPort int) error
	// Status returns the runtime's state string ("running", "exited", ...)
	// or ErrNotFound.
	Status(ctx context.Context, containerID string) (string, error)
}

// engine is the slice of the container engine API the runtime drives.
type engine interface {
	Build(ctx context.Context, tag string, buildContext io.Reader) error
	Run(ctx context.Context, name, image string, containerPort, hostPort int) (string, error)
	StopAndRemove(ctx context.Context, id string) error
	State(ctx context.Context, id string) (string, error)
}

// EngineRuntime implements Runtime on top of an engine and a PortAllocator.
type EngineRuntime struct {
	engine engine
	ports  *PortAllocator
	host   string
	now    func() time.Time
}

func newEngineRuntime(e engine, ports *PortAllocator, host string) *EngineRuntime {
	if host == "" {
		host = "localhost"
	}
	return &EngineRuntime{engine: e, ports: ports, host: host, now: time.Now}
}

// Deploy builds an image from files and runs it on a freshly acquired host
// port. The port is released again when anything fails.
func (r *EngineRuntime) Deploy(ctx context.Context, projectName string, files []File) (Deployment, error) {
	log := zerolog.Ctx(ctx)
	plan := PlanFor(files)
	bundle, err := BuildContext(files, plan)
	if err != nil {
		return Deployment{}, err
	}
	for _, p := range bundle.Skipped {
		log.Warn().Str("path", p).Msg("file left out of build context")
	}

	port, err := r.ports.Acquire()
	if err != nil {
		return Deployment{}, err
	}

	slug, ts := Slug(projectName), r.now().Unix()
	d := Deployment{
		Image:    fmt.Sprintf("stelgent-project-%s-%d", slug, ts),
		Name:     fmt.Sprintf("stelgent-%s-%d", slug, ts),
		HostPort: port,
		URL:      fmt.Sprintf("http://%s:%d", r.host, port),
		Stack:    plan.Stack,
	}

	if err := r.engine.Build(ctx, d.Image, bytes.NewReader(bundle.Tar)); err != nil {
		r.ports.Release(port)
		return Deployment{}, fmt.Errorf("container: build %s: %w", d.Image, err)
	}
	id, err := r.engine.Run(ctx, d.Name, d.Image, plan.ContainerPort, port)
	if err != nil {
		r.ports.Release(port)
		return Deployment{}, fmt.Errorf("container: run %s: %w", d.Name, err)
	}
	d.ContainerID = id

	log.Info().Str("container_id", id).Str("image", d.Image).Int("host_port", port).Str("stack", plan.Stack).
		Msg("container started")
	return d, nil
}

// Stop stops and removes the container. The host port is freed even when the
// container is already gone.
func (r *EngineRuntime) Stop(ctx context.Context, containerID string, hostPort int) error {
	err := r.engine.StopAndRemove(ctx, containerID)
	if err == nil || errors.Is(err, ErrNotFound) {
		if hostPort > 0 {
			r.ports.Release(hostPort)
		}
	}
	return err
}

// Status reports the container state.
func (r *EngineRuntime) Status(ctx context.Context, containerID string) (string, error) {
	return r.engine.State(ctx, containerID)
}
