// Package services – DeployService
//
// Runs a project's files as a container and keeps the project's container
// fields in step with the runtime.
package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/stelgent-backend/internal/container"
	"github.com/tbourn/stelgent-backend/internal/domain"
	"github.com/tbourn/stelgent-backend/internal/observability"
	"github.com/tbourn/stelgent-backend/internal/repo"
)

// StatusNotDeployed is reported for projects without a container.
const StatusNotDeployed = "not_deployed"

// DeployResult describes a started deployment.
type DeployResult struct {
	ContainerID string
	URL         string
	Port        int
}

// ContainerStatus is the live state of a project's deployment.
type ContainerStatus struct {
	Deployed bool
	Status   string
	URL      string
	Port     int
}

// PortReserver marks host ports as taken.
type PortReserver interface {
	Reserve(port int)
}

// DeployService deploys projects through a container runtime. A nil Runtime
// makes every operation fail with ErrDeployUnavailable.
type DeployService struct {
	DB      *gorm.DB
	Runtime container.Runtime
}

// Deploy builds and starts the project's files. A project that is already
// running is stopped first so its host port is not leaked.
func (s *DeployService) Deploy(ctx context.Context, userID, projectID string) (*DeployResult, error) {
	ctx, span := otel.Tracer("services/DeployService").Start(ctx, "Deploy",
		trace.WithAttributes(attribute.String("project.id", projectID)))
	defer span.End()

	p, err := ownedProject(ctx, s.DB, userID, projectID)
	if err != nil {
		return nil, err
	}
	if s.Runtime == nil {
		return nil, ErrDeployUnavailable
	}
	stored, err := repo.ListFiles(ctx, s.DB, projectID)
	if err != nil {
		return nil, err
	}
	files := make([]container.File, 0, len(stored))
	for _, f := range stored {
		if f.Kind == domain.KindFile {
			files = append(files, container.File{Path: f.Path, Content: f.Content, Kind: f.Kind})
		}
	}
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	if p.Deployed() {
		if err := s.stop(ctx, p); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("container_id", *p.ContainerID).Msg("stopping previous container failed")
		}
	}

	d, err := s.Runtime.Deploy(ctx, p.Name, files)
	if err != nil {
		observability.Deployments.WithLabelValues("error").Inc()
		return nil, err
	}
	if err := repo.SetProjectContainer(ctx, s.DB, projectID, d.ContainerID, d.HostPort, d.URL); err != nil {
		observability.Deployments.WithLabelValues("error").Inc()
		_ = s.Runtime.Stop(ctx, d.ContainerID, d.HostPort)
		return nil, err
	}
	observability.Deployments.WithLabelValues("started").Inc()
	span.SetAttributes(attribute.String("container.id", d.ContainerID), attribute.Int("container.port", d.HostPort))
	return &DeployResult{ContainerID: d.ContainerID, URL: d.URL, Port: d.HostPort}, nil
}

// Stop stops and removes the project's container.
func (s *DeployService) Stop(ctx context.Context, userID, projectID string) error {
	ctx, span := otel.Tracer("services/DeployService").Start(ctx, "Stop",
		trace.WithAttributes(attribute.String("project.id", projectID)))
	defer span.End()

	p, err := ownedProject(ctx, s.DB, userID, projectID)
	if err != nil {
		return err
	}
	if !p.Deployed() {
		return ErrNotDeployed
	}
	if s.Runtime == nil {
		return ErrDeployUnavailable
	}
	if err := s.stop(ctx, p); err != nil {
		observability.Deployments.WithLabelValues("error").Inc()
		return err
	}
	observability.Deployments.WithLabelValues("stopped").Inc()
	return nil
}

func (s *DeployService) stop(ctx context.Context, p *domain.Project) error {
	port := 0
	if p.ContainerPort != nil {
		port = *p.ContainerPort
	}
	err := s.Runtime.Stop(ctx, *p.ContainerID, port)
	if err != nil && !errors.Is(err, container.ErrNotFound) {
		return err
	}
	return repo.ClearProjectContainer(ctx, s.DB, p.ID, domain.ContainerStopped)
}

// Status asks the runtime for the container state. A container that
// vanished clears the project's container fields.
func (s *DeployService) Status(ctx context.Context, userID, projectID string) (*ContainerStatus, error) {
	p, err := ownedProject(ctx, s.DB, userID, projectID)
	if err != nil {
		return nil, err
	}
	if !p.Deployed() {
		return &ContainerStatus{Status: StatusNotDeployed}, nil
	}
	if s.Runtime == nil {
		return nil, ErrDeployUnavailable
	}

	state, err := s.Runtime.Status(ctx, *p.ContainerID)
	if errors.Is(err, container.ErrNotFound) {
		if err := repo.ClearProjectContainer(ctx, s.DB, p.ID, domain.ContainerNotFound); err != nil {
			return nil, err
		}
		return &ContainerStatus{Status: domain.ContainerNotFound}, nil
	}
	if err != nil {
		return nil, err
	}

	st := &ContainerStatus{Deployed: true, Status: state}
	if p.ContainerURL != nil {
		st.URL = *p.ContainerURL
	}
	if p.ContainerPort != nil {
		st.Port = *p.ContainerPort
	}
	return st, nil
}

// RestorePorts reserves the host ports of deployments recorded before a
// restart so new deployments do not collide with them.
func (s *DeployService) RestorePorts(ctx context.Context, ports PortReserver) (int, error) {
	projects, err := repo.ListDeployedProjects(ctx, s.DB)
	if err != nil {
		return 0, err
	}
	for _, p := range projects {
		ports.Reserve(*p.ContainerPort)
	}
	return len(projects), nil
}
