// Package gcp implements the cloud contract on Google Cloud: Artifact
// Registry, Cloud SQL, IAM, Secret Manager and Cloud Run.
package gcp

import (
	"context"
	"fmt"
	"time"

	resourcemanager "cloud.google.com/go/resourcemanager/apiv3"
	"google.golang.org/api/artifactregistry/v1"
	"google.golang.org/api/cloudresourcemanager/v3"
	"google.golang.org/api/iam/v1"
	"google.golang.org/api/option"
	"google.golang.org/api/run/v2"
	"google.golang.org/api/secretmanager/v1"
	"google.golang.org/api/sqladmin/v1"

	"github.com/picklr-io/converge/internal/logging"
	"github.com/picklr-io/converge/pkg/cloud"
)

// DefaultPollInterval is the wait between long-running operation polls.
const DefaultPollInterval = 3 * time.Second

// Options configures the provider.
type Options struct {
	Project string
	Region  string

	// ClientOptions are passed to every Google API client, e.g. credentials
	// or an endpoint override.
	ClientOptions []option.ClientOption
	PollInterval  time.Duration

	// SkipPreflight disables the project state check in New.
	SkipPreflight bool
}

// Provider talks to the Google Cloud control plane of one project.
type Provider struct {
	project      string
	region       string
	pollInterval time.Duration

	sql       *sqladmin.Service
	secrets   *secretmanager.Service
	iam       *iam.Service
	crm       *cloudresourcemanager.Service
	registry  *artifactregistry.Service
	run       *run.Service
	projects  *resourcemanager.ProjectsClient
	clientOps []option.ClientOption
}

var _ cloud.Client = (*Provider)(nil)

// New creates the API clients and checks that the project is active.
func New(ctx context.Context, opts Options) (*Provider, error) {
	if opts.Project == "" || opts.Region == "" {
		return nil, fmt.Errorf("gcp provider requires project and region")
	}
	p := &Provider{
		project:      opts.Project,
		region:       opts.Region,
		pollInterval: opts.PollInterval,
		clientOps:    opts.ClientOptions,
	}
	if p.pollInterval <= 0 {
		p.pollInterval = DefaultPollInterval
	}

	var err error
	if p.sql, err = sqladmin.NewService(ctx, opts.ClientOptions...); err != nil {
		return nil, fmt.Errorf("create sql admin service: %w", err)
	}
	if p.secrets, err = secretmanager.NewService(ctx, opts.ClientOptions...); err != nil {
		return nil, fmt.Errorf("create secret manager service: %w", err)
	}
	if p.iam, err = iam.NewService(ctx, opts.ClientOptions...); err != nil {
		return nil, fmt.Errorf("create iam service: %w", err)
	}
	if p.crm, err = cloudresourcemanager.NewService(ctx, opts.ClientOptions...); err != nil {
		return nil, fmt.Errorf("create resource manager service: %w", err)
	}
	if p.registry, err = artifactregistry.NewService(ctx, opts.ClientOptions...); err != nil {
		return nil, fmt.Errorf("create artifact registry service: %w", err)
	}
	if p.run, err = run.NewService(ctx, opts.ClientOptions...); err != nil {
		return nil, fmt.Errorf("create run service: %w", err)
	}

	if !opts.SkipPreflight {
		if err := p.CheckProject(ctx); err != nil {
			_ = p.Close()
			return nil, err
		}
	}
	logging.Debug("gcp provider ready", "project", p.project, "region", p.region)
	return p, nil
}

// Close releases the gRPC projects client if it was opened.
func (p *Provider) Close() error {
	if p.projects != nil {
		return p.projects.Close()
	}
	return nil
}

func (p *Provider) Describe(ctx context.Context, ref cloud.Ref) (cloud.ResourceState, error) {
	var (
		fields map[string]string
		err    error
	)
	switch ref.Kind {
	case cloud.KindArtifactRepository:
		fields, err = p.describeRepository(ctx, ref)
	case cloud.KindDatabaseInstance:
		fields, err = p.describeInstance(ctx, ref)
	case cloud.KindDatabase:
		fields, err = p.describeDatabase(ctx, ref)
	case cloud.KindDatabaseUser:
		fields, err = p.describeUser(ctx, ref)
	case cloud.KindServiceIdentity:
		fields, err = p.describeServiceAccount(ctx, ref)
	case cloud.KindSecret:
		fields, err = p.describeSecret(ctx, ref)
	case cloud.KindComputeService:
		fields, err = p.describeService(ctx, ref)
	default:
		return cloud.Absent(), unsupported("describe", ref)
	}
	if cloud.IsNotFound(err) {
		return cloud.Absent(), nil
	}
	if err != nil {
		return cloud.Absent(), err
	}
	return cloud.Present(fields), nil
}

func (p *Provider) Create(ctx context.Context, spec cloud.ResourceSpec) (cloud.Outcome, error) {
	var err error
	switch spec.Kind {
	case cloud.KindArtifactRepository:
		err = p.createRepository(ctx, spec)
	case cloud.KindDatabaseInstance:
		err = p.createInstance(ctx, spec)
	case cloud.KindDatabase:
		err = p.createDatabase(ctx, spec)
	case cloud.KindDatabaseUser:
		err = p.createUser(ctx, spec)
	case cloud.KindServiceIdentity:
		err = p.createServiceAccount(ctx, spec)
	case cloud.KindSecret:
		err = p.createSecret(ctx, spec)
	case cloud.KindComputeService:
		err = p.createService(ctx, spec)
	default:
		return cloud.Applied, unsupported("create", spec.Ref)
	}
	if cloud.IsConflict(err) {
		return cloud.AlreadyExists, nil
	}
	if err != nil {
		return cloud.Applied, err
	}
	return cloud.Applied, nil
}

func (p *Provider) Update(ctx context.Context, spec cloud.ResourceSpec) error {
	switch spec.Kind {
	case cloud.KindArtifactRepository:
		return p.updateRepository(ctx, spec)
	case cloud.KindDatabaseInstance:
		return p.updateInstance(ctx, spec)
	case cloud.KindDatabase:
		return p.updateDatabase(ctx, spec)
	case cloud.KindDatabaseUser:
		return p.updateUser(ctx, spec)
	case cloud.KindServiceIdentity:
		return p.updateServiceAccount(ctx, spec)
	case cloud.KindSecret:
		// Secret containers carry no managed fields.
		return nil
	case cloud.KindComputeService:
		return p.updateService(ctx, spec)
	default:
		return unsupported("update", spec.Ref)
	}
}

func (p *Provider) GrantAccess(ctx context.Context, ref cloud.Ref, member, role string) (cloud.Outcome, error) {
	switch ref.Kind {
	case cloud.KindIAMBinding:
		return p.grantProjectRole(ctx, ref, member, role)
	case cloud.KindSecret:
		return p.grantSecretAccess(ctx, ref, member, role)
	default:
		return cloud.Applied, unsupported("grant", ref)
	}
}

func unsupported(op string, ref cloud.Ref) error {
	return cloud.Rejected(op, ref, fmt.Errorf("kind %s is not supported by the gcp provider", ref.Kind))
}
