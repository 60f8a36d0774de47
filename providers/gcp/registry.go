package gcp

import (
	"context"
	"fmt"

	"google.golang.org/api/artifactregistry/v1"

	"github.com/picklr-io/converge/pkg/cloud"
)

func (p *Provider) locationParent() string {
	return fmt.Sprintf("projects/%s/locations/%s", p.project, p.region)
}

func (p *Provider) repositoryName(name string) string {
	return p.locationParent() + "/repositories/" + name
}

func (p *Provider) describeRepository(ctx context.Context, ref cloud.Ref) (map[string]string, error) {
	repo, err := p.registry.Projects.Locations.Repositories.Get(p.repositoryName(ref.Name)).Context(ctx).Do()
	if err != nil {
		return nil, classify("describe", ref, err)
	}
	return map[string]string{
		"format":      repo.Format,
		"location":    p.region,
		"description": repo.Description,
	}, nil
}

func (p *Provider) createRepository(ctx context.Context, spec cloud.ResourceSpec) error {
	repo := &artifactregistry.Repository{
		Format:      spec.DesiredFields["format"],
		Description: spec.DesiredFields["description"],
	}
	op, err := p.registry.Projects.Locations.Repositories.Create(p.locationParent(), repo).
		RepositoryId(spec.Name).
		Context(ctx).
		Do()
	if err != nil {
		return classify("create", spec.Ref, err)
	}
	return p.waitRegistry(ctx, "create", spec.Ref, op.Name)
}

func (p *Provider) updateRepository(ctx context.Context, spec cloud.ResourceSpec) error {
	repo := &artifactregistry.Repository{Description: spec.DesiredFields["description"]}
	_, err := p.registry.Projects.Locations.Repositories.Patch(p.repositoryName(spec.Name), repo).
		UpdateMask("description").
		Context(ctx).
		Do()
	return classify("update", spec.Ref, err)
}

func (p *Provider) waitRegistry(ctx context.Context, op string, ref cloud.Ref, name string) error {
	return p.wait(ctx, op, ref, func(ctx context.Context) (bool, error) {
		cur, err := p.registry.Projects.Locations.Operations.Get(name).Context(ctx).Do()
		if err != nil {
			return false, classify(op, ref, err)
		}
		if !cur.Done {
			return false, nil
		}
		if cur.Error != nil {
			return true, operationFailed(op, ref, cur.Error.Message)
		}
		return true, nil
	})
}
