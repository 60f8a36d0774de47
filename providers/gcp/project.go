package gcp

import (
	"context"
	"fmt"

	resourcemanager "cloud.google.com/go/resourcemanager/apiv3"
	"cloud.google.com/go/resourcemanager/apiv3/resourcemanagerpb"

	"github.com/picklr-io/converge/pkg/cloud"
)

// CheckProject fails unless the project exists and is active.
func (p *Provider) CheckProject(ctx context.Context) error {
	ref := cloud.Ref{Kind: cloud.KindIAMBinding, Name: p.project}
	if p.projects == nil {
		c, err := resourcemanager.NewProjectsClient(ctx, p.clientOps...)
		if err != nil {
			return fmt.Errorf("create projects client: %w", err)
		}
		p.projects = c
	}

	proj, err := p.projects.GetProject(ctx, &resourcemanagerpb.GetProjectRequest{Name: "projects/" + p.project})
	if err != nil {
		return classify("check-project", ref, err)
	}
	if proj.GetState() != resourcemanagerpb.Project_ACTIVE {
		return cloud.Rejected("check-project", ref, fmt.Errorf("project %s is %s", p.project, proj.GetState()))
	}
	return nil
}
