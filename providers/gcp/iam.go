package gcp

import (
	"context"
	"slices"

	"google.golang.org/api/cloudresourcemanager/v3"
	"google.golang.org/api/iam/v1"

	"github.com/picklr-io/converge/internal/ir"
	"github.com/picklr-io/converge/pkg/cloud"
)

func (p *Provider) serviceAccountName(ref cloud.Ref) string {
	email := ir.ServiceIdentity{Name: ref.Name, Project: p.project}.Email()
	return "projects/" + p.project + "/serviceAccounts/" + email
}

func (p *Provider) describeServiceAccount(ctx context.Context, ref cloud.Ref) (map[string]string, error) {
	sa, err := p.iam.Projects.ServiceAccounts.Get(p.serviceAccountName(ref)).Context(ctx).Do()
	if err != nil {
		return nil, classify("describe", ref, err)
	}
	return map[string]string{"displayName": sa.DisplayName}, nil
}

func (p *Provider) createServiceAccount(ctx context.Context, spec cloud.ResourceSpec) error {
	req := &iam.CreateServiceAccountRequest{
		AccountId: spec.Name,
		ServiceAccount: &iam.ServiceAccount{
			DisplayName: spec.DesiredFields["displayName"],
		},
	}
	_, err := p.iam.Projects.ServiceAccounts.Create("projects/"+p.project, req).Context(ctx).Do()
	return classify("create", spec.Ref, err)
}

func (p *Provider) updateServiceAccount(ctx context.Context, spec cloud.ResourceSpec) error {
	req := &iam.PatchServiceAccountRequest{
		ServiceAccount: &iam.ServiceAccount{
			DisplayName: spec.DesiredFields["displayName"],
		},
		UpdateMask: "displayName",
	}
	_, err := p.iam.Projects.ServiceAccounts.Patch(p.serviceAccountName(spec.Ref), req).Context(ctx).Do()
	return classify("update", spec.Ref, err)
}

// grantProjectRole adds member to role in the project policy. The policy is
// read and written with its etag, so a concurrent writer causes a retry
// rather than a lost binding.
func (p *Provider) grantProjectRole(ctx context.Context, ref cloud.Ref, member, role string) (cloud.Outcome, error) {
	resource := "projects/" + ref.Name
	policy, err := p.crm.Projects.GetIamPolicy(resource, &cloudresourcemanager.GetIamPolicyRequest{}).
		Context(ctx).
		Do()
	if err != nil {
		return cloud.Applied, classify("grant", ref, err)
	}

	if crmBindingExists(policy.Bindings, role, member) {
		return cloud.AlreadyExists, nil
	}
	policy.Bindings = addCRMBinding(policy.Bindings, role, member)

	_, err = p.crm.Projects.SetIamPolicy(resource, &cloudresourcemanager.SetIamPolicyRequest{Policy: policy}).
		Context(ctx).
		Do()
	if err != nil {
		return cloud.Applied, grantFailed("grant", ref, err)
	}
	return cloud.Applied, nil
}

func crmBindingExists(bindings []*cloudresourcemanager.Binding, role, member string) bool {
	for _, b := range bindings {
		if b.Role == role && b.Condition == nil && slices.Contains(b.Members, member) {
			return true
		}
	}
	return false
}

func addCRMBinding(bindings []*cloudresourcemanager.Binding, role, member string) []*cloudresourcemanager.Binding {
	for _, b := range bindings {
		if b.Role == role && b.Condition == nil {
			b.Members = append(b.Members, member)
			return bindings
		}
	}
	return append(bindings, &cloudresourcemanager.Binding{Role: role, Members: []string{member}})
}
