package gcp

import (
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"slices"

	"google.golang.org/api/secretmanager/v1"

	"github.com/picklr-io/converge/pkg/cloud"
)

func (p *Provider) secretName(name string) string {
	return fmt.Sprintf("projects/%s/secrets/%s", p.project, name)
}

func (p *Provider) describeSecret(ctx context.Context, ref cloud.Ref) (map[string]string, error) {
	s, err := p.secrets.Projects.Secrets.Get(p.secretName(ref.Name)).Context(ctx).Do()
	if err != nil {
		return nil, classify("describe", ref, err)
	}
	replication := "user-managed"
	if s.Replication != nil && s.Replication.Automatic != nil {
		replication = "automatic"
	}
	return map[string]string{"replication": replication}, nil
}

func (p *Provider) createSecret(ctx context.Context, spec cloud.ResourceSpec) error {
	secret := &secretmanager.Secret{
		Replication: &secretmanager.Replication{
			Automatic: &secretmanager.Automatic{},
		},
		Labels: map[string]string{"managed-by": "converge"},
	}
	_, err := p.secrets.Projects.Secrets.Create("projects/"+p.project, secret).
		SecretId(spec.Name).
		Context(ctx).
		Do()
	return classify("create", spec.Ref, err)
}

// AddSecretVersion returns the short version id, e.g. "3".
func (p *Provider) AddSecretVersion(ctx context.Context, secret string, value []byte) (string, error) {
	ref := cloud.Ref{Kind: cloud.KindSecret, Name: secret}
	req := &secretmanager.AddSecretVersionRequest{
		Payload: &secretmanager.SecretPayload{
			Data: base64.StdEncoding.EncodeToString(value),
		},
	}
	v, err := p.secrets.Projects.Secrets.AddVersion(p.secretName(secret), req).Context(ctx).Do()
	if err != nil {
		return "", classify("add-version", ref, err)
	}
	return path.Base(v.Name), nil
}

func (p *Provider) AccessSecretVersion(ctx context.Context, secret, version string) ([]byte, error) {
	ref := cloud.Ref{Kind: cloud.KindSecret, Name: secret}
	name := p.secretName(secret) + "/versions/" + version
	resp, err := p.secrets.Projects.Secrets.Versions.Access(name).Context(ctx).Do()
	if err != nil {
		return nil, classify("access-version", ref, err)
	}
	if resp.Payload == nil {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(resp.Payload.Data)
	if err != nil {
		return nil, cloud.Rejected("access-version", ref, fmt.Errorf("decode payload: %w", err))
	}
	return data, nil
}

func (p *Provider) grantSecretAccess(ctx context.Context, ref cloud.Ref, member, role string) (cloud.Outcome, error) {
	resource := p.secretName(ref.Name)
	policy, err := p.secrets.Projects.Secrets.GetIamPolicy(resource).Context(ctx).Do()
	if err != nil {
		return cloud.Applied, classify("grant", ref, err)
	}

	for _, b := range policy.Bindings {
		if b.Role == role && b.Condition == nil && slices.Contains(b.Members, member) {
			return cloud.AlreadyExists, nil
		}
	}

	added := false
	for _, b := range policy.Bindings {
		if b.Role == role && b.Condition == nil {
			b.Members = append(b.Members, member)
			added = true
			break
		}
	}
	if !added {
		policy.Bindings = append(policy.Bindings, &secretmanager.Binding{Role: role, Members: []string{member}})
	}

	_, err = p.secrets.Projects.Secrets.SetIamPolicy(resource, &secretmanager.SetIamPolicyRequest{Policy: policy}).
		Context(ctx).
		Do()
	if err != nil {
		return cloud.Applied, grantFailed("grant", ref, err)
	}
	return cloud.Applied, nil
}
