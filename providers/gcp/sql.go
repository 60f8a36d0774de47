package gcp

import (
	"context"
	"strings"

	"google.golang.org/api/sqladmin/v1"

	"github.com/picklr-io/converge/pkg/cloud"
)

const sqlOperationDone = "DONE"

func (p *Provider) describeInstance(ctx context.Context, ref cloud.Ref) (map[string]string, error) {
	inst, err := p.sql.Instances.Get(p.project, ref.Name).Context(ctx).Do()
	if err != nil {
		return nil, classify("describe", ref, err)
	}
	fields := map[string]string{
		"databaseVersion": inst.DatabaseVersion,
		"region":          inst.Region,
	}
	if inst.Settings != nil {
		fields["tier"] = inst.Settings.Tier
	}
	return fields, nil
}

func (p *Provider) createInstance(ctx context.Context, spec cloud.ResourceSpec) error {
	inst := &sqladmin.DatabaseInstance{
		Name:            spec.Name,
		DatabaseVersion: spec.DesiredFields["databaseVersion"],
		Region:          p.region,
		Settings: &sqladmin.Settings{
			Tier: spec.DesiredFields["tier"],
		},
	}
	op, err := p.sql.Instances.Insert(p.project, inst).Context(ctx).Do()
	if err != nil {
		return classify("create", spec.Ref, err)
	}
	return p.waitSQL(ctx, "create", spec.Ref, op)
}

func (p *Provider) updateInstance(ctx context.Context, spec cloud.ResourceSpec) error {
	patch := &sqladmin.DatabaseInstance{
		DatabaseVersion: spec.DesiredFields["databaseVersion"],
		Settings: &sqladmin.Settings{
			Tier: spec.DesiredFields["tier"],
		},
	}
	op, err := p.sql.Instances.Patch(p.project, spec.Name, patch).Context(ctx).Do()
	if err != nil {
		return classify("update", spec.Ref, err)
	}
	return p.waitSQL(ctx, "update", spec.Ref, op)
}

func (p *Provider) describeDatabase(ctx context.Context, ref cloud.Ref) (map[string]string, error) {
	db, err := p.sql.Databases.Get(p.project, ref.Parent, ref.Name).Context(ctx).Do()
	if err != nil {
		return nil, classify("describe", ref, err)
	}
	return map[string]string{"charset": db.Charset}, nil
}

func (p *Provider) createDatabase(ctx context.Context, spec cloud.ResourceSpec) error {
	db := &sqladmin.Database{
		Name:    spec.Name,
		Charset: spec.DesiredFields["charset"],
	}
	op, err := p.sql.Databases.Insert(p.project, spec.Parent, db).Context(ctx).Do()
	if err != nil {
		return classify("create", spec.Ref, err)
	}
	return p.waitSQL(ctx, "create", spec.Ref, op)
}

func (p *Provider) updateDatabase(ctx context.Context, spec cloud.ResourceSpec) error {
	db := &sqladmin.Database{Charset: spec.DesiredFields["charset"]}
	op, err := p.sql.Databases.Patch(p.project, spec.Parent, spec.Name, db).Context(ctx).Do()
	if err != nil {
		return classify("update", spec.Ref, err)
	}
	return p.waitSQL(ctx, "update", spec.Ref, op)
}

func (p *Provider) describeUser(ctx context.Context, ref cloud.Ref) (map[string]string, error) {
	u, err := p.sql.Users.Get(p.project, ref.Parent, ref.Name).Context(ctx).Do()
	if err != nil {
		return nil, classify("describe", ref, err)
	}
	return map[string]string{"type": userType(u.Type)}, nil
}

func (p *Provider) createUser(ctx context.Context, spec cloud.ResourceSpec) error {
	u := &sqladmin.User{
		Name:     spec.Name,
		Type:     spec.DesiredFields["type"],
		Password: spec.DesiredFields["password"],
	}
	op, err := p.sql.Users.Insert(p.project, spec.Parent, u).Context(ctx).Do()
	if err != nil {
		return classify("create", spec.Ref, err)
	}
	return p.waitSQL(ctx, "create", spec.Ref, op)
}

// updateUser only sends the password when the spec asks for rotation.
func (p *Provider) updateUser(ctx context.Context, spec cloud.ResourceSpec) error {
	u := &sqladmin.User{
		Name: spec.Name,
		Type: spec.DesiredFields["type"],
	}
	if spec.Rotate {
		u.Password = spec.DesiredFields["password"]
	}
	op, err := p.sql.Users.Update(p.project, spec.Parent, u).Name(spec.Name).Context(ctx).Do()
	if err != nil {
		return classify("update", spec.Ref, err)
	}
	return p.waitSQL(ctx, "update", spec.Ref, op)
}

// userType normalizes the user type; built-in users may be returned untyped.
func userType(t string) string {
	if t == "" {
		return "BUILT_IN"
	}
	return t
}

func (p *Provider) waitSQL(ctx context.Context, op string, ref cloud.Ref, started *sqladmin.Operation) error {
	name := started.Name
	return p.wait(ctx, op, ref, func(ctx context.Context) (bool, error) {
		cur, err := p.sql.Operations.Get(p.project, name).Context(ctx).Do()
		if err != nil {
			return false, classify(op, ref, err)
		}
		if cur.Status != sqlOperationDone {
			return false, nil
		}
		if msg := sqlOperationError(cur); msg != "" {
			return true, operationFailed(op, ref, msg)
		}
		return true, nil
	})
}

func sqlOperationError(op *sqladmin.Operation) string {
	if op.Error == nil || len(op.Error.Errors) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(op.Error.Errors))
	for _, e := range op.Error.Errors {
		msgs = append(msgs, e.Code+": "+e.Message)
	}
	return strings.Join(msgs, "; ")
}
