package engine

import (
	"github.com/picklr-io/converge/internal/ir"
	"github.com/picklr-io/converge/pkg/cloud"
)

// Binding is a project-wide role grant for the service identity.
type Binding struct {
	Ref    cloud.Ref
	Member string
	Role   string
}

// Catalog is the full desired state of one run.
type Catalog struct {
	Repository          cloud.ResourceSpec
	Instance            cloud.ResourceSpec
	Database            cloud.ResourceSpec
	User                cloud.ResourceSpec
	Identity            cloud.ResourceSpec
	PasswordSecret      ir.SecretRecord
	EncryptionKeySecret ir.SecretRecord
	Bindings            []Binding
	Deployment          ir.DeploymentDescriptor
	ServiceIdentity     ir.ServiceIdentity
}

// BuildCatalog derives every resource spec from settings and credentials.
func BuildCatalog(s *ir.Settings, creds Credentials) *Catalog {
	identity := ir.ServiceIdentity{Name: s.Identity.Name, Project: s.Project}
	member := identity.Member()

	format := s.Repository.Format
	if format == "" {
		format = "DOCKER"
	}
	displayName := s.Identity.DisplayName
	if displayName == "" {
		displayName = s.Identity.Name
	}
	charset := "UTF8"
	if s.Database.Type == "mysql" {
		charset = "utf8mb4"
	}

	c := &Catalog{
		Repository: cloud.ResourceSpec{
			Ref: cloud.Ref{Kind: cloud.KindArtifactRepository, Name: s.Repository.Name},
			DesiredFields: map[string]string{
				"format":      format,
				"location":    s.Region,
				"description": s.Repository.Description,
			},
			// Format and location are fixed at creation.
			Managed: []string{"description"},
		},
		Instance: cloud.ResourceSpec{
			Ref: cloud.Ref{Kind: cloud.KindDatabaseInstance, Name: s.Database.Instance},
			DesiredFields: map[string]string{
				"databaseVersion": s.Database.Version,
				"tier":            s.Database.Tier,
				"region":          s.Region,
			},
			Managed: []string{"databaseVersion", "tier"},
		},
		Database: cloud.ResourceSpec{
			Ref:           cloud.Ref{Kind: cloud.KindDatabase, Name: s.Database.Name, Parent: s.Database.Instance},
			DesiredFields: map[string]string{"charset": charset},
		},
		User: cloud.ResourceSpec{
			Ref: cloud.Ref{Kind: cloud.KindDatabaseUser, Name: s.Database.User, Parent: s.Database.Instance},
			DesiredFields: map[string]string{
				"type":     "BUILT_IN",
				"password": creds.Password,
			},
			Sensitive: []string{"password"},
			Rotate:    creds.RotatePassword,
		},
		Identity: cloud.ResourceSpec{
			Ref:           cloud.Ref{Kind: cloud.KindServiceIdentity, Name: s.Identity.Name},
			DesiredFields: map[string]string{"displayName": displayName},
		},
		PasswordSecret: ir.SecretRecord{
			Name:      s.Secrets.PasswordSecret,
			Value:     creds.Password,
			Accessors: []string{member},
		},
		EncryptionKeySecret: ir.SecretRecord{
			Name:      s.Secrets.EncryptionKeySecret,
			Value:     creds.EncryptionKey,
			Accessors: []string{member},
		},
		Deployment:      BuildDescriptor(s, identity),
		ServiceIdentity: identity,
	}

	for _, role := range s.Identity.Roles {
		c.Bindings = append(c.Bindings, Binding{
			Ref:    cloud.Ref{Kind: cloud.KindIAMBinding, Name: s.Project},
			Member: member,
			Role:   role,
		})
	}
	return c
}
