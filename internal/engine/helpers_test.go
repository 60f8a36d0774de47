package engine

import (
	"github.com/picklr-io/converge/internal/ir"
	"github.com/picklr-io/converge/pkg/cloud"
	"github.com/picklr-io/converge/providers/memory"
)

func testSettings() *ir.Settings {
	return &ir.Settings{
		Project: "acme-prod",
		Region:  "europe-west1",
		Repository: &ir.RepositorySettings{
			Name: "apps",
		},
		Database: &ir.DatabaseSettings{
			Instance: "app-db",
			Version:  "POSTGRES_15",
			Tier:     "db-f1-micro",
			Name:     "app",
			User:     "app",
			Type:     "postgres",
			Port:     5432,
		},
		Secrets: &ir.SecretSettings{
			PasswordSecret:      "db-password",
			EncryptionKeySecret: "app-encryption-key",
		},
		Identity: &ir.IdentitySettings{
			Name:  "app-runner",
			Roles: []string{"roles/cloudsql.client"},
		},
		Service: &ir.ServiceSettings{
			Name:              "api",
			Image:             "europe-docker.pkg.dev/acme-prod/apps/api:1.0.0",
			Memory:            "1Gi",
			CPU:               "1",
			MaxInstances:      3,
			Concurrency:       80,
			HealthCheckPath:   "/healthz",
			CloudSQLConnector: true,
		},
	}
}

func newTestEngine(p *memory.Provider) *Engine {
	e := NewEngine(p)
	e.Retry = fastPolicy(DefaultMaxAttempts)
	return e
}

var (
	instanceRef = cloud.Ref{Kind: cloud.KindDatabaseInstance, Name: "app-db"}
	userRef     = cloud.Ref{Kind: cloud.KindDatabaseUser, Name: "app", Parent: "app-db"}
	serviceRef  = cloud.Ref{Kind: cloud.KindComputeService, Name: "api"}
	passwordRef = cloud.Ref{Kind: cloud.KindSecret, Name: "db-password"}
)

func actions(results []ir.ReconcileResult) map[string]ir.Action {
	out := make(map[string]ir.Action, len(results))
	for _, r := range results {
		out[r.Kind+"/"+r.Name] = r.Action
	}
	return out
}
