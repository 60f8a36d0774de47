package engine

import (
	"strings"
	"testing"

	"github.com/picklr-io/converge/pkg/cloud"
	"github.com/stretchr/testify/assert"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		ref   cloud.Ref
		valid bool
	}{
		{cloud.Ref{Kind: cloud.KindDatabaseInstance, Name: "app-db"}, true},
		{cloud.Ref{Kind: cloud.KindDatabaseInstance, Name: "1db"}, false},
		{cloud.Ref{Kind: cloud.KindDatabaseInstance, Name: "app-db-"}, false},
		{cloud.Ref{Kind: cloud.KindDatabase, Name: "app_prod", Parent: "app-db"}, true},
		{cloud.Ref{Kind: cloud.KindDatabase, Name: "app", Parent: "App"}, false},
		{cloud.Ref{Kind: cloud.KindDatabaseUser, Name: "app", Parent: "app-db"}, true},
		{cloud.Ref{Kind: cloud.KindDatabaseUser, Name: "9app", Parent: "app-db"}, false},
		{cloud.Ref{Kind: cloud.KindServiceIdentity, Name: "app-runner"}, true},
		{cloud.Ref{Kind: cloud.KindServiceIdentity, Name: "app"}, false},
		{cloud.Ref{Kind: cloud.KindServiceIdentity, Name: strings.Repeat("a", 31)}, false},
		{cloud.Ref{Kind: cloud.KindSecret, Name: "db-password_v2"}, true},
		{cloud.Ref{Kind: cloud.KindSecret, Name: "db password"}, false},
		{cloud.Ref{Kind: cloud.KindArtifactRepository, Name: "apps"}, true},
		{cloud.Ref{Kind: cloud.KindArtifactRepository, Name: "Apps"}, false},
		{cloud.Ref{Kind: cloud.KindComputeService, Name: "api"}, true},
		{cloud.Ref{Kind: cloud.KindComputeService, Name: strings.Repeat("a", 50)}, false},
		{cloud.Ref{Kind: cloud.KindIAMBinding, Name: "acme-prod"}, true},
		{cloud.Ref{Kind: "compute.Disk", Name: "x"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.ref.Address(), func(t *testing.T) {
			err := ValidateName(tt.ref)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			assert.True(t, cloud.IsRejected(err))
		})
	}
}
