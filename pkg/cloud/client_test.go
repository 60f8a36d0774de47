package cloud

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRef_Address(t *testing.T) {
	assert.Equal(t, "sql.Instance.app-db", Ref{Kind: KindDatabaseInstance, Name: "app-db"}.Address())
	assert.Equal(t, "sql.Database.app-db/app", Ref{Kind: KindDatabase, Name: "app", Parent: "app-db"}.Address())
}

func TestResourceSpec_ManagedKeys(t *testing.T) {
	spec := ResourceSpec{
		DesiredFields: map[string]string{"tier": "db-f1-micro", "version": "POSTGRES_15"},
	}
	assert.Equal(t, []string{"tier", "version"}, spec.ManagedKeys())

	spec.Managed = []string{"version", "env."}
	assert.Equal(t, []string{"env.", "version"}, spec.ManagedKeys())
}

func TestResourceSpec_PublicFields(t *testing.T) {
	spec := ResourceSpec{
		DesiredFields: map[string]string{"password": "hunter2", "host": "%"},
		Sensitive:     []string{"password"},
	}
	assert.True(t, spec.IsSensitive("password"))
	assert.Equal(t, map[string]string{"host": "%"}, spec.PublicFields())
}

func TestFieldsWithPrefix(t *testing.T) {
	fields := map[string]string{"env.A": "1", "env.B": "2", "image": "x"}
	assert.Equal(t, map[string]string{"A": "1", "B": "2"}, FieldsWithPrefix(fields, "env."))
}

func TestErrorClassification(t *testing.T) {
	ref := Ref{Kind: KindSecret, Name: "db-password"}
	base := errors.New("boom")

	tests := []struct {
		err   error
		class Class
	}{
		{Transient("describe", ref, base), ClassTransient},
		{Rejected("create", ref, base), ClassRejected},
		{NotFound("describe", ref, base), ClassNotFound},
		{Wrap(ClassConflict, "create", ref, base), ClassConflict},
		{fmt.Errorf("outer: %w", Transient("describe", ref, base)), ClassTransient},
		{base, 0},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.class, ClassOf(tt.err))
			assert.ErrorIs(t, tt.err, base)
		})
	}

	assert.Nil(t, Wrap(ClassTransient, "x", ref, nil))
	assert.Contains(t, Rejected("create", ref, base).Error(), "secretmanager.Secret.db-password")
}
