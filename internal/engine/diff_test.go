package engine

import (
	"testing"

	"github.com/picklr-io/converge/pkg/cloud"
	"github.com/stretchr/testify/assert"
)

func TestDiff(t *testing.T) {
	tests := []struct {
		name     string
		spec     cloud.ResourceSpec
		observed map[string]string
		want     []string
	}{
		{
			name:     "no drift",
			spec:     cloud.ResourceSpec{DesiredFields: map[string]string{"memory": "1Gi"}},
			observed: map[string]string{"memory": "1Gi", "generation": "7"},
			want:     []string{},
		},
		{
			name:     "managed field drifted",
			spec:     cloud.ResourceSpec{DesiredFields: map[string]string{"memory": "1Gi", "cpu": "1"}},
			observed: map[string]string{"memory": "512Mi", "cpu": "1"},
			want:     []string{"memory"},
		},
		{
			name:     "missing observed field",
			spec:     cloud.ResourceSpec{DesiredFields: map[string]string{"memory": "1Gi"}},
			observed: map[string]string{},
			want:     []string{"memory"},
		},
		{
			name: "unmanaged field ignored",
			spec: cloud.ResourceSpec{
				DesiredFields: map[string]string{"description": "apps", "format": "DOCKER"},
				Managed:       []string{"description"},
			},
			observed: map[string]string{"description": "apps", "format": "MAVEN"},
			want:     []string{},
		},
		{
			name: "stale namespace key",
			spec: cloud.ResourceSpec{
				DesiredFields: map[string]string{"env.A": "1"},
				Managed:       []string{"env."},
			},
			observed: map[string]string{"env.A": "1", "env.LEGACY": "x"},
			want:     []string{"env.LEGACY"},
		},
		{
			name: "new and changed namespace keys",
			spec: cloud.ResourceSpec{
				DesiredFields: map[string]string{"env.A": "2", "env.B": "1"},
				Managed:       []string{"env."},
			},
			observed: map[string]string{"env.A": "1"},
			want:     []string{"env.A", "env.B"},
		},
		{
			name: "sensitive never compared",
			spec: cloud.ResourceSpec{
				DesiredFields: map[string]string{"password": "new", "type": "BUILT_IN"},
				Sensitive:     []string{"password"},
			},
			observed: map[string]string{"type": "BUILT_IN"},
			want:     []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Diff(tt.spec, tt.observed))
		})
	}
}

func TestDiffFields_BeforeAfter(t *testing.T) {
	spec := cloud.ResourceSpec{DesiredFields: map[string]string{"memory": "1Gi"}}
	diffs := DiffFields(spec, map[string]string{"memory": "512Mi"})

	assert.Equal(t, "512Mi", diffs["memory"].Before)
	assert.Equal(t, "1Gi", diffs["memory"].After)
}
