package engine

import (
	"sort"
	"strings"

	"github.com/picklr-io/converge/internal/ir"
	"github.com/picklr-io/converge/pkg/cloud"
)

// DiffFields compares the managed fields of spec against observed. Keys under
// a managed namespace are compared as a set, so an observed key that is no
// longer desired is reported as drift. Sensitive fields are never compared.
func DiffFields(spec cloud.ResourceSpec, observed map[string]string) map[string]*ir.PropertyDiff {
	diffs := make(map[string]*ir.PropertyDiff)

	for _, key := range spec.ManagedKeys() {
		if spec.IsSensitive(key) {
			continue
		}
		if strings.HasSuffix(key, ".") {
			diffNamespace(key, spec.DesiredFields, observed, diffs)
			continue
		}
		want, have := spec.DesiredFields[key], observed[key]
		if want != have {
			diffs[key] = &ir.PropertyDiff{Before: have, After: want}
		}
	}

	return diffs
}

func diffNamespace(prefix string, desired, observed map[string]string, diffs map[string]*ir.PropertyDiff) {
	want := cloud.FieldsWithPrefix(desired, prefix)
	have := cloud.FieldsWithPrefix(observed, prefix)

	for k, v := range want {
		if old, ok := have[k]; !ok || old != v {
			diffs[prefix+k] = &ir.PropertyDiff{Before: old, After: v}
		}
	}
	for k, old := range have {
		if _, ok := want[k]; !ok {
			diffs[prefix+k] = &ir.PropertyDiff{Before: old}
		}
	}
}

// Diff returns the sorted keys of the managed fields that differ.
func Diff(spec cloud.ResourceSpec, observed map[string]string) []string {
	diffs := DiffFields(spec, observed)
	keys := make([]string, 0, len(diffs))
	for k := range diffs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
