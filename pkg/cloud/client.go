// Package cloud defines the contract between the reconciliation engine and a
// cloud control plane. Implementations live under providers/.
package cloud

import (
	"context"
	"sort"
	"strings"
)

// Kind identifies a managed resource type.
type Kind string

const (
	KindArtifactRepository Kind = "artifactregistry.Repository"
	KindDatabaseInstance   Kind = "sql.Instance"
	KindDatabase           Kind = "sql.Database"
	KindDatabaseUser       Kind = "sql.User"
	KindServiceIdentity    Kind = "iam.ServiceAccount"
	KindIAMBinding         Kind = "iam.Binding"
	KindSecret             Kind = "secretmanager.Secret"
	KindComputeService     Kind = "run.Service"
)

// Ref is the identity of a resource. Parent is set for nested kinds, e.g. the
// instance that owns a database or user.
type Ref struct {
	Kind   Kind
	Name   string
	Parent string
}

// Address returns the human-readable address of the resource.
func (r Ref) Address() string {
	if r.Parent != "" {
		return string(r.Kind) + "." + r.Parent + "/" + r.Name
	}
	return string(r.Kind) + "." + r.Name
}

func (r Ref) String() string { return r.Address() }

// ResourceSpec is the desired state of one resource for a single run.
type ResourceSpec struct {
	Ref
	DesiredFields map[string]string

	// Managed lists the field keys this system owns. An entry ending in "."
	// is a namespace: every observed key under it is owned too. Empty means
	// the desired keys.
	Managed []string

	// Sensitive fields are write-only. They are never observed, compared or
	// logged, and are only sent on create or when Rotate is set.
	Sensitive []string

	Rotate bool
}

// ManagedKeys returns the managed entries in a stable order.
func (s ResourceSpec) ManagedKeys() []string {
	if len(s.Managed) > 0 {
		keys := append([]string(nil), s.Managed...)
		sort.Strings(keys)
		return keys
	}
	keys := make([]string, 0, len(s.DesiredFields))
	for k := range s.DesiredFields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsSensitive reports whether field is write-only.
func (s ResourceSpec) IsSensitive(field string) bool {
	for _, f := range s.Sensitive {
		if f == field {
			return true
		}
	}
	return false
}

// PublicFields returns the desired fields without the sensitive ones.
func (s ResourceSpec) PublicFields() map[string]string {
	out := make(map[string]string, len(s.DesiredFields))
	for k, v := range s.DesiredFields {
		if s.IsSensitive(k) {
			continue
		}
		out[k] = v
	}
	return out
}

// FieldsWithPrefix returns the fields under a namespace prefix with the prefix
// stripped.
func FieldsWithPrefix(fields map[string]string, prefix string) map[string]string {
	out := make(map[string]string)
	for k, v := range fields {
		if strings.HasPrefix(k, prefix) {
			out[strings.TrimPrefix(k, prefix)] = v
		}
	}
	return out
}

// ResourceState is the observed state of a resource. The zero value is Absent.
type ResourceState struct {
	Exists   bool
	Observed map[string]string
}

// Absent is the state of a resource that does not exist.
func Absent() ResourceState { return ResourceState{} }

// Present is the state of an existing resource.
func Present(observed map[string]string) ResourceState {
	if observed == nil {
		observed = map[string]string{}
	}
	return ResourceState{Exists: true, Observed: observed}
}

// Outcome is the tagged result of a mutating call that may race with another
// writer.
type Outcome int

const (
	// Applied means the call changed the control plane.
	Applied Outcome = iota
	// AlreadyExists means the object or binding was already there. It is a
	// success, not an error.
	AlreadyExists
)

func (o Outcome) String() string {
	if o == AlreadyExists {
		return "already-exists"
	}
	return "applied"
}

// Client is the control-plane capability consumed by the engine.
type Client interface {
	// Describe returns Absent when the resource does not exist.
	Describe(ctx context.Context, ref Ref) (ResourceState, error)

	// Create creates the resource with its desired fields.
	Create(ctx context.Context, spec ResourceSpec) (Outcome, error)

	// Update replaces every managed field of an existing resource.
	Update(ctx context.Context, spec ResourceSpec) error

	// GrantAccess binds member to role on the resource. For KindIAMBinding
	// refs the binding is project-wide.
	GrantAccess(ctx context.Context, ref Ref, member, role string) (Outcome, error)

	// AddSecretVersion appends a version to a secret and returns its id.
	AddSecretVersion(ctx context.Context, secret string, value []byte) (string, error)

	// AccessSecretVersion reads a secret version ("latest" for the newest).
	AccessSecretVersion(ctx context.Context, secret, version string) ([]byte, error)
}
