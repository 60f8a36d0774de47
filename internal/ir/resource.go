package ir

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"
)

const iamDomain = "iam.gserviceaccount.com"

// ServiceIdentity is the principal the deployed application runs as. The
// email is always derived from Name and Project.
type ServiceIdentity struct {
	Name    string
	Project string
}

func (s ServiceIdentity) Email() string {
	return s.Name + "@" + s.Project + "." + iamDomain
}

// Member is the IAM member string of the identity.
func (s ServiceIdentity) Member() string {
	return "serviceAccount:" + s.Email()
}

// SecretRecord is a secret to synchronize. Value never appears in logs.
type SecretRecord struct {
	Name      string
	Value     string
	Accessors []string
}

// LogValue omits the secret value.
func (s SecretRecord) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("name", s.Name),
		slog.Int("accessors", len(s.Accessors)),
	)
}

// SecretRef points an environment key at a secret version.
type SecretRef struct {
	Secret  string
	Version string
}

// ResourceSizing is the compute sizing of the deployed service.
type ResourceSizing struct {
	Memory       string
	CPU          string
	MinInstances int
	MaxInstances int
	Concurrency  int
}

// VolumeMount attaches a Cloud SQL instance socket directory.
type VolumeMount struct {
	Name      string
	MountPath string
	Instance  string
}

// DeploymentDescriptor is the full desired configuration of the compute
// service. It is always applied as a whole.
type DeploymentDescriptor struct {
	Service         string
	Region          string
	Image           string
	EnvVars         map[string]string
	SecretRefs      map[string]SecretRef
	Resources       ResourceSizing
	VolumeMounts    []VolumeMount
	ServiceAccount  string
	Port            int
	HealthCheckPath string
}

// Environment keys read by the deployed application and the readiness gate.
const (
	EnvDBType        = "DB_TYPE"
	EnvDBHost        = "DB_HOST"
	EnvDBPort        = "DB_PORT"
	EnvDBName        = "DB_NAME"
	EnvDBUser        = "DB_USER"
	EnvDBPassword    = "DB_PASSWORD"
	EnvEncryptionKey = "ENCRYPTION_KEY"
)

// Field namespaces of a flattened descriptor.
const (
	EnvPrefix    = "env."
	SecretPrefix = "secret."
	MountPrefix  = "mount."
)

// DescriptorManagedFields lists the fields and namespaces owned by the
// deployment. Stale keys under a namespace count as drift. The region is
// fixed at creation.
var DescriptorManagedFields = []string{
	"image", "memory", "cpu", "minInstances", "maxInstances", "concurrency",
	"serviceAccount", "port", "healthCheckPath",
	EnvPrefix, SecretPrefix, MountPrefix,
}

// Fields flattens the descriptor into string fields.
func (d DeploymentDescriptor) Fields() map[string]string {
	f := map[string]string{
		"region":          d.Region,
		"image":           d.Image,
		"memory":          d.Resources.Memory,
		"cpu":             d.Resources.CPU,
		"minInstances":    strconv.Itoa(d.Resources.MinInstances),
		"maxInstances":    strconv.Itoa(d.Resources.MaxInstances),
		"concurrency":     strconv.Itoa(d.Resources.Concurrency),
		"serviceAccount":  d.ServiceAccount,
		"port":            strconv.Itoa(d.Port),
		"healthCheckPath": d.HealthCheckPath,
	}
	for k, v := range d.EnvVars {
		f[EnvPrefix+k] = v
	}
	for k, ref := range d.SecretRefs {
		f[SecretPrefix+k] = ref.Secret + ":" + ref.Version
	}
	for _, m := range d.VolumeMounts {
		f[MountPrefix+m.Name] = m.MountPath + "=" + m.Instance
	}
	return f
}

// DescriptorFromFields rebuilds a descriptor from flattened fields.
func DescriptorFromFields(service string, f map[string]string) DeploymentDescriptor {
	atoi := func(k string) int {
		n, _ := strconv.Atoi(f[k])
		return n
	}
	d := DeploymentDescriptor{
		Service: service,
		Region:  f["region"],
		Image:   f["image"],
		Resources: ResourceSizing{
			Memory:       f["memory"],
			CPU:          f["cpu"],
			MinInstances: atoi("minInstances"),
			MaxInstances: atoi("maxInstances"),
			Concurrency:  atoi("concurrency"),
		},
		ServiceAccount:  f["serviceAccount"],
		Port:            atoi("port"),
		HealthCheckPath: f["healthCheckPath"],
		EnvVars:         map[string]string{},
		SecretRefs:      map[string]SecretRef{},
	}

	var mounts []string
	for k, v := range f {
		switch {
		case strings.HasPrefix(k, EnvPrefix):
			d.EnvVars[strings.TrimPrefix(k, EnvPrefix)] = v
		case strings.HasPrefix(k, SecretPrefix):
			secret, version, _ := strings.Cut(v, ":")
			d.SecretRefs[strings.TrimPrefix(k, SecretPrefix)] = SecretRef{Secret: secret, Version: version}
		case strings.HasPrefix(k, MountPrefix):
			mounts = append(mounts, k)
		}
	}
	sort.Strings(mounts)
	for _, k := range mounts {
		path, instance, _ := strings.Cut(f[k], "=")
		d.VolumeMounts = append(d.VolumeMounts, VolumeMount{
			Name:      strings.TrimPrefix(k, MountPrefix),
			MountPath: path,
			Instance:  instance,
		})
	}
	return d
}
