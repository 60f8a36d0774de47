package gcp

import (
	"context"
	"path"
	"sort"

	"google.golang.org/api/run/v2"

	"github.com/picklr-io/converge/internal/ir"
	"github.com/picklr-io/converge/pkg/cloud"
)

const (
	limitMemory = "memory"
	limitCPU    = "cpu"
)

func (p *Provider) serviceName(name string) string {
	return p.locationParent() + "/services/" + name
}

func (p *Provider) describeService(ctx context.Context, ref cloud.Ref) (map[string]string, error) {
	svc, err := p.run.Projects.Locations.Services.Get(p.serviceName(ref.Name)).Context(ctx).Do()
	if err != nil {
		return nil, classify("describe", ref, err)
	}
	d := descriptorFromService(ref.Name, svc)
	d.Region = p.region
	return d.Fields(), nil
}

func (p *Provider) createService(ctx context.Context, spec cloud.ResourceSpec) error {
	svc := serviceFromDescriptor(ir.DescriptorFromFields(spec.Name, spec.DesiredFields))
	op, err := p.run.Projects.Locations.Services.Create(p.locationParent(), svc).
		ServiceId(spec.Name).
		Context(ctx).
		Do()
	if err != nil {
		return classify("create", spec.Ref, err)
	}
	return p.waitRun(ctx, "create", spec.Ref, op.Name)
}

// updateService replaces the whole revision template; a new revision is
// rolled out and the previous one keeps serving if it fails.
func (p *Provider) updateService(ctx context.Context, spec cloud.ResourceSpec) error {
	svc := serviceFromDescriptor(ir.DescriptorFromFields(spec.Name, spec.DesiredFields))
	op, err := p.run.Projects.Locations.Services.Patch(p.serviceName(spec.Name), svc).Context(ctx).Do()
	if err != nil {
		return classify("update", spec.Ref, err)
	}
	return p.waitRun(ctx, "update", spec.Ref, op.Name)
}

func (p *Provider) waitRun(ctx context.Context, op string, ref cloud.Ref, name string) error {
	return p.wait(ctx, op, ref, func(ctx context.Context) (bool, error) {
		cur, err := p.run.Projects.Locations.Operations.Get(name).Context(ctx).Do()
		if err != nil {
			return false, classify(op, ref, err)
		}
		if !cur.Done {
			return false, nil
		}
		if cur.Error != nil {
			return true, operationFailed(op, ref, cur.Error.Message)
		}
		return true, nil
	})
}

func serviceFromDescriptor(d ir.DeploymentDescriptor) *run.GoogleCloudRunV2Service {
	c := &run.GoogleCloudRunV2Container{
		Image: d.Image,
		Resources: &run.GoogleCloudRunV2ResourceRequirements{
			Limits: map[string]string{limitMemory: d.Resources.Memory, limitCPU: d.Resources.CPU},
		},
		Ports: []*run.GoogleCloudRunV2ContainerPort{{ContainerPort: int64(d.Port)}},
	}
	if d.HealthCheckPath != "" {
		c.StartupProbe = &run.GoogleCloudRunV2Probe{
			HttpGet: &run.GoogleCloudRunV2HTTPGetAction{Path: d.HealthCheckPath},
		}
		c.LivenessProbe = &run.GoogleCloudRunV2Probe{
			HttpGet: &run.GoogleCloudRunV2HTTPGetAction{Path: d.HealthCheckPath},
		}
	}

	for _, k := range sortedKeys(d.EnvVars) {
		c.Env = append(c.Env, &run.GoogleCloudRunV2EnvVar{Name: k, Value: d.EnvVars[k]})
	}
	for _, k := range sortedKeys(d.SecretRefs) {
		ref := d.SecretRefs[k]
		c.Env = append(c.Env, &run.GoogleCloudRunV2EnvVar{
			Name: k,
			ValueSource: &run.GoogleCloudRunV2EnvVarSource{
				SecretKeyRef: &run.GoogleCloudRunV2SecretKeySelector{Secret: ref.Secret, Version: ref.Version},
			},
		})
	}

	tmpl := &run.GoogleCloudRunV2RevisionTemplate{
		Containers:     []*run.GoogleCloudRunV2Container{c},
		ServiceAccount: d.ServiceAccount,
		Scaling: &run.GoogleCloudRunV2RevisionScaling{
			MinInstanceCount: int64(d.Resources.MinInstances),
			MaxInstanceCount: int64(d.Resources.MaxInstances),
		},
		MaxInstanceRequestConcurrency: int64(d.Resources.Concurrency),
	}
	for _, m := range d.VolumeMounts {
		tmpl.Volumes = append(tmpl.Volumes, &run.GoogleCloudRunV2Volume{
			Name:             m.Name,
			CloudSqlInstance: &run.GoogleCloudRunV2CloudSqlInstance{Instances: []string{m.Instance}},
		})
		c.VolumeMounts = append(c.VolumeMounts, &run.GoogleCloudRunV2VolumeMount{Name: m.Name, MountPath: m.MountPath})
	}

	return &run.GoogleCloudRunV2Service{Template: tmpl}
}

// descriptorFromService reads the descriptor back from the live service. The
// platform may return secrets as full resource names; only the short name is
// kept so the comparison with the desired descriptor is stable.
func descriptorFromService(name string, svc *run.GoogleCloudRunV2Service) ir.DeploymentDescriptor {
	d := ir.DeploymentDescriptor{
		Service:    name,
		EnvVars:    map[string]string{},
		SecretRefs: map[string]ir.SecretRef{},
	}
	tmpl := svc.Template
	if tmpl == nil {
		return d
	}
	d.ServiceAccount = tmpl.ServiceAccount
	d.Resources.Concurrency = int(tmpl.MaxInstanceRequestConcurrency)
	if tmpl.Scaling != nil {
		d.Resources.MinInstances = int(tmpl.Scaling.MinInstanceCount)
		d.Resources.MaxInstances = int(tmpl.Scaling.MaxInstanceCount)
	}

	instances := map[string]string{}
	for _, v := range tmpl.Volumes {
		if v.CloudSqlInstance != nil && len(v.CloudSqlInstance.Instances) > 0 {
			instances[v.Name] = v.CloudSqlInstance.Instances[0]
		}
	}

	if len(tmpl.Containers) == 0 {
		return d
	}
	c := tmpl.Containers[0]
	d.Image = c.Image
	if c.Resources != nil {
		d.Resources.Memory = c.Resources.Limits[limitMemory]
		d.Resources.CPU = c.Resources.Limits[limitCPU]
	}
	if len(c.Ports) > 0 {
		d.Port = int(c.Ports[0].ContainerPort)
	}
	if c.StartupProbe != nil && c.StartupProbe.HttpGet != nil {
		d.HealthCheckPath = c.StartupProbe.HttpGet.Path
	}
	for _, e := range c.Env {
		if e.ValueSource != nil && e.ValueSource.SecretKeyRef != nil {
			ref := e.ValueSource.SecretKeyRef
			d.SecretRefs[e.Name] = ir.SecretRef{Secret: path.Base(ref.Secret), Version: ref.Version}
			continue
		}
		d.EnvVars[e.Name] = e.Value
	}
	for _, m := range c.VolumeMounts {
		d.VolumeMounts = append(d.VolumeMounts, ir.VolumeMount{
			Name:      m.Name,
			MountPath: m.MountPath,
			Instance:  instances[m.Name],
		})
	}
	sort.Slice(d.VolumeMounts, func(i, j int) bool { return d.VolumeMounts[i].Name < d.VolumeMounts[j].Name })
	return d
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
