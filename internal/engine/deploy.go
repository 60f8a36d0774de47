package engine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/picklr-io/converge/internal/ir"
	"github.com/picklr-io/converge/pkg/cloud"
)

const (
	defaultServicePort = 8080
	cloudSQLMountName  = "cloudsql"
	cloudSQLMountPath  = "/cloudsql"
	latestVersion      = "latest"
)

// BuildDescriptor composes the deployment from settings and the outputs of
// earlier steps. Secret-backed keys always point at the latest version.
func BuildDescriptor(s *ir.Settings, identity ir.ServiceIdentity) ir.DeploymentDescriptor {
	svc := s.Service
	d := ir.DeploymentDescriptor{
		Service: svc.Name,
		Region:  s.Region,
		Image:   svc.Image,
		EnvVars: make(map[string]string, len(svc.Env)+5),
		SecretRefs: map[string]ir.SecretRef{
			ir.EnvDBPassword:    {Secret: s.Secrets.PasswordSecret, Version: latestVersion},
			ir.EnvEncryptionKey: {Secret: s.Secrets.EncryptionKeySecret, Version: latestVersion},
		},
		Resources: ir.ResourceSizing{
			Memory:       svc.Memory,
			CPU:          svc.CPU,
			MinInstances: svc.MinInstances,
			MaxInstances: svc.MaxInstances,
			Concurrency:  svc.Concurrency,
		},
		ServiceAccount:  identity.Email(),
		Port:            svc.Port,
		HealthCheckPath: svc.HealthCheckPath,
	}
	if d.Port == 0 {
		d.Port = defaultServicePort
	}

	for k, v := range svc.Env {
		d.EnvVars[k] = v
	}

	host := s.Database.Host
	if svc.CloudSQLConnector {
		conn := s.ConnectionName()
		host = cloudSQLMountPath + "/" + conn
		d.VolumeMounts = []ir.VolumeMount{{Name: cloudSQLMountName, MountPath: cloudSQLMountPath, Instance: conn}}
	}
	d.EnvVars[ir.EnvDBType] = s.Database.Type
	d.EnvVars[ir.EnvDBHost] = host
	d.EnvVars[ir.EnvDBPort] = strconv.Itoa(s.Database.Port)
	d.EnvVars[ir.EnvDBName] = s.Database.Name
	d.EnvVars[ir.EnvDBUser] = s.Database.User

	return d
}

// DeploymentSpec is the resource form of a descriptor. Every descriptor field
// is managed, so stale env vars, secret refs and mounts count as drift.
func DeploymentSpec(d ir.DeploymentDescriptor) cloud.ResourceSpec {
	return cloud.ResourceSpec{
		Ref:           cloud.Ref{Kind: cloud.KindComputeService, Name: d.Service},
		DesiredFields: d.Fields(),
		Managed:       ir.DescriptorManagedFields,
	}
}

// Apply applies the descriptor as a whole. A rejected update leaves the
// previous revision serving; nothing is rolled back here.
func (e *Engine) Apply(ctx context.Context, d ir.DeploymentDescriptor) ir.ReconcileResult {
	if e.VerifyImage != nil {
		start := time.Now()
		if err := e.VerifyImage(ctx, d.Image); err != nil {
			res := ir.ReconcileResult{Kind: string(cloud.KindComputeService), Name: d.Service}
			return e.finish(res, start, ir.ActionFailed, fmt.Errorf("image %s: %w", d.Image, err))
		}
	}
	return e.Reconcile(ctx, DeploymentSpec(d))
}
