package ir

// Settings is the validated configuration of a run.
type Settings struct {
	Project     string              `pkl:"project" yaml:"project" validate:"required"`
	Region      string              `pkl:"region" yaml:"region" validate:"required"`
	Provider    string              `pkl:"provider" yaml:"provider"`
	VerifyImage bool                `pkl:"verifyImage" yaml:"verifyImage"`
	Repository  *RepositorySettings `pkl:"repository" yaml:"repository" validate:"required"`
	Database    *DatabaseSettings   `pkl:"database" yaml:"database" validate:"required"`
	Secrets     *SecretSettings     `pkl:"secrets" yaml:"secrets" validate:"required"`
	Identity    *IdentitySettings   `pkl:"identity" yaml:"identity" validate:"required"`
	Service     *ServiceSettings    `pkl:"service" yaml:"service" validate:"required"`
	Retry       *RetrySettings      `pkl:"retry" yaml:"retry"`
	Report      *ReportSettings     `pkl:"report" yaml:"report"`
}

type RepositorySettings struct {
	Name        string `pkl:"name" yaml:"name" validate:"required"`
	Format      string `pkl:"format" yaml:"format"`
	Description string `pkl:"description" yaml:"description"`
}

type DatabaseSettings struct {
	Instance string `pkl:"instance" yaml:"instance" validate:"required"`
	Version  string `pkl:"version" yaml:"version" validate:"required"`
	Tier     string `pkl:"tier" yaml:"tier" validate:"required"`
	Name     string `pkl:"name" yaml:"name" validate:"required"`
	User     string `pkl:"user" yaml:"user" validate:"required"`
	// Password is optional; the live secret or a generated value is used
	// when it is empty.
	Password string `pkl:"password" yaml:"password"`
	Type     string `pkl:"type" yaml:"type" validate:"required,oneof=postgres mysql"`
	Port     int    `pkl:"port" yaml:"port" validate:"required,min=1,max=65535"`
	// Host is used when the service does not attach the instance socket.
	Host string `pkl:"host" yaml:"host" validate:"required_without=Connector"`
	// Connector mirrors ServiceSettings.CloudSQLConnector for validation.
	Connector bool `pkl:"-" yaml:"-"`
}

type SecretSettings struct {
	PasswordSecret      string `pkl:"passwordSecret" yaml:"passwordSecret" validate:"required"`
	EncryptionKeySecret string `pkl:"encryptionKeySecret" yaml:"encryptionKeySecret" validate:"required"`
	EncryptionKey       string `pkl:"encryptionKey" yaml:"encryptionKey"`
}

type IdentitySettings struct {
	Name        string   `pkl:"name" yaml:"name" validate:"required"`
	DisplayName string   `pkl:"displayName" yaml:"displayName"`
	Roles       []string `pkl:"roles" yaml:"roles"`
}

type ServiceSettings struct {
	Name              string            `pkl:"name" yaml:"name" validate:"required"`
	Image             string            `pkl:"image" yaml:"image" validate:"required"`
	Memory            string            `pkl:"memory" yaml:"memory" validate:"required"`
	CPU               string            `pkl:"cpu" yaml:"cpu" validate:"required"`
	MinInstances      int               `pkl:"minInstances" yaml:"minInstances" validate:"min=0"`
	MaxInstances      int               `pkl:"maxInstances" yaml:"maxInstances" validate:"required,gtefield=MinInstances"`
	Concurrency       int               `pkl:"concurrency" yaml:"concurrency" validate:"required,min=1"`
	Port              int               `pkl:"port" yaml:"port"`
	HealthCheckPath   string            `pkl:"healthCheckPath" yaml:"healthCheckPath" validate:"required,startswith=/"`
	CloudSQLConnector bool              `pkl:"cloudSqlConnector" yaml:"cloudSqlConnector"`
	Env               map[string]string `pkl:"env" yaml:"env"`
}

type RetrySettings struct {
	MaxAttempts int    `pkl:"maxAttempts" yaml:"maxAttempts"`
	BaseDelay   string `pkl:"baseDelay" yaml:"baseDelay"`
	MaxDelay    string `pkl:"maxDelay" yaml:"maxDelay"`
}

type ReportSettings struct {
	Backend string            `pkl:"backend" yaml:"backend"` // "local" or "s3"
	Config  map[string]string `pkl:"config" yaml:"config"`
}

// ConnectionName is the Cloud SQL connection name of the instance.
func (s *Settings) ConnectionName() string {
	return s.Project + ":" + s.Region + ":" + s.Database.Instance
}
