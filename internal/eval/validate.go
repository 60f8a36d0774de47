package eval

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/picklr-io/converge/internal/ir"
)

var validate = newValidator("yaml")

func newValidator(tag string) *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// NewValidator returns a validator that names fields by the given struct tag.
func NewValidator(tag string) *validator.Validate { return newValidator(tag) }

// ConfigurationMissingError lists every absent or invalid setting. It is
// returned before any cloud call is made.
type ConfigurationMissingError struct {
	Missing []string
	Invalid []string
}

func (e *ConfigurationMissingError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required settings: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid settings: "+strings.Join(e.Invalid, ", "))
	}
	return strings.Join(parts, "; ")
}

// FromValidation converts validator errors. rename maps a field path such as
// "database.instance" to its display name; nil keeps the path.
func FromValidation(err error, rename func(string) string) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	if rename == nil {
		rename = func(s string) string { return s }
	}

	out := &ConfigurationMissingError{}
	for _, fe := range verrs {
		path := fe.Namespace()
		if _, rest, ok := strings.Cut(path, "."); ok {
			path = rest
		}
		name := rename(path)
		if strings.HasPrefix(fe.Tag(), "required") {
			out.Missing = append(out.Missing, name)
			continue
		}
		detail := fe.Tag()
		if fe.Param() != "" {
			detail += "=" + fe.Param()
		}
		out.Invalid = append(out.Invalid, fmt.Sprintf("%s (%s)", name, detail))
	}
	sort.Strings(out.Missing)
	sort.Strings(out.Invalid)
	return out
}

// reservedEnv are the keys the deployment derives itself.
var reservedEnv = []string{
	ir.EnvDBType, ir.EnvDBHost, ir.EnvDBPort, ir.EnvDBName,
	ir.EnvDBUser, ir.EnvDBPassword, ir.EnvEncryptionKey,
}

// Validate checks required settings and value constraints. Service env keys
// may not shadow the derived database and secret keys.
func Validate(s *ir.Settings) error {
	if s.Database != nil && s.Service != nil {
		s.Database.Connector = s.Service.CloudSQLConnector
	}

	var cfgErr *ConfigurationMissingError
	if err := validate.Struct(s); err != nil {
		if !errors.As(FromValidation(err, nil), &cfgErr) {
			return err
		}
	}

	if s.Service != nil {
		for _, k := range reservedEnv {
			if _, ok := s.Service.Env[k]; !ok {
				continue
			}
			if cfgErr == nil {
				cfgErr = &ConfigurationMissingError{}
			}
			cfgErr.Invalid = append(cfgErr.Invalid, fmt.Sprintf("service.env.%s (reserved)", k))
		}
	}
	if cfgErr == nil {
		return nil
	}
	sort.Strings(cfgErr.Invalid)
	return cfgErr
}

// ApplyDefaults fills optional settings.
func ApplyDefaults(s *ir.Settings) {
	if s.Provider == "" {
		s.Provider = "gcp"
	}
	if s.Repository != nil && s.Repository.Format == "" {
		s.Repository.Format = "DOCKER"
	}
	if s.Database != nil && s.Database.Port == 0 {
		switch s.Database.Type {
		case "postgres":
			s.Database.Port = 5432
		case "mysql":
			s.Database.Port = 3306
		}
	}
	if s.Identity != nil && s.Identity.DisplayName == "" {
		s.Identity.DisplayName = s.Identity.Name
	}
	if s.Service != nil {
		if s.Service.Port == 0 {
			s.Service.Port = 8080
		}
		if s.Service.Concurrency == 0 {
			s.Service.Concurrency = 80
		}
		if s.Service.HealthCheckPath == "" {
			s.Service.HealthCheckPath = "/healthz"
		}
		if s.Identity != nil && s.Identity.Roles == nil && s.Service.CloudSQLConnector {
			s.Identity.Roles = []string{"roles/cloudsql.client"}
		}
	}
	if s.Report == nil {
		s.Report = &ir.ReportSettings{Backend: "local"}
	}
}
