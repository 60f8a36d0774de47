package engine

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/picklr-io/converge/pkg/cloud"
)

// ErrInvalidName is returned for names the platform would reject.
var ErrInvalidName = errors.New("invalid resource name")

var namePatterns = map[cloud.Kind]*regexp.Regexp{
	// 1-63 chars, lowercase letters, digits and hyphens.
	cloud.KindArtifactRepository: regexp.MustCompile(`^[a-z]([a-z0-9-]{0,61}[a-z0-9])?$`),
	// Starts with a letter, at most 98 chars.
	cloud.KindDatabaseInstance: regexp.MustCompile(`^[a-z]([a-z0-9-]{0,96}[a-z0-9])?$`),
	cloud.KindDatabase:         regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_$-]{0,62}$`),
	cloud.KindDatabaseUser:     regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.@-]{0,62}$`),
	// Account ids are 6-30 chars.
	cloud.KindServiceIdentity: regexp.MustCompile(`^[a-z][a-z0-9-]{4,28}[a-z0-9]$`),
	// Project-wide bindings are addressed by project id.
	cloud.KindIAMBinding:     regexp.MustCompile(`^[a-z][a-z0-9-]{4,28}[a-z0-9]$`),
	cloud.KindSecret:         regexp.MustCompile(`^[A-Za-z0-9_-]{1,255}$`),
	cloud.KindComputeService: regexp.MustCompile(`^[a-z]([a-z0-9-]{0,47}[a-z0-9])?$`),
}

// ValidateName checks ref against the naming rules of its kind. Parents of
// nested kinds are checked too.
func ValidateName(ref cloud.Ref) error {
	re, ok := namePatterns[ref.Kind]
	if !ok {
		return cloud.Rejected("validate", ref, fmt.Errorf("unknown kind %q", ref.Kind))
	}
	if !re.MatchString(ref.Name) {
		return cloud.Rejected("validate", ref, fmt.Errorf("%w: %q does not match %s", ErrInvalidName, ref.Name, re))
	}
	if ref.Parent != "" && (ref.Kind == cloud.KindDatabase || ref.Kind == cloud.KindDatabaseUser) {
		if !namePatterns[cloud.KindDatabaseInstance].MatchString(ref.Parent) {
			return cloud.Rejected("validate", ref, fmt.Errorf("%w: instance %q", ErrInvalidName, ref.Parent))
		}
	}
	return nil
}
