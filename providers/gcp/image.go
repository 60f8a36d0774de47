package gcp

import (
	"context"
	"fmt"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/crane"
	"github.com/google/go-containerregistry/pkg/v1/google"

	"github.com/picklr-io/converge/internal/logging"
)

// VerifyImage resolves the image digest in its registry. A missing image
// fails here instead of as a failed revision rollout.
func (p *Provider) VerifyImage(ctx context.Context, image string) error {
	keychain := authn.NewMultiKeychain(google.Keychain, authn.DefaultKeychain)
	digest, err := crane.Digest(image, crane.WithContext(ctx), crane.WithAuthFromKeychain(keychain))
	if err != nil {
		return fmt.Errorf("resolve image %s: %w", image, err)
	}
	logging.Debug("image resolved", "image", image, "digest", digest)
	return nil
}
