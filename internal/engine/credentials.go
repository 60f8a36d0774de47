package engine

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/picklr-io/converge/internal/ir"
	"github.com/picklr-io/converge/internal/logging"
	"github.com/picklr-io/converge/pkg/cloud"
)

// Credential sources, in order of precedence.
const (
	SourceSettings  = "settings"
	SourceSecret    = "secret"
	SourceGenerated = "generated"
)

const (
	passwordBytes      = 24
	encryptionKeyBytes = 32
)

// Credentials are the secret values of a run. A live secret is reused rather
// than replaced so running instances keep working.
type Credentials struct {
	Password       string
	PasswordSource string
	EncryptionKey  string
	KeySource      string

	// RotatePassword is set when the database user must be given Password
	// because it differs from the live secret.
	RotatePassword bool
}

// LogValue omits the values.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("password_source", c.PasswordSource),
		slog.String("key_source", c.KeySource),
		slog.Bool("rotate_password", c.RotatePassword),
	)
}

// ResolveCredentials picks the database password and encryption key: the
// configured value, else the live latest secret version, else a new random
// value. Only read calls are made.
func (e *Engine) ResolveCredentials(ctx context.Context, s *ir.Settings) (Credentials, error) {
	var c Credentials
	for _, name := range []string{s.Secrets.PasswordSecret, s.Secrets.EncryptionKeySecret} {
		if err := ValidateName(cloud.Ref{Kind: cloud.KindSecret, Name: name}); err != nil {
			return c, err
		}
	}

	livePassword, err := e.latestVersion(ctx, s.Secrets.PasswordSecret)
	if err != nil {
		return c, fmt.Errorf("read secret %s: %w", s.Secrets.PasswordSecret, err)
	}
	c.Password, c.PasswordSource, err = pick(s.Database.Password, livePassword, passwordBytes)
	if err != nil {
		return c, err
	}
	c.RotatePassword = c.Password != string(livePassword)

	liveKey, err := e.latestVersion(ctx, s.Secrets.EncryptionKeySecret)
	if err != nil {
		return c, fmt.Errorf("read secret %s: %w", s.Secrets.EncryptionKeySecret, err)
	}
	c.EncryptionKey, c.KeySource, err = pick(s.Secrets.EncryptionKey, liveKey, encryptionKeyBytes)
	if err != nil {
		return c, err
	}

	logging.Debug("credentials resolved", "credentials", c)
	return c, nil
}

func pick(configured string, live []byte, size int) (string, string, error) {
	switch {
	case configured != "":
		return configured, SourceSettings, nil
	case len(live) > 0:
		return string(live), SourceSecret, nil
	}
	v, err := GenerateSecret(size)
	if err != nil {
		return "", "", err
	}
	return v, SourceGenerated, nil
}

// GenerateSecret returns size random bytes, URL-safe base64 encoded.
func GenerateSecret(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
