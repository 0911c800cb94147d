package session

import (
	"context"
	"fmt"
	"os"

	"github.com/mattjoyce/azkit/internal/errdefs"
)

// CredentialProvider supplies the password used to log in as user on url.
// Implementations may prompt interactively, read the environment, or return
// a fixed secret.
type CredentialProvider interface {
	Credential(ctx context.Context, user, url string) (string, error)
}

// CredentialFunc adapts a function to CredentialProvider.
type CredentialFunc func(ctx context.Context, user, url string) (string, error)

func (f CredentialFunc) Credential(ctx context.Context, user, url string) (string, error) {
	return f(ctx, user, url)
}

// StaticCredential always returns the same password.
type StaticCredential string

func (c StaticCredential) Credential(context.Context, string, string) (string, error) {
	return string(c), nil
}

// EnvCredential reads the password from an environment variable.
type EnvCredential string

func (e EnvCredential) Credential(context.Context, string, string) (string, error) {
	v, ok := os.LookupEnv(string(e))
	if !ok {
		return "", fmt.Errorf("%w: environment variable %s is not set", errdefs.ErrAuthentication, string(e))
	}
	return v, nil
}

// Chain tries providers in order and returns the first credential obtained.
type Chain []CredentialProvider

func (c Chain) Credential(ctx context.Context, user, url string) (string, error) {
	var lastErr error
	for _, p := range c {
		if p == nil {
			continue
		}
		v, err := p.Credential(ctx, user, url)
		if err == nil {
			return v, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("%w: no credential provider configured", errdefs.ErrAuthentication)
	}
	return "", lastErr
}
