// Package secrets resolves secret references appearing in configuration
// values. Three forms are supported: env://NAME reads an environment
// variable, vault://mount/path#key reads a HashiCorp Vault KV v2 secret,
// and anything else is returned as-is.
package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dozer75/httpcliauth/config"
	"github.com/dozer75/httpcliauth/observability"
)

const (
	envPrefix   = "env://"
	vaultPrefix = "vault://"
)

// Source resolves a secret reference to its value.
type Source interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// Resolver dispatches references by prefix. Literal values pass through
// unchanged, so a Resolver can be applied to every credential field.
type Resolver struct {
	vault *VaultSource
}

// NewResolver creates a resolver. vault may be nil; vault:// references
// then fail with an error naming the missing configuration.
func NewResolver(vault *VaultSource) *Resolver {
	return &Resolver{vault: vault}
}

// NewFromConfig creates a resolver from the secrets configuration
// section. A nil section yields a resolver handling env:// and literal
// values only.
func NewFromConfig(cfg *config.SecretsConfig, logger observability.Logger) (*Resolver, error) {
	if cfg == nil || cfg.Vault == nil {
		return NewResolver(nil), nil
	}

	vault, err := NewVaultSource(cfg.Vault, logger)
	if err != nil {
		return nil, err
	}
	return NewResolver(vault), nil
}

// Resolve resolves a single reference.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	switch {
	case strings.HasPrefix(ref, envPrefix):
		name := strings.TrimPrefix(ref, envPrefix)
		if name == "" {
			return "", fmt.Errorf("invalid secret reference %q: missing variable name", ref)
		}
		value, ok := os.LookupEnv(name)
		if !ok {
			return "", fmt.Errorf("environment variable %s is not set", name)
		}
		return value, nil

	case strings.HasPrefix(ref, vaultPrefix):
		if r.vault == nil {
			return "", fmt.Errorf("cannot resolve %q: vault is not configured", ref)
		}
		return r.vault.Resolve(ctx, ref)

	default:
		return ref, nil
	}
}

var _ Source = (*Resolver)(nil)

// ResolveClientConfig returns a copy of the client section with all
// credential fields resolved. The input is never mutated; resolution
// happens once and the copy is immutable afterwards.
func ResolveClientConfig(ctx context.Context, src Source, cc *config.ClientConfig) (*config.ClientConfig, error) {
	if cc == nil {
		return nil, nil
	}
	if src == nil {
		return cc.Clone(), nil
	}

	out := cc.Clone()

	if out.ApiKey != nil {
		value, err := src.Resolve(ctx, out.ApiKey.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve apiKey.value: %w", err)
		}
		out.ApiKey.Value = value
	}

	if out.Basic != nil {
		password, err := src.Resolve(ctx, out.Basic.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve basic.password: %w", err)
		}
		out.Basic.Password = password
	}

	if out.OAuth2 != nil && out.OAuth2.ClientCredentials != nil {
		secret, err := src.Resolve(ctx, out.OAuth2.ClientCredentials.ClientSecret)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve oauth2.clientCredentials.clientSecret: %w", err)
		}
		out.OAuth2.ClientCredentials.ClientSecret = secret
	}

	return out, nil
}
