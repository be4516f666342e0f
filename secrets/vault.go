package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/vault/api"

	"github.com/dozer75/httpcliauth/config"
	"github.com/dozer75/httpcliauth/observability"
)

// defaultVaultKey is used when a vault reference omits the #key part.
const defaultVaultKey = "value"

// VaultSource reads secrets from HashiCorp Vault KV v2 mounts.
type VaultSource struct {
	client *api.Client
	logger observability.Logger
}

// NewVaultSource creates a Vault-backed source. The token may be given
// directly, as an env:// reference, or left empty to fall back to the
// VAULT_TOKEN environment variable.
func NewVaultSource(cfg *config.VaultConfig, logger observability.Logger) (*VaultSource, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	apiCfg := api.DefaultConfig()
	apiCfg.Address = cfg.Address
	if cfg.Timeout > 0 {
		apiCfg.Timeout = cfg.Timeout.Duration()
	}
	if cfg.TLSSkipVerify {
		if err := apiCfg.ConfigureTLS(&api.TLSConfig{Insecure: true}); err != nil {
			return nil, fmt.Errorf("failed to configure vault tls: %w", err)
		}
	}

	client, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	token, err := resolveVaultToken(cfg.Token)
	if err != nil {
		return nil, err
	}
	if token != "" {
		client.SetToken(token)
	}

	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	logger.Debug("vault secret source initialized",
		observability.String("address", cfg.Address),
	)

	return &VaultSource{client: client, logger: logger}, nil
}

func resolveVaultToken(token string) (string, error) {
	if !strings.HasPrefix(token, envPrefix) {
		return token, nil
	}
	name := strings.TrimPrefix(token, envPrefix)
	value, ok := os.LookupEnv(name)
	if !ok {
		return "", fmt.Errorf("vault token environment variable %s is not set", name)
	}
	return value, nil
}

// Resolve reads a vault://mount/path#key reference.
func (s *VaultSource) Resolve(ctx context.Context, ref string) (string, error) {
	mount, path, key, err := parseVaultRef(ref)
	if err != nil {
		return "", err
	}

	secret, err := s.client.KVv2(mount).Get(ctx, path)
	if err != nil {
		return "", fmt.Errorf("failed to read vault secret %s/%s: %w", mount, path, err)
	}

	value, ok := secret.Data[key].(string)
	if !ok {
		return "", fmt.Errorf("vault secret %s/%s has no string value for key %s", mount, path, key)
	}

	s.logger.Debug("resolved vault secret",
		observability.String("mount", mount),
		observability.String("path", path),
	)

	return value, nil
}

// parseVaultRef splits vault://mount/path#key. The key defaults to
// "value" when omitted.
func parseVaultRef(ref string) (mount, path, key string, err error) {
	rest := strings.TrimPrefix(ref, vaultPrefix)

	key = defaultVaultKey
	if idx := strings.Index(rest, "#"); idx >= 0 {
		key = rest[idx+1:]
		rest = rest[:idx]
		if key == "" {
			return "", "", "", fmt.Errorf("invalid vault reference %q: empty key", ref)
		}
	}

	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", fmt.Errorf("invalid vault reference %q: expected vault://mount/path#key", ref)
	}

	return parts[0], parts[1], key, nil
}

var _ Source = (*VaultSource)(nil)
