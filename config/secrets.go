package config

import "fmt"

// SecretsConfig configures resolution of secret references appearing in
// credential fields. Environment references (env://NAME) always work;
// vault references (vault://mount/path#key) require the Vault section.
type SecretsConfig struct {
	// Vault configures the HashiCorp Vault client used for vault://
	// references.
	Vault *VaultConfig `yaml:"vault,omitempty" json:"vault,omitempty"`
}

// VaultConfig holds the Vault connection settings. Secrets are read from
// KV version 2 mounts.
type VaultConfig struct {
	// Address is the Vault server URL.
	Address string `yaml:"address" json:"address"`

	// Token authenticates against Vault. Supports an env:// reference.
	Token string `yaml:"token,omitempty" json:"token,omitempty"`

	// Namespace is the optional Vault enterprise namespace.
	Namespace string `yaml:"namespace,omitempty" json:"namespace,omitempty"`

	// Timeout bounds each Vault request.
	Timeout Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// TLSSkipVerify disables certificate verification. Test use only.
	TLSSkipVerify bool `yaml:"tlsSkipVerify,omitempty" json:"tlsSkipVerify,omitempty"`
}

// Validate checks the secrets configuration.
func (c *SecretsConfig) Validate() error {
	if c.Vault != nil {
		if IsBlank(c.Vault.Address) {
			return fmt.Errorf("vault.address must be specified")
		}
	}
	return nil
}
