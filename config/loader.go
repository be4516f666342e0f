package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${NAME} and ${NAME:-default} references.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// escapedDollar temporarily replaces $$ so a literal dollar sign can
// appear in configuration values.
const escapedDollar = "\x00__DOLLAR__\x00"

// Load reads and parses the configuration file at path. Environment
// variable references are substituted before parsing. The result is not
// validated; call Validate separately.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// LoadAndValidate reads, parses and validates the configuration file.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return cfg, nil
}

// Parse parses YAML configuration data after substituting environment
// variable references.
func Parse(data []byte) (*Config, error) {
	substituted := substituteEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(substituted), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// substituteEnvVars replaces ${NAME} with the value of the environment
// variable NAME and ${NAME:-default} with the default when NAME is unset.
// An unset variable without a default substitutes the empty string. $$
// escapes a literal dollar sign.
func substituteEnvVars(s string) string {
	s = strings.ReplaceAll(s, "$$", escapedDollar)

	s = envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name := groups[1]
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return groups[2]
	})

	return strings.ReplaceAll(s, escapedDollar, "$")
}
