package config

import "fmt"

// Logging defaults.
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
	DefaultLogOutput = "stderr"
)

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"json":    true,
	"console": true,
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level is the minimum level emitted: debug, info, warn or error.
	Level string `yaml:"level,omitempty" json:"level,omitempty"`

	// Format selects json or console encoding.
	Format string `yaml:"format,omitempty" json:"format,omitempty"`

	// Output selects stdout or stderr.
	Output string `yaml:"output,omitempty" json:"output,omitempty"`

	// TimeFormat is an optional Go time layout for timestamps.
	TimeFormat string `yaml:"timeFormat,omitempty" json:"timeFormat,omitempty"`
}

// Validate checks the logging configuration.
func (c *LoggingConfig) Validate() error {
	if !IsBlank(c.Level) && !validLogLevels[c.Level] {
		return fmt.Errorf("unsupported log level: %s", c.Level)
	}
	if !IsBlank(c.Format) && !validLogFormats[c.Format] {
		return fmt.Errorf("unsupported log format: %s", c.Format)
	}
	return nil
}

// GetEffectiveLevel returns the level, defaulting to info.
func (c *LoggingConfig) GetEffectiveLevel() string {
	if IsBlank(c.Level) {
		return DefaultLogLevel
	}
	return c.Level
}

// GetEffectiveFormat returns the format, defaulting to json.
func (c *LoggingConfig) GetEffectiveFormat() string {
	if IsBlank(c.Format) {
		return DefaultLogFormat
	}
	return c.Format
}

// GetEffectiveOutput returns the output, defaulting to stderr.
func (c *LoggingConfig) GetEffectiveOutput() string {
	if IsBlank(c.Output) {
		return DefaultLogOutput
	}
	return c.Output
}
