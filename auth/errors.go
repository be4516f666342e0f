// Package auth decorates outgoing HTTP requests with authentication.
// A strategy is selected per named client configuration: no
// authentication, a static API key header, HTTP Basic credentials, or an
// OAuth2 bearer token acquired through the client credentials flow and
// cached until shortly before expiry.
package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrNoValidToken is returned when the token endpoint answered but
	// no usable access token could be extracted. The failure has
	// already been logged when this error is seen.
	ErrNoValidToken = errors.New("no valid access token could be retrieved")

	// ErrInvalidConfig matches every ConfigError.
	ErrInvalidConfig = errors.New("invalid authentication configuration")
)

// ConfigError reports an invalid or incomplete authentication
// configuration. Configuration errors are returned synchronously and
// never logged.
type ConfigError struct {
	Field   string
	Message string
	Cause   error
}

func (e *ConfigError) Error() string {
	msg := "invalid authentication configuration"
	if e.Field != "" {
		msg += ": " + e.Field
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// Is reports ErrInvalidConfig as a match so callers can classify
// configuration failures without depending on the concrete type.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// NewConfigError creates a ConfigError for a field.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// NewConfigErrorWithCause creates a ConfigError wrapping a cause.
func NewConfigErrorWithCause(field, message string, cause error) *ConfigError {
	return &ConfigError{Field: field, Message: message, Cause: cause}
}

// ProviderError reports a failure inside an authentication strategy.
type ProviderError struct {
	Client    string
	Operation string
	Message   string
	Cause     error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("authentication provider %s: %s", e.Client, e.Operation)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a ProviderError.
func NewProviderError(client, operation, message string) *ProviderError {
	return &ProviderError{Client: client, Operation: operation, Message: message}
}

// NewProviderErrorWithCause creates a ProviderError wrapping a cause.
func NewProviderErrorWithCause(client, operation, message string, cause error) *ProviderError {
	return &ProviderError{Client: client, Operation: operation, Message: message, Cause: cause}
}
