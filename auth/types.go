package auth

// AccessTokenResponse is the parsed success body from an OAuth2 token
// endpoint.
type AccessTokenResponse struct {
	// AccessToken is the token itself. A response without it is
	// treated as invalid.
	AccessToken string `json:"access_token"`

	// TokenType is the Authorization scheme reported by the endpoint.
	// Defaults to Bearer when absent; an authorizationScheme override
	// in the configuration always wins.
	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the token lifetime in seconds. Tokens without it
	// are never cached.
	ExpiresIn *int64 `json:"expires_in,omitempty"`
}

// ErrorResponse is the RFC 6749 section 5.2 error body a token endpoint
// returns with status 400. Bodies that do not carry a non-blank error
// code are not treated as OAuth2 errors.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	ErrorURI         string `json:"error_uri,omitempty"`
}
