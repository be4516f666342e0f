package main

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/dozer75/httpcliauth/observability"
)

const issuerName = "mockidp"

// serverConfig drives token issuance.
type serverConfig struct {
	ClientID      string
	ClientSecret  string
	SecretHash    string
	SigningKey    []byte
	TokenType     string
	ExpiresIn     int64
	OmitExpiresIn bool
	RateLimit     float64
}

// tokenResponse is the RFC 6749 section 5.1 success body.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   *int64 `json:"expires_in,omitempty"`
	Scope       string `json:"scope,omitempty"`
}

// errorResponse is the RFC 6749 section 5.2 error body.
type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

type idpServer struct {
	cfg     serverConfig
	limiter *rate.Limiter
	logger  observability.Logger
}

// newRouter builds the gin engine serving the token endpoint.
func newRouter(cfg serverConfig, logger observability.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	s := &idpServer{cfg: cfg, logger: logger}
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.POST("/token", s.token)
	r.GET("/healthz", s.healthz)
	return r
}

func (s *idpServer) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *idpServer) token(c *gin.Context) {
	if s.limiter != nil && !s.limiter.Allow() {
		c.Header("Retry-After", "1")
		s.oauthError(c, http.StatusTooManyRequests, "temporarily_unavailable", "rate limit exceeded")
		return
	}

	grantType := c.PostForm("grant_type")
	if grantType == "" {
		s.oauthError(c, http.StatusBadRequest, "invalid_request", "grant_type is required")
		return
	}
	if grantType != "client_credentials" {
		s.oauthError(c, http.StatusBadRequest, "unsupported_grant_type", "only client_credentials is supported")
		return
	}

	clientID, clientSecret, viaBasic := clientCredentials(c)
	if clientID == "" || clientSecret == "" {
		s.oauthError(c, http.StatusBadRequest, "invalid_client", "client authentication is required")
		return
	}

	if !s.validCredentials(clientID, clientSecret) {
		status := http.StatusBadRequest
		if viaBasic {
			// RFC 6749 section 5.2: 401 with a challenge when the
			// client used the Authorization header.
			c.Header("WWW-Authenticate", `Basic realm="mockidp"`)
			status = http.StatusUnauthorized
		}
		s.oauthError(c, status, "invalid_client", "client authentication failed")
		return
	}

	scope := c.PostForm("scope")
	signed, err := s.issueToken(clientID, scope)
	if err != nil {
		s.logger.Error("failed to sign token", observability.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "server_error"})
		return
	}

	resp := tokenResponse{
		AccessToken: signed,
		TokenType:   s.cfg.TokenType,
		Scope:       scope,
	}
	if !s.cfg.OmitExpiresIn {
		expiresIn := s.cfg.ExpiresIn
		resp.ExpiresIn = &expiresIn
	}

	// RFC 6749 section 5.1 forbids caching token responses.
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(http.StatusOK, resp)

	s.logger.Info("token issued",
		observability.String("clientId", clientID),
		observability.String("scope", scope),
	)
}

// clientCredentials extracts the client id and secret, preferring the
// Authorization header over body parameters.
func clientCredentials(c *gin.Context) (id, secret string, viaBasic bool) {
	if id, secret, ok := c.Request.BasicAuth(); ok {
		return id, secret, true
	}
	return c.PostForm("client_id"), c.PostForm("client_secret"), false
}

func (s *idpServer) validCredentials(clientID, clientSecret string) bool {
	idMatch := subtle.ConstantTimeCompare([]byte(clientID), []byte(s.cfg.ClientID)) == 1

	var secretMatch bool
	if s.cfg.SecretHash != "" {
		secretMatch = bcrypt.CompareHashAndPassword([]byte(s.cfg.SecretHash), []byte(clientSecret)) == nil
	} else {
		secretMatch = subtle.ConstantTimeCompare([]byte(clientSecret), []byte(s.cfg.ClientSecret)) == 1
	}

	return idMatch && secretMatch
}

// issueToken signs an HS256 JWT for the authenticated client.
func (s *idpServer) issueToken(clientID, scope string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": issuerName,
		"sub": clientID,
		"iat": now.Unix(),
		"exp": now.Add(time.Duration(s.cfg.ExpiresIn) * time.Second).Unix(),
		"jti": uuid.NewString(),
	}
	if scope != "" {
		claims["scope"] = scope
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.cfg.SigningKey)
}

func (s *idpServer) oauthError(c *gin.Context, status int, code, description string) {
	c.Header("Cache-Control", "no-store")
	c.JSON(status, errorResponse{Error: code, ErrorDescription: description})

	s.logger.Debug("token request rejected",
		observability.String("error", code),
		observability.Int("status", status),
	)
}
