// Package main is the entry point for mockidp, a minimal OAuth2 client
// credentials identity provider for local development and tests.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dozer75/httpcliauth/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

const shutdownTimeout = 10 * time.Second

// cliFlags holds command line flags.
type cliFlags struct {
	listen        string
	clientID      string
	clientSecret  string
	secretHash    string
	signingKey    string
	tokenType     string
	expiresIn     int64
	omitExpiresIn bool
	rateLimit     float64
	logLevel      string
	logFormat     string
	showVersion   bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	srvCfg, err := serverConfigFromFlags(flags)
	if err != nil {
		logger.Fatal("invalid flags", observability.Error(err))
	}

	run(srvCfg, flags.listen, logger)
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	listen := flag.String("listen", getEnvOrDefault("MOCKIDP_LISTEN", ":9096"),
		"Listen address")
	clientID := flag.String("client-id", getEnvOrDefault("MOCKIDP_CLIENT_ID", "test-client"),
		"Accepted client id")
	clientSecret := flag.String("client-secret", getEnvOrDefault("MOCKIDP_CLIENT_SECRET", "test-secret"),
		"Accepted client secret (plain text)")
	secretHash := flag.String("client-secret-hash", getEnvOrDefault("MOCKIDP_CLIENT_SECRET_HASH", ""),
		"Accepted client secret as a bcrypt hash (overrides -client-secret)")
	signingKey := flag.String("signing-key", getEnvOrDefault("MOCKIDP_SIGNING_KEY", ""),
		"Hex encoded HMAC key for token signing (random when empty)")
	tokenType := flag.String("token-type", getEnvOrDefault("MOCKIDP_TOKEN_TYPE", "Bearer"),
		"token_type value returned with issued tokens")
	expiresIn := flag.Int64("expires-in", 3600,
		"Token lifetime in seconds")
	omitExpiresIn := flag.Bool("omit-expires-in", false,
		"Leave expires_in out of token responses")
	rateLimit := flag.Float64("rate-limit", 0,
		"Maximum token requests per second (0 = unlimited)")
	logLevel := flag.String("log-level", getEnvOrDefault("MOCKIDP_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("MOCKIDP_LOG_FORMAT", "console"),
		"Log format (json, console)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		listen:        *listen,
		clientID:      *clientID,
		clientSecret:  *clientSecret,
		secretHash:    *secretHash,
		signingKey:    *signingKey,
		tokenType:     *tokenType,
		expiresIn:     *expiresIn,
		omitExpiresIn: *omitExpiresIn,
		rateLimit:     *rateLimit,
		logLevel:      *logLevel,
		logFormat:     *logFormat,
		showVersion:   *showVersion,
	}
}

// printVersion prints version information and exits.
func printVersion() {
	fmt.Printf("mockidp version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger initializes the logger.
func initLogger(flags cliFlags) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  flags.logLevel,
		Format: flags.logFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	observability.SetGlobalLogger(logger)
	return logger
}

// serverConfigFromFlags builds the token endpoint configuration.
func serverConfigFromFlags(flags cliFlags) (serverConfig, error) {
	key, err := signingKeyFromFlag(flags.signingKey)
	if err != nil {
		return serverConfig{}, err
	}

	return serverConfig{
		ClientID:      flags.clientID,
		ClientSecret:  flags.clientSecret,
		SecretHash:    flags.secretHash,
		SigningKey:    key,
		TokenType:     flags.tokenType,
		ExpiresIn:     flags.expiresIn,
		OmitExpiresIn: flags.omitExpiresIn,
		RateLimit:     flags.rateLimit,
	}, nil
}

// signingKeyFromFlag decodes the hex key, or generates a random one.
func signingKeyFromFlag(value string) ([]byte, error) {
	if value == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate signing key: %w", err)
		}
		return key, nil
	}

	key, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid signing key: %w", err)
	}
	return key, nil
}

// run serves the identity provider until interrupted.
func run(cfg serverConfig, listen string, logger observability.Logger) {
	srv := &http.Server{
		Addr:              listen,
		Handler:           newRouter(cfg, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("mockidp listening",
			observability.String("version", version),
			observability.String("address", listen),
			observability.String("clientId", cfg.ClientID),
		)
		errCh <- srv.ListenAndServe()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		logger.Fatal("server failed", observability.Error(err))
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", observability.Error(err))
	}
}

// getEnvOrDefault returns the environment value or a fallback.
func getEnvOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
