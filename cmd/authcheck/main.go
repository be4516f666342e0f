// Package main is the entry point for authcheck, a diagnostic tool that
// resolves a named client configuration and shows or sends an
// authenticated request.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/dozer75/httpcliauth/auth"
	"github.com/dozer75/httpcliauth/config"
	"github.com/dozer75/httpcliauth/httpclient"
	"github.com/dozer75/httpcliauth/observability"
	"github.com/dozer75/httpcliauth/secrets"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	client      string
	targetURL   string
	method      string
	dryRun      bool
	refresh     bool
	timeout     time.Duration
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	if flags.client == "" {
		logger.Fatal("the -client flag is required")
	}
	if flags.targetURL == "" {
		logger.Fatal("the -url flag is required")
	}

	cfg := loadConfig(flags.configPath, logger)
	selector := buildSelector(cfg, logger)
	defer func() { _ = selector.Close() }()

	if err := run(flags, selector, logger); err != nil {
		logger.Error("check failed", observability.Error(err))
		os.Exit(1)
	}
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("AUTHCHECK_CONFIG", "configs/httpcliauth.yaml"),
		"Path to configuration file")
	client := flag.String("client", "",
		"Client configuration name to check")
	targetURL := flag.String("url", "",
		"Target URL for the authenticated request")
	method := flag.String("method", http.MethodGet,
		"HTTP method for the request")
	dryRun := flag.Bool("dry-run", false,
		"Authenticate the request and print its headers without sending it")
	refresh := flag.Bool("refresh", false,
		"Discard cached credentials before authenticating")
	timeout := flag.Duration("timeout", 30*time.Second,
		"Overall timeout")
	logLevel := flag.String("log-level", getEnvOrDefault("AUTHCHECK_LOG_LEVEL", "warn"),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("AUTHCHECK_LOG_FORMAT", "console"),
		"Log format (json, console)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		client:      *client,
		targetURL:   *targetURL,
		method:      *method,
		dryRun:      *dryRun,
		refresh:     *refresh,
		timeout:     *timeout,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// printVersion prints version information and exits.
func printVersion() {
	fmt.Printf("authcheck version %s\n", version)
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

// loadConfig loads and validates the configuration.
func loadConfig(configPath string, logger observability.Logger) *config.Config {
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", observability.Error(err))
	}
	return cfg
}

// buildSelector wires the strategy selector with secret resolution.
func buildSelector(cfg *config.Config, logger observability.Logger) *auth.Selector {
	resolver, err := secrets.NewFromConfig(cfg.Secrets, logger)
	if err != nil {
		logger.Fatal("failed to configure secret resolution", observability.Error(err))
	}

	return auth.NewSelector(cfg,
		auth.WithLogger(logger),
		auth.WithSecretSource(resolver),
	)
}

// run resolves the strategy and performs the check.
func run(flags cliFlags, selector *auth.Selector, logger observability.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), flags.timeout)
	defer cancel()

	strategy, err := selector.Resolve(ctx, flags.client)
	if err != nil {
		return err
	}

	fmt.Printf("Client:  %s (%s)\n", strategy.Name(), strategy.Type())
	fmt.Printf("Request: %s %s\n", flags.method, flags.targetURL)

	if flags.refresh {
		if err := strategy.Refresh(ctx); err != nil {
			return fmt.Errorf("refresh failed: %w", err)
		}
	}

	if flags.dryRun {
		return dryRun(ctx, strategy, flags)
	}
	return send(ctx, strategy, flags, logger)
}

// dryRun authenticates the request and prints the headers it would
// carry.
func dryRun(ctx context.Context, strategy auth.Strategy, flags cliFlags) error {
	req, err := http.NewRequestWithContext(ctx, flags.method, flags.targetURL, nil)
	if err != nil {
		return err
	}

	if err := strategy.Apply(ctx, req); err != nil {
		return err
	}

	fmt.Println("\nHeaders:")
	names := make([]string, 0, len(req.Header))
	for name := range req.Header {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, value := range req.Header[name] {
			fmt.Printf("  %s: %s\n", name, value)
		}
	}

	fmt.Println("\n(dry run, request not sent)")
	return nil
}

// send performs the authenticated request and reports the outcome.
func send(ctx context.Context, strategy auth.Strategy, flags cliFlags, logger observability.Logger) error {
	client := &http.Client{
		Transport: httpclient.NewTransport(strategy, httpclient.WithLogger(logger)),
	}

	req, err := http.NewRequestWithContext(ctx, flags.method, flags.targetURL, nil)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	fmt.Printf("\nStatus:   %s\n", resp.Status)
	fmt.Printf("Duration: %s\n", time.Since(start).Round(time.Millisecond))

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("request returned status %d", resp.StatusCode)
	}
	return nil
}

// getEnvOrDefault returns the environment value or a fallback.
func getEnvOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
