package handler

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/loomcast/edgeauth/pkg/config"
	"github.com/loomcast/edgeauth/pkg/jwks"
	"github.com/loomcast/edgeauth/pkg/signer"
	"github.com/loomcast/edgeauth/pkg/store"
	"github.com/loomcast/edgeauth/pkg/utils"
	"github.com/loomcast/edgeauth/pkg/validator"
	"github.com/loomcast/edgeauth/pkg/version"
)

// Bootstrap contains all the initialized components needed by entrypoints
type Bootstrap struct {
	Config   *config.Config
	Handler  *Handler
	Signing  *signer.Cache
	Verifier validator.TokenVerifierInterface
	Store    store.Store
	Logger   *slog.Logger
}

// NewBootstrap initializes all common components needed by the HTTP and
// Lambda entrypoints. When signing key material is configured the
// process runs as an issuer with local verification; otherwise it
// verifies against the issuer's published key set.
func NewBootstrap() (*Bootstrap, error) {
	versionInfo := version.Get()

	logger := initializeLogger()

	logger.Info(
		fmt.Sprintf("Starting %s", versionInfo.BinName),
		slog.String("version", versionInfo.Version),
		slog.String("commit", versionInfo.Commit),
		slog.String("date", versionInfo.Date),
	)

	cfg, err := config.NewConfig()
	if err != nil {
		logger.Error("Failed to load configuration", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	keyMaterial, err := loadKeyMaterial(cfg)
	if err != nil {
		logger.Error("Failed to load signing key material", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to load signing key material: %w", err)
	}

	signing := signer.NewCache()

	var verifier validator.TokenVerifierInterface
	if keyMaterial != "" {
		// Importing eagerly surfaces malformed key material at startup
		// instead of on the first request.
		signingCtx, err := signing.Context(keyMaterial)
		if err != nil {
			logger.Error("Failed to import signing key", slog.String("error", err.Error()))
			return nil, fmt.Errorf("failed to import signing key: %w", err)
		}
		logger.Info("Signing key imported", slog.String("kid", signingCtx.Kid()))
		verifier = validator.NewLocalVerifier(signingCtx, cfg.Issuer, cfg.Audience)
	} else {
		opts := []jwks.Option{}
		if cfg.Jwks != nil {
			opts = append(opts, jwks.WithTTL(cfg.Jwks.TTL), jwks.WithTimeout(cfg.Jwks.Timeout))
		}
		logger.Info("No signing key configured, verifying against remote key set",
			slog.String("issuer", cfg.Issuer))
		verifier = validator.NewRemoteVerifier(jwks.NewClient(cfg.Issuer, opts...), cfg.Issuer, cfg.Audience)
	}

	kv, err := store.NewStore(cfg)
	if err != nil {
		logger.Error("Failed to initialize store", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	h := New(cfg, keyMaterial, signing, verifier, kv)

	return &Bootstrap{
		Config:   cfg,
		Handler:  h,
		Signing:  signing,
		Verifier: verifier,
		Store:    kv,
		Logger:   logger,
	}, nil
}

// loadKeyMaterial resolves the issuer's private JWK from the inline
// configuration value or from the configured file path. The inline
// form wins when both are set.
func loadKeyMaterial(cfg *config.Config) (string, error) {
	if cfg.SigningKeyJWK != "" {
		return cfg.SigningKeyJWK, nil
	}
	if cfg.SigningKeyFile == "" {
		return "", nil
	}

	raw, err := os.ReadFile(cfg.SigningKeyFile)
	if err != nil {
		return "", fmt.Errorf("failed to read signing key file %s: %w", cfg.SigningKeyFile, err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// initializeLogger sets up the global logger with proper configuration
func initializeLogger() *slog.Logger {
	var programLevel = new(slog.LevelVar) // Default to Info
	programLevel.Set(slog.LevelInfo)

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel != "" {
		if level, err := utils.ParseLogLevel(logLevel); err == nil {
			programLevel.Set(level)
		}
	}

	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: programLevel,
	})

	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	return logger
}
