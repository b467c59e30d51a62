// Package config loads the YAML configuration shared by the server and CLI.
package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/inhies/go-bytesize"
	"gopkg.in/yaml.v3"

	"github.com/logstory/logstory-go/internal/source"
)

// Load reads and validates a configuration file. An empty path yields the
// defaults with environment overrides applied.
func Load(_ context.Context, path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- user-provided config path is expected
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnvironmentOverrides()

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks a configuration for errors and resolves derived values.
func Validate(cfg *Config) error {
	if cfg.Listen == "" {
		return errors.New("listen: address is required")
	}
	if cfg.RulesFile == "" {
		return errors.New("rules_file: path is required")
	}

	size, err := bytesize.Parse(cfg.MaxUploadSize)
	if err != nil {
		return fmt.Errorf("max_upload_size: %w", err)
	}
	if size == 0 {
		return errors.New("max_upload_size: must be greater than zero")
	}
	cfg.maxUploadBytes = int64(size)

	if cfg.MaxLineLimit <= 0 {
		return errors.New("max_line_limit: must be positive")
	}
	if cfg.DefaultLineLimit <= 0 || cfg.DefaultLineLimit > cfg.MaxLineLimit {
		return fmt.Errorf("default_line_limit: must be between 1 and max_line_limit (%d)", cfg.MaxLineLimit)
	}
	if cfg.PreviewLines < 0 {
		return errors.New("preview_lines: must not be negative")
	}
	if _, err := source.ParsePolicy(cfg.InvalidEncoding); err != nil {
		return fmt.Errorf("invalid_encoding: %w", err)
	}
	if cfg.FileCacheEntries < 0 || cfg.RegexCacheSize < 0 {
		return errors.New("cache sizes must not be negative")
	}

	for logType, globs := range cfg.LogGlobs {
		if !source.ValidLogType(logType) {
			return fmt.Errorf("log_globs: invalid log type %q", logType)
		}
		for _, g := range globs {
			if !doublestar.ValidatePathPattern(g) {
				return fmt.Errorf("log_globs[%s]: invalid pattern %q", logType, g)
			}
		}
	}

	if cfg.AnalyzeRate < 0 {
		return errors.New("analyze_rate: must not be negative")
	}
	if cfg.AnalyzeRate > 0 && cfg.AnalyzeBurst < 1 {
		return errors.New("analyze_burst: must be at least 1 when analyze_rate is set")
	}

	if cfg.AllowedOrigin != "" && cfg.AllowedOrigin != "*" {
		u, err := url.Parse(cfg.AllowedOrigin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("allowed_origin: %q is not an origin URL", cfg.AllowedOrigin)
		}
	}

	if err := validateStorage(&cfg.Storage); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := validateAuth(&cfg.Auth); err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	return nil
}

func validateStorage(sc *StorageConfig) error {
	switch sc.Backend {
	case BackendBolt:
		if sc.BoltPath == "" {
			return errors.New("bolt_path is required for the bolt backend")
		}
	case BackendS3:
		if sc.S3.Bucket == "" {
			return errors.New("s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("invalid backend %q (must be bolt or s3)", sc.Backend)
	}
	return nil
}

func validateAuth(ac *AuthConfig) error {
	if ac.Secret == "" {
		return nil
	}
	if len(ac.Secret) < 16 {
		return errors.New("secret must be at least 16 bytes")
	}
	if ac.Issuer == "" {
		return errors.New("issuer is required when a secret is set")
	}
	if ac.TokenTTL <= 0 {
		return errors.New("token_ttl must be positive")
	}
	return nil
}
