package config

import (
	"os"
	"strconv"
	"time"
)

// Default values for configuration.
const (
	DefaultListen           = ":8080"
	DefaultRulesFile        = "logtypes.yaml"
	DefaultLogDir           = "logs"
	DefaultMaxUploadSize    = "50MB"
	DefaultLineLimit        = 100
	DefaultMaxLineLimit     = 10000
	DefaultPreviewLines     = 1000
	DefaultInvalidEncoding  = "replace"
	DefaultFileCacheEntries = 64
	DefaultRegexCacheSize   = 256
	DefaultAnalyzeRate      = 5.0
	DefaultAnalyzeBurst     = 10
	DefaultBoltPath         = "uploads.db"
	DefaultIssuer           = "logstory"
	DefaultTokenTTL         = 24 * time.Hour
)

// Environment variable names.
const (
	EnvListen        = "LOGSTORY_LISTEN"
	EnvRulesFile     = "LOGSTORY_RULES_FILE"
	EnvLogDir        = "LOGSTORY_LOG_DIR"
	EnvMaxUploadSize = "LOGSTORY_MAX_UPLOAD_SIZE"
	EnvMaxLineLimit  = "LOGSTORY_MAX_LINE_LIMIT"
	EnvStorage       = "LOGSTORY_STORAGE_BACKEND"
	EnvBoltPath      = "LOGSTORY_BOLT_PATH"
	EnvS3Bucket      = "LOGSTORY_S3_BUCKET"
	EnvAuthSecret    = "LOGSTORY_AUTH_SECRET"
	EnvAllowedOrigin = "LOGSTORY_ALLOWED_ORIGIN"
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:           DefaultListen,
		RulesFile:        DefaultRulesFile,
		LogDir:           DefaultLogDir,
		LogGlobs:         map[string][]string{},
		MaxUploadSize:    DefaultMaxUploadSize,
		DefaultLineLimit: DefaultLineLimit,
		MaxLineLimit:     DefaultMaxLineLimit,
		PreviewLines:     DefaultPreviewLines,
		InvalidEncoding:  DefaultInvalidEncoding,
		FileCacheEntries: DefaultFileCacheEntries,
		RegexCacheSize:   DefaultRegexCacheSize,
		AnalyzeRate:      DefaultAnalyzeRate,
		AnalyzeBurst:     DefaultAnalyzeBurst,
		Storage: StorageConfig{
			Backend:  BackendBolt,
			BoltPath: DefaultBoltPath,
		},
		Auth: AuthConfig{
			Issuer:   DefaultIssuer,
			TokenTTL: DefaultTokenTTL,
		},
	}
}

// applyEnvironmentOverrides applies environment variable overrides to the config.
func (c *Config) applyEnvironmentOverrides() {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString(&c.Listen, EnvListen)
	setString(&c.RulesFile, EnvRulesFile)
	setString(&c.LogDir, EnvLogDir)
	setString(&c.MaxUploadSize, EnvMaxUploadSize)
	setString(&c.Storage.Backend, EnvStorage)
	setString(&c.Storage.BoltPath, EnvBoltPath)
	setString(&c.Storage.S3.Bucket, EnvS3Bucket)
	setString(&c.Auth.Secret, EnvAuthSecret)
	setString(&c.AllowedOrigin, EnvAllowedOrigin)

	// Unparseable numbers are left for Validate to report against the file value.
	if v := os.Getenv(EnvMaxLineLimit); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxLineLimit = n
		}
	}
}
