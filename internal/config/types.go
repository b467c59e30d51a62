package config

import (
	"time"

	"github.com/logstory/logstory-go/internal/storage"
)

// Storage backends.
const (
	BackendBolt = "bolt"
	BackendS3   = "s3"
)

// Config is the server and CLI configuration.
type Config struct {
	Listen    string              `yaml:"listen"`
	RulesFile string              `yaml:"rules_file"`
	LogDir    string              `yaml:"log_dir"`
	LogGlobs  map[string][]string `yaml:"log_globs"`

	// MaxUploadSize is a human-readable size such as "50MB".
	MaxUploadSize    string `yaml:"max_upload_size"`
	DefaultLineLimit int    `yaml:"default_line_limit"`
	MaxLineLimit     int    `yaml:"max_line_limit"`
	PreviewLines     int    `yaml:"preview_lines"`

	// InvalidEncoding is "replace" or "drop".
	InvalidEncoding  string `yaml:"invalid_encoding"`
	FileCacheEntries int    `yaml:"file_cache_entries"`
	RegexCacheSize   int    `yaml:"regex_cache_size"`

	AllowedOrigin string  `yaml:"allowed_origin"`
	AnalyzeRate   float64 `yaml:"analyze_rate"`
	AnalyzeBurst  int     `yaml:"analyze_burst"`

	Storage StorageConfig `yaml:"storage"`
	Auth    AuthConfig    `yaml:"auth"`

	maxUploadBytes int64
}

// StorageConfig selects where uploads are kept.
type StorageConfig struct {
	Backend  string           `yaml:"backend"`
	BoltPath string           `yaml:"bolt_path"`
	S3       storage.S3Config `yaml:"s3"`
}

// AuthConfig configures bearer-token authentication. An empty Secret
// disables authentication.
type AuthConfig struct {
	Secret   string        `yaml:"secret"`
	Issuer   string        `yaml:"issuer"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// MaxUploadBytes returns MaxUploadSize in bytes. Valid after Validate.
func (c *Config) MaxUploadBytes() int64 {
	return c.maxUploadBytes
}

// AuthEnabled reports whether requests must carry a bearer token.
func (c *Config) AuthEnabled() bool {
	return c.Auth.Secret != ""
}
