package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
listen: "127.0.0.1:9000"
rules_file: rules.yaml
log_globs:
  WINDOWS_SYSMON:
    - "/var/log/sysmon/**/*.log"
max_upload_size: 10MB
max_line_limit: 500
preview_lines: 5
invalid_encoding: drop
storage:
  backend: s3
  s3:
    bucket: logs
    endpoint: "http://127.0.0.1:9000"
    path_style: true
auth:
  secret: "0123456789abcdef0123"
  token_ttl: 2h
`
	cfg, err := Load(context.Background(), writeTempFile(t, "config.yaml", content))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Listen)
	assert.Equal(t, "rules.yaml", cfg.RulesFile)
	assert.Equal(t, DefaultLogDir, cfg.LogDir, "unset keys keep defaults")
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes())
	assert.Equal(t, 500, cfg.MaxLineLimit)
	assert.Equal(t, DefaultLineLimit, cfg.DefaultLineLimit)
	assert.Equal(t, "drop", cfg.InvalidEncoding)
	assert.Equal(t, BackendS3, cfg.Storage.Backend)
	assert.True(t, cfg.Storage.S3.PathStyle)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, DefaultIssuer, cfg.Auth.Issuer)
	assert.True(t, cfg.AuthEnabled())
	assert.Len(t, cfg.LogGlobs["WINDOWS_SYSMON"], 1)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, DefaultListen, cfg.Listen)
	assert.Equal(t, int64(50<<20), cfg.MaxUploadBytes())
	assert.False(t, cfg.AuthEnabled())
	assert.Equal(t, BackendBolt, cfg.Storage.Backend)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(context.Background(), "/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(context.Background(), writeTempFile(t, "invalid.yaml", `invalid: yaml: content: [`))
	assert.Error(t, err)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv(EnvListen, ":7070")
	t.Setenv(EnvAuthSecret, "an-environment-secret")
	t.Setenv(EnvMaxLineLimit, "42")
	t.Setenv(EnvMaxUploadSize, "1KB")

	cfg, err := Load(context.Background(), writeTempFile(t, "c.yaml", "listen: \":9999\"\ndefault_line_limit: 10\n"))
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Listen)
	assert.Equal(t, "an-environment-secret", cfg.Auth.Secret)
	assert.Equal(t, 42, cfg.MaxLineLimit)
	assert.Equal(t, int64(1024), cfg.MaxUploadBytes())
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"no listen", func(c *Config) { c.Listen = "" }, "listen"},
		{"no rules file", func(c *Config) { c.RulesFile = "" }, "rules_file"},
		{"bad upload size", func(c *Config) { c.MaxUploadSize = "lots" }, "max_upload_size"},
		{"upload size without unit", func(c *Config) { c.MaxUploadSize = "50" }, "max_upload_size"},
		{"zero max line limit", func(c *Config) { c.MaxLineLimit = 0 }, "max_line_limit"},
		{"default above max", func(c *Config) { c.DefaultLineLimit = c.MaxLineLimit + 1 }, "default_line_limit"},
		{"negative preview", func(c *Config) { c.PreviewLines = -1 }, "preview_lines"},
		{"bad encoding", func(c *Config) { c.InvalidEncoding = "ignore" }, "invalid_encoding"},
		{"bad glob log type", func(c *Config) { c.LogGlobs = map[string][]string{"../x": {"*.log"}} }, "log_globs"},
		{"bad glob", func(c *Config) { c.LogGlobs = map[string][]string{"X": {"[oops"}} }, "log_globs[X]"},
		{"negative rate", func(c *Config) { c.AnalyzeRate = -1 }, "analyze_rate"},
		{"zero burst", func(c *Config) { c.AnalyzeBurst = 0 }, "analyze_burst"},
		{"bad origin", func(c *Config) { c.AllowedOrigin = "example.com" }, "allowed_origin"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "ftp" }, "invalid backend"},
		{"bolt without path", func(c *Config) { c.Storage.BoltPath = "" }, "bolt_path"},
		{"s3 without bucket", func(c *Config) { c.Storage.Backend = BackendS3 }, "s3.bucket"},
		{"short secret", func(c *Config) { c.Auth.Secret = "short" }, "at least 16 bytes"},
		{"no ttl", func(c *Config) {
			c.Auth.Secret = "0123456789abcdef"
			c.Auth.TokenTTL = 0
		}, "token_ttl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_Origins(t *testing.T) {
	for _, origin := range []string{"", "*", "https://logs.example.com"} {
		cfg := DefaultConfig()
		cfg.AllowedOrigin = origin
		assert.NoError(t, Validate(cfg), origin)
	}
}
