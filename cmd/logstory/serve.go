package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/logstory/logstory-go/internal/config"
	"github.com/logstory/logstory-go/internal/hotreload"
	"github.com/logstory/logstory-go/internal/server"
	"github.com/logstory/logstory-go/internal/source"
	"github.com/logstory/logstory-go/internal/storage"
	"github.com/logstory/logstory-go/pkg/logstory"
	"github.com/logstory/logstory-go/pkg/logstory/rules"
)

var (
	serveConfig string
	serveListen string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the analysis API",
	Long: `Serve the HTTP and websocket analysis API.

Log lines come from uploads first, then from <log_dir>/<LOG_TYPE>.log or
the newest file matching the log type's globs. The rule file is reloaded
when it changes; a rejected edit keeps the previous rules.

Settings come from the YAML file given by --config, then from LOGSTORY_*
environment variables (LOGSTORY_LISTEN, LOGSTORY_RULES_FILE,
LOGSTORY_LOG_DIR, LOGSTORY_MAX_UPLOAD_SIZE, LOGSTORY_MAX_LINE_LIMIT,
LOGSTORY_STORAGE_BACKEND, LOGSTORY_BOLT_PATH, LOGSTORY_S3_BUCKET,
LOGSTORY_AUTH_SECRET, LOGSTORY_ALLOWED_ORIGIN).

Examples:
  logstory serve
  logstory serve --config logstory.yaml
  LOGSTORY_RULES_FILE=./logtypes.yaml LOGSTORY_LOG_DIR=./logs logstory serve --listen :9000`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg, err := config.Load(ctx, serveConfig)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("listen") {
			cfg.Listen = serveListen
		}
		return runServe(ctx, cfg)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfig, "config", "c", "", "Config file (YAML)")
	serveCmd.Flags().StringVarP(&serveListen, "listen", "l", config.DefaultListen, "Listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := slog.Default()

	rc, err := loadRules(cfg.RulesFile, logger)
	if err != nil {
		return err
	}
	defer rc.Close()

	// reload failures are logged by the watcher
	if _, err := rc.Watch(ctx); err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	policy, err := source.ParsePolicy(cfg.InvalidEncoding)
	if err != nil {
		return err
	}
	decoder := source.Decoder{Policy: policy}

	files, err := source.NewFiles(cfg.LogDir,
		source.WithGlobs(cfg.LogGlobs),
		source.WithDecoder(decoder),
		source.WithCacheEntries(cfg.FileCacheEntries),
		source.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	lines := source.Chain{source.NewUploads(store, decoder, cfg.FileCacheEntries), files}

	srv, err := server.New(cfg, rc, lines, store, server.WithLogger(logger))
	if err != nil {
		return err
	}
	logger.Info("serving",
		"listen", cfg.Listen,
		"rules", cfg.RulesFile,
		"log_types", len(rc.LogTypes()),
		"storage", cfg.Storage.Backend,
		"auth", cfg.AuthEnabled(),
	)
	return srv.Run(ctx)
}

// loadRules only rejects rule files that fail to decode. Invalid rules are
// reported as warnings and skipped by the matcher, so one broken pattern does
// not take every log type down with it.
func loadRules(path string, logger *slog.Logger) (*hotreload.Rules, error) {
	return hotreload.New(path,
		hotreload.WithLogger(logger),
		hotreload.WithOnReload(func(rs rules.RuleSet) {
			for _, msg := range flattenErrors(logstory.ValidateRuleSet(rs)) {
				logger.Warn("invalid rule", "path", path, "error", msg)
			}
		}),
	)
}

func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendBolt:
		return storage.OpenBolt(cfg.Storage.BoltPath)
	case config.BackendS3:
		return storage.NewS3(cfg.Storage.S3)
	default:
		return nil, fmt.Errorf("invalid storage backend: %q", cfg.Storage.Backend)
	}
}
