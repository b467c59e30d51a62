package logstory

import (
	"fmt"
	"io"
	"log/slog"
	"time"
)

const (
	// DefaultLineLimit is the number of lines analysed when a request
	// does not set a limit.
	DefaultLineLimit = 100

	// DefaultMaxLineLimit caps the line limit an Engine accepts.
	DefaultMaxLineLimit = 10000

	// DefaultCompileCacheSize is the number of compiled patterns kept by
	// the default compiler.
	DefaultCompileCacheSize = 256
)

// discardLogger returns a logger that discards all output.
var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Option configures a Matcher, Scanner, Engine or Follower using the
// functional options pattern. Options that do not apply to a type are
// ignored by it.
type Option func(*config)

type config struct {
	logger       *slog.Logger
	compiler     Compiler
	timestamps   bool
	clock        func() time.Time
	maxLineLimit int
	poll         bool
	fromStart    bool
}

func defaultConfig() *config {
	return &config{
		logger:       discardLogger,
		clock:        time.Now,
		maxLineLimit: DefaultMaxLineLimit,
		fromStart:    true,
	}
}

func applyOptions(opts []Option) *config {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	if cfg.compiler == nil {
		cfg.compiler = defaultCompiler
	}
	return cfg
}

func (c *config) validate() error {
	if c.maxLineLimit <= 0 {
		return fmt.Errorf("max line limit must be positive, got %d", c.maxLineLimit)
	}
	return nil
}

// WithLogger sets the logger for debug output (skipped rules, tail errors).
// Default: a logger that discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCompiler replaces the pattern compiler.
// Default: a process-wide LRU-backed compiler.
func WithCompiler(compiler Compiler) Option {
	return func(c *config) {
		c.compiler = compiler
	}
}

// WithTimestamps enables validation of each match's designated group.
// Default: false.
func WithTimestamps(enabled bool) Option {
	return func(c *config) {
		c.timestamps = enabled
	}
}

// WithClock sets the clock used to anchor year-less timestamps.
// Default: time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.clock = now
		}
	}
}

// WithMaxLineLimit caps the line limit an Engine accepts; larger requests
// are clamped. Default: DefaultMaxLineLimit.
func WithMaxLineLimit(n int) Option {
	return func(c *config) {
		c.maxLineLimit = n
	}
}

// WithPoll makes a Follower poll for changes instead of using inotify.
// Default: false.
func WithPoll(poll bool) Option {
	return func(c *config) {
		c.poll = poll
	}
}

// WithFromStart controls whether a Follower emits the lines already in the
// file before following. Default: true.
func WithFromStart(fromStart bool) Option {
	return func(c *config) {
		c.fromStart = fromStart
	}
}
