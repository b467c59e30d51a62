package logstory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/logstory/logstory-go/pkg/logstory/rules"
)

// RuleSource resolves the configured rules of a log type.
// It returns an error wrapping rules.ErrUnknownLogType for unknown types.
type RuleSource interface {
	Rules(ctx context.Context, logType string) ([]rules.Rule, error)
}

// LineSource resolves the raw lines of a log type.
// It returns ErrNoLines when nothing is available.
type LineSource interface {
	Lines(ctx context.Context, logType string) ([]string, error)
}

// Request asks an Engine to analyse one log type.
type Request struct {
	LogType string `json:"log_type"`

	// Rules overrides the configured rules when non-nil. The log type must
	// still be known to the rule source.
	Rules []rules.Rule `json:"patterns,omitempty"`

	// LineLimit is the number of lines to analyse. Nil means
	// DefaultLineLimit; values above the engine maximum are clamped.
	LineLimit *int `json:"line_limit,omitempty"`
}

// Limit returns a line limit for Request.LineLimit.
func Limit(n int) *int {
	return &n
}

// Engine resolves rules and lines by log type and scans them.
type Engine struct {
	rules   RuleSource
	lines   LineSource
	scanner *Scanner
	cfg     *config
}

// NewEngine creates an Engine.
func NewEngine(rs RuleSource, ls LineSource, opts ...Option) (*Engine, error) {
	if rs == nil {
		return nil, errors.New("rule source is required")
	}
	if ls == nil {
		return nil, errors.New("line source is required")
	}
	cfg := applyOptions(opts)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Engine{
		rules:   rs,
		lines:   ls,
		scanner: &Scanner{matcher: &Matcher{cfg: cfg}},
		cfg:     cfg,
	}, nil
}

// Analyze scans the lines of req.LogType.
//
// The only hard errors are an unknown log type, a failing line source and
// context cancellation. A log type without lines yields an empty result.
func (e *Engine) Analyze(ctx context.Context, req Request) (ScanResult, error) {
	if err := ctx.Err(); err != nil {
		return ScanResult{}, err
	}

	configured, err := e.rules.Rules(ctx, req.LogType)
	if err != nil {
		return ScanResult{}, fmt.Errorf("resolve rules for %q: %w", req.LogType, err)
	}
	rs := configured
	if req.Rules != nil {
		rs = req.Rules
	}

	lines, err := e.lines.Lines(ctx, req.LogType)
	switch {
	case errors.Is(err, ErrNoLines):
		lines = nil
	case err != nil:
		return ScanResult{}, fmt.Errorf("read lines for %q: %w", req.LogType, err)
	}

	limit := e.LineLimit(req.LineLimit)
	e.cfg.logger.Debug("analyzing",
		slog.String("log_type", req.LogType),
		slog.Int("rules", len(rs)),
		slog.Int("lines", len(lines)),
		slog.Int("limit", limit))

	return e.scanner.Scan(lines, rs, limit), nil
}

// LineLimit returns the effective limit for a requested one. An explicit
// zero analyses no lines.
func (e *Engine) LineLimit(limit *int) int {
	requested := DefaultLineLimit
	if limit != nil {
		requested = *limit
	}
	if requested > e.cfg.maxLineLimit {
		requested = e.cfg.maxLineLimit
	}
	return requested
}
