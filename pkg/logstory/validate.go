package logstory

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/logstory/logstory-go/pkg/logstory/rules"
	"github.com/logstory/logstory-go/pkg/logstory/timestamp"
)

// sampleConcurrency bounds the log types checked at once by CheckSamples.
const sampleConcurrency = 4

// ValidateRuleSet runs the structural checks of rules.RuleSet.Validate and
// the date format round-trip check of every rule. All problems are joined.
func ValidateRuleSet(rs rules.RuleSet) error {
	errs := []error{rs.Validate()}
	for _, lt := range rs.LogTypes() {
		for _, r := range rs[lt].Timestamps {
			if r.Epoch || !r.HasDateFormat() {
				continue
			}
			if err := timestamp.CheckRule(r); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", lt, err))
			}
		}
	}
	return errors.Join(errs...)
}

// SampleFailure is a captured value that is not a valid timestamp.
type SampleFailure struct {
	LogType string `json:"log_type"`
	Rule    string `json:"rule"`
	Line    int    `json:"line"`
	Text    string `json:"text"`
	Error   string `json:"error"`
}

// SampleOverlap is an overlap found on a sample line.
type SampleOverlap struct {
	LogType string  `json:"log_type"`
	Line    int     `json:"line"`
	Overlap Overlap `json:"overlap"`
}

// SampleReport is the result of CheckSamples.
type SampleReport struct {
	Tested   []string        `json:"tested"`
	Skipped  []string        `json:"skipped"`
	Failures []SampleFailure `json:"failures"`
	Overlaps []SampleOverlap `json:"overlaps"`
}

// OK reports whether no failures or overlaps were found.
func (r SampleReport) OK() bool {
	return len(r.Failures) == 0 && len(r.Overlaps) == 0
}

type sampleResult struct {
	skipped  bool
	failures []SampleFailure
	overlaps []SampleOverlap
}

// CheckSamples runs every log type's rules against its sample lines from ls.
// Each captured designated group must be a valid timestamp and no two rules
// may capture overlapping spans. Log types for which ls returns ErrNoLines
// are skipped. Other line source errors abort the check.
func CheckSamples(ctx context.Context, rs rules.RuleSet, ls LineSource, opts ...Option) (SampleReport, error) {
	m := NewMatcher(opts...)
	logTypes := rs.LogTypes()
	results := make([]sampleResult, len(logTypes))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(sampleConcurrency)
	for i, lt := range logTypes {
		g.Go(func() error {
			lines, err := ls.Lines(ctx, lt)
			if errors.Is(err, ErrNoLines) {
				results[i].skipped = true
				return nil
			}
			if err != nil {
				return fmt.Errorf("read samples for %q: %w", lt, err)
			}
			results[i] = checkLogType(ctx, m, lt, rs[lt].Timestamps, lines)
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return SampleReport{}, err
	}

	var report SampleReport
	for i, lt := range logTypes {
		res := results[i]
		if res.skipped {
			report.Skipped = append(report.Skipped, lt)
			continue
		}
		report.Tested = append(report.Tested, lt)
		report.Failures = append(report.Failures, res.failures...)
		report.Overlaps = append(report.Overlaps, res.overlaps...)
	}
	return report, nil
}

func checkLogType(ctx context.Context, m *Matcher, logType string, rs []rules.Rule, lines []string) sampleResult {
	var res sampleResult
	for i, raw := range lines {
		if ctx.Err() != nil {
			return res
		}
		lineNo := i + 1
		line := normalizeLine(raw)
		groups := m.Match(line, rs)

		for _, g := range groups {
			for _, match := range g.Matches {
				r := rs[match.RuleIndex]
				text, ok := designatedText(match, r.Group)
				if !ok {
					continue
				}
				if _, err := timestamp.Validate(r, text); err != nil {
					res.failures = append(res.failures, SampleFailure{
						LogType: logType,
						Rule:    match.RuleName,
						Line:    lineNo,
						Text:    text,
						Error:   err.Error(),
					})
				}
			}
		}

		for _, o := range FindOverlaps(groups, rs) {
			res.overlaps = append(res.overlaps, SampleOverlap{LogType: logType, Line: lineNo, Overlap: o})
		}
	}
	return res
}

func designatedText(m Match, group int) (string, bool) {
	for _, g := range m.Groups {
		if g.Index == group {
			return g.Text, true
		}
	}
	return "", false
}
