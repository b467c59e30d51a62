package logstory

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/logstory/logstory-go/pkg/logstory/rules"
)

// Scanner applies a Matcher to a batch of lines.
type Scanner struct {
	matcher *Matcher
}

// NewScanner creates a Scanner. Options are passed to its Matcher.
func NewScanner(opts ...Option) *Scanner {
	return &Scanner{matcher: NewMatcher(opts...)}
}

var defaultScanner = &Scanner{matcher: defaultMatcher}

// Scan runs rules against the first limit lines using the default scanner.
func Scan(lines []string, rs []rules.Rule, limit int) ScanResult {
	return defaultScanner.Scan(lines, rs, limit)
}

// Scan runs rules against the first min(limit, len(lines)) lines.
// A negative limit is treated as zero. Every analysed line produces a
// LineResult, numbered from 1.
func (s *Scanner) Scan(lines []string, rs []rules.Rule, limit int) ScanResult {
	n := limit
	if n < 0 {
		n = 0
	}
	if n > len(lines) {
		n = len(lines)
	}

	results := make([]LineResult, 0, n)
	for i := 0; i < n; i++ {
		results = append(results, s.Line(i+1, lines[i], rs))
	}
	return ScanResult{
		Results:       results,
		TotalLines:    len(lines),
		AnalyzedLines: n,
	}
}

// Line matches a single line and wraps the result as line number lineNo.
func (s *Scanner) Line(lineNo int, raw string, rs []rules.Rule) LineResult {
	line := normalizeLine(raw)
	lr := LineResult{
		LineNumber: lineNo,
		Line:       line,
		Matches:    s.matcher.Match(line, rs),
	}
	if s.matcher.cfg.timestamps {
		lr.BaseTime = baseTime(lr.Matches, rs)
	}
	return lr
}

// normalizeLine strips one trailing "\n" or "\r\n" and replaces invalid
// UTF-8 with U+FFFD.
func normalizeLine(raw string) string {
	line := raw
	if strings.HasSuffix(line, "\n") {
		line = strings.TrimSuffix(line[:len(line)-1], "\r")
	}
	if !utf8.ValidString(line) {
		line = strings.ToValidUTF8(line, string(utf8.RuneError))
	}
	return line
}

func baseTime(groups []RuleMatchGroup, rs []rules.Rule) *time.Time {
	for _, g := range groups {
		for _, m := range g.Matches {
			if m.RuleIndex >= len(rs) || !rs[m.RuleIndex].BaseTime {
				continue
			}
			if m.Timestamp.Valid() {
				t := *m.Timestamp.Time
				return &t
			}
		}
	}
	return nil
}
