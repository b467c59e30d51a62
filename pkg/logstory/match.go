package logstory

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/logstory/logstory-go/pkg/logstory/rules"
	"github.com/logstory/logstory-go/pkg/logstory/timestamp"
)

// Matcher runs ordered rule lists against single lines.
// A Matcher is immutable and safe for concurrent use.
type Matcher struct {
	cfg *config
}

// NewMatcher creates a Matcher.
func NewMatcher(opts ...Option) *Matcher {
	return &Matcher{cfg: applyOptions(opts)}
}

var defaultMatcher = NewMatcher()

// MatchLine runs rules against line using the default matcher.
func MatchLine(line string, rs []rules.Rule) []RuleMatchGroup {
	return defaultMatcher.Match(line, rs)
}

// Color returns the display colour for a rule name as "#rrggbb".
// Equal names always produce equal colours.
func Color(name string) string {
	return fmt.Sprintf("#%06x", xxhash.Sum64String(name)&0xFFFFFF)
}

// RuleName returns the display name of the rule at index i, defaulting to
// "Pattern <i+1>" when the rule has no name.
func RuleName(r rules.Rule, i int) string {
	if r.Name != "" {
		return r.Name
	}
	return "Pattern " + strconv.Itoa(i+1)
}

// Match runs each rule against line in order and returns one group per rule
// that matched at least once. Rules whose pattern does not compile are
// skipped. The result is never nil.
func (m *Matcher) Match(line string, rs []rules.Rule) []RuleMatchGroup {
	out := make([]RuleMatchGroup, 0, len(rs))
	for i, r := range rs {
		name := RuleName(r, i)

		re, err := m.cfg.compiler.Compile(r.Pattern)
		if err != nil {
			m.cfg.logger.Debug("skipping rule with invalid pattern",
				slog.String("rule", name),
				slog.Int("index", i),
				slog.String("error", err.Error()))
			continue
		}

		locs := re.FindAllStringSubmatchIndex(line, -1)
		if len(locs) == 0 {
			continue
		}

		matches := make([]Match, 0, len(locs))
		for _, loc := range locs {
			matches = append(matches, m.buildMatch(line, loc, r, i, name))
		}
		out = append(out, RuleMatchGroup{
			Name:    name,
			Pattern: r.Pattern,
			Color:   Color(name),
			Matches: matches,
		})
	}
	return out
}

func (m *Matcher) buildMatch(line string, loc []int, r rules.Rule, idx int, name string) Match {
	match := Match{
		Start:     loc[0],
		End:       loc[1],
		Text:      line[loc[0]:loc[1]],
		RuleName:  name,
		RuleIndex: idx,
		Groups:    []Group{},
	}

	for g := 1; 2*g+1 < len(loc); g++ {
		start, end := loc[2*g], loc[2*g+1]
		// non-participating and empty captures are omitted
		if start < 0 || start == end {
			continue
		}
		match.Groups = append(match.Groups, Group{Index: g, Text: line[start:end], Start: start, End: end})
	}

	if m.cfg.timestamps {
		if text, ok := designated(line, loc, r.Group); ok {
			match.Timestamp = m.timestamp(r, text)
		}
	}
	return match
}

// designated returns the text of capture group g if it participated.
func designated(line string, loc []int, g int) (string, bool) {
	if g < 1 || 2*g+1 >= len(loc) {
		return "", false
	}
	start, end := loc[2*g], loc[2*g+1]
	if start < 0 {
		return "", false
	}
	return line[start:end], true
}

func (m *Matcher) timestamp(r rules.Rule, text string) *Timestamp {
	p, err := timestamp.Validate(r, text)
	if err != nil {
		return &Timestamp{Epoch: r.Epoch, Error: err.Error()}
	}
	t := p.Anchor(m.cfg.clock()).UTC()
	return &Timestamp{Time: &t, Epoch: p.Kind == timestamp.KindEpoch, YearMissing: p.YearMissing}
}
