// Package rules loads and validates the declarative timestamp rule sets
// used by logstory. A rule set maps a log type name to the ordered list of
// regular-expression rules that locate timestamps in lines of that type.
package rules

import (
	"context"
	"fmt"
	"sort"
)

// RuleSet is the in-memory form of a rule file.
//
// Example YAML file:
//
//	WINDOWS_SYSMON:
//	  timestamps:
//	    - name: UtcTime
//	      pattern: '\bUtcTime["\s:]*"?(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})"?'
//	      group: 1
//	      dateformat: '%Y-%m-%d %H:%M:%S'
//	      base_time: true
//	    - name: EventTime
//	      pattern: '"EventTime"\s*:\s*"?(\d{10})"?'
//	      group: 1
//	      epoch: true
type RuleSet map[string]LogType

// LogType holds the rules configured for one log type.
// Keys other than timestamps are ignored.
type LogType struct {
	Timestamps []Rule `yaml:"timestamps" json:"timestamps"`
}

// Rule is a single named timestamp extraction directive.
//
// Exactly one of Epoch and DateFormat is meaningful: epoch rules capture a
// Unix seconds integer, all other rules capture text parsed with DateFormat
// (a strptime-style format such as "%b %d %H:%M:%S").
type Rule struct {
	// Name identifies the rule and must be unique within its log type.
	Name string `yaml:"name" json:"name"`

	// Pattern is the regular expression source (RE2 syntax).
	Pattern string `yaml:"pattern" json:"pattern"`

	// Group is the 1-based capture group holding the timestamp text.
	Group int `yaml:"group" json:"group"`

	// Epoch marks rules whose captured value is Unix seconds.
	Epoch bool `yaml:"epoch,omitempty" json:"epoch,omitempty"`

	// DateFormat is the strptime-style format for non-epoch rules.
	// Empty means absent.
	DateFormat string `yaml:"dateformat,omitempty" json:"dateformat,omitempty"`

	// BaseTime marks the canonical timestamp of the log type.
	BaseTime bool `yaml:"base_time,omitempty" json:"base_time,omitempty"`
}

// HasDateFormat reports whether the rule declares a date format.
func (r Rule) HasDateFormat() bool {
	return r.DateFormat != ""
}

// LogTypes returns the configured log type names in sorted order.
func (rs RuleSet) LogTypes() []string {
	names := make([]string, 0, len(rs))
	for name := range rs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Rules returns a copy of the rules configured for logType.
// It returns an error wrapping ErrUnknownLogType when the log type is not
// present in the set.
func (rs RuleSet) Rules(_ context.Context, logType string) ([]Rule, error) {
	lt, ok := rs[logType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLogType, logType)
	}
	out := make([]Rule, len(lt.Timestamps))
	copy(out, lt.Timestamps)
	return out, nil
}

// BaseRule returns the rule marked base_time for logType, if any.
func (rs RuleSet) BaseRule(logType string) (Rule, bool) {
	for _, r := range rs[logType].Timestamps {
		if r.BaseTime {
			return r, true
		}
	}
	return Rule{}, false
}
