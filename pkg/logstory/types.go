package logstory

import "time"

// Group is one participating capture group of a match.
type Group struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Timestamp is the validated value of a match's designated group.
// It is only attached when the matcher runs with WithTimestamps(true).
type Timestamp struct {
	// Time is nil when validation failed.
	Time *time.Time `json:"time,omitempty"`

	Epoch bool `json:"epoch,omitempty"`

	// YearMissing means the format had no year and Time was anchored
	// to the matcher clock.
	YearMissing bool `json:"year_missing,omitempty"`

	Error string `json:"error,omitempty"`
}

// Valid reports whether the timestamp passed validation.
func (t *Timestamp) Valid() bool {
	return t != nil && t.Time != nil
}

// Match is a single non-overlapping match of one rule against one line.
type Match struct {
	Start     int        `json:"start"`
	End       int        `json:"end"`
	Text      string     `json:"text"`
	RuleName  string     `json:"pattern_name"`
	RuleIndex int        `json:"pattern_index"`
	Groups    []Group    `json:"groups"`
	Timestamp *Timestamp `json:"timestamp,omitempty"`
}

// RuleMatchGroup bundles every match of one rule against one line.
type RuleMatchGroup struct {
	Name    string  `json:"name"`
	Pattern string  `json:"pattern"`
	Color   string  `json:"color"`
	Matches []Match `json:"matches"`
}

// LineResult is the outcome of matching one line.
type LineResult struct {
	LineNumber int              `json:"line_number"`
	Line       string           `json:"line"`
	Matches    []RuleMatchGroup `json:"matches"`

	// BaseTime is the first valid timestamp of the base_time rule.
	// Only set when timestamps are enabled.
	BaseTime *time.Time `json:"base_time,omitempty"`
}

// ScanResult is the outcome of scanning a batch of lines.
type ScanResult struct {
	Results       []LineResult `json:"results"`
	TotalLines    int          `json:"total_lines"`
	AnalyzedLines int          `json:"analyzed_lines"`
}
