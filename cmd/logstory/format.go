package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/logstory/logstory-go/pkg/logstory"
)

// validFormats lists all valid output formats.
var validFormats = map[string]bool{
	"jsonl":  true,
	"pretty": true,
}

// record is one output line. LogType is only set when several log types
// are scanned together.
type record struct {
	LogType string `json:"log_type,omitempty"`
	logstory.LineResult
}

// outputRecord writes a record in the specified format.
func outputRecord(format string, rec record, out io.Writer) error {
	switch format {
	case "jsonl":
		return outputJSON(rec, out)
	case "pretty":
		return outputPretty(rec, out)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// outputJSON writes a record as one JSON Lines entry.
func outputJSON(rec record, out io.Writer) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

// outputPretty writes a line followed by one indented row per match:
//
//	     3  Jan 15 09:31:23 host sshd[1]: accepted
//	        syslog_timestamp [0,15) "Jan 15 09:31:23" -> 2024-01-15T09:31:23Z
func outputPretty(rec record, out io.Writer) error {
	prefix := ""
	if rec.LogType != "" {
		prefix = rec.LogType + " "
	}
	if _, err := fmt.Fprintf(out, "%s%6d  %s\n", prefix, rec.LineNumber, rec.Line); err != nil {
		return err
	}
	indent := strings.Repeat(" ", len(prefix)+8)
	for _, g := range rec.Matches {
		for _, m := range g.Matches {
			if _, err := fmt.Fprintf(out, "%s%s [%d,%d) %s%s\n",
				indent, g.Name, m.Start, m.End, quoteIfNeeded(designatedText(m)), timestampSuffix(m.Timestamp)); err != nil {
				return err
			}
		}
	}
	return nil
}

// designatedText is the text shown for a match: its first capture group,
// or the whole match when there are no groups.
func designatedText(m logstory.Match) string {
	if len(m.Groups) > 0 {
		return m.Groups[0].Text
	}
	return m.Text
}

func timestampSuffix(ts *logstory.Timestamp) string {
	switch {
	case ts == nil:
		return ""
	case ts.Valid():
		s := " -> " + ts.Time.Format(time.RFC3339)
		if ts.YearMissing {
			s += " (year assumed)"
		}
		return s
	default:
		return " ! " + ts.Error
	}
}

// quoteIfNeeded quotes a value if it contains special characters or control characters.
// Returns the value unchanged if no quoting is needed.
func quoteIfNeeded(v string) string {
	if v == "" {
		return `""`
	}

	needsQuote := false
	for _, c := range v {
		if c == ' ' || c == '=' || c == '"' || c == '\\' || c < 0x20 || c == 0x7F {
			needsQuote = true
			break
		}
	}
	if !needsQuote {
		return v
	}

	var sb strings.Builder
	sb.WriteByte('"')
	for _, c := range v {
		switch {
		case c == '\\':
			sb.WriteString(`\\`)
		case c == '"':
			sb.WriteString(`\"`)
		case c == '\n':
			sb.WriteString(`\n`)
		case c == '\r':
			sb.WriteString(`\r`)
		case c == '\t':
			sb.WriteString(`\t`)
		case c < 0x20 || c == 0x7F:
			fmt.Fprintf(&sb, `\x%02x`, c)
		default:
			sb.WriteRune(c)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

// summary writes the trailing totals for pretty output.
func summary(out io.Writer, logType string, res logstory.ScanResult) error {
	matched := 0
	for _, lr := range res.Results {
		if len(lr.Matches) > 0 {
			matched++
		}
	}
	_, err := fmt.Fprintf(out, "-- %s: analyzed %d of %d lines, %d with matches\n",
		logType, res.AnalyzedLines, res.TotalLines, matched)
	return err
}
