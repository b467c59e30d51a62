package timestamp

import (
	"time"

	"github.com/itchyny/timefmt-go"

	"github.com/logstory/logstory-go/pkg/logstory/rules"
)

// Reference is the instant used for date format round-trip checks.
var Reference = time.Date(2024, time.January, 15, 9, 30, 45, 0, time.UTC)

// CheckFormat verifies that format survives a format-then-parse round trip
// of Reference. Formats with a year must reproduce Reference to the second;
// year-less formats must reproduce month, day, hour, minute and second.
func CheckFormat(format string) error {
	return checkFormat(rules.Rule{Name: "format", DateFormat: format})
}

// CheckRule runs CheckFormat for non-epoch rules. Epoch rules always pass.
func CheckRule(rule rules.Rule) error {
	if rule.Epoch {
		return nil
	}
	return checkFormat(rule)
}

func checkFormat(rule rules.Rule) error {
	format := rule.DateFormat
	if format == "" {
		return newError(rule, "", ErrMissingFormat, "")
	}

	text := timefmt.Format(Reference, format)

	if HasYear(format) {
		t, err := timefmt.Parse(text, format)
		if err != nil {
			return newError(rule, text, ErrFormat, err.Error())
		}
		if !t.Truncate(time.Second).Equal(Reference) {
			return newError(rule, text, ErrFormat, "parsed "+t.UTC().Format(time.RFC3339))
		}
		return nil
	}

	t, err := parseYearless(text, format)
	if err != nil {
		return newError(rule, text, ErrFormat, err.Error())
	}
	if t.Month() != Reference.Month() || t.Day() != Reference.Day() ||
		t.Hour() != Reference.Hour() || t.Minute() != Reference.Minute() ||
		t.Second() != Reference.Second() {
		return newError(rule, text, ErrFormat, "parsed "+t.Format("Jan _2 15:04:05"))
	}
	return nil
}
