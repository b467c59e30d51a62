package timestamp

import (
	"errors"
	"fmt"

	"github.com/logstory/logstory-go/pkg/logstory/rules"
)

var (
	// ErrParse means the text does not match the rule's format.
	ErrParse = errors.New("cannot parse timestamp")

	// ErrRange means the value parsed but lies outside the accepted range.
	ErrRange = errors.New("timestamp out of range")

	// ErrFormat means a date format failed its round-trip self-check.
	ErrFormat = errors.New("date format does not round-trip")

	// ErrMissingFormat means a non-epoch rule has no date format.
	ErrMissingFormat = errors.New("non-epoch rule has no dateformat")
)

// Error describes a timestamp that failed validation.
type Error struct {
	Rule     string // rule name
	Text     string // captured text, empty for format checks
	Expected string // date format, or "epoch seconds"
	Detail   string
	Err      error // one of the sentinel errors above
}

func newError(rule rules.Rule, text string, cause error, detail string) *Error {
	expected := rule.DateFormat
	if rule.Epoch {
		expected = "epoch seconds"
	}
	return &Error{Rule: rule.Name, Text: text, Expected: expected, Detail: detail, Err: cause}
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %q (expected %s): %v", e.Rule, e.Text, e.Expected, e.Err)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}
