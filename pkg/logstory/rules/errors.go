package rules

import (
	"errors"
	"fmt"
)

// ErrUnknownLogType is returned when a log type has no configured rules.
var ErrUnknownLogType = errors.New("unknown log type")

// ErrGroupOutOfRange is the cause attached to a RuleError when a rule's
// group exceeds the capture groups defined by its pattern.
var ErrGroupOutOfRange = errors.New("group out of range")

// ValidationError represents a problem with a log type as a whole
// (e.g., no base_time rule, too many rules).
type ValidationError struct {
	LogType string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.LogType, e.Field, e.Message)
}

// RuleError represents a problem with an individual rule.
type RuleError struct {
	LogType string
	Index   int    // 0-based position of the rule within its log type
	Name    string // may be empty when the name field is missing
	Field   string
	Message string
	Cause   error // e.g. a regexp compile error
}

func (e *RuleError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s.%s: %s: %s", e.LogType, e.Name, e.Field, e.Message)
	}
	return fmt.Sprintf("%s[%d]: %s: %s", e.LogType, e.Index, e.Field, e.Message)
}

// Unwrap returns the underlying cause so errors.Is and errors.As see through
// a RuleError.
func (e *RuleError) Unwrap() error {
	return e.Cause
}
