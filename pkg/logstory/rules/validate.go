package rules

import (
	"errors"
	"fmt"
	"regexp"
)

// Validate performs structural validation of every log type in the set.
// It checks for:
//   - Required fields (name, pattern, group > 0)
//   - Pattern length limits and per-type rule count
//   - Pattern compilation and group range
//   - Epoch/dateformat consistency
//   - Unique rule names within a log type
//   - Exactly one base_time rule per log type
//
// Unlike the matcher, Validate reports every problem instead of skipping bad
// rules. All errors are joined; use errors.As to pull out *RuleError or
// *ValidationError values. Date formats are not round-tripped here, see
// timestamp.CheckRule.
func (rs RuleSet) Validate() error {
	var errs []error
	for _, name := range rs.LogTypes() {
		errs = append(errs, ValidateLogType(name, rs[name].Timestamps)...)
	}
	return errors.Join(errs...)
}

// ValidateLogType validates the rules of a single log type and returns every
// problem found, in rule order. A nil result means the rules are valid.
// An empty rule list is valid.
func ValidateLogType(logType string, rules []Rule) []error {
	// a log type without timestamp rules is only used for event matching
	if len(rules) == 0 {
		return nil
	}

	var errs []error
	if len(rules) > MaxRuleCount {
		errs = append(errs, &ValidationError{
			LogType: logType,
			Field:   "timestamps",
			Message: fmt.Sprintf("too many rules (%d), maximum allowed is %d", len(rules), MaxRuleCount),
		})
	}

	seen := make(map[string]int, len(rules))
	baseCount := 0

	for i, r := range rules {
		ruleErr := func(field, msg string, cause error) *RuleError {
			return &RuleError{LogType: logType, Index: i, Name: r.Name, Field: field, Message: msg, Cause: cause}
		}

		if r.BaseTime {
			baseCount++
		}

		if r.Name == "" {
			errs = append(errs, ruleErr("name", "name is required", nil))
		} else if prev, dup := seen[r.Name]; dup {
			errs = append(errs, ruleErr("name", fmt.Sprintf("duplicate name (previously defined at timestamps[%d])", prev), nil))
		} else {
			seen[r.Name] = i
		}

		if r.Group <= 0 {
			errs = append(errs, ruleErr("group", "group must be a positive integer", nil))
		}

		switch {
		case r.Epoch && r.HasDateFormat():
			errs = append(errs, ruleErr("dateformat", "epoch rules must not declare a dateformat", nil))
		case !r.Epoch && !r.HasDateFormat():
			errs = append(errs, ruleErr("dateformat", "dateformat is required for non-epoch rules", nil))
		}

		if r.Pattern == "" {
			errs = append(errs, ruleErr("pattern", "pattern is required", nil))
			continue
		}
		if len(r.Pattern) > MaxPatternLength {
			errs = append(errs, ruleErr("pattern", fmt.Sprintf("pattern too long (%d bytes), maximum allowed is %d", len(r.Pattern), MaxPatternLength), nil))
			continue
		}

		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			errs = append(errs, ruleErr("pattern", "invalid regular expression", err))
			continue
		}
		if n := re.NumSubexp(); r.Group > n {
			errs = append(errs, ruleErr("group", fmt.Sprintf("group %d exceeds the %d capture groups in pattern", r.Group, n), ErrGroupOutOfRange))
		}
	}

	switch {
	case baseCount == 0:
		errs = append(errs, &ValidationError{LogType: logType, Field: "base_time", Message: "no rule is marked base_time"})
	case baseCount > 1:
		errs = append(errs, &ValidationError{LogType: logType, Field: "base_time", Message: fmt.Sprintf("%d rules are marked base_time, exactly one is allowed", baseCount)})
	}

	return errs
}
