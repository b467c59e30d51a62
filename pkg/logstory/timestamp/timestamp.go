// Package timestamp validates the text captured by a timestamp rule.
//
// Epoch rules capture Unix seconds. All other rules capture text that is
// parsed with the rule's strptime-style date format (%Y, %m, %d, %b, %H, ...).
// Formats that carry no year component (classic syslog "%b %d %H:%M:%S") are
// parsed against a leap reference year so that Feb 29 stays representable;
// callers that need an absolute instant use Parsed.Anchor.
package timestamp

import (
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/itchyny/timefmt-go"

	"github.com/logstory/logstory-go/pkg/logstory/rules"
)

const (
	// MaxEpoch is the exclusive upper bound for epoch values (2100-01-01T00:00:00Z).
	MaxEpoch = 4102444800

	minYear = 1970
	maxYear = 2100

	// referenceYear substitutes for a missing year. It is a leap year.
	referenceYear = 2000

	// anchorSlack is how far into the future an anchored year-less
	// timestamp may land before it is moved to the previous year.
	anchorSlack = 25 * time.Hour
)

// Kind distinguishes how a timestamp was obtained.
type Kind int

const (
	KindEpoch Kind = iota + 1
	KindFormatted
)

func (k Kind) String() string {
	switch k {
	case KindEpoch:
		return "epoch"
	case KindFormatted:
		return "formatted"
	default:
		return "unknown"
	}
}

// Parsed is a successfully validated timestamp.
type Parsed struct {
	Kind Kind

	// Epoch holds the Unix seconds value for KindEpoch.
	Epoch int64

	// Time is the parsed instant in UTC. For year-less formats its year is
	// the reference year and YearMissing is set.
	Time time.Time

	YearMissing bool
}

// Anchor returns the absolute instant of p relative to now.
//
// Timestamps that carry a year are returned unchanged. A missing year is
// taken from now; if that places the timestamp more than a day in the future
// the previous year is used instead (a December line read in January).
func (p Parsed) Anchor(now time.Time) time.Time {
	if !p.YearMissing {
		return p.Time
	}
	t := p.Time
	now = now.In(t.Location())
	anchored := time.Date(now.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if anchored.After(now.Add(anchorSlack)) {
		anchored = anchored.AddDate(-1, 0, 0)
	}
	return anchored
}

// Validate checks text captured by rule and returns the parsed timestamp.
// Every failure is an *Error wrapping one of ErrParse, ErrRange or
// ErrMissingFormat.
func Validate(rule rules.Rule, text string) (Parsed, error) {
	if rule.Epoch {
		return validateEpoch(rule, text)
	}
	if !rule.HasDateFormat() {
		return Parsed{}, newError(rule, text, ErrMissingFormat, "")
	}
	return validateFormatted(rule, text)
}

func validateEpoch(rule rules.Rule, text string) (Parsed, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil {
		return Parsed{}, newError(rule, text, ErrParse, "not a base-10 integer")
	}
	if v <= 0 || v >= MaxEpoch {
		return Parsed{}, newError(rule, text, ErrRange, "epoch must be between 0 and 4102444800 exclusive")
	}
	return Parsed{
		Kind:  KindEpoch,
		Epoch: v,
		Time:  time.Unix(v, 0).UTC(),
	}, nil
}

func validateFormatted(rule rules.Rule, text string) (Parsed, error) {
	if HasYear(rule.DateFormat) {
		t, err := parseStrict(text, rule.DateFormat)
		if err != nil {
			return Parsed{}, newError(rule, text, ErrParse, err.Error())
		}
		if y := t.Year(); y <= minYear || y >= maxYear {
			return Parsed{}, newError(rule, text, ErrRange, "year "+strconv.Itoa(y)+" outside 1970-2100 exclusive")
		}
		return Parsed{Kind: KindFormatted, Time: t.UTC()}, nil
	}

	t, err := parseYearless(text, rule.DateFormat)
	if err != nil {
		return Parsed{}, newError(rule, text, ErrParse, err.Error())
	}
	if !fieldsInRange(t) {
		return Parsed{}, newError(rule, text, ErrRange, "date or time field out of range")
	}
	return Parsed{Kind: KindFormatted, Time: t.UTC(), YearMissing: true}, nil
}

// parseYearless parses text with a format lacking a year by prefixing the
// reference year to both.
func parseYearless(text, format string) (time.Time, error) {
	return parseStrict(strconv.Itoa(referenceYear)+" "+text, "%Y "+format)
}

// parseStrict is timefmt.Parse without day overflow. timefmt builds its
// result with time.Date, so "Feb 30" comes back as Mar 1 or 2. Formatting
// the result again and comparing it with text catches the shift, because an
// overflowed date always changes its month.
func parseStrict(text, format string) (time.Time, error) {
	t, err := timefmt.Parse(text, format)
	if err != nil {
		return t, err
	}
	if !sameFields(text, timefmt.Format(t, format)) {
		return t, errDayOutOfRange
	}
	return t, nil
}

var errDayOutOfRange = errors.New("day is out of range for month")

// sameFields compares the alphanumeric fields of text against the same
// instant rendered by the format. Numbers compare by value and names without
// case. Weekday names are skipped since a year-less date has no real weekday,
// and a field count mismatch (zone "Z" against "+0000") is not treated as a
// difference.
func sameFields(text, formatted string) bool {
	a, b := fields(text), fields(formatted)
	if len(a) != len(b) {
		return true
	}
	for i := range a {
		if !sameField(a[i], b[i]) {
			return false
		}
	}
	return true
}

func fields(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func sameField(a, b string) bool {
	if isDigits(a) && isDigits(b) {
		// %f renders six digits for fewer parsed ones
		a, b = strings.TrimLeft(a, "0"), strings.TrimLeft(b, "0")
		if a == b {
			return true
		}
		return (len(a) > 2 || len(b) > 2) && strings.TrimRight(a, "0") == strings.TrimRight(b, "0")
	}
	if isWeekday(a) || isWeekday(b) {
		return true
	}
	return strings.EqualFold(a, b)
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

func isWeekday(s string) bool {
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := d.String()
		if strings.EqualFold(s, name) || strings.EqualFold(s, name[:3]) {
			return true
		}
	}
	return false
}

func fieldsInRange(t time.Time) bool {
	m, d := int(t.Month()), t.Day()
	return m >= 1 && m <= 12 &&
		d >= 1 && d <= 31 &&
		t.Hour() >= 0 && t.Hour() <= 23 &&
		t.Minute() >= 0 && t.Minute() <= 59 &&
		t.Second() >= 0 && t.Second() <= 59
}

// yearDirectives are the conversion characters that set the year, either
// directly or through a composite (%c, %D, %F, %x, %v, %+) or an absolute
// count (%s).
const yearDirectives = "YyCGgcDFsxv+"

// HasYear reports whether format contains a directive that supplies a year.
func HasYear(format string) bool {
	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			continue
		}
		i++
		// flags and modifiers
		for i < len(format) && strings.IndexByte("-_0^#EO", format[i]) >= 0 {
			i++
		}
		// width
		for i < len(format) && format[i] >= '0' && format[i] <= '9' {
			i++
		}
		if i >= len(format) {
			return false
		}
		if format[i] == '%' {
			continue
		}
		if strings.IndexByte(yearDirectives, format[i]) >= 0 {
			return true
		}
	}
	return false
}
