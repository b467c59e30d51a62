package logstory_test

import (
	"testing"
	"time"
	"unicode/utf8"

	"github.com/logstory/logstory-go/pkg/logstory"
	"github.com/logstory/logstory-go/pkg/logstory/rules"
)

// FuzzScanner_Line checks that matching arbitrary input never panics and
// that every reported span addresses the stored line.
func FuzzScanner_Line(f *testing.F) {
	rs := []rules.Rule{
		{Name: "syslog", Pattern: `^([A-Z][a-z]{2} [ \d]\d \d{2}:\d{2}:\d{2})`, Group: 1, DateFormat: "%b %d %H:%M:%S"},
		{Name: "UtcTime", Pattern: `\bUtcTime["\s:]*"?(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})"?`, Group: 1, DateFormat: "%Y-%m-%d %H:%M:%S", BaseTime: true},
		{Name: "EventTime", Pattern: `"EventTime"\s*:\s*"?(\d{10})"?`, Group: 1, Epoch: true},
		{Name: "optional", Pattern: `(a)?(b)`, Group: 1, Epoch: true},
		{Name: "broken", Pattern: `(`, Group: 1, Epoch: true},
	}
	s := logstory.NewScanner(
		logstory.WithTimestamps(true),
		logstory.WithClock(func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }),
	)

	f.Add(`{"UtcTime": "2024-01-15 09:30:45"}`)
	f.Add("Feb 29 23:59:59 host x\r\n")
	f.Add(`{"EventTime": "9999999999"}`)
	f.Add("")
	f.Add("b ab b")
	f.Add(string([]byte{0xff, 0xfe, 0xfd}))
	f.Add("UtcTime: 2024-02-30 25:61:61\n")

	f.Fuzz(func(t *testing.T, raw string) {
		lr := s.Line(1, raw, rs)
		if !utf8.ValidString(lr.Line) {
			t.Fatalf("stored line is not valid UTF-8: %q", lr.Line)
		}
		for _, g := range lr.Matches {
			for _, m := range g.Matches {
				if m.Start < 0 || m.End > len(lr.Line) || m.Start > m.End {
					t.Fatalf("match span [%d,%d) out of bounds for %q", m.Start, m.End, lr.Line)
				}
				if lr.Line[m.Start:m.End] != m.Text {
					t.Fatalf("match text %q does not match span", m.Text)
				}
				for _, grp := range m.Groups {
					if grp.Start < m.Start || grp.End > m.End || lr.Line[grp.Start:grp.End] != grp.Text {
						t.Fatalf("group %d span [%d,%d) inconsistent", grp.Index, grp.Start, grp.End)
					}
					if grp.Text == "" {
						t.Fatalf("empty group %d reported", grp.Index)
					}
				}
			}
		}
	})
}
