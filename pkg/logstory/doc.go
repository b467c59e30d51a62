// Package logstory extracts timestamps from heterogeneous log lines using
// declarative, per-log-type regular expression rules.
//
// This package allows you to:
//   - Run an ordered rule list against a single line ([Matcher.Match])
//   - Scan a batch of lines with a line limit ([Scanner.Scan])
//   - Resolve rules and lines by log type through pluggable providers ([Engine])
//   - Follow a growing log file and match each new line ([Follower])
//   - Check a rule set against sample data ([ValidateRuleSet], [CheckSamples])
//
// # Basic Usage
//
// Load a rule file and scan lines of one log type:
//
//	rs, err := rules.Load("logtypes.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ruleList, err := rs.Rules(ctx, "WINDOWS_SYSMON")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result := logstory.Scan(lines, ruleList, 100)
//	for _, lr := range result.Results {
//	    for _, g := range lr.Matches {
//	        fmt.Printf("%d %s %s\n", lr.LineNumber, g.Name, g.Matches[0].Text)
//	    }
//	}
//
// # Failure Semantics
//
// Per-line and per-rule failures never abort a scan. A rule whose pattern
// does not compile is skipped; a captured value that is not a valid
// timestamp keeps its match and records the failure in [Timestamp.Error].
// The only hard error is asking for a log type the rule source does not know
// (see [rules.ErrUnknownLogType]).
//
// # Offsets
//
// All spans are half-open byte offsets into the line after its terminator
// ("\n" or "\r\n") has been removed.
package logstory
