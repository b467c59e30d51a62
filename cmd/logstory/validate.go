package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/logstory/logstory-go/internal/source"
	"github.com/logstory/logstory-go/pkg/logstory"
	"github.com/logstory/logstory-go/pkg/logstory/rules"
)

type validateOptions struct {
	rulesFile  string
	samplesDir string
	jsonOut    bool
}

var validateOpts validateOptions

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a rule file for errors",
	Long: `Check every rule in a rule file: required fields, pattern compilation,
group ranges, epoch/dateformat consistency, unique names, exactly one
base_time rule per log type, and that each date format can parse what it
formats.

With --samples, each log type's rules are also run against
<DIR>/<LOG_TYPE>.log. Every captured value must be a valid timestamp and
no two rules may capture overlapping text.

Exit status is 1 when problems are found and 2 on other errors.

Examples:
  logstory validate --rules logtypes.yaml
  logstory validate --rules logtypes.yaml --samples ./samples
  logstory validate --samples ./samples --json | jq '.failures'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(cmd.Context(), validateOpts, cmd.OutOrStdout())
	},
}

func init() {
	f := validateCmd.Flags()
	f.StringVarP(&validateOpts.rulesFile, "rules", "r", "logtypes.yaml", "Rule file")
	f.StringVarP(&validateOpts.samplesDir, "samples", "s", "", "Directory of <LOG_TYPE>.log sample files")
	f.BoolVar(&validateOpts.jsonOut, "json", false, "Write the report as JSON")
	rootCmd.AddCommand(validateCmd)
}

type validateReport struct {
	Rules   string                 `json:"rules"`
	Valid   bool                   `json:"valid"`
	Errors  []string               `json:"errors"`
	Samples *logstory.SampleReport `json:"samples,omitempty"`
}

func runValidate(ctx context.Context, opts validateOptions, out io.Writer) error {
	rs, err := rules.Load(opts.rulesFile)
	if err != nil {
		return err
	}

	report := validateReport{Rules: opts.rulesFile, Errors: flattenErrors(logstory.ValidateRuleSet(rs))}
	if opts.samplesDir != "" {
		files, err := source.NewFiles(opts.samplesDir, source.WithLogger(slog.Default()))
		if err != nil {
			return err
		}
		samples, err := logstory.CheckSamples(ctx, rs, files, logstory.WithLogger(slog.Default()))
		if err != nil {
			return err
		}
		report.Samples = &samples
	}
	report.Valid = len(report.Errors) == 0 && (report.Samples == nil || report.Samples.OK())

	if opts.jsonOut {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(out, string(data)); err != nil {
			return err
		}
	} else if err := printReport(out, report); err != nil {
		return err
	}

	if !report.Valid {
		return errProblems
	}
	return nil
}

func printReport(out io.Writer, r validateReport) error {
	w := &errWriter{w: out}
	for _, e := range r.Errors {
		w.printf("error: %s\n", e)
	}
	if s := r.Samples; s != nil {
		for _, f := range s.Failures {
			w.printf("%s:%d: rule %s: %s: %s\n", f.LogType, f.Line, f.Rule, quoteIfNeeded(f.Text), f.Error)
		}
		for _, o := range s.Overlaps {
			w.printf("%s:%d: overlap: %s [%d,%d) and %s [%d,%d)\n", o.LogType, o.Line,
				o.Overlap.A.Rule, o.Overlap.A.Start, o.Overlap.A.End,
				o.Overlap.B.Rule, o.Overlap.B.Start, o.Overlap.B.End)
		}
		if len(s.Skipped) > 0 {
			w.printf("no samples: %d log type(s)\n", len(s.Skipped))
		}
		w.printf("samples: %d log type(s) tested, %d failure(s), %d overlap(s)\n",
			len(s.Tested), len(s.Failures), len(s.Overlaps))
	}
	if r.Valid {
		w.printf("%s: OK\n", r.Rules)
	} else {
		w.printf("%s: problems found\n", r.Rules)
	}
	return w.err
}

// errWriter keeps the first write error so a report can be printed without
// checking every line.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

// flattenErrors expands joined errors into one message each.
func flattenErrors(err error) []string {
	out := []string{}
	if err == nil {
		return out
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			out = append(out, flattenErrors(e)...)
		}
		return out
	}
	return append(out, err.Error())
}
