package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/logstory/logstory-go/internal/source"
	"github.com/logstory/logstory-go/pkg/logstory"
	"github.com/logstory/logstory-go/pkg/logstory/rules"
)

type scanOptions struct {
	rulesFile  string
	logType    string
	limit      int
	format     string
	timestamps bool
	output     string
	all        bool
	logDir     string
	encoding   string
}

var scanOpts scanOptions

var scanCmd = &cobra.Command{
	Use:   "scan [FILE...]",
	Short: "Match timestamp rules against log lines",
	Long: `Apply the rules of one log type to log lines and print every match.

Lines are read from the given files (plain, gzip, bzip2 or zstd) in order,
or from stdin when no file is given. Line numbers run across all inputs.

With --all, every log type in the rule file is scanned from --log-dir
concurrently and each record carries its log type.

Examples:
  # Scan a file
  logstory scan --rules logtypes.yaml --log-type WINDOWS_SYSMON sysmon.log

  # Human-readable output with validated timestamps
  logstory scan -t LINUX_SYSLOG --format pretty --timestamps /var/log/syslog

  # Read from stdin, first 10 lines only
  tail -n 100 app.log | logstory scan -t APP --limit 10

  # Scan every log type and write the result atomically
  logstory scan --all --log-dir ./logs --output results.jsonl`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runScan(ctx, scanOpts, args, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	f := scanCmd.Flags()
	f.StringVarP(&scanOpts.rulesFile, "rules", "r", "logtypes.yaml", "Rule file")
	f.StringVarP(&scanOpts.logType, "log-type", "t", "", "Log type whose rules to apply")
	f.IntVarP(&scanOpts.limit, "limit", "n", 0, "Number of lines to analyse (0 = all)")
	f.StringVarP(&scanOpts.format, "format", "f", "jsonl", "Output format: jsonl, pretty")
	f.BoolVar(&scanOpts.timestamps, "timestamps", false, "Validate captured timestamps")
	f.StringVarP(&scanOpts.output, "output", "o", "", "Write output to a file instead of stdout")
	f.BoolVar(&scanOpts.all, "all", false, "Scan every log type from --log-dir")
	f.StringVarP(&scanOpts.logDir, "log-dir", "d", "", "Directory holding <LOG_TYPE>.log files (with --all)")
	f.StringVar(&scanOpts.encoding, "encoding", "replace", "Invalid UTF-8 handling: replace, drop")
	registerLogTypeCompletion(scanCmd)
	rootCmd.AddCommand(scanCmd)
}

// scanned is the result of one log type.
type scanned struct {
	logType string
	result  logstory.ScanResult
	skipped bool
}

func runScan(ctx context.Context, opts scanOptions, args []string, stdin io.Reader, stdout io.Writer) error {
	if !validFormats[opts.format] {
		return fmt.Errorf("unknown format: %s", opts.format)
	}
	if opts.limit < 0 {
		return errors.New("--limit must not be negative")
	}
	policy, err := source.ParsePolicy(opts.encoding)
	if err != nil {
		return err
	}
	decoder := source.Decoder{Policy: policy}

	rs, err := rules.Load(opts.rulesFile)
	if err != nil {
		return err
	}
	scanner := logstory.NewScanner(
		logstory.WithTimestamps(opts.timestamps),
		logstory.WithLogger(slog.Default()),
	)

	var results []scanned
	if opts.all {
		if len(args) > 0 {
			return errors.New("--all reads from --log-dir and takes no file arguments")
		}
		results, err = scanAll(ctx, opts, rs, decoder, scanner)
	} else {
		results, err = scanOne(ctx, opts, rs, args, stdin, decoder, scanner)
	}
	if err != nil {
		return err
	}

	out, err := openOutput(opts.output, stdout)
	if err != nil {
		return err
	}
	if err := writeResults(out, opts, results); err != nil {
		out.Abort()
		return err
	}
	return out.Commit()
}

func scanOne(ctx context.Context, opts scanOptions, rs rules.RuleSet, args []string, stdin io.Reader, dec source.Decoder, scanner *logstory.Scanner) ([]scanned, error) {
	if opts.logType == "" {
		return nil, errors.New("--log-type is required (or use --all)")
	}
	list, err := rs.Rules(ctx, opts.logType)
	if err != nil {
		return nil, err
	}
	lines, err := readInputs(args, stdin, dec)
	if err != nil {
		return nil, err
	}
	return []scanned{{
		logType: opts.logType,
		result:  scanner.Scan(lines, list, effectiveLimit(opts.limit, lines)),
	}}, nil
}

func scanAll(ctx context.Context, opts scanOptions, rs rules.RuleSet, dec source.Decoder, scanner *logstory.Scanner) ([]scanned, error) {
	if opts.logDir == "" {
		return nil, errors.New("--all requires --log-dir")
	}
	files, err := source.NewFiles(opts.logDir,
		source.WithDecoder(dec),
		source.WithLogger(slog.Default()))
	if err != nil {
		return nil, err
	}

	logTypes := rs.LogTypes()
	results := make([]scanned, len(logTypes))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, lt := range logTypes {
		g.Go(func() error {
			results[i].logType = lt
			lines, err := files.Lines(ctx, lt)
			if errors.Is(err, logstory.ErrNoLines) || errors.Is(err, source.ErrInvalidLogType) {
				results[i].skipped = true
				return nil
			}
			if err != nil {
				return fmt.Errorf("%s: %w", lt, err)
			}
			results[i].result = scanner.Scan(lines, rs[lt].Timestamps, effectiveLimit(opts.limit, lines))
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func effectiveLimit(limit int, lines []string) int {
	if limit == 0 {
		return len(lines)
	}
	return limit
}

// readInputs decodes every input in order. No arguments or "-" reads stdin.
func readInputs(args []string, stdin io.Reader, dec source.Decoder) ([]string, error) {
	if len(args) == 0 {
		args = []string{"-"}
	}
	var all []string
	for _, arg := range args {
		var data []byte
		var err error
		if arg == "-" {
			data, err = io.ReadAll(io.LimitReader(stdin, source.DefaultMaxFileSize+1))
			if err == nil && int64(len(data)) > source.DefaultMaxFileSize {
				err = source.ErrTooLarge
			}
		} else {
			data, err = os.ReadFile(arg)
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", arg, err)
		}
		lines, err := dec.Lines(data)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", arg, err)
		}
		all = append(all, lines...)
	}
	return all, nil
}

func writeResults(out io.Writer, opts scanOptions, results []scanned) error {
	tagged := opts.all
	for _, s := range results {
		if s.skipped {
			slog.Debug("no log file", "log_type", s.logType)
			continue
		}
		for _, lr := range s.result.Results {
			rec := record{LineResult: lr}
			if tagged {
				rec.LogType = s.logType
			}
			if err := outputRecord(opts.format, rec, out); err != nil {
				return fmt.Errorf("output error: %w", err)
			}
		}
		if opts.format == "pretty" {
			if err := summary(out, s.logType, s.result); err != nil {
				return err
			}
		}
	}
	return nil
}
