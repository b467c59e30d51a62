package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/logstory/logstory-go/pkg/logstory"
	"github.com/logstory/logstory-go/pkg/logstory/rules"
)

type watchOptions struct {
	rulesFile   string
	logType     string
	format      string
	fromStart   bool
	poll        bool
	timestamps  bool
	matchedOnly bool
}

var watchOpts watchOptions

var watchCmd = &cobra.Command{
	Use:   "watch FILE",
	Short: "Match timestamp rules against a growing log file",
	Long: `Follow a log file and print matches for every line appended to it.

Output is JSON Lines by default, which makes it easy to process with jq.
The file is reopened when it is rotated.

Examples:
  # Follow new lines only
  logstory watch -t LINUX_SYSLOG /var/log/syslog

  # Replay the whole file first, then follow
  logstory watch -t APP --from-start app.log

  # Only lines with matches, human-readable
  logstory watch -t APP --matched-only --format pretty app.log

  # Pipe to jq for lines without a base time
  logstory watch -t APP --timestamps app.log | jq 'select(.base_time == null)'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runWatch(ctx, watchOpts, args[0], cmd.OutOrStdout())
	},
}

func init() {
	f := watchCmd.Flags()
	f.StringVarP(&watchOpts.rulesFile, "rules", "r", "logtypes.yaml", "Rule file")
	f.StringVarP(&watchOpts.logType, "log-type", "t", "", "Log type whose rules to apply")
	f.StringVarP(&watchOpts.format, "format", "f", "jsonl", "Output format: jsonl, pretty")
	f.BoolVar(&watchOpts.fromStart, "from-start", false, "Read the file from the beginning before following")
	f.BoolVar(&watchOpts.poll, "poll", false, "Poll for changes instead of using file notifications")
	f.BoolVar(&watchOpts.timestamps, "timestamps", false, "Validate captured timestamps")
	f.BoolVar(&watchOpts.matchedOnly, "matched-only", false, "Skip lines without matches")
	_ = watchCmd.MarkFlagRequired("log-type")
	registerLogTypeCompletion(watchCmd)
	rootCmd.AddCommand(watchCmd)
}

func runWatch(ctx context.Context, opts watchOptions, path string, out io.Writer) error {
	if !validFormats[opts.format] {
		return fmt.Errorf("unknown format: %s", opts.format)
	}
	rs, err := rules.Load(opts.rulesFile)
	if err != nil {
		return err
	}
	list, err := rs.Rules(ctx, opts.logType)
	if err != nil {
		return err
	}

	follower, err := logstory.NewFollower(path, list,
		logstory.WithFromStart(opts.fromStart),
		logstory.WithPoll(opts.poll),
		logstory.WithTimestamps(opts.timestamps),
		logstory.WithLogger(slog.Default()),
	)
	if err != nil {
		return err
	}
	defer follower.Close()

	results, errs, err := follower.Follow(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case lr, ok := <-results:
			if !ok {
				return nil
			}
			if opts.matchedOnly && len(lr.Matches) == 0 {
				continue
			}
			if err := outputRecord(opts.format, record{LineResult: lr}, out); err != nil {
				return fmt.Errorf("output error: %w", err)
			}

		case err, ok := <-errs:
			if !ok {
				return nil
			}
			var fe *logstory.FollowError
			if errors.As(err, &fe) {
				slog.Warn("follow error", "path", fe.Path, "error", fe.Err)
				continue
			}
			slog.Warn("watch error", "error", err)

		case <-ctx.Done():
			return nil
		}
	}
}
