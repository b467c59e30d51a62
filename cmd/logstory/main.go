// Command logstory extracts and validates timestamps in log files.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/logstory/logstory-go/internal/logging"
)

// Exit codes.
const (
	exitOK       = 0
	exitProblems = 1
	exitError    = 2
)

// errProblems reports that a command ran but found problems (for example
// invalid rules). It maps to exitProblems.
var errProblems = errors.New("problems found")

var (
	verbose  bool
	logLevel string
	logJSON  bool
)

var rootCmd = &cobra.Command{
	Use:   "logstory",
	Short: "Find and validate timestamps in log lines",
	Long: `logstory applies per-log-type timestamp rules to log lines, reports
every match with its capture groups, and checks that captured values are
real timestamps.

Rules are read from a YAML file keyed by log type:

  WINDOWS_SYSMON:
    timestamps:
      - name: UtcTime
        pattern: 'UtcTime: (\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})'
        group: 1
        dateformat: '%Y-%m-%d %H:%M:%S'
        base_time: true`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := logging.ParseLevel(logLevel)
		if verbose && !cmd.Flags().Changed("log-level") {
			level = slog.LevelDebug
		}
		logging.Init(logJSON, level)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false,
		"Write logs as JSON to stderr")
}

func main() {
	os.Exit(execute())
}

func execute() int {
	err := rootCmd.Execute()
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errProblems):
		return exitProblems
	default:
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitError
	}
}
