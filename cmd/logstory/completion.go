package main

import (
	"github.com/spf13/cobra"

	"github.com/logstory/logstory-go/pkg/logstory/rules"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for logstory.

Bash:
  $ source <(logstory completion bash)

Zsh:
  $ logstory completion zsh > "${fpath[1]}/_logstory"

Fish:
  $ logstory completion fish | source

PowerShell:
  PS> logstory completion powershell | Out-String | Invoke-Expression

--log-type values are completed from the rule file named by --rules.`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := cmd.Root()
		out := cmd.OutOrStdout()

		switch args[0] {
		case "bash":
			return root.GenBashCompletionV2(out, true)
		case "zsh":
			return root.GenZshCompletion(out)
		case "fish":
			return root.GenFishCompletion(out, true)
		case "powershell":
			return root.GenPowerShellCompletionWithDesc(out)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(completionCmd)
}

// completeLogTypes completes --log-type from the command's --rules file.
func completeLogTypes(cmd *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	path, err := cmd.Flags().GetString("rules")
	if err != nil || path == "" {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	rs, err := rules.Load(path)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return rs.LogTypes(), cobra.ShellCompDirectiveNoFileComp
}

// registerLogTypeCompletion wires completeLogTypes to cmd's --log-type flag.
func registerLogTypeCompletion(cmd *cobra.Command) {
	_ = cmd.RegisterFlagCompletionFunc("log-type", completeLogTypes)
}
