package cli

import (
	"sync"

	"github.com/spf13/cobra"

	"github.com/cadre-oss/mosaic/internal/config"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for mosaic.

Bash:
  $ source <(mosaic completion bash)

Zsh:
  $ mosaic completion zsh > "${fpath[1]}/_mosaic"

Fish:
  $ mosaic completion fish | source

PowerShell:
  PS> mosaic completion powershell | Out-String | Invoke-Expression
`,
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return rootCmd.GenBashCompletionV2(out, true)
		case "zsh":
			return rootCmd.GenZshCompletion(out)
		case "fish":
			return rootCmd.GenFishCompletion(out, true)
		case "powershell":
			return rootCmd.GenPowerShellCompletionWithDesc(out)
		}
		return nil
	},
}

func fixedCompletions(values ...string) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return values, cobra.ShellCompDirectiveNoFileComp
	}
}

var completionsOnce sync.Once

// registerCompletions runs once every command has defined its flags.
func registerCompletions() {
	completionsOnce.Do(registerFlagCompletions)
}

func registerFlagCompletions() {
	_ = rootCmd.RegisterFlagCompletionFunc("driver", fixedCompletions("memory", "file", "sqlite", "sqlite-pure"))
	_ = exportCmd.RegisterFlagCompletionFunc("format", fixedCompletions("json", "jsonl"))

	var templates []string
	for _, t := range config.Templates() {
		templates = append(templates, t.Name)
	}
	_ = initCmd.RegisterFlagCompletionFunc("template", fixedCompletions(templates...))
}
