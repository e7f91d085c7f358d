package cli

import (
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

// completionCommand creates the completion command for generating shell completions.
func (c *CLI) completionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for lamacheck.

Bash:
  $ source <(lamacheck completion bash)

Zsh:
  $ lamacheck completion zsh > "${fpath[1]}/_lamacheck"

Fish:
  $ lamacheck completion fish > ~/.config/fish/completions/lamacheck.fish

PowerShell:
  PS> lamacheck completion powershell | Out-String | Invoke-Expression

Start a new shell for the completions to take effect.`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletionV2(out, true)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
}

// completeArtifactIDs completes the first argument with tracked artifact ids.
func (c *CLI) completeArtifactIDs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return c.completeFirstArg(cmd, args, func(a *app) []string {
		ids := make([]string, 0, a.reg.ArtifactCount())
		for _, art := range a.reg.Artifacts() {
			ids = append(ids, art.ID())
		}
		return ids
	}, toComplete)
}

// completeTrackedArtifacts completes every argument with tracked artifact
// ids not given yet.
func (c *CLI) completeTrackedArtifacts(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	ids, dir := c.completeArtifactIDs(cmd, nil, toComplete)
	return slices.DeleteFunc(ids, func(id string) bool { return slices.Contains(args, id) }), dir
}

// completeInvalidRepos completes repository ids that "repos reset" accepts.
func (c *CLI) completeInvalidRepos(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	ids, dir := c.completeFirstArg(cmd, nil, func(a *app) []string {
		var ids []string
		for _, r := range a.reg.Repositories() {
			if r.Invalid && !r.IsLegacy() {
				ids = append(ids, r.ID)
			}
		}
		return ids
	}, toComplete)
	return slices.DeleteFunc(ids, func(id string) bool { return slices.Contains(args, id) }), dir
}

// completeFirstArg loads the registry without any terminal output and
// offers the candidates starting with toComplete for the first argument.
func (c *CLI) completeFirstArg(cmd *cobra.Command, args []string, candidates func(*app) []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	a, err := c.loadRegistry(cmd.Context())
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	defer a.Close()

	var out []string
	for _, id := range candidates(a) {
		if strings.HasPrefix(id, toComplete) {
			out = append(out, id)
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}
