package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/matzehuels/lamacheck/pkg/version"
)

// versionCommand creates the Maven version inspection command.
func (c *CLI) versionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Parse and compare Maven versions",
	}

	cmd.AddCommand(c.versionParseCommand())
	cmd.AddCommand(c.versionCompareCommand())

	return cmd
}

// versionParseCommand creates the "version parse" subcommand.
func (c *CLI) versionParseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <version>...",
		Short: "Show how versions are parsed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := make([][]string, 0, len(args))
			for _, s := range args {
				v := version.Parse(s)
				rows = append(rows, []string{
					v.Original(),
					strconv.Itoa(v.Major()),
					strconv.Itoa(v.Minor()),
					strconv.Itoa(v.Micro()),
					orNone(v.Qualifier()),
					yesNo(v.IsRelease()),
					yesNo(v.IsSnapshot()),
				})
			}
			printTable([]string{"Version", "Major", "Minor", "Micro", "Qualifier", "Release", "Snapshot"}, rows)
			return nil
		},
	}
}

// versionCompareCommand creates the "version compare" subcommand.
func (c *CLI) versionCompareCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "compare <a> <b>",
		Short: "Compare two versions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, b := version.Parse(args[0]), version.Parse(args[1])
			fmt.Println(StyleValue.Render(a.Original()) + " " +
				StyleHighlight.Render(compareSymbol(a.Compare(b))) + " " +
				StyleValue.Render(b.Original()))
			return nil
		},
	}
}

func compareSymbol(cmp int) string {
	switch {
	case cmp < 0:
		return "<"
	case cmp > 0:
		return ">"
	default:
		return "="
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
