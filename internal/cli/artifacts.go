package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/matzehuels/lamacheck/pkg/errors"
	"github.com/matzehuels/lamacheck/pkg/model"
	"github.com/matzehuels/lamacheck/pkg/version"
)

// artifactsCommand creates the artifact management command.
func (c *CLI) artifactsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "artifacts",
		Aliases: []string{"artifact", "a"},
		Short:   "Manage tracked artifacts",
	}

	cmd.AddCommand(c.artifactsListCommand())
	cmd.AddCommand(c.artifactsAddCommand())
	cmd.AddCommand(c.artifactsShowCommand())
	cmd.AddCommand(c.artifactsExcludeCommand())
	cmd.AddCommand(c.artifactsRemoveCommand())

	return cmd
}

// artifactsListCommand creates the "artifacts list" subcommand.
func (c *CLI) artifactsListCommand() *cobra.Command {
	var plugins bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tracked artifacts with their latest versions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openRegistry(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			var rows [][]string
			for _, art := range a.reg.Artifacts() {
				if plugins && !art.IsPlugin() {
					continue
				}
				rows = append(rows, []string{
					art.ID(),
					orNone(string(art.Packaging)),
					styledVersion(StyleRelease, art.LatestRelease),
					styledVersion(StyleBeta, art.LatestBeta),
					strconv.Itoa(len(art.Repos)),
					formatTime(art.LastMetadataCheck),
				})
			}
			if len(rows) == 0 {
				printInfo("No artifacts tracked")
				printNextStep("Add one", appName+" artifacts add org.apache.commons:commons-lang3")
				return nil
			}
			printTable([]string{"Artifact", "Packaging", "Release", "Beta", "Repos", "Checked"}, rows)
			printDetail("%d artifacts", len(rows))
			return nil
		},
	}

	cmd.Flags().BoolVar(&plugins, "plugins", false, "only list Maven plugins")

	return cmd
}

// artifactsAddCommand creates the "artifacts add" subcommand.
func (c *CLI) artifactsAddCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "add <groupId:artifactId|pkg:maven/...>...",
		Short: "Track one or more artifacts",
		Long: `Track one or more artifacts. Each argument is a Maven coordinate
"groupId:artifactId" or a Maven package URL such as
"pkg:maven/org.apache.commons/commons-lang3". The next update cycle searches
the new artifacts in every known repository.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openRegistry(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			added := 0
			var firstErr error
			for _, arg := range args {
				groupID, artifactID, err := model.ParseCoordinate(arg)
				if err != nil {
					printError("Skipping %s: %s", arg, errors.UserMessage(err))
					if firstErr == nil {
						firstErr = err
					}
					continue
				}
				art, ok, err := a.reg.AddArtifact(groupID, artifactID)
				if err != nil {
					return err
				}
				if !ok {
					printInfo("%s is already tracked", art.ID())
					continue
				}
				printSuccess("Tracking %s", StyleHighlight.Render(art.ID()))
				added++
			}
			if err := a.flush(cmd.Context()); err != nil {
				return err
			}
			if added > 0 {
				printNextStep("Resolve versions", appName+" run")
			}
			return firstErr
		},
	}
}

// artifactsShowCommand creates the "artifacts show" subcommand.
func (c *CLI) artifactsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "show <groupId:artifactId>",
		Short:             "Show an artifact and its per-repository versions",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: c.completeArtifactIDs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openRegistry(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			art, err := lookupArtifact(a, args[0])
			if err != nil {
				return err
			}

			fmt.Println(StyleTitle.Render(art.ID()))
			printKeyValue("Packaging", orNone(string(art.Packaging)))
			printKeyValue("Release", styledVersion(StyleRelease, art.LatestRelease))
			printKeyValue("Beta", styledVersion(StyleBeta, art.LatestBeta))
			printKeyValue("PURL", art.PURL())
			printKeyValue("Checked", formatTime(art.LastMetadataCheck))
			if art.LastMetadataError != nil {
				printKeyValue("Failed", formatTime(art.LastMetadataError))
			}
			if art.LastRepoSearchError != nil {
				printKeyValue("Not found", formatTime(art.LastRepoSearchError))
			}
			if len(art.ExcludedVersions) > 0 {
				printKeyValue("Excluded", fmt.Sprint(art.ExcludedVersions))
			}
			printKeyValue("Added", art.Created.Format(time.DateTime))

			if len(art.Repos) == 0 {
				return nil
			}
			printNewline()
			rows := make([][]string, 0, len(art.Repos))
			for _, st := range art.Repos {
				repo := st.RepoID
				if r := a.reg.Repository(st.RepoID); r != nil && r.Invalid {
					repo = styleInvalid.Render(repo)
				}
				rows = append(rows, []string{
					repo,
					styledVersion(StyleRelease, st.Release),
					styledVersion(StyleBeta, st.Beta),
					formatTime(st.LastSuccess),
					formatTime(st.LastError),
				})
			}
			printTable([]string{"Repository", "Release", "Beta", "Last success", "Last error"}, rows)
			return nil
		},
	}
}

// artifactsExcludeCommand creates the "artifacts exclude" subcommand.
func (c *CLI) artifactsExcludeCommand() *cobra.Command {
	var undo bool

	cmd := &cobra.Command{
		Use:   "exclude <groupId:artifactId> <version>...",
		Short: "Exclude versions from an artifact's version lists",
		Long: `Exclude versions from an artifact's version lists. Excluded versions are
never chosen as the latest release or beta. With --undo the versions are
included again.`,
		Args:              cobra.MinimumNArgs(2),
		ValidArgsFunction: c.completeArtifactIDs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openRegistry(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			art, err := lookupArtifact(a, args[0])
			if err != nil {
				return err
			}
			for _, v := range args[1:] {
				if undo {
					if a.reg.IncludeVersion(art.ID(), v) {
						printSuccess("Included %s %s", art.ID(), v)
					} else {
						printInfo("%s %s was not excluded", art.ID(), v)
					}
					continue
				}
				if a.reg.ExcludeVersion(art.ID(), v) {
					printSuccess("Excluded %s %s", art.ID(), v)
				} else {
					printInfo("%s %s is already excluded", art.ID(), v)
				}
			}
			return a.flush(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&undo, "undo", false, "include the versions again")

	return cmd
}

// artifactsRemoveCommand creates the "artifacts remove" subcommand.
func (c *CLI) artifactsRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "remove <groupId:artifactId>...",
		Aliases:           []string{"rm"},
		Short:             "Stop tracking artifacts",
		Args:              cobra.MinimumNArgs(1),
		ValidArgsFunction: c.completeTrackedArtifacts,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openRegistry(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			for _, arg := range args {
				art, err := lookupArtifact(a, arg)
				if err != nil {
					return err
				}
				a.reg.RemoveArtifact(art.ID())
				printSuccess("Removed %s", art.ID())
			}
			return a.flush(cmd.Context())
		},
	}
}

// lookupArtifact resolves a coordinate or package URL to a tracked artifact.
func lookupArtifact(a *app, arg string) (*model.Artifact, error) {
	groupID, artifactID, err := model.ParseCoordinate(arg)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidCoordinate, err, "invalid artifact %q", arg)
	}
	art := a.reg.Artifact(model.ArtifactID(groupID, artifactID))
	if art == nil {
		return nil, errors.New(errors.ErrCodeNotFound, "artifact %s is not tracked", model.ArtifactID(groupID, artifactID))
	}
	return art, nil
}

// styledVersion renders v with style, or a dash for nil.
func styledVersion(style lipgloss.Style, v *version.Version) string {
	if v == nil {
		return iconNone
	}
	return style.Render(v.Original())
}

// formatTime renders t relative to now, or a dash for nil.
func formatTime(t *time.Time) string {
	if t == nil {
		return iconNone
	}
	return formatRelativeTime(*t)
}
