package cli

import (
	"fmt"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/matzehuels/lamacheck/pkg/errors"
	"github.com/matzehuels/lamacheck/pkg/model"
)

// reposCommand creates the repository management command.
func (c *CLI) reposCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "repos",
		Aliases: []string{"repo", "r"},
		Short:   "Manage known repositories",
	}

	cmd.AddCommand(c.reposListCommand())
	cmd.AddCommand(c.reposAddCommand())
	cmd.AddCommand(c.reposResetCommand())

	return cmd
}

// reposListCommand creates the "repos list" subcommand.
func (c *CLI) reposListCommand() *cobra.Command {
	var invalid, empty bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List known repositories",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openRegistry(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			items := repoItems(a, func(it RepoItem) bool {
				return (!invalid || it.Repo.Invalid) && (!empty || it.Artifacts == 0)
			})
			if len(items) == 0 {
				printInfo("No repositories match")
				return nil
			}

			rows := make([][]string, 0, len(items))
			for _, it := range items {
				id := it.Repo.ID
				if it.Repo.Invalid {
					id = styleInvalid.Render(id)
				}
				rows = append(rows, []string{
					id,
					it.Repo.URL,
					string(it.Repo.Layout),
					strconv.Itoa(it.Artifacts),
					orNone(it.Repo.Note),
				})
			}
			printTable([]string{"Repository", "URL", "Layout", "Artifacts", "Note"}, rows)
			printDetail("%d repositories", len(rows))
			return nil
		},
	}

	cmd.Flags().BoolVar(&invalid, "invalid", false, "only list invalid repositories")
	cmd.Flags().BoolVar(&empty, "empty", false, "only list repositories no artifact is served from")

	return cmd
}

// reposAddCommand creates the "repos add" subcommand.
func (c *CLI) reposAddCommand() *cobra.Command {
	var layout string

	cmd := &cobra.Command{
		Use:   "add <id> <url>",
		Short: "Register a repository",
		Long: `Register a repository. The next update cycle lists its contents by
checking every tracked artifact against it.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := errors.ValidateURL(args[1]); err != nil {
				return err
			}
			a, err := c.openRegistry(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			repo, ok, err := a.reg.AddRepository(model.Repository{
				ID:     args[0],
				URL:    args[1],
				Layout: model.ParseLayout(layout),
			})
			if err != nil {
				return err
			}
			if !ok {
				return errors.New(errors.ErrCodeInvalidInput, "repository %s (%s) is already registered", repo.ID, repo.URL)
			}
			if repo.Invalid {
				printWarning("Registered %s as invalid: %s", repo.ID, repo.Note)
			} else {
				printSuccess("Registered %s", StyleHighlight.Render(repo.ID))
				fmt.Println("  " + StyleLink.Render(repo.URL))
			}
			return a.flush(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&layout, "layout", string(model.LayoutDefault), "repository layout: default or legacy")

	return cmd
}

// reposResetCommand creates the "repos reset" subcommand.
func (c *CLI) reposResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset [id]...",
		Short: "Mark invalid repositories valid again",
		Long: `Mark invalid repositories valid again so the next update cycle queries
them. Without arguments an interactive list of the invalid repositories is
shown.`,
		ValidArgsFunction: c.completeInvalidRepos,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openRegistry(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			ids := args
			if len(ids) == 0 {
				id, err := pickInvalidRepo(a)
				if err != nil || id == "" {
					return err
				}
				ids = []string{id}
			}

			for _, id := range ids {
				repo := a.reg.Repository(id)
				if repo == nil {
					return errors.New(errors.ErrCodeNotFound, "no such repository: %s", id)
				}
				if repo.IsLegacy() {
					printWarning("%s uses the legacy layout and stays invalid", id)
					continue
				}
				if a.reg.SetInvalid(id, false, "") {
					printSuccess("Reset %s", StyleHighlight.Render(id))
				} else {
					printInfo("%s is already valid", id)
				}
			}
			return a.flush(cmd.Context())
		},
	}
}

// pickInvalidRepo lets the user choose one of the invalid repositories.
// It returns "" when there is nothing to choose or the user quits.
func pickInvalidRepo(a *app) (string, error) {
	items := repoItems(a, func(it RepoItem) bool { return it.Repo.Invalid && !it.Repo.IsLegacy() })
	if len(items) == 0 {
		printInfo("No invalid repositories")
		return "", nil
	}

	final, err := tea.NewProgram(NewRepoListModel(items)).Run()
	if err != nil {
		return "", fmt.Errorf("repository picker: %w", err)
	}
	m, ok := final.(RepoListModel)
	if !ok || m.Selected == nil {
		return "", nil
	}
	return m.Selected.Repo.ID, nil
}

// repoItems returns the repositories with their artifact counts, in
// registration order, filtered by keep.
func repoItems(a *app, keep func(RepoItem) bool) []RepoItem {
	counts := a.reg.ArtifactCountPerRepository()
	var out []RepoItem
	for _, repo := range a.reg.Repositories() {
		it := RepoItem{Repo: repo, Artifacts: counts[repo.ID]}
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}
