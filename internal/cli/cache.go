package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/matzehuels/lamacheck/pkg/cache"
)

// cacheCommand creates the document cache command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and clear the document cache",
		Long: `Inspect and clear the file cache of fetched repository documents. The
cache mirrors every repository host under its own directory. A Redis cache
expires its entries on its own and is not touched by these commands.`,
	}

	cmd.AddCommand(c.cacheStatsCommand())
	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())

	return cmd
}

// cacheStatsCommand creates the "cache stats" subcommand.
func (c *CLI) cacheStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cached documents per repository host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fc, err := c.openFileCache()
			if err != nil || fc == nil {
				return err
			}

			stats, err := fc.Stats()
			if err != nil {
				return err
			}
			if len(stats) == 0 {
				printInfo("Cache is empty")
				return nil
			}

			rows := make([][]string, 0, len(stats))
			total := 0
			for _, st := range stats {
				rows = append(rows, []string{
					st.Host,
					strconv.Itoa(st.Entries),
					strconv.Itoa(st.Expired),
					formatBytes(st.Bytes),
				})
				total += st.Entries
			}
			printTable([]string{"Host", "Documents", "Expired", "Size"}, rows)
			printDetail("%d documents in %s", total, fc.Dir())
			return nil
		},
	}
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear [host]",
		Short: "Remove cached documents, optionally for one host only",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fc, err := c.openFileCache()
			if err != nil || fc == nil {
				return err
			}

			host := ""
			if len(args) == 1 {
				host = args[0]
			}
			n, err := fc.Purge(host)
			if err != nil {
				return err
			}
			if host != "" {
				printSuccess("Cleared %d cached documents of %s", n, host)
			} else {
				printSuccess("Cleared %d cached documents", n)
			}
			printDetail("Directory: %s", fc.Dir())
			return nil
		},
	}
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := c.cacheDir()
			if err != nil {
				return fmt.Errorf("get cache dir: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), dir)
			return nil
		},
	}
}

// openFileCache opens the cache directory. It returns nil without an error
// when the directory does not exist yet.
func (c *CLI) openFileCache() (*cache.FileCache, error) {
	dir, err := c.cacheDir()
	if err != nil {
		return nil, fmt.Errorf("get cache dir: %w", err)
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		printInfo("Cache is empty")
		return nil, nil
	}
	return cache.NewFileCache(dir)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
