package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/lamacheck/pkg/errors"
	"github.com/matzehuels/lamacheck/pkg/updater"
)

// runCommand creates the run command, which runs update cycles in the
// foreground.
func (c *CLI) runCommand() *cobra.Command {
	var (
		every   time.Duration
		noCache bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an update cycle",
		Long: `Run one update cycle over the registry: search new artifacts in every known
repository, refresh stale artifacts, list the contents of new repositories,
and register what the fetched descriptors reveal.

With --every, a cycle runs per interval until interrupted. An interval of 0
uses update.every from the config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.openEngine(ctx, noCache)
			if err != nil {
				return err
			}
			defer a.Close()

			if !cmd.Flags().Changed("every") {
				return c.runOnce(ctx, a)
			}
			if every <= 0 {
				every = a.cfg.Update.Every
			}
			printInfo("Running an update cycle every %s", every)
			c.schedule(ctx, a.engine, every)
			return ctx.Err()
		},
	}

	cmd.Flags().DurationVar(&every, "every", 0, "run a cycle per interval until interrupted")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the HTTP response cache")

	return cmd
}

// runOnce runs a single cycle and prints its summary.
func (c *CLI) runOnce(ctx context.Context, a *app) error {
	engine := a.engine
	prog := newProgress(c.Logger)
	spinner := newProgressSpinner(ctx, func() string { return cycleProgress(engine.Status()) })
	spinner.Start()
	n, err := engine.RunUpdateCycle(ctx)
	spinner.Stop()
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	prog.done("update cycle finished", "updated", n)
	printCycleSummary(engine.Status())
	printOpenCircuits(a.client.BreakerStates())
	return nil
}

// printOpenCircuits lists the hosts whose circuit breaker is still open.
func printOpenCircuits(states map[string]string) {
	var open []string
	for host, state := range states {
		if state == "open" {
			open = append(open, host)
		}
	}
	if len(open) == 0 {
		return
	}
	sort.Strings(open)
	printWarning("Circuit open for %d hosts", len(open))
	for _, host := range open {
		printDetail("%s", host)
	}
}

// cycleProgress describes a running cycle for the spinner.
func cycleProgress(st updater.Status) string {
	total := st.Search + st.Refresh + st.Discover + st.NewArtifacts + st.NewRepos
	if !st.Running || total == 0 {
		return "Planning update cycle..."
	}
	return fmt.Sprintf("Update cycle: %d/%d tasks", st.Done, total)
}

// schedule runs a cycle immediately and then once per interval until ctx is
// done. Failed cycles are logged and retried at the next tick.
func (c *CLI) schedule(ctx context.Context, engine *updater.Engine, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		n, err := engine.RunUpdateCycle(ctx)
		switch {
		case errors.Is(err, errors.ErrCodeCycleRunning):
			c.Logger.Debug("skipping tick, previous cycle still running")
		case err != nil:
			c.Logger.Error("update cycle failed", "err", err)
		case ctx.Err() == nil:
			c.Logger.Info("next update cycle scheduled", "updated", n, "next", time.Now().Add(every).Format(time.TimeOnly))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// printCycleSummary prints the result of a finished cycle.
func printCycleSummary(st updater.Status) {
	if st.Updated == 0 {
		printSuccess("All artifacts are up to date")
	} else {
		printSuccess("Updated %s artifacts", StyleNumber.Render(fmt.Sprint(st.Updated)))
	}
	printCycleStats(st)
	if len(st.Blacklisted) > 0 {
		printWarning("Blacklisted %d repositories", len(st.Blacklisted))
		for _, id := range st.Blacklisted {
			printDetail("%s", id)
		}
	}
	if st.Failed > 0 {
		printWarning("%d tasks failed, see the log for details", st.Failed)
	}
}
