package cli

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/lamacheck/internal/server"
	"github.com/matzehuels/lamacheck/pkg/metrics"
)

// serveCommand creates the serve command, which runs the status API and
// scheduled update cycles.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		addr     string
		noCycles bool
		noCache  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the status API and run scheduled update cycles",
		Long: `Serve the status API and run an update cycle per update.every.

Endpoints:
  GET  /healthz
  GET  /api/v1/artifacts
  GET  /api/v1/artifacts/{id}
  GET  /api/v1/repositories?state=invalid|empty
  GET  /api/v1/status
  POST /api/v1/cycles
  GET  /metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.openEngine(ctx, noCache)
			if err != nil {
				return err
			}
			defer a.Close()

			metrics.New(prometheus.DefaultRegisterer).Install()

			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			srv := server.New(ctx, a.reg, a.engine, server.Options{Addr: addr, Logger: c.Logger})

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return srv.ListenAndServe(gctx)
			})
			if !noCycles {
				g.Go(func() error {
					c.schedule(gctx, a.engine, a.cfg.Update.Every)
					return nil
				})
			}

			printInfo("Serving status API on %s", StyleHighlight.Render(addr))
			if !noCycles {
				printDetail("update cycle every %s", a.cfg.Update.Every)
			}
			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr from the config file)")
	cmd.Flags().BoolVar(&noCycles, "no-cycles", false, "only start cycles through POST /api/v1/cycles")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the HTTP response cache")

	return cmd
}
