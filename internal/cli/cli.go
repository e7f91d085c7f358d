package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/lamacheck/pkg/buildinfo"
	"github.com/matzehuels/lamacheck/pkg/cache"
	"github.com/matzehuels/lamacheck/pkg/config"
	"github.com/matzehuels/lamacheck/pkg/fetch"
	"github.com/matzehuels/lamacheck/pkg/observability"
	"github.com/matzehuels/lamacheck/pkg/registry"
	"github.com/matzehuels/lamacheck/pkg/source"
	"github.com/matzehuels/lamacheck/pkg/store"
	"github.com/matzehuels/lamacheck/pkg/updater"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for directories and display.
const appName = config.AppName

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
	verbose    bool
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level. A debug level sticks: the config
// file's log level no longer applies.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
	c.verbose = level <= log.DebugLevel
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           appName,
		Short:         "LaMaCheck keeps track of the latest versions of Maven artifacts",
		Long:          `LaMaCheck tracks Maven artifacts across remote repositories, keeps their latest release and beta versions up to date, and discovers new artifacts and repositories from the descriptors it reads.`,
		Version:       buildinfo.Get().Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "config file (default "+config.DefaultPath()+")")

	root.AddCommand(c.runCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.artifactsCommand())
	root.AddCommand(c.reposCommand())
	root.AddCommand(c.versionCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Wiring
// =============================================================================

// loadConfig reads the configuration and applies its log level unless
// --verbose was given.
func (c *CLI) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	if !c.verbose {
		if level, err := log.ParseLevel(cfg.Log.Level); err == nil {
			c.Logger.SetLevel(level)
		}
	}
	return cfg, nil
}

// app bundles the components a command works with.
type app struct {
	cfg    *config.Config
	store  store.Backend
	reg    *registry.Registry
	cache  cache.Cache
	client *fetch.Client
	engine *updater.Engine
}

// openRegistry loads the configuration and the persisted registry behind a
// spinner.
func (c *CLI) openRegistry(ctx context.Context) (*app, error) {
	spinner := newSpinner(ctx, "Loading registry...")
	spinner.Start()
	defer spinner.Stop()
	return c.loadRegistry(ctx)
}

// loadRegistry loads the configuration and the persisted registry.
func (c *CLI) loadRegistry(ctx context.Context) (*app, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	observability.Install(observability.Hooks{Audit: observability.NewLogAudit(c.Logger)})

	backend, err := store.Open(ctx, cfg.Store.DSN, cfg.Store.Database)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	reg := registry.New(backend, registry.Options{Logger: c.Logger})
	if err := reg.Load(ctx); err != nil {
		_ = backend.Close()
		return nil, err
	}
	c.Logger.Debug("registry loaded", "dsn", cfg.Store.DSN, "artifacts", reg.ArtifactCount(), "repositories", reg.RepositoryCount())
	return &app{cfg: cfg, store: backend, reg: reg}, nil
}

// openEngine opens the registry and builds the update engine on top of it.
func (c *CLI) openEngine(ctx context.Context, noCache bool) (*app, error) {
	a, err := c.openRegistry(ctx)
	if err != nil {
		return nil, err
	}

	a.cache, err = newCache(ctx, a.cfg.Cache, noCache)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.client = fetch.New(fetch.Options{
		Timeout:          a.cfg.HTTP.Timeout,
		Attempts:         a.cfg.HTTP.Attempts,
		BaseDelay:        a.cfg.HTTP.BaseDelay,
		BreakerThreshold: a.cfg.HTTP.BreakerThreshold,
		UserAgent:        a.cfg.HTTP.UserAgent,
		Cache:            a.cache,
		CacheTTL:         a.cfg.Cache.TTL,
		Logger:           c.Logger,
	})
	a.engine = updater.New(a.reg, source.NewHTTP(a.client, c.Logger), updater.Options{
		Workers:        a.cfg.Update.Workers,
		Thresholds:     a.cfg.Update.Thresholds,
		AllowDowngrade: a.cfg.Update.AllowDowngrade,
		Logger:         c.Logger,
	})
	return a, nil
}

// Close releases the store, the HTTP client and the cache.
func (a *app) Close() {
	if a.client != nil {
		_ = a.client.Close()
	}
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}

// flush saves pending registry changes.
func (a *app) flush(ctx context.Context) error {
	return a.reg.Flush(ctx)
}

func newCache(ctx context.Context, cfg config.CacheConfig, noCache bool) (cache.Cache, error) {
	if noCache || cfg.Backend == config.CacheNone {
		return cache.NewNoop(), nil
	}
	if cfg.Backend == config.CacheRedis {
		return cache.NewRedisCache(ctx, cache.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	}
	if cfg.Dir == "" {
		return cache.NewNoop(), nil
	}
	fc, err := cache.NewFileCache(cfg.Dir)
	if err != nil {
		return nil, err
	}
	return fc, nil
}

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns the configured cache directory, falling back to the XDG
// standard (~/.cache/lamacheck/) when the config cannot be read.
func (c *CLI) cacheDir() (string, error) {
	cfg, err := config.Load(c.configPath)
	if err == nil {
		return cfg.Cache.Dir, nil
	}
	if c.configPath != "" {
		return "", err
	}
	if _, statErr := os.Stat(config.DefaultPath()); statErr == nil {
		return "", err
	}
	return config.CacheDir(), nil
}
