// Package updater runs update cycles over the registry.
//
// One cycle plans the work from the registry's staleness timestamps, runs
// it on the executor, and records the results. It then registers what the
// fetched descriptors revealed and resolves those new artifacts and
// repositories in a second wave. Fetch problems never fail a cycle; they
// end up as error timestamps on the artifacts and, for repositories that
// fail at the connection level, as an invalid flag on the repository.
package updater

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/lamacheck/pkg/blacklist"
	"github.com/matzehuels/lamacheck/pkg/discovery"
	"github.com/matzehuels/lamacheck/pkg/errors"
	"github.com/matzehuels/lamacheck/pkg/executor"
	"github.com/matzehuels/lamacheck/pkg/observability"
	"github.com/matzehuels/lamacheck/pkg/planner"
	"github.com/matzehuels/lamacheck/pkg/registry"
	"github.com/matzehuels/lamacheck/pkg/source"
)

// ErrCycleRunning is returned when a cycle is requested while another one
// is still running.
var ErrCycleRunning = errors.New(errors.ErrCodeCycleRunning, "an update cycle is already running")

// Options configures an Engine.
type Options struct {
	Workers        int                // executor pool size, default 10 * NumCPU
	Thresholds     planner.Thresholds // staleness thresholds
	AllowDowngrade bool               // accept a lower latest version reported by the repositories
	Logger         *log.Logger
	Clock          func() time.Time
}

// WithDefaults returns a copy of o with zero fields replaced by defaults.
func (o Options) WithDefaults() Options {
	o.Thresholds = o.Thresholds.WithDefaults()
	if o.Logger == nil {
		o.Logger = log.New(io.Discard)
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// Status describes the running or most recent cycle.
type Status struct {
	RunID        string        `json:"run_id,omitempty"`
	Running      bool          `json:"running"`
	Started      time.Time     `json:"started,omitzero"`
	Duration     time.Duration `json:"duration"`
	Updated      int           `json:"updated"`
	Search       int           `json:"search"`
	Refresh      int           `json:"refresh"`
	Discover     int           `json:"discover"`
	Done         int           `json:"done"`
	NewArtifacts int           `json:"new_artifacts"`
	NewRepos     int           `json:"new_repos"`
	Failed       int           `json:"failed"`
	Blacklisted  []string      `json:"blacklisted,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// Engine runs update cycles. It is safe for concurrent use; cycles never
// overlap.
type Engine struct {
	reg     *registry.Registry
	src     source.Source
	opts    Options
	running atomic.Bool

	mu     sync.RWMutex
	status Status
}

// New returns an Engine updating reg from src.
func New(reg *registry.Registry, src source.Source, opts Options) *Engine {
	return &Engine{reg: reg, src: src, opts: opts.WithDefaults()}
}

// Status returns a copy of the current cycle status.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := e.status
	s.Blacklisted = append([]string(nil), e.status.Blacklisted...)
	return s
}

// Running reports whether a cycle is in progress.
func (e *Engine) Running() bool { return e.running.Load() }

func (e *Engine) setStatus(fn func(*Status)) {
	e.mu.Lock()
	fn(&e.status)
	e.mu.Unlock()
}

// RunUpdateCycle runs one update cycle and returns the number of artifacts
// whose latest release or beta version changed. The only errors returned
// are persistence errors and ErrCycleRunning.
func (e *Engine) RunUpdateCycle(ctx context.Context) (int, error) {
	if !e.running.CompareAndSwap(false, true) {
		return 0, ErrCycleRunning
	}
	defer e.running.Store(false)

	runID := uuid.NewString()
	start := e.opts.Clock()
	logger := e.opts.Logger.With("run", runID[:8])
	c := &cycle{
		reg:    e.reg,
		src:    e.src,
		opts:   e.opts,
		logger: logger,
		bl:     blacklist.New(logger),
		disc:   discovery.New(logger),
	}
	e.setStatus(func(s *Status) { *s = Status{RunID: runID, Running: true, Started: start} })

	observability.Cycle().OnCycleStart(ctx, runID)
	observability.Audit().Event(ctx, "cycle-start", "run", runID)
	timer := time.Now()

	updated, err := e.run(ctx, c)

	elapsed := time.Since(timer)
	e.setStatus(func(s *Status) {
		s.Running = false
		s.Duration = elapsed
		s.Updated = updated
		s.Blacklisted = c.bl.IDs()
		if err != nil {
			s.Error = err.Error()
		}
	})
	observability.Cycle().OnCycleComplete(ctx, runID, updated, elapsed, err)
	if err != nil {
		logger.Error("update cycle failed", "err", err, "duration", elapsed)
		return updated, err
	}
	if updated == 0 {
		logger.Info("all artifacts are up to date", "artifacts", e.reg.ArtifactCount(), "duration", elapsed)
	} else {
		logger.Info("artifacts updated", "updated", updated, "duration", elapsed)
	}
	return updated, nil
}

func (e *Engine) run(ctx context.Context, c *cycle) (int, error) {
	execOpts := executor.Options{
		Workers: e.opts.Workers,
		Logger:  c.logger,
		OnDone: func(executor.Task, error) {
			e.setStatus(func(s *Status) { s.Done++ })
		},
	}

	// Wave 1: planned work.
	e.reg.Begin()
	timer := time.Now()
	plan := planner.Build(e.reg.Artifacts(), e.reg.Repositories(), e.opts.Clock(), e.opts.Thresholds)
	e.setStatus(func(s *Status) {
		s.Search, s.Refresh, s.Discover = len(plan.Search), len(plan.Refresh), len(plan.Discover)
	})
	c.logger.Info("planned update cycle", "search", len(plan.Search), "refresh", len(plan.Refresh), "discover", len(plan.Discover))

	report := executor.Run(ctx, c.tasks(plan.Search, plan.Refresh, plan.Discover), execOpts)
	c.invalidateBlacklisted()
	updated := int(c.updated.Load())
	observability.Audit().Event(ctx, "update-maven-artifact-list",
		"artifacts", e.reg.ArtifactCount(), "duration", time.Since(timer), "updated", updated)
	e.setStatus(func(s *Status) { s.Failed = report.Failed })
	if err := e.reg.End(ctx); err != nil {
		return updated, err
	}

	if ctx.Err() != nil {
		c.logger.Warn("update cycle cancelled", "skipped", report.Skipped)
		return updated, nil
	}

	// Wave 2: whatever the fetched descriptors revealed.
	e.reg.Begin()
	newArtifacts, newRepos := c.disc.Register(e.reg)
	e.setStatus(func(s *Status) { s.NewArtifacts, s.NewRepos = len(newArtifacts), len(newRepos) })
	if len(newArtifacts) > 0 || len(newRepos) > 0 {
		report = executor.Run(ctx, c.tasks(newArtifacts, nil, newRepos), execOpts)
		c.invalidateBlacklisted()
		e.setStatus(func(s *Status) { s.Failed += report.Failed })
	}
	if err := e.reg.End(ctx); err != nil {
		return updated, err
	}
	return updated, nil
}

// cycle is the state shared by the tasks of one update cycle.
type cycle struct {
	reg    *registry.Registry
	src    source.Source
	opts   Options
	logger *log.Logger
	bl     *blacklist.Blacklist
	disc   *discovery.Handler

	updated atomic.Int64

	imu         sync.Mutex
	invalidated map[string]bool
}

func (c *cycle) tasks(search, refresh, discover []string) []executor.Task {
	tasks := make([]executor.Task, 0, len(search)+len(refresh)+len(discover))
	for _, id := range search {
		id := id
		tasks = append(tasks, executor.Task{Kind: executor.KindSearch, Subject: id, Run: func(ctx context.Context) error {
			return c.search(ctx, id)
		}})
	}
	for _, id := range refresh {
		id := id
		tasks = append(tasks, executor.Task{Kind: executor.KindRefresh, Subject: id, Run: func(ctx context.Context) error {
			return c.refresh(ctx, id)
		}})
	}
	for _, id := range discover {
		id := id
		tasks = append(tasks, executor.Task{Kind: executor.KindDiscover, Subject: id, Run: func(ctx context.Context) error {
			return c.discover(ctx, id)
		}})
	}
	return tasks
}

// invalidateBlacklisted marks every repository blacklisted so far invalid.
// Repositories handled by an earlier call are skipped.
func (c *cycle) invalidateBlacklisted() {
	c.imu.Lock()
	defer c.imu.Unlock()
	if c.invalidated == nil {
		c.invalidated = make(map[string]bool)
	}
	for _, id := range c.bl.IDs() {
		if c.invalidated[id] {
			continue
		}
		c.invalidated[id] = true
		c.logger.Warn("blacklisted repository", "repo", id)
		if c.reg.HasRepository(id) {
			c.reg.SetInvalid(id, true, fmt.Sprintf("Was added to blacklist around %s", c.opts.Clock().Format(time.RFC3339)))
		}
	}
}
