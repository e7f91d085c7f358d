// Package executor runs update tasks on a bounded pool of workers.
//
// [Run] feeds tasks to the workers through a channel and returns once every
// dispatched task has finished. A failing or panicking task is logged and
// counted; it never cancels its siblings. When the context is cancelled no
// further tasks are dispatched, and tasks already running finish on their
// own terms.
package executor

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/lamacheck/pkg/observability"
)

// Kind classifies a task.
type Kind string

// Task kinds.
const (
	KindSearch   Kind = "search"   // look for a new artifact in every repository
	KindRefresh  Kind = "refresh"  // re-read the version indexes of an artifact
	KindDiscover Kind = "discover" // look for known artifacts in a new repository
)

// Task is one unit of work. Subject is the artifact or repository id the
// task is about.
type Task struct {
	Kind    Kind
	Subject string
	Run     func(ctx context.Context) error
}

// Options configures Run.
type Options struct {
	Workers int // default 10 * runtime.NumCPU()
	Logger  *log.Logger

	// OnDone, if set, is called from the worker after each task with the
	// task's error. It must be safe for concurrent use.
	OnDone func(t Task, err error)
}

// WithDefaults returns a copy of o with zero fields replaced by defaults.
func (o Options) WithDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 10 * runtime.NumCPU()
	}
	if o.Logger == nil {
		o.Logger = log.New(io.Discard)
	}
	return o
}

// Report summarizes a Run.
type Report struct {
	Total     int
	Succeeded int
	Failed    int
	Skipped   int // not dispatched because the context was cancelled
	Duration  time.Duration
}

// PanicError is the error recorded for a task that panicked.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("task panicked: %v", e.Value) }

// Run executes tasks and blocks until all dispatched tasks are done.
func Run(ctx context.Context, tasks []Task, opts Options) Report {
	opts = opts.WithDefaults()
	start := time.Now()
	report := Report{Total: len(tasks)}
	if len(tasks) == 0 {
		return report
	}

	workers := min(opts.Workers, len(tasks))
	jobs := make(chan int, workers*2)
	var succeeded, failed int64
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				err := runTask(ctx, i, tasks[i], opts.Logger)
				if err != nil {
					atomic.AddInt64(&failed, 1)
				} else {
					atomic.AddInt64(&succeeded, 1)
				}
				if opts.OnDone != nil {
					opts.OnDone(tasks[i], err)
				}
			}
		}()
	}

	dispatched := 0
feed:
	for i := range tasks {
		if ctx.Err() != nil {
			break
		}
		select {
		case jobs <- i:
			dispatched++
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	report.Succeeded = int(succeeded)
	report.Failed = int(failed)
	report.Skipped = len(tasks) - dispatched
	report.Duration = time.Since(start)
	if report.Skipped > 0 {
		opts.Logger.Warn("cancelled before all tasks were dispatched", "skipped", report.Skipped)
	}
	return report
}

func runTask(ctx context.Context, index int, t Task, logger *log.Logger) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
			buf := make([]byte, 4096)
			buf = buf[:runtime.Stack(buf, false)]
			logger.Error("task panicked", "index", index, "kind", t.Kind, "subject", t.Subject, "panic", r, "stack", string(buf))
		} else if err != nil {
			logger.Warn("task failed", "index", index, "kind", t.Kind, "subject", t.Subject, "err", err)
		}
		observability.Cycle().OnTaskComplete(ctx, string(t.Kind), time.Since(start), err)
	}()

	logger.Debug("running task", "index", index, "kind", t.Kind, "subject", t.Subject)
	return t.Run(ctx)
}
