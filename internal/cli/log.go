// Package cli implements the lamacheck command line.
//
// Commands:
//   - run: run one update cycle, or one per interval with --every
//   - serve: serve the status API and run scheduled cycles
//   - artifacts: list, add, show and remove artifacts, exclude versions
//   - repos: list, add and reset repositories
//   - version: parse and compare Maven versions
//   - cache: inspect and clear the document cache
//
// Human-facing output goes to stdout through the print helpers in ui.go.
// Diagnostics go through a charmbracelet/log logger on stderr whose level
// comes from --verbose or the log.level config key.
package cli

import (
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// newLogger returns a logger writing to w with short timestamps
// ("14:32:01.45").
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// progress measures one operation and logs its completion.
type progress struct {
	logger *log.Logger
	start  time.Time
}

func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now()}
}

// done logs msg at info level with keyvals and the elapsed time, rounded to
// the millisecond, as "elapsed".
func (p *progress) done(msg string, keyvals ...any) {
	keyvals = append(keyvals, "elapsed", time.Since(p.start).Round(time.Millisecond))
	p.logger.Info(msg, keyvals...)
}
