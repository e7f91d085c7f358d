package observability

import (
	"context"

	"github.com/charmbracelet/log"
)

// LogAudit writes audit events as structured log lines.
type LogAudit struct {
	logger *log.Logger
}

// NewLogAudit returns audit hooks that log every event at info level with an
// "audit" prefix. A nil logger uses the default logger.
func NewLogAudit(logger *log.Logger) *LogAudit {
	if logger == nil {
		logger = log.Default()
	}
	return &LogAudit{logger: logger.WithPrefix("audit")}
}

// Event logs the event name with its fields.
func (a *LogAudit) Event(_ context.Context, name string, fields ...any) {
	a.logger.Info(name, fields...)
}

// Tee fans audit events out to several hooks in order.
type Tee []AuditHooks

// Event forwards the event to every hook.
func (t Tee) Event(ctx context.Context, name string, fields ...any) {
	for _, h := range t {
		h.Event(ctx, name, fields...)
	}
}

var (
	_ AuditHooks = (*LogAudit)(nil)
	_ AuditHooks = Tee(nil)
)
