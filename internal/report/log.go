package report

import (
	"log/slog"

	"github.com/willibrandon/copgy/internal/engine"
	"github.com/willibrandon/copgy/internal/errkind"
)

// LogObserver writes engine events as structured log records.
type LogObserver struct {
	log *slog.Logger
}

// NewLogObserver creates an observer logging to log.
func NewLogObserver(log *slog.Logger) *LogObserver {
	return &LogObserver{log: log}
}

// Observe implements engine.Observer.
func (o *LogObserver) Observe(e engine.Event) {
	attrs := []any{"event", string(e.Type)}
	if e.Step >= 0 {
		attrs = append(attrs, "step", e.Step)
	}
	if e.Role != "" {
		attrs = append(attrs, "role", string(e.Role))
	}
	if e.Target != "" {
		attrs = append(attrs, "target", e.Target)
	}
	if e.Table != "" {
		attrs = append(attrs, "table", e.Table)
	}
	if e.SQL != "" {
		attrs = append(attrs, "sql", e.SQL)
	}
	if e.Bytes > 0 {
		attrs = append(attrs, "bytes", e.Bytes)
	}
	if e.Rows > 0 {
		attrs = append(attrs, "rows", e.Rows)
	}
	if e.Fragments > 0 {
		attrs = append(attrs, "fragments", e.Fragments)
	}
	if e.Steps > 0 {
		attrs = append(attrs, "steps", e.Steps)
	}
	if e.Duration > 0 {
		attrs = append(attrs, "duration", e.Duration)
	}

	switch e.Type {
	case engine.EventStepFailed, engine.EventRunFailed:
		attrs = append(attrs, "kind", string(errkind.Of(e.Err)), "error", e.Err)
		o.log.Error(message(e.Type), attrs...)
	case engine.EventCopyProgress:
		o.log.Debug(message(e.Type), attrs...)
	default:
		o.log.Info(message(e.Type), attrs...)
	}
}

func message(t engine.EventType) string {
	switch t {
	case engine.EventValidationStarted:
		return "Validating SQL"
	case engine.EventValidationPassed:
		return "SQL validation passed"
	case engine.EventConnected:
		return "Connection established"
	case engine.EventStepStarted:
		return "Step started"
	case engine.EventStepSucceeded:
		return "Step succeeded"
	case engine.EventStepFailed:
		return "Step failed"
	case engine.EventCopyStarted:
		return "Copy started"
	case engine.EventCopyProgress:
		return "Copy progress"
	case engine.EventCopyFinished:
		return "Copy finished"
	case engine.EventExecuteStarted:
		return "Executing command"
	case engine.EventRunCompleted:
		return "Run completed"
	case engine.EventRunFailed:
		return "Run failed"
	default:
		return string(t)
	}
}
