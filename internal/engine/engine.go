// Package engine executes manifests: it validates the SQL they carry, opens
// the source and destination connections, and runs every step in order,
// stopping at the first failure.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/willibrandon/copgy/internal/manifest"
	"github.com/willibrandon/copgy/internal/sqlcheck"
	"github.com/willibrandon/copgy/internal/stream"
)

// DefaultProgressEvery is how many copied bytes separate progress events.
const DefaultProgressEvery = 16 << 20

// Options tune a run.
type Options struct {
	// ValidateSQL runs the pre-flight syntax check before connecting.
	ValidateSQL bool
	// BufferSize is the copy transfer unit in bytes.
	BufferSize int
	// StepTimeout bounds each step. Zero means no deadline.
	StepTimeout time.Duration
	// ProgressEvery is the byte interval between copy progress events.
	// Zero disables progress events.
	ProgressEvery int64
}

// DefaultOptions returns the options used by the CLI when nothing is configured.
func DefaultOptions() Options {
	return Options{
		ValidateSQL:   true,
		BufferSize:    stream.DefaultBufferSize,
		ProgressEvery: DefaultProgressEvery,
	}
}

// Engine runs manifests.
type Engine struct {
	opts     Options
	observer Observer
	now      func() time.Time
}

// New creates an engine. A nil observer discards events.
func New(opts Options, observer Observer) *Engine {
	if opts.BufferSize <= 0 {
		opts.BufferSize = stream.DefaultBufferSize
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Engine{opts: opts, observer: observer, now: time.Now}
}

// Options returns the effective options.
func (e *Engine) Options() Options { return e.opts }

// Execute runs m from start to finish: structural check, optional SQL
// validation, connecting source then destination, running every step, and
// closing both connections. The connector is not called when validation fails.
func (e *Engine) Execute(ctx context.Context, m manifest.Manifest, c Connector) error {
	start := e.now()

	if err := m.Check(); err != nil {
		return e.finish(start, m, &manifest.ParseError{Err: err})
	}

	if e.opts.ValidateSQL {
		e.emit(Event{Type: EventValidationStarted, Step: -1, Fragments: len(m.SQL())})
		if err := sqlcheck.Validate(m); err != nil {
			return e.finish(start, m, err)
		}
		e.emit(Event{Type: EventValidationPassed, Step: -1})
	}

	src, err := e.connect(ctx, c, RoleSource)
	if err != nil {
		return e.finish(start, m, err)
	}
	defer closeConn(ctx, src)

	dst, err := e.connect(ctx, c, RoleDestination)
	if err != nil {
		return e.finish(start, m, err)
	}
	defer closeConn(ctx, dst)

	return e.finish(start, m, e.runSteps(ctx, m, Pair{Source: src, Destination: dst}))
}

// Run executes the steps of m over already established connections. It
// returns a *StepError for the first step that fails; earlier steps are not
// rolled back.
func (e *Engine) Run(ctx context.Context, m manifest.Manifest, p Pair) error {
	return e.finish(e.now(), m, e.runSteps(ctx, m, p))
}

func (e *Engine) runSteps(ctx context.Context, m manifest.Manifest, p Pair) error {
	for i, step := range m.Steps {
		if err := ctx.Err(); err != nil {
			return &StepError{Index: i, Err: err}
		}
		if err := e.runStep(ctx, i, step, p); err != nil {
			e.emit(Event{Type: EventStepFailed, Step: i, Err: err})
			return &StepError{Index: i, Err: err}
		}
	}
	return nil
}

func (e *Engine) runStep(ctx context.Context, index int, step manifest.Step, p Pair) error {
	start := e.now()
	e.emit(Event{Type: EventStepStarted, Step: index})

	if e.opts.StepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.StepTimeout)
		defer cancel()
	}

	if step.Copy != nil {
		if err := e.copy(ctx, index, p, *step.Copy); err != nil {
			return err
		}
	}
	if step.Execute != nil {
		if err := e.execute(ctx, index, p, *step.Execute); err != nil {
			return err
		}
	}

	e.emit(Event{Type: EventStepSucceeded, Step: index, Duration: e.now().Sub(start)})
	return nil
}

func (e *Engine) connect(ctx context.Context, c Connector, role Role) (Conn, error) {
	conn, err := c.Connect(ctx, role)
	if err != nil {
		return nil, err
	}
	ev := Event{Type: EventConnected, Step: -1, Role: role}
	if s, ok := conn.(fmt.Stringer); ok {
		ev.Target = s.String()
	}
	e.emit(ev)
	return conn, nil
}

func (e *Engine) finish(start time.Time, m manifest.Manifest, err error) error {
	ev := Event{Step: -1, Steps: m.Len(), Duration: e.now().Sub(start), Err: err}
	if err != nil {
		ev.Type = EventRunFailed
	} else {
		ev.Type = EventRunCompleted
	}
	e.emit(ev)
	return err
}

func (e *Engine) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = e.now()
	}
	e.observer.Observe(ev)
}

func closeConn(ctx context.Context, c Conn) {
	_ = c.Close(context.WithoutCancel(ctx))
}
