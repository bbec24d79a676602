package engine

import (
	"context"

	"github.com/willibrandon/copgy/internal/errkind"
	"github.com/willibrandon/copgy/internal/manifest"
)

// execute runs the source command, then the destination command. The
// destination command is skipped when the source command fails. There is
// no atomicity between the two.
func (e *Engine) execute(ctx context.Context, index int, p Pair, spec manifest.ExecuteSpec) error {
	if spec.SourceCommand != nil {
		if err := e.exec(ctx, index, RoleSource, p.Source, *spec.SourceCommand); err != nil {
			return err
		}
	}
	if spec.DestCommand != nil {
		if err := e.exec(ctx, index, RoleDestination, p.Destination, *spec.DestCommand); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) exec(ctx context.Context, index int, role Role, x Executor, sql string) error {
	e.emit(Event{Type: EventExecuteStarted, Step: index, Role: role, SQL: sql})
	if err := x.Exec(ctx, sql); err != nil {
		return &StageError{Stage: StageExecute, ErrKind: errkind.CommandExecution, Detail: string(role), Err: err}
	}
	return nil
}
