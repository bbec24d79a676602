package engine

import (
	"fmt"

	"github.com/willibrandon/copgy/internal/errkind"
)

// Stage names the part of a step that failed.
type Stage string

const (
	StageCopy    Stage = "copy"
	StageExecute Stage = "execute"
)

// StageError is a failure inside the copy or execute stage.
type StageError struct {
	Stage   Stage
	ErrKind errkind.Kind
	Detail  string // which side or stream, e.g. "export", "destination"
	Err     error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Detail, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Kind implements errkind.Kinded.
func (e *StageError) Kind() errkind.Kind { return e.ErrKind }

// StepError carries the index of the step that stopped the run. Steps
// before Index completed.
type StepError struct {
	Index int
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d: %v", e.Index, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
