// Package manifest defines the ordered step model that copgy executes.
package manifest

import (
	"errors"
	"fmt"
	"strings"
)

// Structural errors.
var (
	ErrSourceQueryRequired = errors.New("copy.source_sql is required")
	ErrDestTableRequired   = errors.New("copy.dest_table is required")
)

// Manifest is the ordered list of steps for one run.
type Manifest struct {
	Steps []Step
}

// Step holds a copy request, an execute request, both, or neither.
// When both are present the copy runs before the execute.
type Step struct {
	Copy    *CopySpec    `json:"copy,omitempty" yaml:"copy,omitempty"`
	Execute *ExecuteSpec `json:"execute,omitempty" yaml:"execute,omitempty"`
}

// CopySpec streams the rows of SourceQuery into DestTable.
type CopySpec struct {
	SourceQuery string `json:"source_sql" yaml:"source_sql"`
	DestTable   string `json:"dest_table" yaml:"dest_table"`
}

// ExecuteSpec runs literal commands against the source and/or destination.
type ExecuteSpec struct {
	SourceCommand *string `json:"source_sql,omitempty" yaml:"source_sql,omitempty"`
	DestCommand   *string `json:"dest_sql,omitempty" yaml:"dest_sql,omitempty"`
}

// New returns a manifest over steps.
func New(steps ...Step) Manifest {
	return Manifest{Steps: steps}
}

// Len returns the number of steps.
func (m Manifest) Len() int { return len(m.Steps) }

// Check verifies the structural invariants of every step.
func (m Manifest) Check() error {
	for i, s := range m.Steps {
		if err := s.Check(); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	return nil
}

// Check verifies the structural invariants of the step.
func (s Step) Check() error {
	if s.Copy == nil {
		return nil
	}
	if strings.TrimSpace(s.Copy.SourceQuery) == "" {
		return ErrSourceQueryRequired
	}
	if strings.TrimSpace(s.Copy.DestTable) == "" {
		return ErrDestTableRequired
	}
	return nil
}

// IsNoop reports whether the step requests nothing.
func (s Step) IsNoop() bool {
	if s.Copy != nil {
		return false
	}
	return s.Execute == nil || s.Execute.IsEmpty()
}

// IsEmpty reports whether neither command is set.
func (e ExecuteSpec) IsEmpty() bool {
	return e.SourceCommand == nil && e.DestCommand == nil
}

// SQL returns every SQL fragment the manifest carries, in step order.
// For a step this is the copy query, then the source command, then the
// destination command, each only when present.
func (m Manifest) SQL() []string {
	var sqls []string
	for _, s := range m.Steps {
		if s.Copy != nil {
			sqls = append(sqls, s.Copy.SourceQuery)
		}
		if s.Execute != nil {
			if s.Execute.SourceCommand != nil {
				sqls = append(sqls, *s.Execute.SourceCommand)
			}
			if s.Execute.DestCommand != nil {
				sqls = append(sqls, *s.Execute.DestCommand)
			}
		}
	}
	return sqls
}
