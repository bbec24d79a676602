package manifest

// NewCopyStep returns a step that copies the rows of query into table.
func NewCopyStep(query, table string) Step {
	return NewStep().Copy(query, table).Build()
}

// NewExecuteStep returns a step that runs the given commands. An empty
// command is treated as absent.
func NewExecuteStep(sourceCommand, destCommand string) Step {
	return NewStep().ExecuteOnSource(sourceCommand).ExecuteOnDestination(destCommand).Build()
}

// StepBuilder assembles an immutable Step from optional parts.
type StepBuilder struct {
	copySpec *CopySpec
	source   *string
	dest     *string
}

// NewStep starts an empty step.
func NewStep() *StepBuilder {
	return &StepBuilder{}
}

// Copy sets the copy branch.
func (b *StepBuilder) Copy(query, table string) *StepBuilder {
	b.copySpec = &CopySpec{SourceQuery: query, DestTable: table}
	return b
}

// ExecuteOnSource sets the command run on the source. Empty is ignored.
func (b *StepBuilder) ExecuteOnSource(command string) *StepBuilder {
	if command != "" {
		b.source = &command
	}
	return b
}

// ExecuteOnDestination sets the command run on the destination. Empty is ignored.
func (b *StepBuilder) ExecuteOnDestination(command string) *StepBuilder {
	if command != "" {
		b.dest = &command
	}
	return b
}

// Build returns the step. The builder may be reused; steps already built
// do not share memory with it.
func (b *StepBuilder) Build() Step {
	var s Step
	if b.copySpec != nil {
		c := *b.copySpec
		s.Copy = &c
	}
	if b.source != nil || b.dest != nil {
		e := &ExecuteSpec{}
		if b.source != nil {
			v := *b.source
			e.SourceCommand = &v
		}
		if b.dest != nil {
			v := *b.dest
			e.DestCommand = &v
		}
		s.Execute = e
	}
	return s
}
