package engine

import "time"

// EventType identifies a point in the run lifecycle.
type EventType string

const (
	EventValidationStarted EventType = "validation.started"
	EventValidationPassed  EventType = "validation.passed"
	EventConnected         EventType = "connection.established"
	EventStepStarted       EventType = "step.started"
	EventStepSucceeded     EventType = "step.succeeded"
	EventStepFailed        EventType = "step.failed"
	EventCopyStarted       EventType = "copy.started"
	EventCopyProgress      EventType = "copy.progress"
	EventCopyFinished      EventType = "copy.finished"
	EventExecuteStarted    EventType = "execute.started"
	EventRunCompleted      EventType = "run.completed"
	EventRunFailed         EventType = "run.failed"
)

// Event describes something the engine did. Only the fields relevant to
// Type are set; Step is -1 for run-level events.
type Event struct {
	Type      EventType
	Time      time.Time
	Step      int
	Role      Role
	Target    string
	Table     string
	SQL       string
	Bytes     int64
	Rows      int64
	Fragments int
	Steps     int
	Duration  time.Duration
	Err       error
}

// Observer receives engine events. Observe is called synchronously from the
// goroutine running the engine.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe implements Observer.
func (f ObserverFunc) Observe(e Event) { f(e) }

// Observers fans events out in order.
type Observers []Observer

// Observe implements Observer.
func (o Observers) Observe(e Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(e)
		}
	}
}

type nopObserver struct{}

func (nopObserver) Observe(Event) {}
