package runtime

import (
	"fmt"
	"log/slog"
)

// ExecutionEventKind tags the variants of ExecutionEvent.
type ExecutionEventKind string

const (
	EventExecutionStarted   ExecutionEventKind = "EXECUTION_STARTED"
	EventComponentEnter     ExecutionEventKind = "COMPONENT_ENTER"
	EventComponentExit      ExecutionEventKind = "COMPONENT_EXIT"
	EventContextChanged     ExecutionEventKind = "CONTEXT_CHANGED"
	EventDecisionEvaluated  ExecutionEventKind = "DECISION_EVALUATED"
	EventExecutionCompleted ExecutionEventKind = "EXECUTION_COMPLETED"
	EventExecutionFailed    ExecutionEventKind = "EXECUTION_FAILED"
	EventExecutionAborted   ExecutionEventKind = "EXECUTION_ABORTED"
)

// ExecutionEvent is the single struct carrying every observer
// notification; Kind selects which fields are meaningful, the same
// tagged-sum-over-struct approach used by VariableValue rather than a
// Go interface with one implementation per kind, since observers only
// ever need to switch on Kind and read a handful of shared fields.
type ExecutionEvent struct {
	Kind        ExecutionEventKind
	ExecutionID string
	FlowID      string
	ComponentID string
	Port        string
	Decision    bool
	// Variables/OldVariables carry the new and prior variable snapshots
	// on a ContextChanged event; Reason says which component caused it.
	Variables    map[string]VariableValue
	OldVariables map[string]VariableValue
	Reason       string
	// DurationMs is the wall-clock duration for ComponentExit and for the
	// terminal ExecutionCompleted/Failed/Aborted events the executor
	// emits; an ExecutionFailed raised by the step engine for a failing
	// component leaves it 0.
	DurationMs  int64
	Error       *ExecutionError
	TimestampMs int64
}

// ExecutionObserver receives a callback for every ExecutionEvent emitted
// during a run. Implementations must not block the calling goroutine for
// long and must not mutate the event.
type ExecutionObserver interface {
	OnEvent(event ExecutionEvent)
}

// ExecutionObserverFunc adapts a plain function to ExecutionObserver.
type ExecutionObserverFunc func(ExecutionEvent)

func (f ExecutionObserverFunc) OnEvent(event ExecutionEvent) { f(event) }

// CompositeExecutionObserver fans a single event out to a set of
// observers, isolating each from the others' panics/failures: delivery
// continues past a failing observer rather than letting it take down
// the whole bus.
type CompositeExecutionObserver struct {
	observers []ExecutionObserver
	onPanic   func(observerIndex int, recovered any)
}

// NewCompositeExecutionObserver builds a fan-out bus over observers.
func NewCompositeExecutionObserver(observers ...ExecutionObserver) *CompositeExecutionObserver {
	return &CompositeExecutionObserver{observers: observers}
}

// WithPanicHandler installs a callback invoked whenever a member
// observer panics, instead of the default (log via slog and continue).
func (c *CompositeExecutionObserver) WithPanicHandler(h func(observerIndex int, recovered any)) *CompositeExecutionObserver {
	c.onPanic = h
	return c
}

// OnEvent dispatches event to every member observer in order, catching
// panics so one misbehaving observer never interrupts delivery to the
// rest or aborts the execution it is observing.
func (c *CompositeExecutionObserver) OnEvent(event ExecutionEvent) {
	for i, obs := range c.observers {
		c.dispatchOne(i, obs, event)
	}
}

func (c *CompositeExecutionObserver) dispatchOne(index int, obs ExecutionObserver, event ExecutionEvent) {
	defer func() {
		if r := recover(); r != nil {
			if c.onPanic != nil {
				c.onPanic(index, r)
				return
			}
			slog.Error("observer panicked", "observer_index", index, "recovered", r, "event_kind", event.Kind)
		}
	}()
	obs.OnEvent(event)
}

// Add appends an observer to the bus.
func (c *CompositeExecutionObserver) Add(obs ExecutionObserver) {
	c.observers = append(c.observers, obs)
}

// SlogObserver logs every event through a structured slog.Logger at a
// level appropriate to its kind (ExecutionFailed at Error,
// ExecutionAborted at Warn, ComponentEnter/Exit at Debug, everything
// else at Info).
type SlogObserver struct {
	logger *slog.Logger
}

// NewSlogObserver wraps logger (or slog.Default() if nil) as an
// ExecutionObserver.
func NewSlogObserver(logger *slog.Logger) *SlogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogObserver{logger: logger}
}

func (s *SlogObserver) OnEvent(event ExecutionEvent) {
	attrs := []any{
		"execution_id", event.ExecutionID,
		"flow_id", event.FlowID,
		"component_id", event.ComponentID,
	}
	switch event.Kind {
	case EventExecutionFailed:
		msg := "execution failed"
		if event.Error != nil {
			attrs = append(attrs, "error_code", event.Error.Code, "error", event.Error.Error())
		}
		s.logger.Error(fmt.Sprintf("%s: %s", event.Kind, msg), attrs...)
	case EventExecutionAborted:
		s.logger.Warn(string(event.Kind), attrs...)
	case EventDecisionEvaluated:
		attrs = append(attrs, "decision", event.Decision)
		s.logger.Info(string(event.Kind), attrs...)
	case EventComponentEnter, EventComponentExit:
		attrs = append(attrs, "port", event.Port, "duration_ms", event.DurationMs)
		s.logger.Debug(string(event.Kind), attrs...)
	default:
		s.logger.Info(string(event.Kind), attrs...)
	}
}
