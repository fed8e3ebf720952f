package runtime

import (
	"context"
	"fmt"
)

// StepEngine advances an ExecutionContext exactly one component at a
// time: condition guard, dispatch, audit per step, then graph
// successor lookup via Flow.OutgoingByPort/RunFork.
type StepEngine struct {
	flow       *Flow
	dispatcher *Dispatcher
	limiter    *ResourceLimiter
	observer   ExecutionObserver
}

// NewStepEngine constructs a StepEngine over flow. limiter and observer
// may be nil.
func NewStepEngine(flow *Flow, dispatcher *Dispatcher, limiter *ResourceLimiter, observer ExecutionObserver) *StepEngine {
	return &StepEngine{flow: flow, dispatcher: dispatcher, limiter: limiter, observer: observer}
}

func (s *StepEngine) emit(event ExecutionEvent) {
	if s.observer != nil {
		event.TimestampMs = NowMs()
		s.observer.OnEvent(event)
	}
}

// Step advances execCtx by exactly one component. It returns the new
// context, whether execution has reached a terminal state (END reached,
// or a failure/cancellation), and an error if the step failed.
//
// A FORK component is a single Step from the caller's perspective even
// though internally it blocks on a full branch-and-join round trip;
// the outer RUN_TO_COMPLETION/SINGLE_STEP loop in executor.go never
// needs to know fork/join happened.
func (s *StepEngine) Step(goCtx context.Context, execCtx ExecutionContext) (ExecutionContext, bool, error) {
	currentID := execCtx.CurrentComponentID
	if currentID == "" {
		currentID = s.flow.StartComponentID()
	}

	component, ok := s.flow.Component(currentID)
	if !ok {
		return execCtx, true, fmt.Errorf("step: unknown component %q", currentID)
	}
	if !component.Type.IsImplemented() {
		err := newExecError(ErrUnsupportedComponent, component.ID,
			fmt.Sprintf("component type %s has no runtime semantics", component.Type), nil)
		return execCtx, true, err
	}

	if s.limiter != nil {
		if err := s.limiter.RecordStep(execCtx.ExecutionID); err != nil {
			return execCtx, true, err
		}
		if err := s.limiter.RecordDepth(execCtx.ExecutionID, execCtx.Depth()+1); err != nil {
			return execCtx, true, err
		}
	}

	nowMs := NowMs()
	execCtx = execCtx.WithCurrentComponent(currentID).PushFrame(currentID, component.Type, nowMs)
	s.emit(ExecutionEvent{Kind: EventComponentEnter, ExecutionID: execCtx.ExecutionID, FlowID: s.flow.ID, ComponentID: currentID})
	execCtx = execCtx.AppendAudit(AuditEntry{TimestampMs: nowMs, ComponentID: currentID, Action: AuditComponentEnter})

	if component.Type == TypeEnd {
		if prop, ok := component.Property("outputVariables"); ok {
			if items, ok := prop.Literal().AsArray(); ok {
				names := make([]string, 0, len(items))
				for _, item := range items {
					if name, ok := item.AsString(); ok {
						names = append(names, name)
					}
				}
				execCtx = execCtx.WithOutputNames(names)
			}
		}
		execCtx = execCtx.PopFrame(currentID, NowMs())
		execCtx = execCtx.WithStatus(StatusCompleted)
		// The terminal ExecutionCompleted observer event is emitted once,
		// by the executor; the step engine only records the audit entry.
		execCtx = execCtx.AppendAudit(AuditEntry{TimestampMs: NowMs(), ComponentID: currentID, Action: AuditExecutionCompleted})
		return execCtx, true, nil
	}

	var nextCtx ExecutionContext
	var nextComponentID string
	var outPort string
	var err error

	if component.Type == TypeFork {
		nextCtx, nextComponentID, err = RunFork(goCtx, s.flow, s.dispatcher, s.limiter, s.observer, execCtx, component)
	} else {
		nextCtx, outPort, err = s.dispatcher.Advance(goCtx, s.flow, component, execCtx)
		if err == nil {
			var conn Connection
			conn, ok = s.flow.OutgoingByPort(currentID, outPort)
			if !ok {
				err = newExecError(ErrNoOutgoingConnection, currentID,
					fmt.Sprintf("no outgoing connection on port %q", outPort), nil)
			} else {
				nextComponentID = conn.TargetComponentID
			}
		}
	}

	if component.Type == TypeDecision && err == nil {
		nextCtx = nextCtx.AppendAudit(AuditEntry{
			TimestampMs: NowMs(), ComponentID: currentID, Action: AuditDecisionEvaluated,
			Result: outPort,
		})
		s.emit(ExecutionEvent{Kind: EventDecisionEvaluated, ExecutionID: execCtx.ExecutionID, FlowID: s.flow.ID,
			ComponentID: currentID, Port: outPort, Decision: outPort == PortTrue})
	}

	if err != nil {
		execErr, isExecErr := err.(*ExecutionError)
		if isExecErr && execErr.ComponentID == "" {
			execErr.ComponentID = currentID
		}
		failedCtx := execCtx.WithStatus(StatusFailed).AppendAudit(AuditEntry{
			TimestampMs: NowMs(), ComponentID: currentID, Action: AuditComponentFailed, Message: err.Error(),
		})
		failedCtx = failedCtx.AppendAudit(AuditEntry{
			TimestampMs: NowMs(), ComponentID: currentID, Action: AuditErrorOccurred, Message: err.Error(),
		})
		s.emit(ExecutionEvent{Kind: EventExecutionFailed, ExecutionID: execCtx.ExecutionID, FlowID: s.flow.ID,
			ComponentID: currentID, Error: execErr})
		return failedCtx, true, err
	}

	if nextCtx.variables != execCtx.variables {
		s.emit(ExecutionEvent{Kind: EventContextChanged, ExecutionID: execCtx.ExecutionID, FlowID: s.flow.ID,
			ComponentID: currentID, OldVariables: execCtx.Variables(), Variables: nextCtx.Variables(),
			Reason: fmt.Sprintf("component %s wrote variables", currentID)})
	}

	exitMs := NowMs()
	nextCtx = nextCtx.PopFrame(currentID, exitMs)
	nextCtx = nextCtx.AppendAudit(AuditEntry{TimestampMs: exitMs, ComponentID: currentID, Action: AuditComponentExit})
	s.emit(ExecutionEvent{Kind: EventComponentExit, ExecutionID: execCtx.ExecutionID, FlowID: s.flow.ID,
		ComponentID: currentID, Port: outPort, DurationMs: exitMs - nowMs})

	if s.limiter != nil {
		size := estimateContextSize(nextCtx)
		if err := s.limiter.RecordContextSize(nextCtx.ExecutionID, size); err != nil {
			return nextCtx.WithStatus(StatusFailed), true, err
		}
		if err := s.limiter.RecordAuditEntry(nextCtx.ExecutionID); err != nil {
			return nextCtx.WithStatus(StatusFailed), true, err
		}
		vars := nextCtx.Variables()
		var largest int64
		for _, v := range vars {
			if sz := v.EstimatedSize(); sz > largest {
				largest = sz
			}
		}
		if err := s.limiter.RecordVariable(nextCtx.ExecutionID, len(vars), largest); err != nil {
			return nextCtx.WithStatus(StatusFailed), true, err
		}
	}

	nextCtx = nextCtx.WithCurrentComponent(nextComponentID)
	return nextCtx, false, nil
}

func estimateContextSize(ctx ExecutionContext) int64 {
	var total int64
	for _, v := range ctx.Variables() {
		total += v.EstimatedSize()
	}
	return total
}
