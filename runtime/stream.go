package runtime

import (
	"context"
	"fmt"
	"iter"
)

// StreamEventKind tags the variants of StreamEvent: the reduced event
// vocabulary of the executor's streaming observation surface, distinct
// from the richer ExecutionEvent set the observer bus carries.
type StreamEventKind string

const (
	StreamExecutionStarted   StreamEventKind = "EXECUTION_STARTED"
	StreamComponentStarted   StreamEventKind = "COMPONENT_STARTED"
	StreamComponentCompleted StreamEventKind = "COMPONENT_COMPLETED"
	StreamExecutionCompleted StreamEventKind = "EXECUTION_COMPLETED"
	StreamErrorOccurred      StreamEventKind = "ERROR_OCCURRED"
)

// StreamEvent is one element of the lazy event sequence produced by
// Executor.Stream. Result is set only on the terminal
// ExecutionCompleted/ErrorOccurred element; Error only on ErrorOccurred.
type StreamEvent struct {
	Kind        StreamEventKind
	ExecutionID string
	FlowID      string
	ComponentID string
	Result      *ExecutionResult
	Error       *ExecutionError
	TimestampMs int64
}

// Stream runs execCtx to completion as a lazy, forward-only event
// sequence yielding ExecutionStarted, then a ComponentStarted/
// ComponentCompleted pair per step, then exactly one of
// ExecutionCompleted or ErrorOccurred. The observer bus still receives
// its full event stream alongside; Stream is the pull-based variant for
// consumers that want to iterate rather than register a callback.
//
// Breaking out of the range loop drops the sequence: the run's context
// is cancelled and no further components execute. Nothing is returned
// after a break; a consumer that needs the final ExecutionResult must
// drain the sequence to its terminal element.
func (e *Executor) Stream(goCtx context.Context, execCtx ExecutionContext) iter.Seq[StreamEvent] {
	return func(yield func(StreamEvent) bool) {
		streamCtx, cancel := context.WithCancel(goCtx)
		defer cancel()

		if execCtx.Status == StatusNotStarted {
			e.startedAtMs = NowMs()
			execCtx = execCtx.WithStatus(StatusRunning).WithCurrentComponent(e.flow.StartComponentID())
			execCtx = execCtx.AppendAudit(AuditEntry{TimestampMs: NowMs(), Action: AuditExecutionStarted})
			if e.limiter != nil {
				e.limiter.StartExecution(execCtx.ExecutionID)
			}
			e.emit(ExecutionEvent{Kind: EventExecutionStarted, ExecutionID: execCtx.ExecutionID, FlowID: e.flow.ID})
		}
		if e.limiter != nil {
			defer e.limiter.EndExecution(execCtx.ExecutionID)
		}

		if !yield(e.streamEvent(StreamExecutionStarted, execCtx, "")) {
			return
		}

		iterations := 0
		for {
			select {
			case <-streamCtx.Done():
				execCtx = execCtx.WithStatus(StatusCancelled)
				err := newExecError(ErrCancelled, "", "execution cancelled", streamCtx.Err())
				result := e.resultFor(execCtx, err)
				yield(e.streamTerminal(execCtx, result))
				return
			default:
			}

			if e.limiter != nil {
				if err := e.limiter.CheckAll(execCtx.ExecutionID); err != nil {
					execCtx = e.fail(execCtx, execCtx.CurrentComponentID, err)
					result := e.resultFor(execCtx, err)
					yield(e.streamTerminal(execCtx, result))
					return
				}
			}

			iterations++
			if iterations > e.maxIterations {
				err := newExecError(ErrMaxIterationsExceeded, execCtx.CurrentComponentID,
					fmt.Sprintf("exceeded max iterations (%d) without reaching an END component", e.maxIterations), nil)
				execCtx = e.fail(execCtx, execCtx.CurrentComponentID, err)
				result := e.resultFor(execCtx, err)
				yield(e.streamTerminal(execCtx, result))
				return
			}

			currentID := execCtx.CurrentComponentID
			if !yield(e.streamEvent(StreamComponentStarted, execCtx, currentID)) {
				return
			}

			nextCtx, terminal, err := e.steps.Step(streamCtx, execCtx)
			execCtx = nextCtx
			if err != nil {
				if execCtx.Status != StatusFailed {
					execCtx = execCtx.WithStatus(StatusFailed)
				}
				result := e.resultFor(execCtx, err)
				yield(e.streamTerminal(execCtx, result))
				return
			}

			if !yield(e.streamEvent(StreamComponentCompleted, execCtx, currentID)) {
				return
			}
			if terminal {
				result := e.resultFor(execCtx, nil)
				yield(StreamEvent{
					Kind:        StreamExecutionCompleted,
					ExecutionID: execCtx.ExecutionID,
					FlowID:      e.flow.ID,
					ComponentID: currentID,
					Result:      &result,
					TimestampMs: NowMs(),
				})
				return
			}
		}
	}
}

func (e *Executor) streamEvent(kind StreamEventKind, execCtx ExecutionContext, componentID string) StreamEvent {
	return StreamEvent{
		Kind:        kind,
		ExecutionID: execCtx.ExecutionID,
		FlowID:      e.flow.ID,
		ComponentID: componentID,
		TimestampMs: NowMs(),
	}
}

func (e *Executor) streamTerminal(execCtx ExecutionContext, result ExecutionResult) StreamEvent {
	return StreamEvent{
		Kind:        StreamErrorOccurred,
		ExecutionID: execCtx.ExecutionID,
		FlowID:      e.flow.ID,
		ComponentID: execCtx.CurrentComponentID,
		Result:      &result,
		Error:       result.Error,
		TimestampMs: NowMs(),
	}
}
