package runtime

import (
	"context"
	"fmt"
)

// ExecutionMode selects how Executor.Run drives the step engine.
type ExecutionMode string

const (
	ModeRunToCompletion ExecutionMode = "RUN_TO_COMPLETION"
	ModeSingleStep      ExecutionMode = "SINGLE_STEP"
)

// defaultMaxIterations is the cycle breaker applied when the caller
// doesn't override it: a flow graph with an unintended cycle (DECISION
// routing back on itself, for instance) must fail loudly with
// MAX_ITERATIONS_EXCEEDED rather than spin forever.
const defaultMaxIterations = 10000

// Executor runs a Flow to completion (or one step at a time), wiring
// the step engine to a ResourceLimiter and an observer bus.
type Executor struct {
	flow          *Flow
	steps         *StepEngine
	limiter       *ResourceLimiter
	observer      ExecutionObserver
	maxIterations int
	startedAtMs   int64
}

// NewExecutor constructs an Executor for flow. limiter/observer may be
// nil; maxIterations <= 0 uses defaultMaxIterations.
func NewExecutor(flow *Flow, dispatcher *Dispatcher, limiter *ResourceLimiter, observer ExecutionObserver, maxIterations int) *Executor {
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}
	return &Executor{
		flow:          flow,
		steps:         NewStepEngine(flow, dispatcher, limiter, observer),
		limiter:       limiter,
		observer:      observer,
		maxIterations: maxIterations,
	}
}

func (e *Executor) emit(event ExecutionEvent) {
	if e.observer != nil {
		event.TimestampMs = NowMs()
		e.observer.OnEvent(event)
	}
}

// fail marks execCtx FAILED, writes the ERROR_OCCURRED audit entry
// every terminating failure carries, and emits ExecutionFailed once.
// Used for failures detected at the executor's
// own loop boundary (resource limits, the max-iterations cycle
// breaker) rather than inside a single Step, which records its own
// failure audit trail in step.go.
func (e *Executor) fail(execCtx ExecutionContext, componentID string, err error) ExecutionContext {
	execErr, ok := err.(*ExecutionError)
	if !ok {
		execErr = newExecError(ErrExecutionException, componentID, err.Error(), err)
	}
	failed := execCtx.WithStatus(StatusFailed).AppendAudit(AuditEntry{
		TimestampMs: NowMs(), ComponentID: componentID, Action: AuditErrorOccurred, Message: err.Error(),
	})
	e.emit(ExecutionEvent{Kind: EventExecutionFailed, ExecutionID: execCtx.ExecutionID, FlowID: e.flow.ID,
		ComponentID: componentID, Error: execErr, DurationMs: e.runDurationMs()})
	return failed
}

// runDurationMs is the wall-clock time since this run (or its resume)
// began, reported on terminal events.
func (e *Executor) runDurationMs() int64 {
	if e.startedAtMs == 0 {
		return 0
	}
	return NowMs() - e.startedAtMs
}

// Run drives execCtx to completion (ModeRunToCompletion) or for exactly
// one step (ModeSingleStep), returning the resulting ExecutionContext
// alongside a terminal ExecutionResult. In SINGLE_STEP mode a non-final
// result's context is meant to be persisted and handed back to a later
// Resume call.
func (e *Executor) Run(goCtx context.Context, execCtx ExecutionContext, mode ExecutionMode) (ExecutionContext, ExecutionResult) {
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

	if execCtx.Status.IsTerminal() {
		return execCtx, e.resultFor(execCtx, nil)
	}

	iterations := 0
	for {
		select {
		case <-goCtx.Done():
			cancelled := execCtx.WithStatus(StatusCancelled)
			e.emit(ExecutionEvent{Kind: EventExecutionAborted, ExecutionID: execCtx.ExecutionID, FlowID: e.flow.ID,
				Reason: "caller cancelled execution", DurationMs: e.runDurationMs()})
			return cancelled, e.resultFor(cancelled, newExecError(ErrCancelled, "", "execution cancelled", goCtx.Err()))
		default:
		}

		if e.limiter != nil {
			if err := e.limiter.CheckAll(execCtx.ExecutionID); err != nil {
				failed := e.fail(execCtx, execCtx.CurrentComponentID, err)
				return failed, e.resultFor(failed, err)
			}
		}

		iterations++
		if iterations > e.maxIterations {
			err := newExecError(ErrMaxIterationsExceeded, execCtx.CurrentComponentID,
				fmt.Sprintf("exceeded max iterations (%d) without reaching an END component", e.maxIterations), nil)
			failed := e.fail(execCtx, execCtx.CurrentComponentID, err)
			return failed, e.resultFor(failed, err)
		}

		nextCtx, terminal, err := e.steps.Step(goCtx, execCtx)
		execCtx = nextCtx
		if err != nil {
			if execCtx.Status != StatusFailed {
				execCtx = execCtx.WithStatus(StatusFailed)
			}
			return execCtx, e.resultFor(execCtx, err)
		}
		if terminal {
			return execCtx, e.resultFor(execCtx, nil)
		}
		if mode == ModeSingleStep {
			return execCtx.WithStatus(StatusPaused), ExecutionResult{Status: ResultPartial, Metrics: e.metrics(execCtx)}
		}
	}
}

// Resume continues a previously persisted, non-terminal ExecutionContext
// (SINGLE_STEP mode, or a host-persisted checkpoint) in the given mode.
// It refuses to resume a context that fails CanResume (flowId mismatch,
// missing currentComponentId, or a terminal status), and on success
// appends a COMPONENT_STARTED "Resuming execution" audit entry before
// continuing the step loop.
func (e *Executor) Resume(goCtx context.Context, execCtx ExecutionContext, mode ExecutionMode) (ExecutionContext, ExecutionResult) {
	if !e.CanResume(execCtx) {
		err := newExecError(ErrCannotResume, execCtx.CurrentComponentID,
			fmt.Sprintf("cannot resume execution in status %s", execCtx.Status), nil)
		return execCtx, failureResult(err, e.metrics(execCtx))
	}
	if e.limiter != nil {
		e.limiter.StartExecution(execCtx.ExecutionID)
	}
	e.startedAtMs = NowMs()
	execCtx = execCtx.WithStatus(StatusRunning).AppendAudit(AuditEntry{
		TimestampMs: NowMs(),
		ComponentID: execCtx.CurrentComponentID,
		Action:      AuditComponentStarted,
		Message:     "Resuming execution",
	})
	return e.Run(goCtx, execCtx, mode)
}

// CanResume reports whether execCtx may be handed to Resume: its
// FlowID must match this executor's flow, it must carry a
// currentComponentId to continue from, and its status must not be
// terminal (resume is refused for COMPLETED or FAILED, and there is
// nothing to continue without a current component).
func (e *Executor) CanResume(execCtx ExecutionContext) bool {
	if execCtx.FlowID != "" && execCtx.FlowID != e.flow.ID {
		return false
	}
	if execCtx.CurrentComponentID == "" {
		return false
	}
	return !execCtx.Status.IsTerminal()
}

func (e *Executor) metrics(execCtx ExecutionContext) ExecutionMetrics {
	if e.limiter != nil {
		return e.limiter.Metrics(execCtx.ExecutionID)
	}
	return ExecutionMetrics{AuditEntries: len(execCtx.AuditTrail)}
}

func (e *Executor) resultFor(execCtx ExecutionContext, err error) ExecutionResult {
	metrics := e.metrics(execCtx)
	if err != nil {
		execErr, ok := err.(*ExecutionError)
		if !ok {
			execErr = newExecError(ErrExecutionException, execCtx.CurrentComponentID, err.Error(), err)
		}
		return failureResult(execErr, metrics)
	}
	switch execCtx.Status {
	case StatusCompleted:
		e.emit(ExecutionEvent{Kind: EventExecutionCompleted, ExecutionID: execCtx.ExecutionID, FlowID: e.flow.ID,
			DurationMs: e.runDurationMs()})
		return successResult(execCtx.OutputVariables(), metrics)
	case StatusCancelled:
		return ExecutionResult{
			Status:  ResultFailure,
			Error:   newExecError(ErrCancelled, "", "execution cancelled", nil),
			Metrics: metrics,
		}
	default:
		return ExecutionResult{Status: ResultSkipped, Metrics: metrics}
	}
}
