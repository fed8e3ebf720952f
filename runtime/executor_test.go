package runtime

import (
	"context"
	"strings"
	"testing"
	"time"
)

func newTestExecutor(t *testing.T, flow *Flow, registry *HostServiceRegistry, limiter *ResourceLimiter) *Executor {
	t.Helper()
	if registry == nil {
		registry = NewHostServiceRegistry()
	}
	if limiter == nil {
		limiter = NewResourceLimiter(DefaultLimitConfig())
	}
	evaluator := NewExpressionEvaluator(nil)
	dispatcher := NewDispatcher(evaluator, registry)
	return NewExecutor(flow, dispatcher, limiter, nil, 0)
}

// A minimal START -> END flow completes successfully.
func TestExecutorRunsMinimalFlowToCompletion(t *testing.T) {
	flow := minimalFlow(t)
	executor := newTestExecutor(t, flow, nil, nil)
	execCtx := NewExecutionContext(flow.ID, "exec-1")

	_, result := executor.Run(context.Background(), execCtx, ModeRunToCompletion)
	if result.Status != ResultSuccess {
		t.Fatalf("Run() status = %v, want %v (err=%v)", result.Status, ResultSuccess, result.Error)
	}
}

// A completing run emits the terminal ExecutionCompleted observer
// event exactly once.
func TestExecutorEmitsExecutionCompletedOnce(t *testing.T) {
	flow := minimalFlow(t)
	var completed int
	obs := ExecutionObserverFunc(func(e ExecutionEvent) {
		if e.Kind == EventExecutionCompleted {
			completed++
		}
	})
	evaluator := NewExpressionEvaluator(nil)
	dispatcher := NewDispatcher(evaluator, NewHostServiceRegistry())
	executor := NewExecutor(flow, dispatcher, NewResourceLimiter(DefaultLimitConfig()), obs, 0)
	execCtx := NewExecutionContext(flow.ID, "exec-once")

	_, result := executor.Run(context.Background(), execCtx, ModeRunToCompletion)
	if result.Status != ResultSuccess {
		t.Fatalf("Run() status = %v, want success (err=%v)", result.Status, result.Error)
	}
	if completed != 1 {
		t.Errorf("ExecutionCompleted emitted %d times, want exactly 1", completed)
	}
}

// START seeds initialVariables, END
// filters to its declared outputVariables, and the audit trail carries
// the expected action sequence.
func TestExecutorMinimalFlowLiteralScenario(t *testing.T) {
	components := []Component{
		{ID: "start", Type: TypeStart, Properties: map[string]ComponentProperty{
			"initialVariables": PropertyObject(map[string]ComponentProperty{
				"greeting": PropertyString("hi"),
			}),
		}},
		{ID: "end", Type: TypeEnd, Properties: map[string]ComponentProperty{
			"outputVariables": PropertyArray([]ComponentProperty{PropertyString("greeting")}),
		}},
	}
	connections := []Connection{
		{ID: "conn-1", SourceComponentID: "start", SourcePortID: PortOut, TargetComponentID: "end", TargetPortID: PortIn},
	}
	flow, err := NewFlow("f", "minimal-literal", "1.0", components, connections, nil)
	if err != nil {
		t.Fatalf("NewFlow failed: %v", err)
	}

	executor := newTestExecutor(t, flow, nil, nil)
	execCtx := NewExecutionContext(flow.ID, "exec-1-literal")
	final, result := executor.Run(context.Background(), execCtx, ModeRunToCompletion)
	if result.Status != ResultSuccess {
		t.Fatalf("Run() status = %v, want success (err=%v)", result.Status, result.Error)
	}
	if len(result.OutputVariables) != 1 {
		t.Fatalf("OutputVariables = %v, want exactly {greeting: hi}", result.OutputVariables)
	}
	if v, ok := result.OutputVariables["greeting"]; !ok || !v.Equal(String("hi")) {
		t.Errorf("greeting = %v, want \"hi\"", v.ToNative())
	}

	// The audit trail must contain this action sequence in order; the
	// engine interleaves additional entries (VARIABLE_UPDATED for the
	// seeded variables) between them.
	wantActions := []AuditAction{
		AuditExecutionStarted, AuditComponentEnter, AuditComponentExit,
		AuditComponentEnter, AuditExecutionCompleted,
	}
	next := 0
	for _, entry := range final.AuditTrail {
		if next < len(wantActions) && entry.Action == wantActions[next] {
			next++
		}
	}
	if next != len(wantActions) {
		t.Errorf("AuditTrail missing %v (matched %d of %d): %+v", wantActions[next], next, len(wantActions), final.AuditTrail)
	}
	var seeded bool
	for _, entry := range final.AuditTrail {
		if entry.Action == AuditVariableUpdated && entry.ComponentID == "start" {
			seeded = true
		}
	}
	if !seeded {
		t.Error("expected a VARIABLE_UPDATED audit entry for the seeded initial variables")
	}
}

func decisionFlow(t *testing.T, condition string) *Flow {
	t.Helper()
	components := []Component{
		{ID: "start", Type: TypeStart},
		{ID: "dec", Type: TypeDecision, Properties: map[string]ComponentProperty{
			"condition": PropertyExpression(condition),
		}},
		{ID: "endTrue", Type: TypeEnd},
		{ID: "endFalse", Type: TypeEnd},
	}
	connections := []Connection{
		{ID: "c1", SourceComponentID: "start", SourcePortID: PortOut, TargetComponentID: "dec", TargetPortID: PortIn},
		{ID: "c2", SourceComponentID: "dec", SourcePortID: PortTrue, TargetComponentID: "endTrue", TargetPortID: PortIn},
		{ID: "c3", SourceComponentID: "dec", SourcePortID: PortFalse, TargetComponentID: "endFalse", TargetPortID: PortIn},
	}
	flow, err := NewFlow("f", "decision", "1.0", components, connections, nil)
	if err != nil {
		t.Fatalf("NewFlow failed: %v", err)
	}
	return flow
}

// A decision routes to the TRUE branch.
func TestExecutorDecisionRoutesTrue(t *testing.T) {
	flow := decisionFlow(t, "1 == 1")
	executor := newTestExecutor(t, flow, nil, nil)
	execCtx := NewExecutionContext(flow.ID, "exec-2")

	finalCtx, result := executor.Run(context.Background(), execCtx, ModeRunToCompletion)
	if result.Status != ResultSuccess {
		t.Fatalf("Run() status = %v, want success (err=%v)", result.Status, result.Error)
	}
	if finalCtx.CurrentComponentID != "endTrue" {
		t.Errorf("CurrentComponentID = %q, want endTrue", finalCtx.CurrentComponentID)
	}
}

// A decision routes to the FALSE branch.
func TestExecutorDecisionRoutesFalse(t *testing.T) {
	flow := decisionFlow(t, "1 == 2")
	executor := newTestExecutor(t, flow, nil, nil)
	execCtx := NewExecutionContext(flow.ID, "exec-2b")

	finalCtx, result := executor.Run(context.Background(), execCtx, ModeRunToCompletion)
	if result.Status != ResultSuccess {
		t.Fatalf("Run() status = %v, want success (err=%v)", result.Status, result.Error)
	}
	if finalCtx.CurrentComponentID != "endFalse" {
		t.Errorf("CurrentComponentID = %q, want endFalse", finalCtx.CurrentComponentID)
	}
}

// A condition that evaluates to a non-boolean fails with
// DECISION_TYPE_ERROR.
func TestExecutorDecisionTypeErrorOnNonBooleanCondition(t *testing.T) {
	flow := decisionFlow(t, `"not a bool"`)
	executor := newTestExecutor(t, flow, nil, nil)
	execCtx := NewExecutionContext(flow.ID, "exec-3")

	_, result := executor.Run(context.Background(), execCtx, ModeRunToCompletion)
	if result.Status != ResultFailure {
		t.Fatalf("Run() status = %v, want failure", result.Status)
	}
	if result.Error == nil || result.Error.Code != ErrDecisionTypeError {
		t.Errorf("Error = %+v, want code %v", result.Error, ErrDecisionTypeError)
	}
}

// A malformed condition expression surfaces as EXPRESSION_ERROR, not a
// generic execution exception.
func TestExecutorDecisionMalformedExpressionSurfacesAsExpressionError(t *testing.T) {
	flow := decisionFlow(t, `x ===`)
	executor := newTestExecutor(t, flow, nil, nil)
	execCtx := NewExecutionContext(flow.ID, "exec-3b")

	_, result := executor.Run(context.Background(), execCtx, ModeRunToCompletion)
	if result.Status != ResultFailure {
		t.Fatalf("Run() status = %v, want failure", result.Status)
	}
	if result.Error == nil || result.Error.Code != ErrExpressionError {
		t.Errorf("Error = %+v, want code %v", result.Error, ErrExpressionError)
	}
}

func actionFlowWithErrorPort(t *testing.T) *Flow {
	t.Helper()
	components := []Component{
		{ID: "start", Type: TypeStart},
		{ID: "act", Type: TypeAction, Properties: map[string]ComponentProperty{
			"service":       PropertyString("demo"),
			"method":        PropertyString("fail"),
			"errorVariable": PropertyString("err"),
		}},
		{ID: "endOK", Type: TypeEnd},
		{ID: "endErr", Type: TypeEnd},
	}
	connections := []Connection{
		{ID: "c1", SourceComponentID: "start", SourcePortID: PortOut, TargetComponentID: "act", TargetPortID: PortIn},
		{ID: "c2", SourceComponentID: "act", SourcePortID: PortSuccess, TargetComponentID: "endOK", TargetPortID: PortIn},
		{ID: "c3", SourceComponentID: "act", SourcePortID: PortError, TargetComponentID: "endErr", TargetPortID: PortIn},
	}
	flow, err := NewFlow("f", "action-error", "1.0", components, connections, nil)
	if err != nil {
		t.Fatalf("NewFlow failed: %v", err)
	}
	return flow
}

// An ACTION whose host service fails
// with a {code,message} HostServiceError, but which has a wired ERROR
// port, routes there instead of failing the execution, and stores
// {code:"NOT_FOUND",message:"k"} under its errorVariable.
func TestExecutorActionRoutesToErrorPort(t *testing.T) {
	flow := actionFlowWithErrorPort(t)
	registry := NewHostServiceRegistry()
	registry.Register("demo", "fail", func(ctx context.Context, params map[string]VariableValue) (VariableValue, error) {
		return Null, NewHostServiceError("NOT_FOUND", "k")
	})
	executor := newTestExecutor(t, flow, registry, nil)
	execCtx := NewExecutionContext(flow.ID, "exec-4")

	finalCtx, result := executor.Run(context.Background(), execCtx, ModeRunToCompletion)
	if result.Status != ResultSuccess {
		t.Fatalf("Run() status = %v, want success via ERROR port (err=%v)", result.Status, result.Error)
	}
	if finalCtx.CurrentComponentID != "endErr" {
		t.Errorf("CurrentComponentID = %q, want endErr", finalCtx.CurrentComponentID)
	}
	errVal, ok := finalCtx.Variable("err")
	if !ok {
		t.Fatal("expected \"err\" variable to be set")
	}
	fields, ok := errVal.AsObject()
	if !ok {
		t.Fatalf("err variable = %v, want an Object", errVal.ToNative())
	}
	if code, _ := fields["code"].AsString(); code != "NOT_FOUND" {
		t.Errorf("err.code = %q, want NOT_FOUND", code)
	}
	if message, _ := fields["message"].AsString(); message != "k" {
		t.Errorf("err.message = %q, want \"k\"", message)
	}
}

// A successful ACTION stores its result, and appends VARIABLE_CHANGED
// and COMPONENT_COMPLETED audit entries.
func TestExecutorActionSuccessAuditTrail(t *testing.T) {
	components := []Component{
		{ID: "start", Type: TypeStart},
		{ID: "act", Type: TypeAction, Properties: map[string]ComponentProperty{
			"service":        PropertyString("demo"),
			"method":         PropertyString("ok"),
			"resultVariable": PropertyString("out"),
		}},
		{ID: "end", Type: TypeEnd},
	}
	connections := []Connection{
		{ID: "c1", SourceComponentID: "start", SourcePortID: PortOut, TargetComponentID: "act", TargetPortID: PortIn},
		{ID: "c2", SourceComponentID: "act", SourcePortID: PortSuccess, TargetComponentID: "end", TargetPortID: PortIn},
	}
	flow, err := NewFlow("f", "action-ok", "1.0", components, connections, nil)
	if err != nil {
		t.Fatalf("NewFlow failed: %v", err)
	}

	registry := NewHostServiceRegistry()
	registry.Register("demo", "ok", func(ctx context.Context, params map[string]VariableValue) (VariableValue, error) {
		return String("v"), nil
	})
	executor := newTestExecutor(t, flow, registry, nil)
	execCtx := NewExecutionContext(flow.ID, "exec-action-ok")

	finalCtx, result := executor.Run(context.Background(), execCtx, ModeRunToCompletion)
	if result.Status != ResultSuccess {
		t.Fatalf("Run() status = %v, want success (err=%v)", result.Status, result.Error)
	}
	if v, ok := finalCtx.Variable("out"); !ok || !v.Equal(String("v")) {
		t.Errorf("out = %v, want \"v\"", v.ToNative())
	}
	var changed, completed bool
	for _, entry := range finalCtx.AuditTrail {
		if entry.ComponentID != "act" {
			continue
		}
		switch entry.Action {
		case AuditVariableChanged:
			changed = true
		case AuditComponentCompleted:
			completed = true
		}
	}
	if !changed || !completed {
		t.Errorf("expected VARIABLE_CHANGED and COMPONENT_COMPLETED entries for act (changed=%v completed=%v)", changed, completed)
	}
}

// An ACTION with no wired error port surfaces the handler's failure as
// HOST_SERVICE_FAILURE instead of recovering or reporting a missing
// connection.
func TestExecutorActionWithoutErrorConnectionSurfacesHandlerError(t *testing.T) {
	components := []Component{
		{ID: "start", Type: TypeStart},
		{ID: "act", Type: TypeAction, Properties: map[string]ComponentProperty{
			"service": PropertyString("demo"), "method": PropertyString("boom"),
		}},
		{ID: "end", Type: TypeEnd},
	}
	connections := []Connection{
		{ID: "c1", SourceComponentID: "start", SourcePortID: PortOut, TargetComponentID: "act", TargetPortID: PortIn},
		{ID: "c2", SourceComponentID: "act", SourcePortID: PortSuccess, TargetComponentID: "end", TargetPortID: PortIn},
	}
	flow, err := NewFlow("f", "action-no-error-port", "1.0", components, connections, nil)
	if err != nil {
		t.Fatalf("NewFlow failed: %v", err)
	}

	registry := NewHostServiceRegistry()
	registry.Register("demo", "boom", func(ctx context.Context, params map[string]VariableValue) (VariableValue, error) {
		return Null, NewHostServiceError("BOOM", "handler exploded")
	})
	executor := newTestExecutor(t, flow, registry, nil)
	execCtx := NewExecutionContext(flow.ID, "exec-action-boom")

	_, result := executor.Run(context.Background(), execCtx, ModeRunToCompletion)
	if result.Status != ResultFailure {
		t.Fatalf("Run() status = %v, want failure", result.Status)
	}
	if result.Error == nil || result.Error.Code != ErrHostServiceFailure {
		t.Errorf("Error = %+v, want code %v", result.Error, ErrHostServiceFailure)
	}
}

func forkJoinFlow(t *testing.T, joinMode JoinMode) *Flow {
	t.Helper()
	components := []Component{
		{ID: "start", Type: TypeStart},
		{ID: "fork", Type: TypeFork, Properties: map[string]ComponentProperty{
			"branchCount": PropertyNumber(2),
		}},
		{ID: "actA", Type: TypeAction, Properties: map[string]ComponentProperty{
			"service": PropertyString("demo"), "method": PropertyString("a"),
		}},
		{ID: "actB", Type: TypeAction, Properties: map[string]ComponentProperty{
			"service": PropertyString("demo"), "method": PropertyString("b"),
		}},
		{ID: "join", Type: TypeJoin, Properties: map[string]ComponentProperty{
			"joinMode": PropertyString(string(joinMode)),
		}},
		{ID: "end", Type: TypeEnd},
	}
	connections := []Connection{
		{ID: "c1", SourceComponentID: "start", SourcePortID: PortOut, TargetComponentID: "fork", TargetPortID: PortIn},
		{ID: "c2", SourceComponentID: "fork", SourcePortID: "branch_0", TargetComponentID: "actA", TargetPortID: PortIn},
		{ID: "c3", SourceComponentID: "fork", SourcePortID: "branch_1", TargetComponentID: "actB", TargetPortID: PortIn},
		{ID: "c4", SourceComponentID: "actA", SourcePortID: PortSuccess, TargetComponentID: "join", TargetPortID: PortIn},
		{ID: "c5", SourceComponentID: "actB", SourcePortID: PortSuccess, TargetComponentID: "join", TargetPortID: PortIn},
		{ID: "c6", SourceComponentID: "join", SourcePortID: PortOut, TargetComponentID: "end", TargetPortID: PortIn},
	}
	flow, err := NewFlow("f", "forkjoin", "1.0", components, connections, nil)
	if err != nil {
		t.Fatalf("NewFlow failed: %v", err)
	}
	return flow
}

// An AND-JOIN waits for both branches and merges their
// variables.
func TestExecutorAndJoinMergesBothBranches(t *testing.T) {
	flow := forkJoinFlow(t, JoinAND)
	registry := NewHostServiceRegistry()
	registry.Register("demo", "a", func(ctx context.Context, params map[string]VariableValue) (VariableValue, error) {
		return String("resultA"), nil
	})
	registry.Register("demo", "b", func(ctx context.Context, params map[string]VariableValue) (VariableValue, error) {
		return String("resultB"), nil
	})
	executor := newTestExecutor(t, flow, registry, nil)
	execCtx := NewExecutionContext(flow.ID, "exec-5")

	finalCtx, result := executor.Run(context.Background(), execCtx, ModeRunToCompletion)
	if result.Status != ResultSuccess {
		t.Fatalf("Run() status = %v, want success (err=%v)", result.Status, result.Error)
	}
	if finalCtx.CurrentComponentID != "end" {
		t.Errorf("did not reach end: %q", finalCtx.CurrentComponentID)
	}
	if v, ok := result.OutputVariables["actA"]; !ok || !v.Equal(String("resultA")) {
		t.Errorf("expected actA result merged, got %v", v.ToNative())
	}
	if v, ok := result.OutputVariables["actB"]; !ok || !v.Equal(String("resultB")) {
		t.Errorf("expected actB result merged, got %v", v.ToNative())
	}
	var recordedOrder bool
	for _, entry := range finalCtx.AuditTrail {
		if entry.ComponentID == "join" && entry.Action == AuditComponentEnter && strings.Contains(entry.Message, "completion order") {
			recordedOrder = true
		}
	}
	if !recordedOrder {
		t.Error("expected the JOIN's audit entry to record the branch completion order")
	}
}

// An OR-JOIN takes the first branch to arrive and cancels the
// other.
func TestExecutorOrJoinTakesFirstArrival(t *testing.T) {
	flow := forkJoinFlow(t, JoinOR)
	registry := NewHostServiceRegistry()
	registry.Register("demo", "a", func(ctx context.Context, params map[string]VariableValue) (VariableValue, error) {
		return String("fast"), nil
	})
	registry.Register("demo", "b", func(ctx context.Context, params map[string]VariableValue) (VariableValue, error) {
		select {
		case <-time.After(2 * time.Second):
			return String("slow"), nil
		case <-ctx.Done():
			return Null, ctx.Err()
		}
	})
	executor := newTestExecutor(t, flow, registry, nil)
	execCtx := NewExecutionContext(flow.ID, "exec-6")

	finalCtx, result := executor.Run(context.Background(), execCtx, ModeRunToCompletion)
	if result.Status != ResultSuccess {
		t.Fatalf("Run() status = %v, want success (err=%v)", result.Status, result.Error)
	}
	if _, ok := result.OutputVariables["actA"]; !ok {
		t.Errorf("expected the fast branch's result to be present")
	}
	if finalCtx.CurrentComponentID != "end" {
		t.Errorf("CurrentComponentID = %q, want end", finalCtx.CurrentComponentID)
	}
}

// A flow with a cycle fails with MAX_ITERATIONS_EXCEEDED
// rather than hanging.
func TestExecutorMaxIterationsExceeded(t *testing.T) {
	components := []Component{
		{ID: "start", Type: TypeStart},
		{ID: "decA", Type: TypeDecision, Properties: map[string]ComponentProperty{
			"condition": PropertyBoolean(true),
		}},
		{ID: "decB", Type: TypeDecision, Properties: map[string]ComponentProperty{
			"condition": PropertyBoolean(true),
		}},
		{ID: "end", Type: TypeEnd},
	}
	connections := []Connection{
		{ID: "c1", SourceComponentID: "start", SourcePortID: PortOut, TargetComponentID: "decA", TargetPortID: PortIn},
		// decA and decB always route TRUE into each other: an
		// intentional cycle with no self-loop connection.
		{ID: "c2", SourceComponentID: "decA", SourcePortID: PortTrue, TargetComponentID: "decB", TargetPortID: PortIn},
		{ID: "c3", SourceComponentID: "decB", SourcePortID: PortTrue, TargetComponentID: "decA", TargetPortID: PortIn},
		{ID: "c4", SourceComponentID: "decA", SourcePortID: PortFalse, TargetComponentID: "end", TargetPortID: PortIn},
		{ID: "c5", SourceComponentID: "decB", SourcePortID: PortFalse, TargetComponentID: "end", TargetPortID: PortIn},
	}
	flow, err := NewFlow("f", "cyclic", "1.0", components, connections, nil)
	if err != nil {
		t.Fatalf("NewFlow failed: %v", err)
	}

	evaluator := NewExpressionEvaluator(nil)
	dispatcher := NewDispatcher(evaluator, NewHostServiceRegistry())
	limiter := NewResourceLimiter(DefaultLimitConfig())
	executor := NewExecutor(flow, dispatcher, limiter, nil, 5)
	execCtx := NewExecutionContext(flow.ID, "exec-7")

	_, result := executor.Run(context.Background(), execCtx, ModeRunToCompletion)
	if result.Status != ResultFailure {
		t.Fatalf("Run() status = %v, want failure", result.Status)
	}
	if result.Error == nil || result.Error.Code != ErrMaxIterationsExceeded {
		t.Errorf("Error = %+v, want code %v", result.Error, ErrMaxIterationsExceeded)
	}
}

// Exceeding a resource limit (here, MaxSteps) fails the
// execution with RESOURCE_LIMIT_EXCEEDED.
func TestExecutorResourceLimitExceeded(t *testing.T) {
	flow := decisionFlow(t, "1 == 1")
	cfg := DefaultLimitConfig()
	cfg.MaxSteps = 1
	limiter := NewResourceLimiter(cfg)
	executor := newTestExecutor(t, flow, nil, limiter)
	execCtx := NewExecutionContext(flow.ID, "exec-8")

	_, result := executor.Run(context.Background(), execCtx, ModeRunToCompletion)
	if result.Status != ResultFailure {
		t.Fatalf("Run() status = %v, want failure", result.Status)
	}
	if result.Error == nil || result.Error.Code != ErrResourceLimitExceeded {
		t.Errorf("Error = %+v, want code %v", result.Error, ErrResourceLimitExceeded)
	}
}

// Resume: a SINGLE_STEP run can be paused and later resumed to
// completion without re-running already-taken steps.
func TestExecutorSingleStepThenResume(t *testing.T) {
	flow := decisionFlow(t, "1 == 1")
	executor := newTestExecutor(t, flow, nil, nil)
	execCtx := NewExecutionContext(flow.ID, "exec-9")

	paused, result := executor.Run(context.Background(), execCtx, ModeSingleStep)
	if result.Status != ResultPartial {
		t.Fatalf("first single step status = %v, want %v", result.Status, ResultPartial)
	}
	if paused.Status != StatusPaused {
		t.Fatalf("paused context status = %v, want PAUSED", paused.Status)
	}
	if !executor.CanResume(paused) {
		t.Fatal("expected a PAUSED context to be resumable")
	}

	final, result := executor.Resume(context.Background(), paused, ModeRunToCompletion)
	if result.Status != ResultSuccess {
		t.Fatalf("Resume() status = %v, want success (err=%v)", result.Status, result.Error)
	}
	if final.CurrentComponentID != "endTrue" {
		t.Errorf("CurrentComponentID = %q, want endTrue", final.CurrentComponentID)
	}
}

func TestExecutorCannotResumeCompletedExecution(t *testing.T) {
	flow := minimalFlow(t)
	executor := newTestExecutor(t, flow, nil, nil)
	execCtx := NewExecutionContext(flow.ID, "exec-10")

	completed, result := executor.Run(context.Background(), execCtx, ModeRunToCompletion)
	if result.Status != ResultSuccess {
		t.Fatalf("Run() status = %v, want success", result.Status)
	}
	if executor.CanResume(completed) {
		t.Error("a COMPLETED execution should not be resumable")
	}

	_, resumeResult := executor.Resume(context.Background(), completed, ModeRunToCompletion)
	if resumeResult.Status != ResultFailure || resumeResult.Error.Code != ErrCannotResume {
		t.Errorf("Resume() on a completed execution = %+v, want CANNOT_RESUME failure", resumeResult)
	}
}
