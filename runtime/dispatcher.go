package runtime

import (
	"context"
	"fmt"
)

// Dispatcher resolves one component's runtime semantics for START,
// ACTION and DECISION: one function per component type, switched on the
// type tag. END is handled by the step engine directly, and FORK/JOIN
// coordination needs the goroutine machinery in forkjoin.go.
type Dispatcher struct {
	evaluator *ExpressionEvaluator
	registry  *HostServiceRegistry
}

// NewDispatcher constructs a Dispatcher backed by evaluator and
// registry.
func NewDispatcher(evaluator *ExpressionEvaluator, registry *HostServiceRegistry) *Dispatcher {
	return &Dispatcher{evaluator: evaluator, registry: registry}
}

// resolve evaluates a ComponentProperty against ctx: expressions run
// through the ExpressionEvaluator, literals pass through unchanged. A
// failing evaluation is wrapped as an *ExecutionError with Code
// ErrExpressionError so it surfaces through the same error channel as
// every other dispatcher failure.
func (d *Dispatcher) resolve(prop ComponentProperty, ctx ExecutionContext) (VariableValue, error) {
	if !prop.IsExpression() {
		return prop.Literal(), nil
	}
	src, _ := prop.ExpressionSource()
	val, err := d.evaluator.Eval(src, ctx)
	if err != nil {
		return Null, newExecError(ErrExpressionError, "", err.Error(), err)
	}
	return val, nil
}

// Advance runs one START, ACTION or DECISION component's semantics and
// reports which output port to follow; any other type is refused with
// UNSUPPORTED_COMPONENT_TYPE. It never mutates flow or the caller's ctx;
// the returned ExecutionContext is the new snapshot to continue from.
func (d *Dispatcher) Advance(goCtx context.Context, flow *Flow, component Component, execCtx ExecutionContext) (ExecutionContext, string, error) {
	switch component.Type {
	case TypeStart:
		return d.advanceStart(component, execCtx), PortOut, nil
	case TypeAction:
		return d.advanceAction(goCtx, flow, component, execCtx)
	case TypeDecision:
		return d.advanceDecision(component, execCtx)
	default:
		return execCtx, "", newExecError(ErrUnsupportedComponent, component.ID,
			fmt.Sprintf("component type %s is not dispatched by Advance", component.Type), nil)
	}
}

// advanceStart seeds the context's variables from START's
// "initialVariables" property, when present and Object-typed. A
// non-Object or absent property leaves variables untouched.
func (d *Dispatcher) advanceStart(component Component, execCtx ExecutionContext) ExecutionContext {
	prop, ok := component.Property("initialVariables")
	if !ok {
		return execCtx
	}
	fields, ok := prop.Literal().AsObject()
	if !ok {
		return execCtx
	}
	next := execCtx.WithVariables(fields)
	return next.AppendAudit(AuditEntry{
		TimestampMs: NowMs(), ComponentID: component.ID, Action: AuditVariableUpdated,
		Message: fmt.Sprintf("seeded %d initial variable(s)", len(fields)),
	})
}

func (d *Dispatcher) advanceAction(goCtx context.Context, flow *Flow, component Component, execCtx ExecutionContext) (ExecutionContext, string, error) {
	serviceProp, _ := component.Property("service")
	methodProp, _ := component.Property("method")
	service, _ := serviceProp.Literal().AsString()
	method, _ := methodProp.Literal().AsString()

	params := make(map[string]VariableValue)
	if paramsProp, ok := component.Property("parameters"); ok {
		resolved, err := d.resolve(paramsProp, execCtx)
		if err != nil {
			return execCtx, "", err
		}
		if fields, ok := resolved.AsObject(); ok {
			params = fields
		}
	}

	result, err := d.registry.Invoke(goCtx, service, method, params)
	if err != nil {
		code, message := errorCodeAndMessage(err)
		if execErr, ok := err.(*ExecutionError); ok {
			execErr.ComponentID = component.ID
		}
		// Recovery requires a wired error port: an ACTION whose "error"
		// output has no connection fails the run with the handler's own
		// error instead.
		if _, connected := flow.OutgoingByPort(component.ID, PortError); connected {
			nextCtx := execCtx
			if varProp, ok := component.Property("errorVariable"); ok {
				if name, ok := varProp.Literal().AsString(); ok && name != "" {
					nextCtx = nextCtx.WithVariable(name, Object(map[string]VariableValue{
						"code":    String(code),
						"message": String(message),
					}))
					nextCtx = nextCtx.AppendAudit(AuditEntry{
						TimestampMs: NowMs(), ComponentID: component.ID, Action: AuditVariableChanged,
						Message: fmt.Sprintf("variable %q set from %s.%s error %s", name, service, method, code),
					})
				}
			}
			nextCtx = nextCtx.AppendAudit(AuditEntry{
				TimestampMs: NowMs(), ComponentID: component.ID, Action: AuditComponentFailed,
				Result:  code,
				Message: fmt.Sprintf("%s.%s failed, recovered via error port: %s", service, method, message),
			})
			return nextCtx, PortError, nil
		}
		if hse, ok := err.(*HostServiceError); ok {
			return execCtx, "", newExecError(ErrHostServiceFailure, component.ID, hse.Error(), hse)
		}
		return execCtx, "", err
	}

	resultName := resultVariableName(component)
	nextCtx := execCtx.WithVariable(resultName, result)
	nextCtx = nextCtx.AppendAudit(AuditEntry{
		TimestampMs: NowMs(), ComponentID: component.ID, Action: AuditVariableChanged,
		Message: fmt.Sprintf("variable %q set by %s.%s", resultName, service, method),
	})
	nextCtx = nextCtx.AppendAudit(AuditEntry{
		TimestampMs: NowMs(), ComponentID: component.ID, Action: AuditComponentCompleted,
		Result: string(ResultSuccess),
	})
	return nextCtx, PortSuccess, nil
}

// resultVariableName is the variable an ACTION's result is stored
// under: the "resultVariable" property if set, else the component id,
// so a handler's result is always reachable even from a minimal ACTION
// definition.
func resultVariableName(component Component) string {
	if prop, ok := component.Property("resultVariable"); ok {
		if name, ok := prop.Literal().AsString(); ok && name != "" {
			return name
		}
	}
	return component.ID
}

// errorCodeAndMessage extracts the {code,message} pair stored into an
// ACTION's errorVariable: a *HostServiceError's own domain code passes
// through verbatim, an *ExecutionError contributes its engine error
// code, and anything else falls back to EXECUTION_EXCEPTION.
func errorCodeAndMessage(err error) (code, message string) {
	switch e := err.(type) {
	case *HostServiceError:
		return e.Code, e.Message
	case *ExecutionError:
		return string(e.Code), e.Message
	default:
		return string(ErrExecutionException), err.Error()
	}
}

func (d *Dispatcher) advanceDecision(component Component, execCtx ExecutionContext) (ExecutionContext, string, error) {
	condProp, _ := component.Property("condition")
	value, err := d.resolve(condProp, execCtx)
	if err != nil {
		return execCtx, "", err
	}
	b, ok := value.AsBoolean()
	if !ok {
		return execCtx, "", newExecError(ErrDecisionTypeError, component.ID,
			fmt.Sprintf("condition evaluated to kind %s, expected boolean", value.Kind()), nil)
	}
	if b {
		return execCtx, PortTrue, nil
	}
	return execCtx, PortFalse, nil
}
