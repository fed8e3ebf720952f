package runtime

import (
	"context"
	"fmt"
	"sync"
)

// HostServiceHandler is a single callable host action: a service/method
// pair resolves to one of these. The signature is the whole contract;
// handlers are registered directly, with no reflection-based adapter
// layer in between.
type HostServiceHandler func(ctx context.Context, params map[string]VariableValue) (VariableValue, error)

// HostServiceRegistry is a flat (service, method) -> handler dispatch
// table consulted only by ACTION components.
type HostServiceRegistry struct {
	mu       sync.RWMutex
	handlers map[string]HostServiceHandler
}

// NewHostServiceRegistry constructs an empty registry.
func NewHostServiceRegistry() *HostServiceRegistry {
	return &HostServiceRegistry{handlers: make(map[string]HostServiceHandler)}
}

func key(service, method string) string { return service + "." + method }

// Register binds a handler to (service, method). Re-registering the
// same pair replaces the existing handler.
func (r *HostServiceRegistry) Register(service, method string, handler HostServiceHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[key(service, method)] = handler
}

// Invoke dispatches to the handler bound to (service, method). Returns
// an *ExecutionError with Code ErrServiceNotFound if nothing is
// registered. A handler's own *HostServiceError is passed through
// unchanged so its {code,message} pair stays readable downstream; any
// other error is wrapped as ErrHostServiceFailure unless the handler
// already returned an *ExecutionError.
func (r *HostServiceRegistry) Invoke(ctx context.Context, service, method string, params map[string]VariableValue) (VariableValue, error) {
	r.mu.RLock()
	handler, ok := r.handlers[key(service, method)]
	r.mu.RUnlock()
	if !ok {
		return Null, newExecError(ErrServiceNotFound, "", fmt.Sprintf("no host service registered for %s.%s", service, method), nil)
	}

	out, err := handler(ctx, params)
	if err == nil {
		return out, nil
	}
	switch e := err.(type) {
	case *ExecutionError:
		return Null, e
	case *HostServiceError:
		return Null, e
	default:
		return Null, newExecError(ErrHostServiceFailure, "", fmt.Sprintf("host service %s.%s failed", service, method), err)
	}
}

// Has reports whether a handler is registered for (service, method),
// for ahead-of-time graph validation.
func (r *HostServiceRegistry) Has(service, method string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[key(service, method)]
	return ok
}
