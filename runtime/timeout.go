package runtime

import (
	"context"
	"fmt"
	"time"
)

// WithTimeout runs fn under a deadline. On timeout the zero value is
// returned with a TIMEOUT_EXCEEDED error and whatever fn produces later
// is discarded; partial results never leak to the caller.
// If the parent context is cancelled first, the error is CANCELLED
// instead. fn must honor its context's cancellation to stop doing work;
// WithTimeout only guarantees the caller stops waiting.
func WithTimeout[T any](goCtx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	timeoutCtx, cancel := context.WithTimeout(goCtx, timeout)
	defer cancel()

	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(timeoutCtx)
		done <- outcome{val: v, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return zero, out.err
		}
		return out.val, nil
	case <-timeoutCtx.Done():
		if goCtx.Err() != nil {
			return zero, newExecError(ErrCancelled, "", "cancelled while waiting", goCtx.Err())
		}
		return zero, newExecError(ErrTimeoutExceeded, "",
			fmt.Sprintf("operation did not complete within %s", timeout), timeoutCtx.Err())
	}
}
