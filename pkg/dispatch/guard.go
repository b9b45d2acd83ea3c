package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
)

// ErrCallbackTimeout marks a plugin callback that outran the configured
// callback timeout. It is handled exactly like a callback error.
var ErrCallbackTimeout = errors.New("plugin callback timed out")

// PanicError carries a panic recovered from a plugin callback.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("plugin callback panicked: %v", e.Value)
}

// guard is the fault boundary around every plugin callback. Errors, panics
// and timeouts all come back as an error; nothing escapes to the pipeline.
//
// A callback that times out keeps running in its goroutine. Its results are
// discarded.
func (d *Dispatcher) guard(ctx context.Context, fn func(context.Context) error) error {
	if d.callbackTimeout <= 0 {
		return recoverCall(ctx, fn)
	}

	ctx, cancel := context.WithTimeout(ctx, d.callbackTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- recoverCall(ctx, fn)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w after %s", ErrCallbackTimeout, d.callbackTimeout)
	}
}

func recoverCall(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn(ctx)
}
