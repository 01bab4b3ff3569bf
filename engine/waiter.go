package engine

import (
	"context"

	"github.com/nodeedge/nodeedge/types"
)

// waiter is a one-shot notification for a single in-flight request: it is
// resolved exactly once, by the dispatcher goroutine, and observed by
// exactly one caller goroutine blocked in wait.
type waiter struct {
	done   chan struct{}
	result types.Value
	err    error
}

func newWaiter() *waiter {
	return &waiter{done: make(chan struct{})}
}

// resolve completes the waiter. Only the dispatcher goroutine ever calls
// this, and it does so at most once per waiter by construction (the
// pending table entry is deleted in the same step that resolves it).
func (w *waiter) resolve(result types.Value, err error) {
	w.result = result
	w.err = err
	close(w.done)
}

// wait blocks until the dispatcher resolves this waiter or ctx ends. A
// ctx cancellation does not retract the request already written to the
// child; the dispatcher still holds the pending entry and will resolve it
// (to a discarded result) when the response eventually arrives.
func (w *waiter) wait(ctx context.Context) (types.Value, error) {
	select {
	case <-w.done:
		return w.result, w.err
	case <-ctx.Done():
		return types.Value{}, ctx.Err()
	}
}
