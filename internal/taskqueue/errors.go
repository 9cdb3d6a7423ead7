package taskqueue

import (
	"errors"
	"fmt"
)

// Sentinel errors for the taskqueue package.
var (
	// ErrAlreadyRunning is returned when Start is called on a running queue.
	ErrAlreadyRunning = errors.New("task queue is already running")

	// ErrNotRunning is returned when Stop is called on a queue that is not running.
	ErrNotRunning = errors.New("task queue is not running")

	// ErrStopped is returned by Flush after the queue has been stopped.
	ErrStopped = errors.New("task queue is stopped")

	// ErrReentrantFlush is returned when Flush is called from a running task.
	ErrReentrantFlush = errors.New("flush called from inside a task")
)

// PanicError wraps a value recovered from a panicking task.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("task panicked: %v", e.Value)
}
