package process

import (
	"fmt"
	"time"
)

// ExecutionError is returned when a process cannot be started.
type ExecutionError struct {
	Operation string
	Message   string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("process %s failed: %s", e.Operation, e.Message)
}

// TimeoutError is returned by Wait when a command exceeded its configured
// timeout and was terminated.
type TimeoutError struct {
	Command string
	After   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command timed out after %s: %s", e.After, e.Command)
}
