package resolver

import (
	"fmt"
	"strings"
)

// DependencyError reports a library that could not be acquired after policy
// exhaustion. It carries enough context for an operator to act manually.
type DependencyError struct {
	Library string
	Command string
	Tail    []string
	Err     error
}

func (e *DependencyError) Error() string {
	msg := fmt.Sprintf("library %s could not be acquired", e.Library)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Command != "" {
		msg += fmt.Sprintf(" (command: %s)", e.Command)
	}
	if len(e.Tail) > 0 {
		msg += "\n" + strings.Join(e.Tail, "\n")
	}
	return msg
}

func (e *DependencyError) Unwrap() error {
	return e.Err
}
