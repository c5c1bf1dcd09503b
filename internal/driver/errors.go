package driver

import (
	"fmt"
	"strings"
)

// EnvironmentError reports an unsupported or malformed build environment:
// bad request fields, unsupported OS. Never retried.
type EnvironmentError struct {
	Reason string
}

func (e *EnvironmentError) Error() string {
	return "environment error: " + e.Reason
}

// ToolchainBootstrapError reports a failed toolchain clone or install.
// Fatal unless the operator retries manually.
type ToolchainBootstrapError struct {
	Err error
}

func (e *ToolchainBootstrapError) Error() string {
	return "toolchain bootstrap failed: " + e.Err.Error()
}

func (e *ToolchainBootstrapError) Unwrap() error {
	return e.Err
}

// CompileError reports a build exit not attributable to a known
// missing-dependency signature. Carries the captured output tail so the
// operator can act manually.
type CompileError struct {
	Command  string
	ExitCode int
	Tail     []string
	TimedOut bool
	Err      error
}

func (e *CompileError) Error() string {
	var msg string
	switch {
	case e.TimedOut:
		msg = fmt.Sprintf("compile timed out (command: %s)", e.Command)
	case e.Err != nil:
		msg = fmt.Sprintf("compile failed: %v (command: %s)", e.Err, e.Command)
	default:
		msg = fmt.Sprintf("compile failed with exit code %d (command: %s)", e.ExitCode, e.Command)
	}
	if len(e.Tail) > 0 {
		msg += "\n" + strings.Join(e.Tail, "\n")
	}
	return msg
}

func (e *CompileError) Unwrap() error {
	return e.Err
}
