// Package processtest provides scripted Runner fakes for unit tests. No
// real subprocess is spawned; each command is answered from a script.
package processtest

import (
	"context"
	"sync"

	"github.com/spforge/spforge/internal/process"
)

// Response describes the outcome a scripted command produces.
type Response struct {
	Lines    []string // streamed output lines
	ExitCode int      // exit code returned by Wait
	Err      error    // error returned by Wait (e.g. a *process.TimeoutError)
	StartErr error    // error returned by Start itself
}

// Runner is a process.Runner that answers from a script function and
// records every started command.
type Runner struct {
	// Script maps a command to its response. Required.
	Script func(cmd process.Command) Response

	mu    sync.Mutex
	calls []process.Command
}

// Start records the command and returns a handle replaying the scripted
// response.
func (r *Runner) Start(_ context.Context, cmd process.Command) (process.Handle, error) {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	r.mu.Unlock()

	resp := r.Script(cmd)
	if resp.StartErr != nil {
		return nil, resp.StartErr
	}
	return NewHandle(resp), nil
}

// Calls returns the commands started so far.
func (r *Runner) Calls() []process.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	calls := make([]process.Command, len(r.calls))
	copy(calls, r.calls)
	return calls
}

// Handle replays a Response as a process.Handle.
type Handle struct {
	resp  Response
	lines chan string

	mu     sync.Mutex
	killed bool
}

// NewHandle creates a replaying handle. All output is buffered up front and
// the stream is already closed, matching a finite, non-restartable line
// sequence.
func NewHandle(resp Response) *Handle {
	lines := make(chan string, len(resp.Lines))
	for _, line := range resp.Lines {
		lines <- line
	}
	close(lines)
	return &Handle{resp: resp, lines: lines}
}

// Lines returns the scripted output stream.
func (h *Handle) Lines() <-chan string { return h.lines }

// Wait returns the scripted exit code and error.
func (h *Handle) Wait() (int, error) { return h.resp.ExitCode, h.resp.Err }

// Kill records that the process was terminated.
func (h *Handle) Kill() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.killed = true
	return nil
}

// Killed reports whether Kill was called.
func (h *Handle) Killed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.killed
}

// Tail returns the last lines of scripted output.
func (h *Handle) Tail() []string {
	if len(h.resp.Lines) <= process.TailSize {
		return h.resp.Lines
	}
	return h.resp.Lines[len(h.resp.Lines)-process.TailSize:]
}

// PID returns a fixed fake PID.
func (h *Handle) PID() int { return 4242 }

var _ process.Runner = (*Runner)(nil)
var _ process.Handle = (*Handle)(nil)
