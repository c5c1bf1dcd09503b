// Package process provides subprocess execution with streamed output.
package process

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// TailSize is the number of trailing output lines a handle retains for
// error reporting after the stream has been consumed.
const TailSize = 40

// Command describes one external command invocation.
type Command struct {
	Path    string        // Program to execute
	Args    []string      // Arguments, excluding the program itself
	WorkDir string        // Working directory ("" = inherit)
	Env     []string      // Extra KEY=VALUE entries appended to the parent env
	Timeout time.Duration // Zero means no timeout
}

// String renders the command line for logs and error context.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Path
	}
	return c.Path + " " + strings.Join(c.Args, " ")
}

// Handle represents one running external command. The owner must ensure the
// process is terminated or awaited on every exit path.
type Handle interface {
	// Lines streams merged stdout/stderr line by line while the process is
	// still running. The channel is closed once output is exhausted; it is
	// finite after exit and not restartable.
	Lines() <-chan string

	// Wait blocks until the process exits and returns its exit code.
	// A command that exceeded its timeout yields a *TimeoutError.
	Wait() (int, error)

	// Kill terminates the process. Wait must still be called afterwards.
	Kill() error

	// Tail returns the last captured output lines.
	Tail() []string

	// PID returns the process ID.
	PID() int
}

// Runner starts external commands.
type Runner interface {
	Start(ctx context.Context, cmd Command) (Handle, error)
}

// LocalRunner implements Runner for local OS processes.
type LocalRunner struct{}

// NewLocalRunner creates a new LocalRunner.
func NewLocalRunner() *LocalRunner {
	return &LocalRunner{}
}

// localHandle implements Handle for local processes.
type localHandle struct {
	spec     Command
	cmd      *exec.Cmd
	cancel   context.CancelFunc
	lines    chan string
	done     chan struct{}
	timedOut func() bool

	mu       sync.Mutex
	tail     []string
	exitCode int
	waitErr  error
}

// Start launches a new process. stdout and stderr are merged through a
// single pipe so the caller observes lines in the order the process
// produced them.
func (r *LocalRunner) Start(ctx context.Context, cmd Command) (Handle, error) {
	if cmd.Path == "" {
		return nil, &ExecutionError{Operation: "start", Message: "empty command path"}
	}

	if cmd.WorkDir != "" {
		if _, err := os.Stat(cmd.WorkDir); err != nil {
			return nil, &ExecutionError{
				Operation: "start",
				Message:   fmt.Sprintf("work directory not accessible: %v", err),
			}
		}
	}

	var runCtx context.Context
	var cancel context.CancelFunc
	if cmd.Timeout > 0 {
		runCtx, cancel = context.WithDeadline(ctx, time.Now().Add(cmd.Timeout))
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}

	execCmd := exec.CommandContext(runCtx, cmd.Path, cmd.Args...)
	if cmd.WorkDir != "" {
		execCmd.Dir = cmd.WorkDir
	}
	if len(cmd.Env) > 0 {
		execCmd.Env = append(os.Environ(), cmd.Env...)
	}

	pr, pw := io.Pipe()
	execCmd.Stdout = pw
	execCmd.Stderr = pw

	if err := execCmd.Start(); err != nil {
		cancel()
		pr.Close()
		pw.Close()
		return nil, &ExecutionError{
			Operation: "start",
			Message:   fmt.Sprintf("failed to start %s: %v", cmd.Path, err),
		}
	}

	h := &localHandle{
		spec:   cmd,
		cmd:    execCmd,
		cancel: cancel,
		lines:  make(chan string, 64),
		done:   make(chan struct{}),
		timedOut: func() bool {
			return runCtx.Err() == context.DeadlineExceeded
		},
	}

	// Reader side: scan the merged pipe until the writer closes.
	scanDone := make(chan struct{})
	go func() {
		defer close(scanDone)
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			h.appendTail(line)
			h.lines <- line
		}
	}()

	// Waiter side: reap the process, then release the reader and the owner.
	go func() {
		err := execCmd.Wait()
		pw.Close()
		<-scanDone
		close(h.lines)

		h.mu.Lock()
		h.waitErr = err
		if execCmd.ProcessState != nil {
			h.exitCode = execCmd.ProcessState.ExitCode()
		} else {
			h.exitCode = -1
		}
		h.mu.Unlock()
		close(h.done)
	}()

	return h, nil
}

func (h *localHandle) appendTail(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tail = append(h.tail, line)
	if len(h.tail) > TailSize {
		h.tail = h.tail[len(h.tail)-TailSize:]
	}
}

// Lines returns the streaming output channel.
func (h *localHandle) Lines() <-chan string {
	return h.lines
}

// Wait blocks until the process exits. The caller must have consumed (or be
// consuming) Lines; Wait drains any remaining output itself so an
// abandoned stream cannot deadlock the child.
func (h *localHandle) Wait() (int, error) {
	go func() {
		for range h.lines {
		}
	}()
	<-h.done
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.timedOut() {
		return -1, &TimeoutError{Command: h.spec.String(), After: h.spec.Timeout}
	}
	if h.waitErr != nil {
		// Non-zero exits are reported through the exit code, not the error.
		if _, ok := h.waitErr.(*exec.ExitError); ok {
			return h.exitCode, nil
		}
		return -1, h.waitErr
	}
	return h.exitCode, nil
}

// Kill terminates the process. It is safe to call more than once and after
// exit.
func (h *localHandle) Kill() error {
	h.cancel()
	return nil
}

// Tail returns the last captured output lines.
func (h *localHandle) Tail() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	tail := make([]string, len(h.tail))
	copy(tail, h.tail)
	return tail
}

// PID returns the process ID.
func (h *localHandle) PID() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Ensure LocalRunner implements Runner.
var _ Runner = (*LocalRunner)(nil)
