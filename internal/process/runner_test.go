package process

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test relies on sh")
	}
}

func TestStartStreamsOutputInOrder(t *testing.T) {
	skipOnWindows(t)

	runner := NewLocalRunner()
	h, err := runner.Start(context.Background(), Command{
		Path: "sh",
		Args: []string{"-c", "echo one; echo two; echo three"},
	})
	require.NoError(t, err)

	var lines []string
	for line := range h.Lines() {
		lines = append(lines, line)
	}

	code, err := h.Wait()
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, []string{"one", "two", "three"}, lines)
}

func TestStartReadsOutputWhileRunning(t *testing.T) {
	skipOnWindows(t)

	runner := NewLocalRunner()
	h, err := runner.Start(context.Background(), Command{
		Path: "sh",
		Args: []string{"-c", "echo early; sleep 2; echo late"},
	})
	require.NoError(t, err)
	defer h.Wait()
	defer h.Kill()

	// The first line must arrive well before the process exits.
	select {
	case line := <-h.Lines():
		assert.Equal(t, "early", line)
	case <-time.After(time.Second):
		t.Fatal("no output received while process was running")
	}
}

func TestWaitReturnsExitCode(t *testing.T) {
	skipOnWindows(t)

	runner := NewLocalRunner()
	h, err := runner.Start(context.Background(), Command{
		Path: "sh",
		Args: []string{"-c", "exit 7"},
	})
	require.NoError(t, err)

	code, err := h.Wait()
	require.NoError(t, err)
	assert.Equal(t, 7, code)
}

func TestWaitTimeoutKillsProcess(t *testing.T) {
	skipOnWindows(t)

	runner := NewLocalRunner()
	start := time.Now()
	h, err := runner.Start(context.Background(), Command{
		Path:    "sh",
		Args:    []string{"-c", "sleep 30"},
		Timeout: 200 * time.Millisecond,
	})
	require.NoError(t, err)

	_, err = h.Wait()
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Less(t, time.Since(start), 10*time.Second, "child was not terminated")
}

func TestTailKeepsLastLines(t *testing.T) {
	skipOnWindows(t)

	runner := NewLocalRunner()
	h, err := runner.Start(context.Background(), Command{
		Path: "sh",
		Args: []string{"-c", "i=0; while [ $i -lt 100 ]; do echo line-$i; i=$((i+1)); done"},
	})
	require.NoError(t, err)

	_, err = h.Wait()
	require.NoError(t, err)

	tail := h.Tail()
	require.Len(t, tail, TailSize)
	assert.Equal(t, "line-99", tail[len(tail)-1])
}

func TestStartUnknownBinary(t *testing.T) {
	runner := NewLocalRunner()
	_, err := runner.Start(context.Background(), Command{Path: "definitely-not-a-real-binary-xyz"})
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "start", execErr.Operation)
}

func TestCommandString(t *testing.T) {
	cmd := Command{Path: "spc", Args: []string{"download", "libxml2"}}
	assert.Equal(t, "spc download libxml2", cmd.String())
	assert.Equal(t, "spc", Command{Path: "spc"}.String())
}
