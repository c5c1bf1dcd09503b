package output

import "strings"

// CommandErrorInfo contains error information for a failed external command.
type CommandErrorInfo struct {
	Command  string   // Full command that was executed
	WorkDir  string   // Working directory
	Tail     []string // Last lines of captured output
	ExitCode int      // Exit code
	Err      error    // The error that occurred
}

// Format renders the command failure for the operator, with the captured
// output tail between separators so it stands out from surrounding logs.
func (l *Logger) FormatCommandError(info *CommandErrorInfo) {
	if l.jsonMode || info == nil {
		return
	}

	l.Error("command failed: %s (exit code %d)", info.Command, info.ExitCode)
	if info.WorkDir != "" {
		l.Println("  working directory: %s", info.WorkDir)
	}
	if info.Err != nil {
		l.Println("  cause: %v", info.Err)
	}
	if len(info.Tail) > 0 {
		l.Println("%s", RedSeparator())
		l.Println("%s", strings.Join(info.Tail, "\n"))
		l.Println("%s", RedSeparator())
	}
}
