package output

import (
	"os"
	"strings"
)

// DefaultTailLines is how much of a build log is echoed when a compile
// fails and no in-memory tail is available.
const DefaultTailLines = 20

// ReadLastLines returns the last n lines of a captured log file. n <= 0
// means DefaultTailLines.
func ReadLastLines(path string, n int) ([]string, error) {
	if n <= 0 {
		n = DefaultTailLines
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &FileNotFoundError{Path: path}
		}
		if os.IsPermission(err) {
			return nil, &PermissionDeniedError{Path: path}
		}
		return nil, err
	}

	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return nil, &EmptyFileError{Path: path}
	}

	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// FileNotFoundError indicates the log file does not exist.
type FileNotFoundError struct {
	Path string
}

func (e *FileNotFoundError) Error() string {
	return "no log file found at " + e.Path
}

// PermissionDeniedError indicates the log file cannot be read due to permissions.
type PermissionDeniedError struct {
	Path string
}

func (e *PermissionDeniedError) Error() string {
	return "cannot read log file: permission denied at " + e.Path
}

// EmptyFileError indicates the log file is empty.
type EmptyFileError struct {
	Path string
}

func (e *EmptyFileError) Error() string {
	return "log file is empty at " + e.Path
}
