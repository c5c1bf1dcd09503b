package output

import (
	"io"
	"os"

	"github.com/fatih/color"
)

// Progress provides progress indication for multi-step operations.
type Progress struct {
	out      io.Writer
	total    int
	current  int
	jsonMode bool
}

// NewProgress creates a new Progress instance with the given total steps.
func NewProgress(total int) *Progress {
	return &Progress{
		out:   os.Stdout,
		total: total,
	}
}

// SetJSONMode enables JSON output mode (suppresses text output).
func (p *Progress) SetJSONMode(jsonMode bool) {
	p.jsonMode = jsonMode
}

// Stage prints a progress stage message in format [N/M] Description...
func (p *Progress) Stage(description string) {
	if p.jsonMode {
		return
	}
	p.current++
	cyan := color.New(color.FgCyan)
	cyan.Fprintf(p.out, "[%d/%d] %s...\n", p.current, p.total, description)
}

// Reset resets the progress counter.
func (p *Progress) Reset() {
	p.current = 0
}
