// Package prereq checks that the host tools the build toolchain shells out
// to are installed before any build starts.
package prereq

import (
	"fmt"
	"os/exec"
	"strings"
)

// PrereqResult contains the result of a prerequisite check.
type PrereqResult struct {
	Name       string `json:"name"`
	Required   bool   `json:"required"`
	Found      bool   `json:"found"`
	Version    string `json:"version,omitempty"`
	Path       string `json:"path,omitempty"`
	Message    string `json:"message,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Checker performs prerequisite checks.
type Checker struct {
	upxWanted bool
	results   []PrereqResult

	// overridable in tests
	lookPath       func(file string) (string, error)
	commandVersion func(name string, args ...string) (string, error)
}

// NewChecker creates a new prerequisite Checker.
func NewChecker() *Checker {
	return &Checker{
		results:        make([]PrereqResult, 0),
		lookPath:       exec.LookPath,
		commandVersion: runVersion,
	}
}

// WantUPX adds an optional check for the upx binary packer.
func (c *Checker) WantUPX() *Checker {
	c.upxWanted = true
	return c
}

// Check performs all prerequisite checks and returns the results.
func (c *Checker) Check() ([]PrereqResult, error) {
	c.results = make([]PrereqResult, 0)

	c.checkTool("git", true, "Install git with your package manager",
		"--version")
	c.checkTool("php", true, "Install a PHP interpreter (8.1+) to run the build toolchain",
		"-r", "echo PHP_VERSION;")
	c.checkTool("composer", true, "Install Composer: https://getcomposer.org/download/",
		"--version")

	if c.upxWanted {
		c.checkTool("upx", false, "Install upx to enable binary packing, or build without --upx",
			"--version")
	}

	for _, result := range c.results {
		if result.Required && !result.Found {
			return c.results, fmt.Errorf("prerequisite not met: %s - %s", result.Name, result.Message)
		}
	}

	return c.results, nil
}

// checkTool locates one binary and records its version when obtainable.
func (c *Checker) checkTool(name string, required bool, suggestion string, versionArgs ...string) {
	result := PrereqResult{
		Name:     name,
		Required: required,
	}

	path, err := c.lookPath(name)
	if err != nil {
		result.Found = false
		result.Message = name + " is not installed"
		result.Suggestion = suggestion
		c.results = append(c.results, result)
		return
	}

	result.Found = true
	result.Path = path
	if out, err := c.commandVersion(name, versionArgs...); err == nil {
		result.Version = parseVersion(name, out)
	}
	result.Message = name + " is available"
	if result.Version != "" {
		result.Message = fmt.Sprintf("%s %s is available", name, result.Version)
	}
	c.results = append(c.results, result)
}

// runVersion executes a tool's version command and returns its output.
func runVersion(name string, args ...string) (string, error) {
	out, err := exec.Command(name, args...).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// parseVersion extracts a bare version number from a tool's version output.
func parseVersion(name, out string) string {
	switch name {
	case "php":
		// `php -r 'echo PHP_VERSION;'` prints the bare version
		return out
	case "git":
		// "git version 2.44.0"
		parts := strings.Fields(out)
		if len(parts) >= 3 {
			return parts[2]
		}
	case "composer", "upx":
		// "Composer version 2.7.1 ..." / "upx 4.2.2"
		for _, field := range strings.Fields(out) {
			if field != "" && field[0] >= '0' && field[0] <= '9' {
				return field
			}
		}
	}
	return ""
}

// AllPassed returns true if all required checks passed.
func (c *Checker) AllPassed() bool {
	for _, result := range c.results {
		if result.Required && !result.Found {
			return false
		}
	}
	return true
}

// FailedChecks returns only the failed required checks.
func (c *Checker) FailedChecks() []PrereqResult {
	failed := make([]PrereqResult, 0)
	for _, result := range c.results {
		if result.Required && !result.Found {
			failed = append(failed, result)
		}
	}
	return failed
}
