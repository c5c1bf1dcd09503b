package toolchain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spforge/spforge/internal/output"
	"github.com/spforge/spforge/internal/process"
)

// BootstrapTimeout bounds the clone and the package-manager install each.
const BootstrapTimeout = 20 * time.Minute

// Bootstrapper installs the toolchain when it is absent: a git clone of the
// upstream repository followed by a composer install inside it. Both steps
// are judged by exit code only; their output is not parsed.
type Bootstrapper struct {
	tc     *Toolchain
	runner process.Runner
	logger *output.Logger
}

// NewBootstrapper creates a Bootstrapper.
func NewBootstrapper(tc *Toolchain, runner process.Runner, logger *output.Logger) *Bootstrapper {
	if logger == nil {
		logger = output.DefaultLogger
	}
	return &Bootstrapper{tc: tc, runner: runner, logger: logger}
}

// Ensure makes the toolchain available at its configured root, cloning and
// installing it when missing. Already-installed toolchains are left alone.
func (b *Bootstrapper) Ensure(ctx context.Context) error {
	if b.tc.Installed() {
		b.logger.Debug("Toolchain already installed at %s", b.tc.Root)
		return nil
	}

	b.logger.Info("Toolchain not found at %s, installing...", b.tc.Root)

	clone := process.Command{
		Path:    "git",
		Args:    []string{"clone", "--depth", "1", RepoURL, b.tc.Root},
		Env:     []string{"GIT_TERMINAL_PROMPT=0"},
		Timeout: BootstrapTimeout,
	}
	if err := b.runStep(ctx, "clone", clone); err != nil {
		return err
	}

	install := process.Command{
		Path:    "composer",
		Args:    []string{"install", "--no-dev", "--no-interaction"},
		WorkDir: b.tc.Root,
		Timeout: BootstrapTimeout,
	}
	if err := b.runStep(ctx, "install", install); err != nil {
		return err
	}

	if !b.tc.Installed() {
		return fmt.Errorf("toolchain install finished but %s is missing", b.tc.SpcPath())
	}

	b.logger.Success("Toolchain installed at %s", b.tc.Root)
	return nil
}

func (b *Bootstrapper) runStep(ctx context.Context, step string, cmd process.Command) error {
	b.logger.Debug("Running %s: %s", step, cmd.String())

	h, err := b.runner.Start(ctx, cmd)
	if err != nil {
		return fmt.Errorf("toolchain %s failed: %w", step, err)
	}

	for line := range h.Lines() {
		b.logger.Debug("%s", line)
	}

	code, err := h.Wait()
	if err != nil {
		return fmt.Errorf("toolchain %s failed: %w", step, err)
	}
	if code != 0 {
		return fmt.Errorf("toolchain %s failed with exit code %d: %s",
			step, code, strings.Join(h.Tail(), "\n"))
	}
	return nil
}
