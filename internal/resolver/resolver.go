// Package resolver ensures every required native library is fetched and
// buildable before compilation starts.
package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/spforge/spforge/internal/classify"
	"github.com/spforge/spforge/internal/output"
	"github.com/spforge/spforge/internal/process"
	"github.com/spforge/spforge/internal/retry"
	"github.com/spforge/spforge/internal/toolchain"
)

// DefaultMaxAttempts is the per-acquisition retry bound.
const DefaultMaxAttempts = 3

// State is the acquisition state of one library.
type State int

const (
	StateUnknown State = iota
	StatePresent
	StateDownloading
	StateDownloaded
	StateFailed
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StatePresent:
		return "present"
	case StateDownloading:
		return "downloading"
	case StateDownloaded:
		return "downloaded"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Library is one native library dependency. State transitions are driven
// exclusively by the Resolver.
type Library struct {
	Name  string
	State State
}

// NewLibraries creates Unknown libraries for the given names, preserving
// order.
func NewLibraries(names []string) []*Library {
	libs := make([]*Library, 0, len(names))
	for _, name := range names {
		libs = append(libs, &Library{Name: name})
	}
	return libs
}

// ConfirmFunc asks the operator whether to continue without a library that
// could not be acquired. Returning true accepts the degraded build.
type ConfirmFunc func(lib string, lastErr error) bool

// Options configures resolution behavior.
type Options struct {
	// MaxAttempts bounds each acquisition method. Zero means
	// DefaultMaxAttempts.
	MaxAttempts int

	// ContinueWithoutLibs accepts unacquirable libraries without asking.
	ContinueWithoutLibs bool

	// Confirm is consulted when a library is unacquirable and
	// ContinueWithoutLibs is unset. Nil means abort.
	Confirm ConfirmFunc

	// Sleep overrides the retry backoff clock (tests).
	Sleep retry.Sleeper
}

// Resolver acquires native libraries through the toolchain CLI.
type Resolver struct {
	tc     *toolchain.Toolchain
	runner process.Runner
	logger *output.Logger
	policy retry.Policy
	opts   Options
}

// New creates a Resolver.
func New(tc *toolchain.Toolchain, runner process.Runner, logger *output.Logger, opts Options) *Resolver {
	if logger == nil {
		logger = output.DefaultLogger
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	policy := retry.New(maxAttempts)
	policy.Sleep = opts.Sleep
	return &Resolver{
		tc:     tc,
		runner: runner,
		logger: logger,
		policy: policy,
		opts:   opts,
	}
}

// EnsureLibraries resolves every library in order. Order only affects log
// readability; the libraries are independent. The first unacquirable
// library the configuration does not allow skipping aborts resolution.
func (r *Resolver) EnsureLibraries(ctx context.Context, libs []*Library) error {
	if err := r.tc.EnsureCacheDir(); err != nil {
		return err
	}

	for i, lib := range libs {
		r.logger.Info("Checking library %s (%d/%d)", lib.Name, i+1, len(libs))
		if err := r.EnsureLibrary(ctx, lib); err != nil {
			return err
		}
	}
	return nil
}

// EnsureLibrary brings one library to a terminal state. On return the
// library is Present, Downloaded, or Failed; Failed without an error means
// the configuration (or the operator) accepted continuing without it.
func (r *Resolver) EnsureLibrary(ctx context.Context, lib *Library) error {
	if err := r.tc.EnsureCacheDir(); err != nil {
		return err
	}

	probe, err := r.probe(ctx, lib.Name)
	if err != nil {
		return err
	}
	if probe.ok {
		lib.State = StatePresent
		r.logger.Debug("Library %s already locked", lib.Name)
		return nil
	}
	if probe.missing == "" {
		// The probe failed without a missing-dependency signature: the
		// library itself does not build. Nothing to download.
		lib.State = StateFailed
		return r.failed(lib, &DependencyError{
			Library: lib.Name,
			Command: r.tc.BuildLibraryCmd(lib.Name).String(),
			Tail:    probe.tail,
			Err:     fmt.Errorf("library build probe exited with code %d", probe.exitCode),
		})
	}

	target := probe.missing
	r.logger.Info("Library %s is missing, downloading...", target)
	lib.State = StateDownloading

	acquireErr := r.acquire(ctx, target, true)
	if acquireErr != nil {
		r.logger.Warn("Pre-built download of %s failed (%v), falling back to source download", target, acquireErr)
		lib.State = StateDownloading // Failed demotes back to Downloading on the fallback path
		acquireErr = r.acquire(ctx, target, false)
	}
	if acquireErr != nil {
		lib.State = StateFailed
		return r.failed(lib, &DependencyError{
			Library: target,
			Command: r.tc.DownloadCmd(target, false).String(),
			Err:     acquireErr,
		})
	}

	// Re-probe so the library ends up built and locked, not just fetched.
	probe, err = r.probe(ctx, lib.Name)
	if err != nil {
		return err
	}
	if !probe.ok {
		lib.State = StateFailed
		return r.failed(lib, &DependencyError{
			Library: lib.Name,
			Command: r.tc.BuildLibraryCmd(lib.Name).String(),
			Tail:    probe.tail,
			Err:     fmt.Errorf("library still not buildable after download (exit code %d)", probe.exitCode),
		})
	}

	lib.State = StateDownloaded
	r.logger.Success("Library %s downloaded", lib.Name)
	return nil
}

// probeResult captures one build-library probe.
type probeResult struct {
	ok       bool
	missing  string // library named by a DependencyMissing signal
	exitCode int
	tail     []string
}

// probe runs the check/build command and classifies its output.
func (r *Resolver) probe(ctx context.Context, lib string) (*probeResult, error) {
	cmd := r.tc.BuildLibraryCmd(lib)
	h, err := r.runner.Start(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to probe library %s: %w", lib, err)
	}

	classifier := classify.New()
	missing := ""
	for line := range h.Lines() {
		r.logger.Debug("%s", line)
		sig := classifier.Classify(line)
		if sig.Kind == classify.DependencyMissing {
			name := sig.Library
			if name == "" {
				name = lib
			}
			missing = name
		}
	}

	code, waitErr := h.Wait()
	if waitErr != nil {
		if _, ok := waitErr.(*process.TimeoutError); ok {
			return nil, &DependencyError{
				Library: lib,
				Command: cmd.String(),
				Tail:    h.Tail(),
				Err:     waitErr,
			}
		}
		return nil, fmt.Errorf("failed to probe library %s: %w", lib, waitErr)
	}

	return &probeResult{
		ok:       code == 0 && missing == "",
		missing:  missing,
		exitCode: code,
		tail:     h.Tail(),
	}, nil
}

// acquire downloads one library with the retry policy. preBuilt selects the
// primary acquisition method.
func (r *Resolver) acquire(ctx context.Context, lib string, preBuilt bool) error {
	method := "pre-built"
	if !preBuilt {
		method = "source"
	}

	attempts, err := r.policy.Do(ctx, func(ctx context.Context) error {
		return r.runDownload(ctx, lib, preBuilt)
	}, func(attempt int, err error) retry.Decision {
		r.logger.Warn("Download of %s (%s) attempt %d failed: %v", lib, method, attempt, err)
		return retry.Continue
	})
	if err != nil {
		return err
	}
	r.logger.Debug("Downloaded %s via %s method on attempt %d", lib, method, attempts)
	return nil
}

func (r *Resolver) runDownload(ctx context.Context, lib string, preBuilt bool) error {
	cmd := r.tc.DownloadCmd(lib, preBuilt)
	h, err := r.runner.Start(ctx, cmd)
	if err != nil {
		return err
	}
	for line := range h.Lines() {
		r.logger.Debug("%s", line)
	}
	code, waitErr := h.Wait()
	if waitErr != nil {
		return waitErr
	}
	if code != 0 {
		return fmt.Errorf("%s exited with code %d: %s", cmd.String(), code,
			lastLine(h.Tail()))
	}
	return nil
}

// failed decides whether an unacquirable library aborts resolution or is
// accepted as a degraded state. Acceptance is surfaced to the caller
// through the Failed library state, not an error.
func (r *Resolver) failed(lib *Library, depErr *DependencyError) error {
	if r.opts.ContinueWithoutLibs {
		r.logger.Warn("Continuing without library %s (continue_without_libs is set)", lib.Name)
		return nil
	}
	if r.opts.Confirm != nil && r.opts.Confirm(lib.Name, depErr) {
		r.logger.Warn("Continuing without library %s (operator confirmed)", lib.Name)
		return nil
	}
	return depErr
}

func lastLine(tail []string) string {
	for i := len(tail) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(tail[i]); s != "" {
			return s
		}
	}
	return ""
}
