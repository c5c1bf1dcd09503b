// Package driver runs one build request through the orchestration state
// machine: validate, ensure toolchain, resolve dependencies, acquire
// source, compile, package.
package driver

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/spforge/spforge/internal/catalog"
	"github.com/spforge/spforge/internal/classify"
	"github.com/spforge/spforge/internal/output"
	"github.com/spforge/spforge/internal/packager"
	"github.com/spforge/spforge/internal/process"
	"github.com/spforge/spforge/internal/resolver"
	"github.com/spforge/spforge/internal/toolchain"
)

// MaxRestartsPerLibrary caps compile restarts triggered by the same
// missing library. The toolchain cannot resume a compile, so every
// recovery is a full restart; without a cap a persistent signature would
// loop forever.
const MaxRestartsPerLibrary = 1

// stageCount is the number of progress stages a build reports.
const stageCount = 6

// State identifies a position in the build state machine. Exposed for
// logging and error attribution.
type State int

const (
	StateInit State = iota
	StateEnsureToolchain
	StateResolveDependencies
	StateAcquireSource
	StateCompile
	StatePackage
	StateDone
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateEnsureToolchain:
		return "ensure-toolchain"
	case StateResolveDependencies:
		return "resolve-dependencies"
	case StateAcquireSource:
		return "acquire-source"
	case StateCompile:
		return "compile"
	case StatePackage:
		return "package"
	}
	return "done"
}

// Status is the terminal outcome of a build.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
)

// String returns the status name.
func (s Status) String() string {
	if s == StatusSuccess {
		return "success"
	}
	return "failure"
}

// Result is created once per request and immutable after creation.
type Result struct {
	ID            string
	Status        Status
	ArtifactPath  string
	FailureReason error
	Duration      time.Duration

	// DegradedLibraries lists libraries the build continued without.
	DegradedLibraries []string
}

// LibraryResolver is the dependency-resolution collaborator.
type LibraryResolver interface {
	EnsureLibraries(ctx context.Context, libs []*resolver.Library) error
	EnsureLibrary(ctx context.Context, lib *resolver.Library) error
}

// ArtifactPackager is the packaging collaborator.
type ArtifactPackager interface {
	Package(binaryPath, archivePath, entryName string) error
}

// ToolchainBootstrapper installs the toolchain when absent.
type ToolchainBootstrapper interface {
	Ensure(ctx context.Context) error
}

// Driver drives one build request to completion. Only one Driver runs per
// process invocation; the toolchain does not support concurrent builds
// against the same installation.
type Driver struct {
	tc        *toolchain.Toolchain
	runner    process.Runner
	resolver  LibraryResolver
	packager  ArtifactPackager
	bootstrap ToolchainBootstrapper
	logger    *output.Logger
	progress  *output.Progress
}

// New creates a Driver.
func New(tc *toolchain.Toolchain, runner process.Runner, res LibraryResolver,
	pkg ArtifactPackager, boot ToolchainBootstrapper, logger *output.Logger) *Driver {
	if logger == nil {
		logger = output.DefaultLogger
	}
	progress := output.NewProgress(stageCount)
	progress.SetJSONMode(logger.JSONMode())
	return &Driver{
		tc:        tc,
		runner:    runner,
		resolver:  res,
		packager:  pkg,
		bootstrap: boot,
		logger:    logger,
		progress:  progress,
	}
}

// Run executes the state machine for one request and returns the terminal
// result. All failures are reported through the result, never panics.
func (d *Driver) Run(ctx context.Context, req Request) Result {
	start := time.Now()
	result := Result{ID: uuid.NewString()}

	fail := func(state State, err error) Result {
		result.Status = StatusFailure
		result.FailureReason = err
		result.Duration = time.Since(start)
		d.logger.Error("Build failed in state %s: %v", state, err)
		return result
	}

	d.progress.Reset()

	// Init
	d.progress.Stage("Validating build request")
	if err := req.Validate(); err != nil {
		return fail(StateInit, err)
	}

	// EnsureToolchain
	d.progress.Stage("Ensuring toolchain")
	if err := d.bootstrap.Ensure(ctx); err != nil {
		return fail(StateEnsureToolchain, &ToolchainBootstrapError{Err: err})
	}
	if err := d.tc.EnsureCacheDir(); err != nil {
		return fail(StateEnsureToolchain, err)
	}

	// ResolveDependencies
	d.progress.Stage("Resolving native libraries")
	libs := resolver.NewLibraries(catalog.LibrariesFor(req.Extensions))
	if err := d.resolver.EnsureLibraries(ctx, libs); err != nil {
		return fail(StateResolveDependencies, err)
	}
	for _, lib := range libs {
		if lib.State == resolver.StateFailed {
			result.DegradedLibraries = append(result.DegradedLibraries, lib.Name)
			d.logger.Warn("Building without library %s; the compile may fail or lack features", lib.Name)
		}
	}

	// AcquireSource
	d.progress.Stage(fmt.Sprintf("Acquiring PHP %s source", req.PHPVersion))
	if err := d.acquireSource(ctx, req); err != nil {
		return fail(StateAcquireSource, err)
	}

	// Compile
	d.progress.Stage(fmt.Sprintf("Compiling PHP %s (%s)", req.PHPVersion, req.SAPI))
	if err := d.compile(ctx, req); err != nil {
		return fail(StateCompile, err)
	}

	// Package
	d.progress.Stage("Packaging artifact")
	binaryName := catalog.BinaryName(req.SAPI, req.TargetOS)
	binaryPath := d.tc.BinaryPath(req.SAPI, req.TargetOS)
	archivePath := packager.ArchivePath(req.DistRoot, req.TargetOS, catalog.Arch(), req.PHPVersion)
	if err := d.packager.Package(binaryPath, archivePath, binaryName); err != nil {
		// Packaging is part of the success contract: a good compile with
		// a bad archive is still an overall failure.
		return fail(StatePackage, err)
	}

	result.Status = StatusSuccess
	result.ArtifactPath = archivePath
	result.Duration = time.Since(start)
	d.logger.Success("Built %s in %s", archivePath, result.Duration.Round(time.Second))
	return result
}

// acquireSource makes sure the PHP source for the requested version is in
// the download cache, then extracts it into the toolchain's source tree.
func (d *Driver) acquireSource(ctx context.Context, req Request) error {
	if d.tc.SourceArchivePresent(req.PHPVersion) {
		d.logger.Debug("PHP %s source already downloaded", req.PHPVersion)
	} else {
		cmd := d.tc.DownloadSourceCmd(req.PHPVersion)
		if err := d.runStep(ctx, cmd); err != nil {
			return &resolver.DependencyError{
				Library: "php-src",
				Command: cmd.String(),
				Err:     err,
			}
		}
	}

	extract := d.tc.ExtractCmd("php-src")
	if err := d.runStep(ctx, extract); err != nil {
		return &CompileError{Command: extract.String(), Err: err}
	}
	return nil
}

// runStep runs one exit-code-judged toolchain command to completion.
func (d *Driver) runStep(ctx context.Context, cmd process.Command) error {
	d.logger.Debug("Running: %s", cmd.String())
	h, err := d.runner.Start(ctx, cmd)
	if err != nil {
		return err
	}
	for line := range h.Lines() {
		d.logger.Debug("%s", line)
	}
	code, waitErr := h.Wait()
	if waitErr != nil {
		return waitErr
	}
	if code != 0 {
		return fmt.Errorf("%s exited with code %d", cmd.String(), code)
	}
	return nil
}

// compile runs the toolchain build command, reacting to missing-dependency
// signals with a resolve-then-restart. The toolchain has no incremental
// resume, so each recovery restarts the compile from scratch, at most
// MaxRestartsPerLibrary times per library.
func (d *Driver) compile(ctx context.Context, req Request) error {
	restarts := make(map[string]int)

	for {
		missing, err := d.compileOnce(ctx, req)
		if err != nil {
			return err
		}
		if missing == "" {
			return nil
		}

		if restarts[missing] >= MaxRestartsPerLibrary {
			return &CompileError{
				Command: d.tc.BuildCmd(req.Extensions, req.SAPI, req.UPXEnabled).String(),
				Err:     fmt.Errorf("library %s still missing after %d restart(s)", missing, restarts[missing]),
			}
		}
		restarts[missing]++

		d.logger.Warn("Compile reported missing library %s, resolving and restarting", missing)
		lib := &resolver.Library{Name: missing}
		if err := d.resolver.EnsureLibrary(ctx, lib); err != nil {
			return err
		}
		d.logger.Info("Restarting compile (restart %d for %s)", restarts[missing], missing)
	}
}

// compileOnce runs a single compile attempt. It returns the name of a
// missing library when the classifier spotted one mid-run (the compile is
// then treated as "will fail" and killed), or an error for unrecoverable
// failures. ("", nil) means the compile succeeded.
func (d *Driver) compileOnce(ctx context.Context, req Request) (string, error) {
	cmd := d.tc.BuildCmd(req.Extensions, req.SAPI, req.UPXEnabled)
	d.logger.Info("Running: %s", cmd.String())

	var logFile *os.File
	if req.LogPath != "" {
		f, err := os.OpenFile(req.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			d.logger.Warn("Cannot open build log %s: %v", req.LogPath, err)
		} else {
			logFile = f
			defer logFile.Close()
		}
	}

	h, err := d.runner.Start(ctx, cmd)
	if err != nil {
		return "", &CompileError{Command: cmd.String(), Err: err}
	}

	classifier := classify.New()
	missing := ""
	for line := range h.Lines() {
		if logFile != nil {
			fmt.Fprintln(logFile, line)
		}
		d.logger.Debug("%s", line)

		sig := classifier.Classify(line)
		// A signature that names no library (no stage marker seen yet) is
		// unactionable: there is nothing to resolve, so let the compile run
		// to its own exit instead of killing it.
		if sig.Kind == classify.DependencyMissing && sig.Library != "" && missing == "" {
			missing = sig.Library
			// The process is doomed; stop it instead of waiting out the
			// remaining build steps.
			h.Kill()
		}
	}

	code, waitErr := h.Wait()

	if missing != "" {
		return missing, nil
	}
	if waitErr != nil {
		if _, ok := waitErr.(*process.TimeoutError); ok {
			return "", &CompileError{Command: cmd.String(), Tail: h.Tail(), TimedOut: true, Err: waitErr}
		}
		return "", &CompileError{Command: cmd.String(), Tail: h.Tail(), Err: waitErr}
	}
	if code != 0 {
		return "", &CompileError{Command: cmd.String(), ExitCode: code, Tail: h.Tail()}
	}
	return "", nil
}
