package driver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spforge/spforge/internal/catalog"
	"github.com/spforge/spforge/internal/packager"
	"github.com/spforge/spforge/internal/process"
	"github.com/spforge/spforge/internal/process/processtest"
	"github.com/spforge/spforge/internal/resolver"
	"github.com/spforge/spforge/internal/toolchain"
)

// fakeResolver records resolution calls and optionally fails.
type fakeResolver struct {
	ensureAllErr error
	ensureOneErr error
	failLibs     map[string]bool // libraries left in StateFailed

	allCalls []string // library names passed to EnsureLibraries
	oneCalls []string // library names passed to EnsureLibrary
}

func (f *fakeResolver) EnsureLibraries(_ context.Context, libs []*resolver.Library) error {
	for _, lib := range libs {
		f.allCalls = append(f.allCalls, lib.Name)
		if f.failLibs[lib.Name] {
			lib.State = resolver.StateFailed
		} else {
			lib.State = resolver.StatePresent
		}
	}
	return f.ensureAllErr
}

func (f *fakeResolver) EnsureLibrary(_ context.Context, lib *resolver.Library) error {
	f.oneCalls = append(f.oneCalls, lib.Name)
	if f.ensureOneErr != nil {
		return f.ensureOneErr
	}
	lib.State = resolver.StateDownloaded
	return nil
}

// fakeBootstrap counts Ensure calls.
type fakeBootstrap struct {
	err   error
	calls int
}

func (f *fakeBootstrap) Ensure(context.Context) error {
	f.calls++
	return f.err
}

// buildEnv wires a driver against a scripted runner and a real packager.
type buildEnv struct {
	tc     *toolchain.Toolchain
	runner *processtest.Runner
	res    *fakeResolver
	boot   *fakeBootstrap
	drv    *Driver
	dist   string
}

func isBuildCmd(cmd process.Command) bool {
	return slices.Contains(cmd.Args, "build")
}

func newBuildEnv(t *testing.T, script func(cmd process.Command) processtest.Response) *buildEnv {
	t.Helper()
	env := &buildEnv{
		tc:     toolchain.New(t.TempDir()),
		runner: &processtest.Runner{Script: script},
		res:    &fakeResolver{},
		boot:   &fakeBootstrap{},
		dist:   t.TempDir(),
	}
	env.drv = New(env.tc, env.runner, env.res, packager.New(nil), env.boot, nil)
	return env
}

func (e *buildEnv) request() Request {
	return Request{
		PHPVersion:    "8.3.21",
		Extensions:    []string{"curl", "mbstring"},
		SAPI:          catalog.SAPICLI,
		TargetOS:      catalog.Linux,
		ToolchainPath: e.tc.Root,
		DistRoot:      e.dist,
	}
}

// prime writes the source tarball and the built binary so the happy-path
// stages find what the real toolchain would have produced.
func (e *buildEnv) prime(t *testing.T) {
	t.Helper()
	require.NoError(t, e.tc.EnsureCacheDir())
	require.NoError(t, os.WriteFile(
		filepath.Join(e.tc.DownloadsDir(), "php-8.3.21.tar.xz"), []byte("src"), 0o644))
	require.NoError(t, os.MkdirAll(e.tc.BuildRootBin(), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(e.tc.BuildRootBin(), "php"), []byte("binary"), 0o755))
}

func okScript(cmd process.Command) processtest.Response {
	return processtest.Response{ExitCode: 0}
}

func TestRunRejectsEmptyExtensionSet(t *testing.T) {
	env := newBuildEnv(t, okScript)
	req := env.request()
	req.Extensions = nil

	result := env.drv.Run(context.Background(), req)

	assert.Equal(t, StatusFailure, result.Status)
	var envErr *EnvironmentError
	require.ErrorAs(t, result.FailureReason, &envErr)

	// Validation failures must happen before any process is spawned.
	assert.Empty(t, env.runner.Calls())
	assert.Zero(t, env.boot.calls)
}

func TestRunRejectsUnknownExtension(t *testing.T) {
	env := newBuildEnv(t, okScript)
	req := env.request()
	req.Extensions = []string{"curl", "not-an-extension"}

	result := env.drv.Run(context.Background(), req)

	assert.Equal(t, StatusFailure, result.Status)
	var envErr *EnvironmentError
	require.ErrorAs(t, result.FailureReason, &envErr)
}

func TestRunEndToEndSuccess(t *testing.T) {
	env := newBuildEnv(t, okScript)
	env.prime(t)

	result := env.drv.Run(context.Background(), env.request())

	require.NoError(t, result.FailureReason)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.NotEmpty(t, result.ID)
	assert.Equal(t,
		filepath.Join(env.dist, "Linux", catalog.Arch(), "php-8.3.21.zip"),
		result.ArtifactPath)
	assert.FileExists(t, result.ArtifactPath)

	// curl pulls in native libraries; mbstring needs none.
	assert.Contains(t, env.res.allCalls, "curl")
	assert.Contains(t, env.res.allCalls, "openssl")

	// Stages ran: extract + compile, no source download (tarball primed).
	var args [][]string
	for _, cmd := range env.runner.Calls() {
		args = append(args, cmd.Args)
	}
	require.Len(t, args, 2)
	assert.Contains(t, args[0], "extract")
	assert.Contains(t, args[1], "build")
	assert.Contains(t, args[1], "curl,mbstring")
	assert.Contains(t, args[1], "--build-cli")
}

func TestRunDownloadsSourceWhenAbsent(t *testing.T) {
	env := newBuildEnv(t, okScript)
	env.prime(t)
	require.NoError(t, os.Remove(filepath.Join(env.tc.DownloadsDir(), "php-8.3.21.tar.xz")))

	result := env.drv.Run(context.Background(), env.request())
	require.Equal(t, StatusSuccess, result.Status)

	calls := env.runner.Calls()
	require.Len(t, calls, 3)
	assert.Contains(t, calls[0].Args, "php-src")
	assert.Contains(t, calls[0].Args, "--with-php=8.3.21")
}

func TestRunBootstrapFailure(t *testing.T) {
	env := newBuildEnv(t, okScript)
	env.boot.err = errors.New("clone refused")

	result := env.drv.Run(context.Background(), env.request())

	assert.Equal(t, StatusFailure, result.Status)
	var bootErr *ToolchainBootstrapError
	require.ErrorAs(t, result.FailureReason, &bootErr)
	assert.Empty(t, env.runner.Calls())
}

func TestRunDependencyFailureAborts(t *testing.T) {
	env := newBuildEnv(t, okScript)
	env.res.ensureAllErr = &resolver.DependencyError{Library: "icu"}

	result := env.drv.Run(context.Background(), env.request())

	assert.Equal(t, StatusFailure, result.Status)
	var depErr *resolver.DependencyError
	require.ErrorAs(t, result.FailureReason, &depErr)
	assert.Equal(t, "icu", depErr.Library)
}

func TestRunSurfacesDegradedLibraries(t *testing.T) {
	env := newBuildEnv(t, okScript)
	env.prime(t)
	env.res.failLibs = map[string]bool{"brotli": true}

	result := env.drv.Run(context.Background(), env.request())

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, []string{"brotli"}, result.DegradedLibraries)
}

func TestRunCompileRestartOnMissingDependency(t *testing.T) {
	env := newBuildEnv(t, nil)
	env.prime(t)

	buildRuns := 0
	env.runner.Script = func(cmd process.Command) processtest.Response {
		if !isBuildCmd(cmd) {
			return processtest.Response{ExitCode: 0}
		}
		buildRuns++
		if buildRuns == 1 {
			return processtest.Response{
				ExitCode: 1,
				Lines: []string{
					"Building required lib [libxml2]",
					"Source [libxml2] is not downloaded or not locked",
				},
			}
		}
		return processtest.Response{ExitCode: 0}
	}

	result := env.drv.Run(context.Background(), env.request())

	require.NoError(t, result.FailureReason)
	assert.Equal(t, StatusSuccess, result.Status)

	// Exactly one resolver invocation for that library, exactly one restart.
	assert.Equal(t, []string{"libxml2"}, env.res.oneCalls)
	assert.Equal(t, 2, buildRuns)
}

func TestRunCompileRestartIsBounded(t *testing.T) {
	env := newBuildEnv(t, nil)
	env.prime(t)

	buildRuns := 0
	env.runner.Script = func(cmd process.Command) processtest.Response {
		if !isBuildCmd(cmd) {
			return processtest.Response{ExitCode: 0}
		}
		buildRuns++
		// The same signature appears on every attempt.
		return processtest.Response{
			ExitCode: 1,
			Lines:    []string{"Source [libxml2] is not downloaded or not locked"},
		}
	}

	result := env.drv.Run(context.Background(), env.request())

	assert.Equal(t, StatusFailure, result.Status)
	var compileErr *CompileError
	require.ErrorAs(t, result.FailureReason, &compileErr)

	// One resolve, one restart, then give up: never an infinite loop.
	assert.Equal(t, []string{"libxml2"}, env.res.oneCalls)
	assert.Equal(t, 1+MaxRestartsPerLibrary, buildRuns)
}

func TestRunCompileUnattributedMissingDependency(t *testing.T) {
	env := newBuildEnv(t, nil)
	env.prime(t)

	buildRuns := 0
	env.runner.Script = func(cmd process.Command) processtest.Response {
		if !isBuildCmd(cmd) {
			return processtest.Response{ExitCode: 0}
		}
		buildRuns++
		// The missing-dependency wording arrives before any stage marker,
		// so no library name can be attributed to it.
		return processtest.Response{
			ExitCode: 3,
			Lines:    []string{"not downloaded or not locked"},
		}
	}

	result := env.drv.Run(context.Background(), env.request())

	assert.Equal(t, StatusFailure, result.Status)
	var compileErr *CompileError
	require.ErrorAs(t, result.FailureReason, &compileErr)

	// Without a library name there is nothing to resolve: the compile runs
	// to its own exit and fails as a plain compile error, no restart.
	assert.Equal(t, 3, compileErr.ExitCode)
	assert.Equal(t, 1, buildRuns)
	assert.Empty(t, env.res.oneCalls)
}

func TestRunCompileFailureWithoutSignature(t *testing.T) {
	env := newBuildEnv(t, nil)
	env.prime(t)

	env.runner.Script = func(cmd process.Command) processtest.Response {
		if !isBuildCmd(cmd) {
			return processtest.Response{ExitCode: 0}
		}
		return processtest.Response{
			ExitCode: 2,
			Lines:    []string{"ld: undefined symbol: zend_whatever"},
		}
	}

	result := env.drv.Run(context.Background(), env.request())

	assert.Equal(t, StatusFailure, result.Status)
	var compileErr *CompileError
	require.ErrorAs(t, result.FailureReason, &compileErr)
	assert.Equal(t, 2, compileErr.ExitCode)
	assert.Contains(t, compileErr.Tail, "ld: undefined symbol: zend_whatever")
	assert.Empty(t, env.res.oneCalls)
}

func TestRunCompileTimeout(t *testing.T) {
	env := newBuildEnv(t, nil)
	env.prime(t)

	env.runner.Script = func(cmd process.Command) processtest.Response {
		if !isBuildCmd(cmd) {
			return processtest.Response{ExitCode: 0}
		}
		return processtest.Response{
			ExitCode: -1,
			Err:      &process.TimeoutError{Command: cmd.String(), After: env.tc.CompileTimeout},
		}
	}

	result := env.drv.Run(context.Background(), env.request())

	assert.Equal(t, StatusFailure, result.Status)
	var compileErr *CompileError
	require.ErrorAs(t, result.FailureReason, &compileErr)
	assert.True(t, compileErr.TimedOut)
}

func TestRunPackagingFailureDowngradesResult(t *testing.T) {
	env := newBuildEnv(t, okScript)
	env.prime(t)
	// Compile "succeeds" but the binary is gone at packaging time.
	require.NoError(t, os.Remove(filepath.Join(env.tc.BuildRootBin(), "php")))

	result := env.drv.Run(context.Background(), env.request())

	assert.Equal(t, StatusFailure, result.Status)
	var pkgErr *packager.PackagingError
	require.ErrorAs(t, result.FailureReason, &pkgErr)
	assert.Empty(t, result.ArtifactPath)
}

func TestRunWritesCompileLog(t *testing.T) {
	env := newBuildEnv(t, nil)
	env.prime(t)

	env.runner.Script = func(cmd process.Command) processtest.Response {
		if !isBuildCmd(cmd) {
			return processtest.Response{ExitCode: 0}
		}
		return processtest.Response{ExitCode: 0, Lines: []string{"stage one", "stage two"}}
	}

	logPath := filepath.Join(t.TempDir(), "build.log")
	req := env.request()
	req.LogPath = logPath

	result := env.drv.Run(context.Background(), req)
	require.Equal(t, StatusSuccess, result.Status)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, "stage one\nstage two\n", string(data))
}
