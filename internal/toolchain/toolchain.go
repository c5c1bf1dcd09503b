// Package toolchain wraps the external static-PHP build toolchain.
//
// Everything here is a compatibility contract with the spc CLI: command
// names, flags, and the filesystem layout under the toolchain root. The
// rest of the repository talks to the toolchain only through this package.
package toolchain

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spforge/spforge/internal/catalog"
	"github.com/spforge/spforge/internal/process"
)

const (
	// RepoURL is the upstream toolchain repository cloned on bootstrap.
	RepoURL = "https://github.com/crazywhalecc/static-php-cli.git"

	// DownloadCacheEnv points the toolchain at the download cache
	// directory. It is passed per-command, never set process-wide.
	DownloadCacheEnv = "SPC_DOWNLOAD_PATH"

	// DefaultStepTimeout bounds individual download/probe commands.
	DefaultStepTimeout = 15 * time.Minute

	// DefaultCompileTimeout bounds the full compile command.
	DefaultCompileTimeout = 2 * time.Hour
)

// Toolchain locates an spc installation and builds process commands
// against it.
type Toolchain struct {
	// Root is the toolchain installation directory.
	Root string

	// CachePath is the download cache directory. Empty means
	// Root/downloads.
	CachePath string

	// PHPBinary is the interpreter used to run the spc entry script.
	PHPBinary string

	// StepTimeout applies to download, build-library, extract and doctor
	// commands.
	StepTimeout time.Duration

	// CompileTimeout applies to the build command.
	CompileTimeout time.Duration
}

// New creates a Toolchain rooted at dir with default timeouts.
func New(dir string) *Toolchain {
	return &Toolchain{
		Root:           dir,
		PHPBinary:      "php",
		StepTimeout:    DefaultStepTimeout,
		CompileTimeout: DefaultCompileTimeout,
	}
}

// SpcPath returns the toolchain entry script path.
func (t *Toolchain) SpcPath() string {
	return filepath.Join(t.Root, "bin", "spc")
}

// Installed reports whether the toolchain entry script exists.
func (t *Toolchain) Installed() bool {
	_, err := os.Stat(t.SpcPath())
	return err == nil
}

// DownloadsDir returns the download cache directory.
func (t *Toolchain) DownloadsDir() string {
	if t.CachePath != "" {
		return t.CachePath
	}
	return filepath.Join(t.Root, "downloads")
}

// EnsureCacheDir creates the download cache directory if absent. The
// operation is idempotent; only one build runs at a time so no locking is
// needed.
func (t *Toolchain) EnsureCacheDir() error {
	if err := os.MkdirAll(t.DownloadsDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create download cache %s: %w", t.DownloadsDir(), err)
	}
	return nil
}

// BuildRootBin returns the directory the toolchain writes built binaries to.
func (t *Toolchain) BuildRootBin() string {
	return filepath.Join(t.Root, "buildroot", "bin")
}

// BinaryPath returns where the toolchain leaves the built PHP binary for
// the given SAPI and target OS.
func (t *Toolchain) BinaryPath(sapi catalog.SAPI, targetOS catalog.OS) string {
	return filepath.Join(t.BuildRootBin(), catalog.BinaryName(sapi, targetOS))
}

// SourceArchivePresent reports whether the PHP source tarball for the
// given version is already in the download cache.
func (t *Toolchain) SourceArchivePresent(phpVersion string) bool {
	matches, err := filepath.Glob(filepath.Join(t.DownloadsDir(), "php-"+phpVersion+".tar.*"))
	if err != nil {
		return false
	}
	return len(matches) > 0
}

// env returns the per-command environment pointing the toolchain at the
// download cache.
func (t *Toolchain) env() []string {
	return []string{DownloadCacheEnv + "=" + t.DownloadsDir()}
}

// command assembles an spc invocation.
func (t *Toolchain) command(timeout time.Duration, args ...string) process.Command {
	return process.Command{
		Path:    t.PHPBinary,
		Args:    append([]string{t.SpcPath()}, args...),
		WorkDir: t.Root,
		Env:     t.env(),
		Timeout: timeout,
	}
}

// DownloadCmd fetches one library source. preBuilt selects the primary
// acquisition method (pre-built archives); the fallback builds from source.
func (t *Toolchain) DownloadCmd(lib string, preBuilt bool) process.Command {
	args := []string{"download", lib}
	if preBuilt {
		args = append(args, "--prefer-pre-built")
	}
	return t.command(t.StepTimeout, args...)
}

// DownloadSourceCmd fetches the PHP source tarball for a version.
func (t *Toolchain) DownloadSourceCmd(phpVersion string) process.Command {
	return t.command(t.StepTimeout, "download", "php-src", "--with-php="+phpVersion)
}

// BuildLibraryCmd probes/builds one native library.
func (t *Toolchain) BuildLibraryCmd(lib string) process.Command {
	return t.command(t.StepTimeout, "build-library", lib)
}

// ExtractCmd unpacks a downloaded source into the toolchain's source tree.
func (t *Toolchain) ExtractCmd(lib string) process.Command {
	return t.command(t.StepTimeout, "extract", lib)
}

// BuildCmd compiles PHP with the given extension set and SAPI target.
func (t *Toolchain) BuildCmd(extensions []string, sapi catalog.SAPI, upx bool) process.Command {
	args := []string{"build", joinExtensions(extensions), "--build-" + string(sapi)}
	if upx {
		args = append(args, "--with-upx-pack")
	}
	return t.command(t.CompileTimeout, args...)
}

// DoctorCmd runs the toolchain's own environment diagnosis.
func (t *Toolchain) DoctorCmd() process.Command {
	return t.command(t.StepTimeout, "doctor")
}

func joinExtensions(extensions []string) string {
	out := ""
	for i, ext := range extensions {
		if i > 0 {
			out += ","
		}
		out += ext
	}
	return out
}
