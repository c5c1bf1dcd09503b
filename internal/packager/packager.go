// Package packager writes the built PHP binary into its deterministic
// archive location.
package packager

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	kflate "github.com/klauspost/compress/flate"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/spforge/spforge/internal/catalog"
	"github.com/spforge/spforge/internal/output"
)

// ArchivePath derives the deterministic destination for a build:
// {distRoot}/{targetOS}/{arch}/php-{phpVersion}.zip.
func ArchivePath(distRoot string, targetOS catalog.OS, arch, phpVersion string) string {
	return filepath.Join(distRoot, string(targetOS), arch, "php-"+phpVersion+".zip")
}

// Packager produces single-entry archives from built binaries.
type Packager struct {
	logger *output.Logger

	// ShowProgress renders a byte progress bar on stderr when it is a
	// terminal. Disabled in JSON mode and tests.
	ShowProgress bool
}

// New creates a Packager.
func New(logger *output.Logger) *Packager {
	if logger == nil {
		logger = output.DefaultLogger
	}
	return &Packager{logger: logger}
}

// Package writes the binary at binaryPath into a zip archive at archivePath
// under entryName, creating intermediate directories as needed. A failure
// leaves no partial archive behind.
func (p *Packager) Package(binaryPath, archivePath, entryName string) error {
	info, err := os.Stat(binaryPath)
	if err != nil {
		return &PackagingError{
			BinaryPath:  binaryPath,
			ArchivePath: archivePath,
			Err:         fmt.Errorf("built binary not found: %w", err),
		}
	}

	if err := os.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
		return &PackagingError{
			BinaryPath:  binaryPath,
			ArchivePath: archivePath,
			Err:         fmt.Errorf("failed to create archive directory: %w", err),
		}
	}

	if err := p.writeArchive(binaryPath, archivePath, entryName, info); err != nil {
		os.Remove(archivePath)
		return &PackagingError{BinaryPath: binaryPath, ArchivePath: archivePath, Err: err}
	}

	p.logger.Debug("Packaged %s (%d bytes) into %s", entryName, info.Size(), archivePath)
	return nil
}

func (p *Packager) writeArchive(binaryPath, archivePath, entryName string, info os.FileInfo) error {
	src, err := os.Open(binaryPath)
	if err != nil {
		return fmt.Errorf("failed to open binary: %w", err)
	}
	defer src.Close()

	out, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive for writing: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	// klauspost's flate is noticeably faster on the multi-hundred-MB
	// binaries the micro SAPI produces.
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return kflate.NewWriter(w, kflate.BestSpeed)
	})

	header := &zip.FileHeader{
		Name:   entryName,
		Method: zip.Deflate,
	}
	header.SetMode(0o755)
	header.Modified = info.ModTime()

	entry, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create archive entry: %w", err)
	}

	var dst io.Writer = entry
	if p.ShowProgress && term.IsTerminal(int(os.Stderr.Fd())) {
		bar := progressbar.DefaultBytes(info.Size(), "packaging")
		dst = io.MultiWriter(entry, bar)
	}

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to write archive entry: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return nil
}

// PackagingError reports a missing binary or an unwritable archive. It
// downgrades an otherwise-successful compile to an overall failure.
type PackagingError struct {
	BinaryPath  string
	ArchivePath string
	Err         error
}

func (e *PackagingError) Error() string {
	return fmt.Sprintf("packaging %s into %s failed: %v", e.BinaryPath, e.ArchivePath, e.Err)
}

func (e *PackagingError) Unwrap() error {
	return e.Err
}
