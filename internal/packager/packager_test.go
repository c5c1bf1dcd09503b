package packager

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spforge/spforge/internal/catalog"
)

func TestArchivePath(t *testing.T) {
	got := ArchivePath("/dist", catalog.Linux, "x64", "8.3.21")
	assert.Equal(t, filepath.Join("/dist", "Linux", "x64", "php-8.3.21.zip"), got)

	got = ArchivePath("/dist", catalog.Windows, "arm64", "8.4.13")
	assert.Equal(t, filepath.Join("/dist", "Windows", "arm64", "php-8.4.13.zip"), got)
}

func TestPackageProducesSingleEntryArchive(t *testing.T) {
	dir := t.TempDir()
	binary := filepath.Join(dir, "php")
	content := []byte("#!ELF fake php binary payload")
	require.NoError(t, os.WriteFile(binary, content, 0o755))

	archive := filepath.Join(dir, "dist", "Linux", "x64", "php-8.3.21.zip")
	p := New(nil)
	require.NoError(t, p.Package(binary, archive, "php"))

	zr, err := zip.OpenReader(archive)
	require.NoError(t, err)
	defer zr.Close()

	require.Len(t, zr.File, 1)
	entry := zr.File[0]
	assert.Equal(t, "php", entry.Name)
	assert.Equal(t, os.FileMode(0o755), entry.Mode().Perm())

	rc, err := entry.Open()
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestPackageMissingBinary(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "php-8.3.21.zip")

	p := New(nil)
	err := p.Package(filepath.Join(dir, "does-not-exist"), archive, "php")

	var pkgErr *PackagingError
	require.ErrorAs(t, err, &pkgErr)

	_, statErr := os.Stat(archive)
	assert.True(t, os.IsNotExist(statErr), "no archive may be created for a missing binary")
}

func TestPackageUnwritableDestination(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("root ignores directory permissions")
	}

	dir := t.TempDir()
	binary := filepath.Join(dir, "php")
	require.NoError(t, os.WriteFile(binary, []byte("x"), 0o755))

	readonly := filepath.Join(dir, "ro")
	require.NoError(t, os.Mkdir(readonly, 0o555))

	p := New(nil)
	err := p.Package(binary, filepath.Join(readonly, "sub", "php.zip"), "php")

	var pkgErr *PackagingError
	require.ErrorAs(t, err, &pkgErr)
}
