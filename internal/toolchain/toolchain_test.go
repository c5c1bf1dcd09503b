package toolchain

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spforge/spforge/internal/catalog"
	"github.com/spforge/spforge/internal/process"
	"github.com/spforge/spforge/internal/process/processtest"
)

func TestCommandConstruction(t *testing.T) {
	tc := New("/opt/spc")

	tests := []struct {
		name string
		cmd  process.Command
		want []string
	}{
		{
			name: "download pre-built",
			cmd:  tc.DownloadCmd("libxml2", true),
			want: []string{"/opt/spc/bin/spc", "download", "libxml2", "--prefer-pre-built"},
		},
		{
			name: "download from source",
			cmd:  tc.DownloadCmd("libxml2", false),
			want: []string{"/opt/spc/bin/spc", "download", "libxml2"},
		},
		{
			name: "download php source",
			cmd:  tc.DownloadSourceCmd("8.3.21"),
			want: []string{"/opt/spc/bin/spc", "download", "php-src", "--with-php=8.3.21"},
		},
		{
			name: "build library",
			cmd:  tc.BuildLibraryCmd("openssl"),
			want: []string{"/opt/spc/bin/spc", "build-library", "openssl"},
		},
		{
			name: "extract",
			cmd:  tc.ExtractCmd("php-src"),
			want: []string{"/opt/spc/bin/spc", "extract", "php-src"},
		},
		{
			name: "build cli",
			cmd:  tc.BuildCmd([]string{"curl", "mbstring"}, catalog.SAPICLI, false),
			want: []string{"/opt/spc/bin/spc", "build", "curl,mbstring", "--build-cli"},
		},
		{
			name: "build micro with upx",
			cmd:  tc.BuildCmd([]string{"curl"}, catalog.SAPIMicro, true),
			want: []string{"/opt/spc/bin/spc", "build", "curl", "--build-micro", "--with-upx-pack"},
		},
		{
			name: "doctor",
			cmd:  tc.DoctorCmd(),
			want: []string{"/opt/spc/bin/spc", "doctor"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, "php", tt.cmd.Path)
			assert.Equal(t, tt.want, tt.cmd.Args)
			assert.Equal(t, "/opt/spc", tt.cmd.WorkDir)
			assert.Contains(t, tt.cmd.Env, DownloadCacheEnv+"="+filepath.Join("/opt/spc", "downloads"))
		})
	}
}

func TestCachePathOverride(t *testing.T) {
	tc := New("/opt/spc")
	tc.CachePath = "/var/cache/spc"

	assert.Equal(t, "/var/cache/spc", tc.DownloadsDir())
	assert.Contains(t, tc.DownloadCmd("zlib", true).Env, DownloadCacheEnv+"=/var/cache/spc")
}

func TestEnsureCacheDirIdempotent(t *testing.T) {
	tc := New(t.TempDir())

	require.NoError(t, tc.EnsureCacheDir())
	require.NoError(t, tc.EnsureCacheDir())
	info, err := os.Stat(tc.DownloadsDir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestSourceArchivePresent(t *testing.T) {
	tc := New(t.TempDir())
	require.NoError(t, tc.EnsureCacheDir())

	assert.False(t, tc.SourceArchivePresent("8.3.21"))

	tarball := filepath.Join(tc.DownloadsDir(), "php-8.3.21.tar.xz")
	require.NoError(t, os.WriteFile(tarball, []byte("x"), 0o644))
	assert.True(t, tc.SourceArchivePresent("8.3.21"))
	assert.False(t, tc.SourceArchivePresent("8.2.29"))
}

func TestBinaryPath(t *testing.T) {
	tc := New("/opt/spc")

	assert.Equal(t, filepath.Join("/opt/spc", "buildroot", "bin", "php"),
		tc.BinaryPath(catalog.SAPICLI, catalog.Linux))
	assert.Equal(t, filepath.Join("/opt/spc", "buildroot", "bin", "php.exe"),
		tc.BinaryPath(catalog.SAPICLI, catalog.Windows))
	assert.Equal(t, filepath.Join("/opt/spc", "buildroot", "bin", "micro.sfx"),
		tc.BinaryPath(catalog.SAPIMicro, catalog.Linux))
}

func writeSpcScript(t *testing.T, root string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "bin", "spc"), []byte("#!/usr/bin/env php\n"), 0o755))
}

func TestBootstrapSkipsInstalledToolchain(t *testing.T) {
	root := t.TempDir()
	writeSpcScript(t, root)

	runner := &processtest.Runner{Script: func(cmd process.Command) processtest.Response {
		t.Fatalf("unexpected command: %s", cmd.String())
		return processtest.Response{}
	}}

	boot := NewBootstrapper(New(root), runner, nil)
	require.NoError(t, boot.Ensure(context.Background()))
	assert.Empty(t, runner.Calls())
}

func TestBootstrapClonesAndInstalls(t *testing.T) {
	root := filepath.Join(t.TempDir(), "spc")

	runner := &processtest.Runner{Script: func(cmd process.Command) processtest.Response {
		if cmd.Path == "git" {
			// Simulate the clone producing the entry script.
			writeSpcScript(t, root)
		}
		return processtest.Response{ExitCode: 0}
	}}

	boot := NewBootstrapper(New(root), runner, nil)
	require.NoError(t, boot.Ensure(context.Background()))

	calls := runner.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "git", calls[0].Path)
	assert.Contains(t, calls[0].Args, RepoURL)
	assert.Equal(t, "composer", calls[1].Path)
	assert.Equal(t, root, calls[1].WorkDir)
}

func TestBootstrapCloneFailure(t *testing.T) {
	root := filepath.Join(t.TempDir(), "spc")

	runner := &processtest.Runner{Script: func(cmd process.Command) processtest.Response {
		return processtest.Response{
			ExitCode: 128,
			Lines:    []string{"fatal: unable to access remote"},
		}
	}}

	boot := NewBootstrapper(New(root), runner, nil)
	err := boot.Ensure(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clone")
	assert.Contains(t, err.Error(), "unable to access remote")

	// Only the clone ran; the install step must not be attempted.
	assert.Len(t, runner.Calls(), 1)
}
