// Package catalog defines the fixed extension catalog, the supported SAPI
// build targets, and the operating systems the builder knows how to target.
package catalog

import "runtime"

// SAPI is the PHP server-API build target.
type SAPI string

const (
	// SAPICLI builds the standard command-line interpreter.
	SAPICLI SAPI = "cli"

	// SAPIMicro builds the micro self-contained executable.
	SAPIMicro SAPI = "micro"
)

// ParseSAPI validates a SAPI name.
func ParseSAPI(s string) (SAPI, bool) {
	switch SAPI(s) {
	case SAPICLI, SAPIMicro:
		return SAPI(s), true
	}
	return "", false
}

// OS is a supported build target operating system.
type OS string

const (
	Windows OS = "Windows"
	MacOS   OS = "macOS"
	Linux   OS = "Linux"
)

// ParseOS validates a target OS name.
func ParseOS(s string) (OS, bool) {
	switch OS(s) {
	case Windows, MacOS, Linux:
		return OS(s), true
	}
	return "", false
}

// CurrentOS maps the running platform to a target OS.
// Returns false for platforms the toolchain does not support.
func CurrentOS() (OS, bool) {
	switch runtime.GOOS {
	case "windows":
		return Windows, true
	case "darwin":
		return MacOS, true
	case "linux":
		return Linux, true
	}
	return "", false
}

// Arch maps the running architecture to the toolchain's naming.
func Arch() string {
	switch runtime.GOARCH {
	case "amd64":
		return "x64"
	case "arm64":
		return "arm64"
	case "386":
		return "x86"
	}
	return runtime.GOARCH
}

// BinaryName returns the file name the toolchain writes to buildroot/bin
// for the given SAPI and target OS. The same name is used as the canonical
// archive entry name.
func BinaryName(sapi SAPI, targetOS OS) string {
	if sapi == SAPIMicro {
		return "micro.sfx"
	}
	if targetOS == Windows {
		return "php.exe"
	}
	return "php"
}

// extension describes one catalog entry: the extension identifier and the
// native libraries the toolchain must have locked before it can be compiled
// in. Extensions with no library requirements build from the PHP source
// tree alone.
type extension struct {
	name      string
	libraries []string
}

// extensions is the fixed catalog, in the order the toolchain builds them.
// Library lists mirror the toolchain's own dependency map.
var extensions = []extension{
	{name: "bcmath"},
	{name: "bz2", libraries: []string{"bzip2"}},
	{name: "calendar"},
	{name: "ctype"},
	{name: "curl", libraries: []string{"zlib", "openssl", "brotli", "libssh2", "nghttp2", "curl"}},
	{name: "dom", libraries: []string{"libxml2"}},
	{name: "exif"},
	{name: "fileinfo"},
	{name: "filter"},
	{name: "ftp", libraries: []string{"openssl"}},
	{name: "gd", libraries: []string{"zlib", "libpng", "libjpeg", "freetype", "libwebp"}},
	{name: "gmp", libraries: []string{"gmp"}},
	{name: "iconv", libraries: []string{"libiconv"}},
	{name: "intl", libraries: []string{"icu"}},
	{name: "mbregex", libraries: []string{"onig"}},
	{name: "mbstring"},
	{name: "mysqli"},
	{name: "mysqlnd"},
	{name: "opcache"},
	{name: "openssl", libraries: []string{"zlib", "openssl"}},
	{name: "pcntl"},
	{name: "pdo"},
	{name: "pdo_mysql"},
	{name: "pdo_sqlite", libraries: []string{"sqlite"}},
	{name: "phar"},
	{name: "posix"},
	{name: "readline", libraries: []string{"ncurses", "readline"}},
	{name: "redis"},
	{name: "session"},
	{name: "simplexml", libraries: []string{"libxml2"}},
	{name: "soap", libraries: []string{"libxml2"}},
	{name: "sockets"},
	{name: "sodium", libraries: []string{"libsodium"}},
	{name: "sqlite3", libraries: []string{"sqlite"}},
	{name: "swoole", libraries: []string{"openssl", "curl"}},
	{name: "tokenizer"},
	{name: "xml", libraries: []string{"libxml2"}},
	{name: "xmlreader", libraries: []string{"libxml2"}},
	{name: "xmlwriter", libraries: []string{"libxml2"}},
	{name: "yaml", libraries: []string{"libyaml"}},
	{name: "zip", libraries: []string{"zlib", "libzip"}},
	{name: "zlib", libraries: []string{"zlib"}},
	{name: "zstd", libraries: []string{"zstd"}},
}

var extensionIndex = func() map[string]extension {
	idx := make(map[string]extension, len(extensions))
	for _, e := range extensions {
		idx[e.name] = e
	}
	return idx
}()

// Extensions returns the extension identifiers in catalog order.
func Extensions() []string {
	names := make([]string, 0, len(extensions))
	for _, e := range extensions {
		names = append(names, e.name)
	}
	return names
}

// IsExtension reports whether name is a member of the catalog.
func IsExtension(name string) bool {
	_, ok := extensionIndex[name]
	return ok
}

// LibrariesFor returns the native libraries required by the given extension
// set, deduplicated, in catalog order. Unknown extensions are ignored; the
// caller is expected to have validated the set first.
func LibrariesFor(exts []string) []string {
	wanted := make(map[string]bool, len(exts))
	for _, name := range exts {
		e, ok := extensionIndex[name]
		if !ok {
			continue
		}
		for _, lib := range e.libraries {
			wanted[lib] = true
		}
	}

	// Walk the catalog so output order is stable regardless of input order.
	var libs []string
	seen := make(map[string]bool, len(wanted))
	for _, e := range extensions {
		for _, lib := range e.libraries {
			if wanted[lib] && !seen[lib] {
				seen[lib] = true
				libs = append(libs, lib)
			}
		}
	}
	return libs
}

// PHPVersions lists the PHP releases offered by the interactive version menu.
// Any valid semantic version is accepted via flags; this is only the menu.
var PHPVersions = []string{
	"8.4.13",
	"8.3.26",
	"8.3.21",
	"8.2.29",
	"8.1.33",
}
