package driver

import (
	"fmt"

	goversion "github.com/hashicorp/go-version"

	"github.com/spforge/spforge/internal/catalog"
)

// Request describes one build: which PHP, which extensions, which target.
type Request struct {
	// PHPVersion is the semantic version of PHP to build.
	PHPVersion string

	// Extensions is the ordered, non-empty extension set. Every entry
	// must be a member of the catalog.
	Extensions []string

	// SAPI selects the build target (cli or micro).
	SAPI catalog.SAPI

	// TargetOS is the operating system being built for.
	TargetOS catalog.OS

	// ToolchainPath is the toolchain installation directory.
	ToolchainPath string

	// DistRoot is the root directory for output archives.
	DistRoot string

	// UPXEnabled adds UPX packing to the compile command.
	UPXEnabled bool

	// LogPath, when set, receives a copy of all compile output.
	LogPath string
}

// Validate rejects malformed requests before any process is spawned.
// All rejections are *EnvironmentError.
func (r *Request) Validate() error {
	if _, err := goversion.NewVersion(r.PHPVersion); err != nil {
		return &EnvironmentError{Reason: fmt.Sprintf("invalid PHP version %q: %v", r.PHPVersion, err)}
	}

	if len(r.Extensions) == 0 {
		return &EnvironmentError{Reason: "extension set is empty"}
	}
	for _, ext := range r.Extensions {
		if !catalog.IsExtension(ext) {
			return &EnvironmentError{Reason: fmt.Sprintf("unknown extension %q", ext)}
		}
	}

	if _, ok := catalog.ParseSAPI(string(r.SAPI)); !ok {
		return &EnvironmentError{Reason: fmt.Sprintf("unsupported SAPI %q", r.SAPI)}
	}
	if _, ok := catalog.ParseOS(string(r.TargetOS)); !ok {
		return &EnvironmentError{Reason: fmt.Sprintf("unsupported target OS %q", r.TargetOS)}
	}

	if r.ToolchainPath == "" {
		return &EnvironmentError{Reason: "toolchain path is not configured"}
	}
	if r.DistRoot == "" {
		return &EnvironmentError{Reason: "dist root is not configured"}
	}

	return nil
}
