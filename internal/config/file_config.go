package config

// FileConfig represents the raw config.toml file contents.
// All fields are pointers to distinguish "not set" from "set to zero/false".
type FileConfig struct {
	// Global settings
	Home    *string `toml:"home"`
	NoColor *bool   `toml:"no_color"`
	Verbose *bool   `toml:"verbose"`
	JSON    *bool   `toml:"json"`

	// Build command settings
	ToolchainPath       *string  `toml:"toolchain_path"`
	DistRoot            *string  `toml:"dist_root"`
	PHPVersion          *string  `toml:"php_version"`
	Extensions          []string `toml:"extensions"`
	SAPI                *string  `toml:"sapi"`
	UPX                 *bool    `toml:"upx"`
	ContinueWithoutLibs *bool    `toml:"continue_without_libs"`

	// Timeouts, parsed as Go durations ("2h", "15m")
	CompileTimeout *string `toml:"compile_timeout"`
	StepTimeout    *string `toml:"step_timeout"`
}

// IsEmpty returns true if no configuration values are set.
func (f *FileConfig) IsEmpty() bool {
	return f.Home == nil &&
		f.NoColor == nil &&
		f.Verbose == nil &&
		f.JSON == nil &&
		f.ToolchainPath == nil &&
		f.DistRoot == nil &&
		f.PHPVersion == nil &&
		f.Extensions == nil &&
		f.SAPI == nil &&
		f.UPX == nil &&
		f.ContinueWithoutLibs == nil &&
		f.CompileTimeout == nil &&
		f.StepTimeout == nil
}
