package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/spforge/spforge/internal/output"
)

// ConfigLoader is responsible for loading and merging configuration.
type ConfigLoader struct {
	homeDir    string
	configPath string // Explicit --config path
	logger     *output.Logger
}

// NewConfigLoader creates a new ConfigLoader.
func NewConfigLoader(homeDir, configPath string, logger *output.Logger) *ConfigLoader {
	return &ConfigLoader{
		homeDir:    homeDir,
		configPath: configPath,
		logger:     logger,
	}
}

// LoadFileConfig loads and parses config files, merging them in priority order.
// Priority: explicit path > ./config.toml > ~/.spforge/config.toml
// All config files are merged, with higher priority values overwriting lower ones.
// Returns the merged FileConfig and the primary (highest priority) config file path.
func (l *ConfigLoader) LoadFileConfig() (*FileConfig, string, error) {
	// Collect all config files in order of increasing priority
	var configFiles []string

	// 3. Home directory (lowest priority)
	homePath := filepath.Join(l.homeDir, "config.toml")
	if _, err := os.Stat(homePath); err == nil {
		configFiles = append(configFiles, homePath)
	}

	// 2. Current directory
	if _, err := os.Stat("./config.toml"); err == nil {
		if absPath, _ := filepath.Abs("./config.toml"); absPath != homePath {
			configFiles = append(configFiles, "./config.toml")
		}
	}

	// 1. Explicit path (highest priority)
	if l.configPath != "" {
		if _, err := os.Stat(l.configPath); err != nil {
			return nil, "", fmt.Errorf("config file not found: %s", l.configPath)
		}
		absPath, _ := filepath.Abs(l.configPath)
		isDuplicate := false
		for _, cf := range configFiles {
			if abs, _ := filepath.Abs(cf); abs == absPath {
				isDuplicate = true
				break
			}
		}
		if !isDuplicate {
			configFiles = append(configFiles, l.configPath)
		}
	}

	if len(configFiles) == 0 {
		return &FileConfig{}, "", nil
	}

	// Load and merge all configs (later files override earlier ones)
	var merged FileConfig
	var primaryFile string
	for _, configFile := range configFiles {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}

		var cfg FileConfig
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, "", fmt.Errorf("failed to parse config file %s: %w", configFile, err)
		}

		mergeFileConfig(&merged, &cfg)
		primaryFile = configFile

		l.warnUnknownKeys(data)

		if l.logger != nil {
			l.logger.Debug("Loaded config file: %s", configFile)
		}
	}

	if err := ValidateFileConfig(&merged); err != nil {
		return nil, "", fmt.Errorf("config validation failed: %w", err)
	}

	return &merged, primaryFile, nil
}

// mergeFileConfig merges src into dst. Non-nil values in src overwrite dst.
func mergeFileConfig(dst, src *FileConfig) {
	if src.Home != nil {
		dst.Home = src.Home
	}
	if src.NoColor != nil {
		dst.NoColor = src.NoColor
	}
	if src.Verbose != nil {
		dst.Verbose = src.Verbose
	}
	if src.JSON != nil {
		dst.JSON = src.JSON
	}
	if src.ToolchainPath != nil {
		dst.ToolchainPath = src.ToolchainPath
	}
	if src.DistRoot != nil {
		dst.DistRoot = src.DistRoot
	}
	if src.PHPVersion != nil {
		dst.PHPVersion = src.PHPVersion
	}
	if src.Extensions != nil {
		dst.Extensions = src.Extensions
	}
	if src.SAPI != nil {
		dst.SAPI = src.SAPI
	}
	if src.UPX != nil {
		dst.UPX = src.UPX
	}
	if src.ContinueWithoutLibs != nil {
		dst.ContinueWithoutLibs = src.ContinueWithoutLibs
	}
	if src.CompileTimeout != nil {
		dst.CompileTimeout = src.CompileTimeout
	}
	if src.StepTimeout != nil {
		dst.StepTimeout = src.StepTimeout
	}
}

// warnUnknownKeys checks for unknown keys in the config file and logs warnings.
func (l *ConfigLoader) warnUnknownKeys(data []byte) {
	if l.logger == nil {
		return
	}

	var raw map[string]interface{}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return // Ignore errors here - main parsing will catch them
	}

	knownKeys := map[string]bool{
		"home":                  true,
		"no_color":              true,
		"verbose":               true,
		"json":                  true,
		"toolchain_path":        true,
		"dist_root":             true,
		"php_version":           true,
		"extensions":            true,
		"sapi":                  true,
		"upx":                   true,
		"continue_without_libs": true,
		"compile_timeout":       true,
		"step_timeout":          true,
	}

	for key := range raw {
		if !knownKeys[key] {
			l.logger.Warn("Unknown config key: %s", key)
		}
	}
}
