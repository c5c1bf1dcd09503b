package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/spforge/spforge/internal/config"
	"github.com/spforge/spforge/internal/output"
)

// Global configuration variables
var (
	homeDir    string
	jsonMode   bool
	noColor    bool
	verbose    bool
	configPath string // Path to config.toml file (--config flag)

	// loadedFileConfig holds the parsed config.toml values (nil if no config file)
	loadedFileConfig *config.FileConfig
)

// DefaultHomeDir returns the default home directory for spforge data.
func DefaultHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".spforge"
	}
	return filepath.Join(home, ".spforge")
}

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spforge",
		Short: "Build single-binary PHP interpreters from source",
		Long: `spforge drives the static-php-cli toolchain to compile standalone PHP
binaries with a chosen extension set, then packages them for distribution.

Examples:
  # Build PHP 8.3.21 with curl and mbstring for the cli SAPI
  spforge build --php 8.3.21 --ext curl,mbstring --sapi cli

  # Build the micro self-extracting SAPI with UPX packing
  spforge build --php 8.3.21 --ext curl --sapi micro --upx

  # Pick version and extensions interactively
  spforge build

  # Check the host environment
  spforge doctor`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load config file
			loader := config.NewConfigLoader(homeDir, configPath, output.DefaultLogger)
			fileCfg, configFilePath, err := loader.LoadFileConfig()
			if err != nil {
				return err
			}
			loadedFileConfig = fileCfg

			// Apply config file values to global flags (if not explicitly set)
			// Priority: default < config.toml < env < flag

			if !cmd.Flags().Changed("home") && fileCfg.Home != nil {
				homeDir = *fileCfg.Home
			}
			if !cmd.Flags().Changed("verbose") && fileCfg.Verbose != nil {
				verbose = *fileCfg.Verbose
			}
			if !cmd.Flags().Changed("json") && fileCfg.JSON != nil {
				jsonMode = *fileCfg.JSON
			}
			if !cmd.Flags().Changed("no-color") && fileCfg.NoColor != nil {
				noColor = *fileCfg.NoColor
			}

			// Environment variables override config.toml (but not explicit flags)
			if envHome := os.Getenv("SPFORGE_HOME"); envHome != "" && !cmd.Flags().Changed("home") {
				homeDir = envHome
			}
			if os.Getenv("NO_COLOR") != "" && !cmd.Flags().Changed("no-color") {
				noColor = true
			}

			if configFilePath != "" && verbose {
				output.DefaultLogger.Debug("Using config file: %s", configFilePath)
			}

			output.DefaultLogger.SetNoColor(noColor)
			output.DefaultLogger.SetVerbose(verbose)
			output.DefaultLogger.SetJSONMode(jsonMode)

			return nil
		},
	}

	// Global flags available on all commands
	cmd.PersistentFlags().StringVarP(&homeDir, "home", "H", DefaultHomeDir(),
		"Base directory for toolchain and build data")
	cmd.PersistentFlags().BoolVar(&jsonMode, "json", false,
		"Output in JSON format")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false,
		"Disable colored output")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable verbose logging")
	cmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to config.toml file")

	cmd.AddCommand(
		NewBuildCmd(),
		NewDoctorCmd(),
		NewExtensionsCmd(),
		NewVersionCmd(),
	)

	return cmd
}

// GetHomeDir returns the configured home directory.
func GetHomeDir() string {
	return homeDir
}

// GetLoadedFileConfig returns the loaded config.toml values.
// Returns nil if no config file was loaded.
func GetLoadedFileConfig() *config.FileConfig {
	return loadedFileConfig
}
