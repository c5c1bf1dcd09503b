package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/spforge/spforge/internal/catalog"
	"github.com/spforge/spforge/internal/driver"
	"github.com/spforge/spforge/internal/output"
	"github.com/spforge/spforge/internal/packager"
	"github.com/spforge/spforge/internal/prereq"
	"github.com/spforge/spforge/internal/process"
	"github.com/spforge/spforge/internal/resolver"
	"github.com/spforge/spforge/internal/toolchain"
)

// buildFlags holds the build command's flag values before config merging.
type buildFlags struct {
	phpVersion          string
	extensions          []string
	sapi                string
	targetOS            string
	toolchainPath       string
	distRoot            string
	upx                 bool
	continueWithoutLibs bool
	yes                 bool
}

func NewBuildCmd() *cobra.Command {
	flags := &buildFlags{}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Compile a standalone PHP binary",
		Long: `Compile a standalone PHP binary with the selected extension set.

The toolchain is cloned and installed automatically on first use. Native
libraries required by the selected extensions are downloaded before the
compile starts; pre-built archives are preferred, with source builds as
fallback.

When --php or --ext is omitted and the session is interactive, the missing
values are collected through prompts.`,
		Example: `  spforge build --php 8.3.21 --ext curl,mbstring,openssl
  spforge build --php 8.4.13 --ext curl --sapi micro --upx
  spforge build --ext curl --continue-without-libs --yes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.phpVersion, "php", "", "PHP version to build (e.g., 8.3.21)")
	cmd.Flags().StringSliceVar(&flags.extensions, "ext", nil, "Extensions to compile in (comma-separated)")
	cmd.Flags().StringVar(&flags.sapi, "sapi", "", "Build target: cli or micro (default: cli)")
	cmd.Flags().StringVar(&flags.targetOS, "target-os", "", "Target operating system (default: current)")
	cmd.Flags().StringVar(&flags.toolchainPath, "toolchain", "", "Toolchain installation directory")
	cmd.Flags().StringVar(&flags.distRoot, "dist", "", "Output directory for built archives")
	cmd.Flags().BoolVar(&flags.upx, "upx", false, "Pack the binary with UPX")
	cmd.Flags().BoolVar(&flags.continueWithoutLibs, "continue-without-libs", false,
		"Continue the build when a native library cannot be acquired")
	cmd.Flags().BoolVarP(&flags.yes, "yes", "y", false,
		"Answer yes to all prompts (non-interactive)")

	return cmd
}

func runBuild(cmd *cobra.Command, flags *buildFlags) error {
	logger := output.DefaultLogger

	req, err := assembleRequest(cmd, flags)
	if err != nil {
		return err
	}

	if err := checkBuildPrereqs(flags.upx, logger); err != nil {
		return err
	}

	tc := toolchain.New(req.ToolchainPath)
	applyTimeouts(tc)

	runner := process.NewLocalRunner()

	res := resolver.New(tc, runner, logger, resolver.Options{
		ContinueWithoutLibs: flags.continueWithoutLibs,
		Confirm:             libraryConfirm(flags.yes),
	})

	pkg := packager.New(logger)
	pkg.ShowProgress = !jsonMode

	boot := toolchain.NewBootstrapper(tc, runner, logger)

	d := driver.New(tc, runner, res, pkg, boot, logger)

	result := d.Run(cmd.Context(), req)
	if result.Status != driver.StatusSuccess {
		reportBuildFailure(logger, result.FailureReason, req.LogPath)
		return fmt.Errorf("build %s failed", result.ID)
	}

	for _, lib := range result.DegradedLibraries {
		logger.Warn("Built without library: %s", lib)
	}
	logger.Info("Build %s finished in %s", result.ID, result.Duration.Round(time.Second))
	logger.Success("Artifact: %s", result.ArtifactPath)
	return nil
}

// assembleRequest merges flags, config file values, interactive answers and
// defaults into a build request. Priority: flag > config.toml > prompt/default.
func assembleRequest(cmd *cobra.Command, flags *buildFlags) (driver.Request, error) {
	fileCfg := GetLoadedFileConfig()

	phpVersion := flags.phpVersion
	if phpVersion == "" && fileCfg != nil && fileCfg.PHPVersion != nil {
		phpVersion = *fileCfg.PHPVersion
	}

	extensions := flags.extensions
	if len(extensions) == 0 && fileCfg != nil {
		extensions = fileCfg.Extensions
	}

	sapi := flags.sapi
	if sapi == "" && fileCfg != nil && fileCfg.SAPI != nil {
		sapi = *fileCfg.SAPI
	}
	if sapi == "" {
		sapi = string(catalog.SAPICLI)
	}

	upx := flags.upx
	if !cmd.Flags().Changed("upx") && fileCfg != nil && fileCfg.UPX != nil {
		upx = *fileCfg.UPX
		flags.upx = upx
	}
	if !cmd.Flags().Changed("continue-without-libs") && fileCfg != nil && fileCfg.ContinueWithoutLibs != nil {
		flags.continueWithoutLibs = *fileCfg.ContinueWithoutLibs
	}

	// Prompt for anything still missing when attached to a terminal.
	if phpVersion == "" || len(extensions) == 0 {
		if !isInteractive() {
			return driver.Request{}, fmt.Errorf("--php and --ext are required in non-interactive mode")
		}
		var err error
		phpVersion, extensions, err = promptBuildInputs(phpVersion, extensions)
		if err != nil {
			return driver.Request{}, err
		}
	}

	targetOS := flags.targetOS
	if targetOS == "" {
		current, ok := catalog.CurrentOS()
		if !ok {
			return driver.Request{}, fmt.Errorf("unsupported host platform; pass --target-os explicitly")
		}
		targetOS = string(current)
	}

	toolchainPath := flags.toolchainPath
	if toolchainPath == "" && fileCfg != nil && fileCfg.ToolchainPath != nil {
		toolchainPath = *fileCfg.ToolchainPath
	}
	if toolchainPath == "" {
		toolchainPath = filepath.Join(GetHomeDir(), "static-php-cli")
	}

	distRoot := flags.distRoot
	if distRoot == "" && fileCfg != nil && fileCfg.DistRoot != nil {
		distRoot = *fileCfg.DistRoot
	}
	if distRoot == "" {
		distRoot = filepath.Join(GetHomeDir(), "dist")
	}

	return driver.Request{
		PHPVersion:    phpVersion,
		Extensions:    extensions,
		SAPI:          catalog.SAPI(sapi),
		TargetOS:      catalog.OS(targetOS),
		ToolchainPath: toolchainPath,
		DistRoot:      distRoot,
		UPXEnabled:    upx,
		LogPath:       newBuildLogPath(),
	}, nil
}

// applyTimeouts overrides toolchain timeouts from the config file.
func applyTimeouts(tc *toolchain.Toolchain) {
	fileCfg := GetLoadedFileConfig()
	if fileCfg == nil {
		return
	}
	// Values were validated at config load time.
	if fileCfg.CompileTimeout != nil {
		if d, err := time.ParseDuration(*fileCfg.CompileTimeout); err == nil {
			tc.CompileTimeout = d
		}
	}
	if fileCfg.StepTimeout != nil {
		if d, err := time.ParseDuration(*fileCfg.StepTimeout); err == nil {
			tc.StepTimeout = d
		}
	}
}

// checkBuildPrereqs verifies the host tools the toolchain shells out to.
func checkBuildPrereqs(wantUPX bool, logger *output.Logger) error {
	checker := prereq.NewChecker()
	if wantUPX {
		checker.WantUPX()
	}
	results, err := checker.Check()
	if err != nil {
		for _, failed := range checker.FailedChecks() {
			logger.Error("%s", failed.Message)
			if failed.Suggestion != "" {
				logger.Info("  %s", failed.Suggestion)
			}
		}
		return err
	}
	for _, result := range results {
		if !result.Required && !result.Found {
			logger.Warn("%s; the toolchain will fail at the packing step", result.Message)
		}
	}
	return nil
}

// libraryConfirm returns the degraded-build confirmation hook. With --yes
// every library failure is accepted without asking.
func libraryConfirm(assumeYes bool) resolver.ConfirmFunc {
	return func(lib string, lastErr error) bool {
		if assumeYes {
			output.DefaultLogger.Warn("Continuing without library %s (--yes)", lib)
			return true
		}
		if !isInteractive() {
			return false
		}
		output.DefaultLogger.Warn("Library %s could not be acquired: %v", lib, lastErr)
		ok, err := output.ConfirmPrompt(fmt.Sprintf("Continue the build without %s?", lib))
		if err != nil {
			return false
		}
		return ok
	}
}

// newBuildLogPath returns the per-build log file path under the home dir.
// An empty path disables log capture; that is not an error.
func newBuildLogPath() string {
	logsDir := filepath.Join(GetHomeDir(), "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		output.DefaultLogger.Warn("Cannot create log directory %s: %v", logsDir, err)
		return ""
	}
	return filepath.Join(logsDir, fmt.Sprintf("build-%s.log", time.Now().Format("20060102-150405")))
}

// reportBuildFailure renders a build failure with as much actionable detail
// as the error carries.
func reportBuildFailure(logger *output.Logger, err error, logPath string) {
	if compileErr, ok := err.(*driver.CompileError); ok {
		tail := compileErr.Tail
		if len(tail) == 0 && logPath != "" {
			// The in-memory tail can be empty when the process died before
			// producing output; the captured log may still have earlier lines.
			if lines, readErr := output.ReadLastLines(logPath, output.DefaultTailLines); readErr == nil {
				tail = lines
			}
		}
		logger.FormatCommandError(&output.CommandErrorInfo{
			Command:  compileErr.Command,
			Tail:     tail,
			ExitCode: compileErr.ExitCode,
			Err:      compileErr.Err,
		})
		if logPath != "" {
			logger.Info("Full build log: %s", logPath)
		}
		if compileErr.TimedOut {
			logger.Info("The compile exceeded its timeout; raise compile_timeout in config.toml to allow more time")
		}
		return
	}
	if depErr, ok := err.(*resolver.DependencyError); ok {
		logger.Error("Could not acquire library %s", depErr.Library)
		for _, line := range depErr.Tail {
			logger.Println("  %s", line)
		}
		logger.Info("Re-run with --continue-without-libs to build without it")
		return
	}
	logger.Error("%v", err)
}

func isInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// joinedExtensions is used by prompts to echo the current selection.
func joinedExtensions(exts []string) string {
	return strings.Join(exts, ",")
}
