package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/spforge/spforge/internal/output"
	"github.com/spforge/spforge/internal/prereq"
	"github.com/spforge/spforge/internal/process"
	"github.com/spforge/spforge/internal/toolchain"
)

func NewDoctorCmd() *cobra.Command {
	var toolchainPath string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the host environment for building PHP",
		Long: `Check that the host tools required for building PHP are installed, and
run the toolchain's own environment diagnosis when the toolchain is
already installed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd, toolchainPath)
		},
	}

	cmd.Flags().StringVar(&toolchainPath, "toolchain", "", "Toolchain installation directory")

	return cmd
}

func runDoctor(cmd *cobra.Command, toolchainPath string) error {
	logger := output.DefaultLogger

	checker := prereq.NewChecker().WantUPX()
	results, checkErr := checker.Check()

	if jsonMode {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		if checkErr != nil {
			return fmt.Errorf("prerequisites not met")
		}
		return nil
	}

	logger.Bold("Host tools")
	for _, result := range results {
		switch {
		case result.Found:
			logger.Success("%s", result.Message)
		case result.Required:
			logger.Error("%s", result.Message)
			if result.Suggestion != "" {
				logger.Info("  %s", result.Suggestion)
			}
		default:
			logger.Warn("%s (optional)", result.Message)
			if result.Suggestion != "" {
				logger.Info("  %s", result.Suggestion)
			}
		}
	}
	if checkErr != nil {
		return checkErr
	}

	// Toolchain self-diagnosis, when installed.
	if toolchainPath == "" {
		if fileCfg := GetLoadedFileConfig(); fileCfg != nil && fileCfg.ToolchainPath != nil {
			toolchainPath = *fileCfg.ToolchainPath
		}
	}
	if toolchainPath == "" {
		toolchainPath = filepath.Join(GetHomeDir(), "static-php-cli")
	}

	tc := toolchain.New(toolchainPath)
	if !tc.Installed() {
		logger.Info("Toolchain not installed at %s; it will be cloned on first build", toolchainPath)
		return nil
	}

	logger.Bold("Toolchain diagnosis")
	runner := process.NewLocalRunner()
	h, err := runner.Start(cmd.Context(), tc.DoctorCmd())
	if err != nil {
		return fmt.Errorf("failed to run toolchain diagnosis: %w", err)
	}
	for line := range h.Lines() {
		logger.Println("%s", line)
	}
	code, err := h.Wait()
	if err != nil {
		return fmt.Errorf("toolchain diagnosis did not finish: %w", err)
	}
	if code != 0 {
		return fmt.Errorf("toolchain diagnosis reported problems (exit code %d)", code)
	}

	logger.Success("Environment looks good")
	return nil
}
