package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spforge/spforge/internal/catalog"
	"github.com/spforge/spforge/internal/output"
)

func NewExtensionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extensions",
		Short: "List the extensions available for building",
		Long: `List every extension the builder can compile in, together with the
native libraries each one pulls into the build.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtensions()
		},
	}
}

type extensionInfo struct {
	Name      string   `json:"name"`
	Libraries []string `json:"libraries,omitempty"`
}

func runExtensions() error {
	infos := make([]extensionInfo, 0)
	for _, name := range catalog.Extensions() {
		infos = append(infos, extensionInfo{
			Name:      name,
			Libraries: catalog.LibrariesFor([]string{name}),
		})
	}

	if jsonMode {
		data, err := json.MarshalIndent(infos, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	logger := output.DefaultLogger
	logger.Bold("Available extensions")
	for _, info := range infos {
		if len(info.Libraries) == 0 {
			logger.Println("  %s", info.Name)
			continue
		}
		logger.Println("  %-12s (libraries: %s)", info.Name, strings.Join(info.Libraries, ", "))
	}
	return nil
}
