package main

import (
	"encoding/json"
	"fmt"

	goversion "github.com/caarlos0/go-version"
	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
var (
	version   = ""
	commit    = ""
	buildDate = ""
)

func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := buildVersionInfo()

			if jsonMode {
				data, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}

			fmt.Print(info.String())
			return nil
		},
	}
}

func buildVersionInfo() goversion.Info {
	return goversion.GetVersionInfo(
		goversion.WithAppDetails("spforge",
			"Build single-binary PHP interpreters from source",
			"https://github.com/spforge/spforge"),
		func(i *goversion.Info) {
			if version != "" {
				i.GitVersion = version
			}
			if commit != "" {
				i.GitCommit = commit
			}
			if buildDate != "" {
				i.BuildDate = buildDate
			}
		},
	)
}
