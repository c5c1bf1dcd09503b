package main

import (
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"

	"github.com/spforge/spforge/internal/catalog"
)

const customVersionItem = "other (type a version)"

// promptBuildInputs collects the PHP version and extension set interactively.
// Values already supplied through flags or config are not asked again.
func promptBuildInputs(phpVersion string, extensions []string) (string, []string, error) {
	if phpVersion == "" {
		v, err := promptPHPVersion()
		if err != nil {
			return "", nil, err
		}
		phpVersion = v
	}

	if len(extensions) == 0 {
		exts, err := promptExtensions()
		if err != nil {
			return "", nil, err
		}
		extensions = exts
	}

	fmt.Println()
	fmt.Printf("  PHP version: %s\n", phpVersion)
	fmt.Printf("  Extensions:  %s\n", joinedExtensions(extensions))
	fmt.Println()

	confirmPrompt := promptui.Select{
		Label: "Start the build?",
		Items: []string{"Yes, build now", "No, cancel"},
		Templates: &promptui.SelectTemplates{
			Active:   "▸ {{ . | cyan }}",
			Inactive: "  {{ . }}",
			Selected: "{{ . }}",
		},
	}
	confirmIdx, _, err := confirmPrompt.Run()
	if err != nil {
		return "", nil, handlePromptError(err, "confirmation")
	}
	if confirmIdx != 0 {
		return "", nil, fmt.Errorf("build cancelled")
	}

	return phpVersion, extensions, nil
}

// promptPHPVersion shows the version menu, with a free-form fallback for
// versions not on it.
func promptPHPVersion() (string, error) {
	items := append(append([]string{}, catalog.PHPVersions...), customVersionItem)

	versionPrompt := promptui.Select{
		Label: "PHP version",
		Items: items,
		Templates: &promptui.SelectTemplates{
			Active:   "▸ {{ . | cyan }}",
			Inactive: "  {{ . }}",
			Selected: "✔ PHP version: {{ . | green }}",
		},
	}
	idx, version, err := versionPrompt.Run()
	if err != nil {
		return "", handlePromptError(err, "PHP version")
	}

	if idx == len(items)-1 {
		customPrompt := promptui.Prompt{
			Label:    "PHP version (e.g., 8.3.21)",
			Validate: validateNonEmpty,
		}
		version, err = customPrompt.Run()
		if err != nil {
			return "", handlePromptError(err, "PHP version")
		}
	}

	return strings.TrimSpace(version), nil
}

// promptExtensions asks for a comma-separated extension list and validates
// every entry against the catalog.
func promptExtensions() ([]string, error) {
	extPrompt := promptui.Prompt{
		Label:   "Extensions (comma-separated)",
		Default: "curl,mbstring,openssl",
		Validate: func(input string) error {
			exts := splitExtensions(input)
			if len(exts) == 0 {
				return fmt.Errorf("select at least one extension")
			}
			for _, ext := range exts {
				if !catalog.IsExtension(ext) {
					return fmt.Errorf("unknown extension %q (see 'spforge extensions')", ext)
				}
			}
			return nil
		},
	}
	raw, err := extPrompt.Run()
	if err != nil {
		return nil, handlePromptError(err, "extensions")
	}
	return splitExtensions(raw), nil
}

func splitExtensions(input string) []string {
	var exts []string
	for _, part := range strings.Split(input, ",") {
		if ext := strings.TrimSpace(part); ext != "" {
			exts = append(exts, ext)
		}
	}
	return exts
}

// handlePromptError converts prompt interrupts into a clean cancellation.
func handlePromptError(err error, what string) error {
	if err == promptui.ErrInterrupt || err == promptui.ErrEOF {
		return fmt.Errorf("cancelled while selecting %s", what)
	}
	return fmt.Errorf("failed to read %s: %w", what, err)
}

func validateNonEmpty(input string) error {
	if strings.TrimSpace(input) == "" {
		return fmt.Errorf("cannot be empty")
	}
	return nil
}
