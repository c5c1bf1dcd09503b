package config

import (
	"fmt"
	"time"

	goversion "github.com/hashicorp/go-version"

	"github.com/spforge/spforge/internal/catalog"
)

// ValidateFileConfig rejects config values no command could accept.
// Unset fields are always valid.
func ValidateFileConfig(cfg *FileConfig) error {
	if cfg.PHPVersion != nil {
		if _, err := goversion.NewVersion(*cfg.PHPVersion); err != nil {
			return fmt.Errorf("invalid php_version %q: %w", *cfg.PHPVersion, err)
		}
	}

	if cfg.SAPI != nil {
		if _, ok := catalog.ParseSAPI(*cfg.SAPI); !ok {
			return fmt.Errorf("invalid sapi %q (must be cli or micro)", *cfg.SAPI)
		}
	}

	for _, ext := range cfg.Extensions {
		if !catalog.IsExtension(ext) {
			return fmt.Errorf("unknown extension %q in config", ext)
		}
	}

	for key, val := range map[string]*string{
		"compile_timeout": cfg.CompileTimeout,
		"step_timeout":    cfg.StepTimeout,
	} {
		if val == nil {
			continue
		}
		d, err := time.ParseDuration(*val)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, *val, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %q", key, *val)
		}
	}

	return nil
}
