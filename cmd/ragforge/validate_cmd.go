package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/ragforge/pkg/config"
)

// ValidateCmd validates a configuration file (ported from
// cmd/hector/validate.go's compact/verbose/print-config shape, trimmed
// to this module's single-provider config — no dotenv/zero-config path).
type ValidateCmd struct {
	ConfigFile  string `arg:"" name:"config" help:"Configuration file path."`
	PrintConfig bool   `short:"p" name:"print-config" help:"Print the expanded configuration."`
}

func (c *ValidateCmd) Run() error {
	cfg, err := config.LoadConfig(c.ConfigFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", c.ConfigFile, err)
		return fmt.Errorf("config validation failed")
	}

	if c.PrintConfig {
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config as yaml: %w", err)
		}
		return nil
	}

	fmt.Printf("%s: valid\n", c.ConfigFile)
	return nil
}
