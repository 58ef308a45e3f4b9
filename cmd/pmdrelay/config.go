package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srg/pmdrelay/pkg/config"
)

var configPath string

// configCmd prints the effective configuration
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Prints the configuration that 'pmdrelay stream' would use, after applying
defaults, the --config file and PMDRELAY_* environment variables, as YAML.

The output is a valid configuration file:
  pmdrelay config > pmdrelay.yaml`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func runConfig(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true

	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return err
	}
	out, err := cfg.YAML()
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), out)
	return err
}
