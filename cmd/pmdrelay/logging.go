package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/pmdrelay/pkg/config"
)

// configureLogger creates a logger for the effective configuration.
// The configured log level (file, PMDRELAY_LOG_LEVEL or --log-level) takes
// precedence over --verbose; with neither, logging stays silent.
func configureLogger(cmd *cobra.Command, cfg *config.Config, verboseFlagName string) (*logrus.Logger, error) {
	switch cfg.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", cfg.LogLevel)
	}

	logger := cfg.NewLogger()
	if cfg.LogLevel == "" {
		if verbose, _ := cmd.Flags().GetBool(verboseFlagName); verbose {
			logger.SetLevel(logrus.DebugLevel)
		}
	}
	return logger, nil
}
