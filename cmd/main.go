// Package main is the reflow oven controller entrypoint.
//
// @title                       Reflow Oven API
// @version                     1.0
// @description                 Command surface of the reflow oven controller: temperature loop, vent door, calibration and reflow runs.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"reflow_oven/internal/config"
)

const defaultConfigName = "config"

var (
	configFile string
	configDir  string
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "reflow-oven",
		Short:         "Reflow oven controller",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "explicit config file (overrides --config-dir)")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "configs", "directory searched for config.yml")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newProfileCmd())
	rootCmd.AddCommand(newCurvesCmd())

	return rootCmd
}

// loadConfig honours --config first, then configs/config.yml, then defaults.
func loadConfig() (*config.Config, error) {
	if configFile != "" {
		cfg, err := config.LoadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		return cfg, nil
	}
	cfg, err := config.Load(defaultConfigName, configDir, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
