package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nutriempower/nutriempower/pkg/config"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "nutriempower",
		Short:         "NutriEmpower: USDA-grounded nutrition chat backed by a local LLM",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCmd(),
		newDatasetCmd(),
		newStatsCmd(),
		newAuditCmd(),
		newMCPCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads the config file, tolerating a missing default file.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func addConfigFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVarP(target, "config", "c", config.DefaultPath, "path to config file")
}
