package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nutriempower/nutriempower/pkg/audit"
	"github.com/nutriempower/nutriempower/pkg/dataset"
	"github.com/nutriempower/nutriempower/pkg/logging"
	"github.com/nutriempower/nutriempower/pkg/mcp"
	"github.com/nutriempower/nutriempower/pkg/retrieval"
	"github.com/nutriempower/nutriempower/pkg/tracker"
)

func newMCPCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve food search and usage tools over MCP (stdio)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			// stdout carries the protocol; logs go to stderr.
			log := logging.New(cfg.Log)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store := dataset.NewStore()
			store.Set(dataset.NewLoader(cfg.Dataset, log).Load(ctx))

			tr, err := tracker.New(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("init tracker: %w", err)
			}
			defer tr.Close()

			deps := mcp.Deps{
				Search:  retrieval.New(store, cfg.Retrieval.MaxQueryTokens),
				Dataset: store,
				Tracker: tr,
				Log:     log,
			}
			if cfg.Audit.Enabled {
				a, err := audit.New(cfg.Audit)
				if err != nil {
					return fmt.Errorf("init audit: %w", err)
				}
				defer a.Close()
				deps.Auditor = a
			}

			return mcp.New(deps, version).Run(ctx, os.Stdin, os.Stdout)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}
