package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/nutriempower/nutriempower/pkg/dataset"
	"github.com/nutriempower/nutriempower/pkg/logging"
	"github.com/nutriempower/nutriempower/pkg/retrieval"
)

func newDatasetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Build and inspect the USDA food dataset",
	}
	cmd.AddCommand(newDatasetBuildCmd(), newDatasetSearchCmd())
	return cmd
}

func newDatasetBuildCmd() *cobra.Command {
	var (
		configPath string
		quiet      bool
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Re-ingest the CSV and rewrite the compact snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			loader := dataset.NewLoader(cfg.Dataset, logging.New(cfg.Log))
			var bar *progressbar.ProgressBar
			if !quiet {
				total := cfg.Dataset.MaxRawRows
				if total <= 0 {
					total = -1
				}
				bar = progressbar.NewOptions(total,
					progressbar.OptionSetDescription("ingesting "+cfg.Dataset.CSVPath),
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionShowCount(),
					progressbar.OptionSetItsString("rows"),
					progressbar.OptionSetRenderBlankState(true),
					progressbar.OptionOnCompletion(func() { fmt.Fprint(os.Stderr, "\n") }),
				)
				loader.OnRow = func(n int) { _ = bar.Set(n) }
			}

			records, stats, err := loader.Rebuild(cmd.Context())
			if bar != nil {
				_ = bar.Finish()
			}
			if err != nil {
				return fmt.Errorf("build dataset: %w", err)
			}

			fmt.Printf("Examined %s rows, kept %s records (%d duplicates, %d empty, %d malformed)\n",
				humanize.Comma(int64(stats.Examined)), humanize.Comma(int64(len(records))),
				stats.Duplicates, stats.Empty, stats.Malformed)
			if info, err := os.Stat(cfg.Dataset.SnapshotPath); err == nil {
				fmt.Printf("Snapshot written to %s (%s)\n", cfg.Dataset.SnapshotPath, humanize.Bytes(uint64(info.Size())))
			}
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "hide the progress bar")
	return cmd
}

func newDatasetSearchCmd() *cobra.Command {
	var (
		configPath string
		limit      int
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Show the food records a question would retrieve",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if limit <= 0 {
				limit = cfg.Retrieval.TopK
			}

			store := dataset.NewStore()
			store.Set(dataset.NewLoader(cfg.Dataset, logging.New(cfg.Log)).Load(context.Background()))

			hits := retrieval.New(store, cfg.Retrieval.MaxQueryTokens).Search(strings.Join(args, " "), limit)

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(hits)
			}
			if len(hits) == 0 {
				fmt.Println("No matching foods found.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDESCRIPTION\tCATEGORY")
			for _, r := range hits {
				fmt.Fprintf(w, "%s\t%s\t%s\n", orDash(r.ID), r.Description, orDash(r.Category))
			}
			return w.Flush()
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "max records to show (default retrieval.top_k)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON, as sent to the model")
	return cmd
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}
