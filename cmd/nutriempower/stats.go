package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nutriempower/nutriempower/pkg/tracker"
)

func newStatsCmd() *cobra.Command {
	var (
		configPath string
		model      string
		recent     int
		since      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show LLM token usage statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			tr, err := tracker.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer tr.Close()

			ctx := context.Background()

			// Recent calls view
			if recent > 0 {
				records, err := tr.Query(ctx, time.Now().Add(-since), recent)
				if err != nil {
					return err
				}
				if len(records) == 0 {
					fmt.Println("No backend calls found.")
					return nil
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "TIME\tMODEL\tPROMPT\tCOMPLETION\tTOTAL\tLATENCY")
				for _, r := range records {
					fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%dms\n",
						r.CreatedAt.Local().Format("2006-01-02T15:04:05"), r.Model,
						r.PromptTokens, r.CompletionTokens, r.TotalTokens, r.LatencyMs)
				}
				return w.Flush()
			}

			// Default: usage summary
			summaries, err := tr.Summary(ctx, model)
			if err != nil {
				return err
			}

			if len(summaries) == 0 {
				fmt.Println("No usage data found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tREQUESTS\tPROMPT\tCOMPLETION\tTOTAL\tAVG LATENCY")
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%.0fms\n",
					s.Model, s.RequestCount, s.TotalPrompt, s.TotalCompletion, s.TotalTokens, s.AvgLatencyMs)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			total, err := tr.Total(ctx, time.Now().Add(-since))
			if err != nil {
				return err
			}
			fmt.Printf("\n%s tokens in the last %s\n", humanize.Comma(total), since)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&model, "model", "", "filter by model")
	cmd.Flags().IntVar(&recent, "recent", 0, "list the N most recent backend calls instead of the summary")
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "window for the token total and --recent")
	return cmd
}
