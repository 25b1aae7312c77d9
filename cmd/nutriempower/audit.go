package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nutriempower/nutriempower/pkg/audit"
	"github.com/nutriempower/nutriempower/pkg/models"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query and manage the chat audit log",
	}

	cmd.AddCommand(
		newAuditSearchCmd(),
		newAuditShowCmd(),
		newAuditStatsCmd(),
		newAuditCleanupCmd(),
	)
	return cmd
}

func newAuditSearchCmd() *cobra.Command {
	var (
		configPath string
		model      string
		since      string
		cached     bool
		failed     bool
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search audit log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			opts := models.AuditQueryOpts{
				Model:      model,
				CachedOnly: cached,
				FailedOnly: failed,
				Limit:      limit,
			}
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
				}
				opts.Since = t
			}

			entries, err := l.Query(context.Background(), opts)
			if err != nil {
				return err
			}
			fmt.Print(formatAuditEntries(entries))
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&model, "model", "", "filter by model")
	cmd.Flags().StringVar(&since, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&cached, "cached", false, "only cache hits")
	cmd.Flags().BoolVar(&failed, "failed", false, "only failed requests")
	cmd.Flags().IntVar(&limit, "limit", 50, "max entries to return")

	return cmd
}

func newAuditShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <request-id>",
		Short: "Show a single audit entry by request ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			entries, err := l.Query(context.Background(), models.AuditQueryOpts{
				RequestID: args[0],
				Limit:     1,
			})
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No entry found for that request ID.")
				return nil
			}
			fmt.Print(formatAuditEntry(entries[0]))
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newAuditStatsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show audit log statistics by model and day",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := l.Stats(context.Background())
			if err != nil {
				return err
			}
			fmt.Print(formatAuditStats(stats))
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func newAuditCleanupCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete audit entries older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, cleanup, err := openAuditLogger(configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			deleted, err := l.Cleanup(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d audit entries.\n", deleted)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func openAuditLogger(configPath string) (*audit.Logger, func(), error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	l, err := audit.New(cfg.Audit)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit db: %w", err)
	}
	return l, func() { _ = l.Close() }, nil
}

func formatAuditEntries(entries []models.AuditEntry) string {
	if len(entries) == 0 {
		return "No audit entries found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-38s %-18s %6s %6s %8s %8s %-20s\n",
		"REQUEST ID", "MODEL", "STATUS", "CACHED", "LATENCY", "TOKENS", "TIME")
	b.WriteString(strings.Repeat("-", 112) + "\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%-38s %-18s %6d %6s %6dms %8d %-20s\n",
			e.RequestID, e.Model, e.StatusCode, yesNo(e.Cached),
			e.LatencyMs, e.TotalTokens,
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return b.String()
}

func formatAuditEntry(e models.AuditEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Request ID:    %s\n", e.RequestID)
	fmt.Fprintf(&b, "Model:         %s\n", e.Model)
	fmt.Fprintf(&b, "Status:        %d\n", e.StatusCode)
	fmt.Fprintf(&b, "Cached:        %s\n", yesNo(e.Cached))
	fmt.Fprintf(&b, "Latency:       %dms\n", e.LatencyMs)
	fmt.Fprintf(&b, "Tokens:        %d prompt / %d completion / %d total\n",
		e.PromptTokens, e.CompletionTokens, e.TotalTokens)
	fmt.Fprintf(&b, "Message hash:  %s\n", e.MessageHash)
	fmt.Fprintf(&b, "Time:          %s\n", e.CreatedAt.Format(time.RFC3339))
	if e.Message != "" {
		fmt.Fprintf(&b, "\n--- Message ---\n%s\n", e.Message)
	}
	if e.Context != "" {
		fmt.Fprintf(&b, "\n--- Context ---\n%s\n", e.Context)
	}
	if e.Response != "" {
		fmt.Fprintf(&b, "\n--- Response ---\n%s\n", e.Response)
	}
	if e.Error != "" {
		fmt.Fprintf(&b, "\n--- Error ---\n%s\n", e.Error)
	}
	return b.String()
}

func formatAuditStats(stats []models.AuditStat) string {
	if len(stats) == 0 {
		return "No audit stats found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-25s %-12s %8s %8s %8s\n", "MODEL", "DAY", "COUNT", "CACHED", "FAILED")
	b.WriteString(strings.Repeat("-", 66) + "\n")
	for _, s := range stats {
		fmt.Fprintf(&b, "%-25s %-12s %8d %8d %8d\n", s.Model, s.Day, s.Count, s.Hits, s.Failed)
	}
	return b.String()
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
