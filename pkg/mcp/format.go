package mcp

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nutriempower/nutriempower/pkg/models"
)

// formatFoods formats search hits as a text table followed by the raw
// nutrient payloads, which vary by source file.
func formatFoods(records []models.FoodRecord) string {
	if len(records) == 0 {
		return "No matching foods found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-10s %-50s %-30s\n", "ID", "Description", "Category")
	b.WriteString(strings.Repeat("-", 92) + "\n")
	for _, r := range records {
		fmt.Fprintf(&b, "%-10s %-50s %-30s\n", deref(r.ID), clip(r.Description, 50), clip(deref(r.Category), 30))
	}
	for _, r := range records {
		if r.Nutrients == nil {
			continue
		}
		data, err := json.Marshal(r.Nutrients)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "\nNutrients for %s: %s\n", r.Description, data)
	}
	return b.String()
}

// formatDatasetInfo formats the dataset state as text.
func formatDatasetInfo(info models.DatasetInfo) string {
	state := "loading"
	if info.Ready {
		state = "ready"
	}
	return fmt.Sprintf("Food Dataset\n"+
		"  State:   %s\n"+
		"  Source:  %s\n"+
		"  Records: %d\n",
		state, info.Source, info.Records)
}

// formatSummary formats usage summaries as a text table.
func formatSummary(rows []models.UsageSummary) string {
	if len(rows) == 0 {
		return "No usage data found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-25s %8s %10s %10s %10s %10s\n",
		"Model", "Requests", "Prompt", "Completion", "Total", "Avg ms")
	b.WriteString(strings.Repeat("-", 78) + "\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%-25s %8d %10d %10d %10d %10.0f\n",
			r.Model, r.RequestCount, r.TotalPrompt, r.TotalCompletion, r.TotalTokens, r.AvgLatencyMs)
	}
	return b.String()
}

// formatAuditEntries formats audit entries as a text table.
func formatAuditEntries(entries []models.AuditEntry) string {
	if len(entries) == 0 {
		return "No audit entries found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-10s %-15s %6s %6s %8s  %s\n",
		"Time", "Request", "Model", "Status", "Cached", "Latency", "Message")
	b.WriteString(strings.Repeat("-", 100) + "\n")
	for _, e := range entries {
		cached := "no"
		if e.Cached {
			cached = "yes"
		}
		msg := e.Message
		if msg == "" {
			msg = "(hash " + clip(e.MessageHash, 12) + ")"
		}
		fmt.Fprintf(&b, "%-20s %-10s %-15s %6d %6s %6dms  %s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			clip(e.RequestID, 8),
			clip(e.Model, 15),
			e.StatusCode, cached, e.LatencyMs,
			clip(strings.ReplaceAll(msg, "\n", " "), 40))
	}
	return b.String()
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
