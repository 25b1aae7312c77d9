package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nutriempower/nutriempower/pkg/models"
)

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 50
)

// Tool argument structs.

type searchArgs struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type modelArgs struct {
	Model string `json:"model"`
}

type auditSearchArgs struct {
	Model      string `json:"model"`
	Since      string `json:"since"`
	CachedOnly bool   `json:"cached_only"`
	FailedOnly bool   `json:"failed_only"`
}

// toolHandler is a function that handles a tool call.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

// toolHandlers maps tool names to their handlers.
var toolHandlers = map[string]toolHandler{
	"nutri_search_foods": handleSearchFoods,
	"nutri_dataset_info": handleDatasetInfo,
	"nutri_usage_stats":  handleUsageStats,
	"nutri_audit_search": handleAuditSearch,
}

// allTools is the list of tool definitions exposed via tools/list.
var allTools = []ToolDefinition{
	{
		Name:        "nutri_search_foods",
		Description: "Search the USDA food reference data by keywords and return the best matching records.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"query"},
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Free-text food query, e.g. \"brown rice\"",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum records to return (optional, default 5, max 50)",
				},
			},
		},
	},
	{
		Name:        "nutri_dataset_info",
		Description: "Show where the food dataset was loaded from and how many records it holds.",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	},
	{
		Name:        "nutri_usage_stats",
		Description: "Show aggregated LLM token usage per model, optionally filtered by model.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"model": map[string]any{
					"type":        "string",
					"description": "Filter by model (optional, omit for all models)",
				},
			},
		},
	},
	{
		Name:        "nutri_audit_search",
		Description: "Search the chat audit log with optional filters.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"model": map[string]any{
					"type":        "string",
					"description": "Filter by model (optional)",
				},
				"since": map[string]any{
					"type":        "string",
					"description": "Start date in YYYY-MM-DD format (optional)",
				},
				"cached_only": map[string]any{
					"type":        "boolean",
					"description": "Only exchanges answered from the cache (optional)",
				},
				"failed_only": map[string]any{
					"type":        "boolean",
					"description": "Only failed exchanges (optional)",
				},
			},
		},
	},
}

func handleSearchFoods(_ context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args searchArgs
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return errorResult("Invalid arguments: " + err.Error())
		}
	}
	if strings.TrimSpace(args.Query) == "" {
		return errorResult("query is required")
	}
	limit := args.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	return textResult(formatFoods(s.search.Search(args.Query, limit)))
}

func handleDatasetInfo(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	return textResult(formatDatasetInfo(s.dataset.Info()))
}

func handleUsageStats(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.tracker == nil {
		return textResult("Usage tracking is not configured.")
	}
	var args modelArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	rows, err := s.tracker.Summary(ctx, args.Model)
	if err != nil {
		return errorResult("Error fetching stats: " + err.Error())
	}
	return textResult(formatSummary(rows))
}

func handleAuditSearch(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.auditor == nil {
		return textResult("Audit logging is not configured.")
	}
	var args auditSearchArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}

	opts := models.AuditQueryOpts{
		Model:      args.Model,
		CachedOnly: args.CachedOnly,
		FailedOnly: args.FailedOnly,
		Limit:      50,
	}
	if args.Since != "" {
		t, err := time.Parse("2006-01-02", args.Since)
		if err != nil {
			return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
		}
		opts.Since = t
	}

	entries, err := s.auditor.Query(ctx, opts)
	if err != nil {
		return errorResult("Error searching audit log: " + err.Error())
	}
	return textResult(formatAuditEntries(entries))
}
