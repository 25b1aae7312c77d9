package models

import "time"

// Usage represents token usage reported by the LLM backend.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// UsageRecord tracks per-call token usage.
type UsageRecord struct {
	ID               int64     `json:"id"`
	Model            string    `json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	LatencyMs        int64     `json:"latency_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

// UsageSummary aggregates usage across calls for one model.
type UsageSummary struct {
	Model           string  `json:"model"`
	RequestCount    int     `json:"request_count"`
	TotalPrompt     int     `json:"total_prompt"`
	TotalCompletion int     `json:"total_completion"`
	TotalTokens     int     `json:"total_tokens"`
	AvgLatencyMs    float64 `json:"avg_latency_ms"`
}
