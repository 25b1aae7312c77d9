package models

import "time"

// AuditEntry represents a single audited chat exchange.
type AuditEntry struct {
	RequestID        string    `json:"request_id"`
	Model            string    `json:"model"`
	MessageHash      string    `json:"message_hash"`
	Message          string    `json:"message,omitempty"`
	Context          string    `json:"context,omitempty"`
	Response         string    `json:"response,omitempty"`
	Error            string    `json:"error,omitempty"`
	StatusCode       int       `json:"status_code"`
	Cached           bool      `json:"cached"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	LatencyMs        int64     `json:"latency_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

// AuditConfig controls the audit logging subsystem.
type AuditConfig struct {
	Enabled       bool     `yaml:"enabled"`
	DBPath        string   `yaml:"db_path"`
	RetentionDays int      `yaml:"retention_days"`
	Include       []string `yaml:"include"` // "messages", "responses", "context"
	MaxBodySize   int      `yaml:"max_body_size"` // bytes
}

// AuditQueryOpts specifies filters for querying audit entries.
type AuditQueryOpts struct {
	Model      string
	Since      time.Time
	RequestID  string
	CachedOnly bool
	FailedOnly bool
	Limit      int
}

// AuditStat holds aggregate audit counts for a model/day combination.
type AuditStat struct {
	Model  string
	Day    string
	Count  int
	Hits   int
	Failed int
}
