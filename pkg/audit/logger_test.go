package audit

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nutriempower/nutriempower/pkg/models"
)

func tempCfg(t *testing.T) models.AuditConfig {
	t.Helper()
	return models.AuditConfig{
		Enabled:       true,
		DBPath:        filepath.Join(t.TempDir(), "audit_test.db"),
		RetentionDays: 90,
		MaxBodySize:   1024,
		Include:       []string{"messages", "responses", "context"},
	}
}

func mustNew(t *testing.T, cfg models.AuditConfig) *Logger {
	t.Helper()
	l, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func sampleEntry() models.AuditEntry {
	return models.AuditEntry{
		RequestID:        "req-001",
		Model:            "llama3.2:1b",
		Message:          "Is brown rice a good source of fiber?",
		Context:          `[{"id":"168878","description":"Rice, brown, long-grain, cooked","category":"Cereal Grains and Pasta","nutrients":null}]`,
		Response:         "Yes, brown rice provides about 1.8 g of fiber per 100 g.",
		StatusCode:       200,
		PromptTokens:     10,
		CompletionTokens: 20,
		TotalTokens:      30,
		LatencyMs:        150,
		CreatedAt:        time.Now(),
	}
}

func TestLogAndQuery(t *testing.T) {
	l := mustNew(t, tempCfg(t))
	ctx := context.Background()

	entry := sampleEntry()
	if err := l.Log(ctx, entry); err != nil {
		t.Fatalf("Log: %v", err)
	}

	entries, err := l.Query(ctx, models.AuditQueryOpts{Model: "llama3.2:1b"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	got := entries[0]
	if got.RequestID != "req-001" {
		t.Errorf("expected req-001, got %s", got.RequestID)
	}
	if got.Message != entry.Message || got.Response != entry.Response || got.Context != entry.Context {
		t.Errorf("text fields not round-tripped: %+v", got)
	}
	if got.MessageHash != HashMessage(entry.Message) {
		t.Errorf("unexpected message hash %s", got.MessageHash)
	}
}

func TestQueryByRequestID(t *testing.T) {
	l := mustNew(t, tempCfg(t))
	ctx := context.Background()

	_ = l.Log(ctx, sampleEntry())

	entries, err := l.Query(ctx, models.AuditQueryOpts{RequestID: "req-001"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1, got %d", len(entries))
	}
}

func TestQueryCachedAndFailed(t *testing.T) {
	l := mustNew(t, tempCfg(t))
	ctx := context.Background()

	hit := sampleEntry()
	hit.RequestID = "req-hit"
	hit.Cached = true
	_ = l.Log(ctx, hit)

	failed := sampleEntry()
	failed.RequestID = "req-fail"
	failed.StatusCode = 500
	failed.Error = "LLM backend timed out"
	failed.Response = ""
	_ = l.Log(ctx, failed)

	_ = l.Log(ctx, sampleEntry())

	cached, err := l.Query(ctx, models.AuditQueryOpts{CachedOnly: true})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(cached) != 1 || cached[0].RequestID != "req-hit" {
		t.Fatalf("expected only req-hit, got %+v", cached)
	}

	failures, err := l.Query(ctx, models.AuditQueryOpts{FailedOnly: true})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(failures) != 1 || failures[0].Error != "LLM backend timed out" {
		t.Fatalf("expected only req-fail, got %+v", failures)
	}
}

func TestGeneratesRequestID(t *testing.T) {
	l := mustNew(t, tempCfg(t))
	ctx := context.Background()

	entry := sampleEntry()
	entry.RequestID = ""
	if err := l.Log(ctx, entry); err != nil {
		t.Fatalf("Log: %v", err)
	}

	entries, _ := l.Query(ctx, models.AuditQueryOpts{})
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if _, err := uuid.Parse(entries[0].RequestID); err != nil {
		t.Errorf("expected uuid request id, got %q", entries[0].RequestID)
	}
}

func TestBodyTruncation(t *testing.T) {
	cfg := tempCfg(t)
	cfg.MaxBodySize = 16
	l := mustNew(t, cfg)
	ctx := context.Background()

	entry := sampleEntry()
	entry.Response = strings.Repeat("x", 100)
	if err := l.Log(ctx, entry); err != nil {
		t.Fatalf("Log: %v", err)
	}

	entries, err := l.Query(ctx, models.AuditQueryOpts{RequestID: "req-001"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries[0].Response) != 16 {
		t.Errorf("expected truncated response len 16, got %d", len(entries[0].Response))
	}
}

func TestIncludeFiltering(t *testing.T) {
	cfg := tempCfg(t)
	cfg.Include = nil
	l := mustNew(t, cfg)
	ctx := context.Background()

	if err := l.Log(ctx, sampleEntry()); err != nil {
		t.Fatalf("Log: %v", err)
	}

	entries, err := l.Query(ctx, models.AuditQueryOpts{RequestID: "req-001"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	e := entries[0]
	if e.Message != "" || e.Response != "" || e.Context != "" {
		t.Errorf("expected text fields dropped, got %+v", e)
	}
	if e.MessageHash == "" {
		t.Error("message hash should be kept regardless of include list")
	}
}

func TestCleanup(t *testing.T) {
	cfg := tempCfg(t)
	cfg.RetentionDays = 0 // everything is old
	l := mustNew(t, cfg)
	ctx := context.Background()

	entry := sampleEntry()
	entry.CreatedAt = time.Now().AddDate(0, 0, -1)
	_ = l.Log(ctx, entry)

	deleted, err := l.Cleanup(ctx)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted, got %d", deleted)
	}
}

func TestRunRetention(t *testing.T) {
	cfg := tempCfg(t)
	cfg.RetentionDays = 1
	l := mustNew(t, cfg)

	old := sampleEntry()
	old.CreatedAt = time.Now().AddDate(0, 0, -3)
	_ = l.Log(context.Background(), old)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.RunRetention(ctx, 10*time.Millisecond, zerolog.Nop()) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		entries, _ := l.Query(context.Background(), models.AuditQueryOpts{})
		if len(entries) == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("RunRetention: %v", err)
	}

	entries, _ := l.Query(context.Background(), models.AuditQueryOpts{})
	if len(entries) != 0 {
		t.Errorf("expected retention to delete old entry, %d left", len(entries))
	}
}

func TestStats(t *testing.T) {
	l := mustNew(t, tempCfg(t))
	ctx := context.Background()

	_ = l.Log(ctx, sampleEntry())
	e2 := sampleEntry()
	e2.RequestID = "req-002"
	e2.Cached = true
	_ = l.Log(ctx, e2)
	e3 := sampleEntry()
	e3.RequestID = "req-003"
	e3.StatusCode = 500
	_ = l.Log(ctx, e3)

	stats, err := l.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if len(stats) == 0 {
		t.Fatal("expected stats")
	}
	if stats[0].Count != 3 {
		t.Errorf("expected count 3, got %d", stats[0].Count)
	}
	if stats[0].Hits != 1 {
		t.Errorf("expected 1 hit, got %d", stats[0].Hits)
	}
	if stats[0].Failed != 1 {
		t.Errorf("expected 1 failure, got %d", stats[0].Failed)
	}
}

func TestHashMessage(t *testing.T) {
	h := HashMessage("oats")
	if len(h) != 64 {
		t.Errorf("expected 64-char hash, got %d", len(h))
	}
	if h != HashMessage("oats") {
		t.Error("hash should be deterministic")
	}
}

func TestNilLoggerSafe(t *testing.T) {
	var l *Logger
	if err := l.Log(context.Background(), sampleEntry()); err != nil {
		t.Errorf("nil logger should be safe: %v", err)
	}
}

func TestNewCreatesDirectory(t *testing.T) {
	cfg := tempCfg(t)
	cfg.DBPath = filepath.Join(t.TempDir(), "nested", "deep", "audit.db")
	l, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_ = l.Close()
}
