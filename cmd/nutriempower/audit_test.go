package main

import (
	"strings"
	"testing"
	"time"

	"github.com/nutriempower/nutriempower/pkg/models"
)

func TestFormatAuditEntriesEmpty(t *testing.T) {
	if got := formatAuditEntries(nil); got != "No audit entries found.\n" {
		t.Fatalf("got %q", got)
	}
}

func TestFormatAuditEntries(t *testing.T) {
	out := formatAuditEntries([]models.AuditEntry{{
		RequestID:   "req-1",
		Model:       "llama3.2:1b",
		StatusCode:  200,
		Cached:      true,
		TotalTokens: 42,
		CreatedAt:   time.Now(),
	}})
	for _, want := range []string{"REQUEST ID", "req-1", "llama3.2:1b", "yes", "42"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatAuditEntryOmitsEmptySections(t *testing.T) {
	out := formatAuditEntry(models.AuditEntry{
		RequestID: "req-2",
		Message:   "protein in eggs",
		Error:     "llm backend timed out",
	})
	if !strings.Contains(out, "--- Message ---\nprotein in eggs") {
		t.Errorf("missing message section:\n%s", out)
	}
	if !strings.Contains(out, "--- Error ---") {
		t.Errorf("missing error section:\n%s", out)
	}
	if strings.Contains(out, "--- Response ---") || strings.Contains(out, "--- Context ---") {
		t.Errorf("empty sections should be omitted:\n%s", out)
	}
}

func TestFormatAuditStats(t *testing.T) {
	out := formatAuditStats([]models.AuditStat{{Model: "phi3", Day: "2026-01-02", Count: 7, Hits: 3, Failed: 1}})
	if !strings.Contains(out, "phi3") || !strings.Contains(out, "2026-01-02") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if got := formatAuditStats(nil); got != "No audit stats found.\n" {
		t.Fatalf("got %q", got)
	}
}

func TestOrDash(t *testing.T) {
	s := "Dairy"
	empty := ""
	if orDash(nil) != "-" || orDash(&empty) != "-" || orDash(&s) != "Dairy" {
		t.Fatal("orDash mismatch")
	}
}
