package audit

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/nutriempower/nutriempower/pkg/models"
)

// Logger writes and queries audited chat exchanges in a dedicated SQLite
// database.
type Logger struct {
	db      *sql.DB
	cfg     models.AuditConfig
	include map[string]bool
}

// New opens the audit SQLite database and creates the schema.
func New(cfg models.AuditConfig) (*Logger, error) {
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create audit dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}

	inc := make(map[string]bool)
	for _, v := range cfg.Include {
		inc[v] = true
	}

	return &Logger{db: db, cfg: cfg, include: inc}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS audit_log (
		request_id        TEXT PRIMARY KEY,
		model             TEXT NOT NULL,
		message_hash      TEXT NOT NULL,
		message           TEXT,
		context           TEXT,
		response          TEXT,
		error             TEXT,
		status_code       INTEGER,
		cached            INTEGER NOT NULL DEFAULT 0,
		prompt_tokens     INTEGER,
		completion_tokens INTEGER,
		total_tokens      INTEGER,
		latency_ms        INTEGER,
		created_at        DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_model ON audit_log(model)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_log(created_at)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_hash ON audit_log(message_hash)`)
	return err
}

// Log inserts an audit entry. Message, context and response text are kept
// only when named in the include list, and are truncated to MaxBodySize.
func (l *Logger) Log(ctx context.Context, entry models.AuditEntry) error {
	if l == nil || l.db == nil {
		return nil
	}
	if entry.RequestID == "" {
		entry.RequestID = NewRequestID()
	}
	if entry.MessageHash == "" {
		entry.MessageHash = HashMessage(entry.Message)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	message := l.keep("messages", entry.Message)
	contextJSON := l.keep("context", entry.Context)
	response := l.keep("responses", entry.Response)
	errMsg := l.truncate(entry.Error)

	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO audit_log
		(request_id, model, message_hash, message, context, response, error,
		 status_code, cached, prompt_tokens, completion_tokens, total_tokens,
		 latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RequestID, entry.Model, entry.MessageHash,
		message, contextJSON, response, errMsg,
		entry.StatusCode, entry.Cached,
		entry.PromptTokens, entry.CompletionTokens, entry.TotalTokens,
		entry.LatencyMs, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	return nil
}

func (l *Logger) keep(kind, s string) string {
	if !l.include[kind] {
		return ""
	}
	return l.truncate(s)
}

func (l *Logger) truncate(s string) string {
	if l.cfg.MaxBodySize > 0 && len(s) > l.cfg.MaxBodySize {
		return s[:l.cfg.MaxBodySize]
	}
	return s
}

// Query returns audit entries matching the given options, newest first.
func (l *Logger) Query(ctx context.Context, opts models.AuditQueryOpts) ([]models.AuditEntry, error) {
	q := `SELECT request_id, model, message_hash, message, context, response, error,
		status_code, cached, prompt_tokens, completion_tokens, total_tokens,
		latency_ms, created_at
		FROM audit_log WHERE 1=1`
	var args []any

	if opts.RequestID != "" {
		q += " AND request_id = ?"
		args = append(args, opts.RequestID)
	}
	if opts.Model != "" {
		q += " AND model = ?"
		args = append(args, opts.Model)
	}
	if !opts.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, opts.Since)
	}
	if opts.CachedOnly {
		q += " AND cached = 1"
	}
	if opts.FailedOnly {
		q += " AND status_code >= 400"
	}

	q += " ORDER BY created_at DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var message, contextJSON, response, errMsg sql.NullString
		if err := rows.Scan(
			&e.RequestID, &e.Model, &e.MessageHash,
			&message, &contextJSON, &response, &errMsg,
			&e.StatusCode, &e.Cached,
			&e.PromptTokens, &e.CompletionTokens, &e.TotalTokens,
			&e.LatencyMs, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		e.Message = message.String
		e.Context = contextJSON.String
		e.Response = response.String
		e.Error = errMsg.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats returns aggregate counts grouped by model and day.
func (l *Logger) Stats(ctx context.Context) ([]models.AuditStat, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT model, date(created_at) as day, count(*) as cnt,
		        COALESCE(SUM(cached), 0), COALESCE(SUM(CASE WHEN status_code >= 400 THEN 1 ELSE 0 END), 0)
		 FROM audit_log GROUP BY model, day ORDER BY day DESC, model`)
	if err != nil {
		return nil, fmt.Errorf("audit stats: %w", err)
	}
	defer rows.Close()

	var stats []models.AuditStat
	for rows.Next() {
		var s models.AuditStat
		var day sql.NullString
		if err := rows.Scan(&s.Model, &day, &s.Count, &s.Hits, &s.Failed); err != nil {
			return nil, fmt.Errorf("scan audit stat: %w", err)
		}
		s.Day = day.String
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Cleanup deletes entries older than the configured retention period.
func (l *Logger) Cleanup(ctx context.Context) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -l.cfg.RetentionDays)
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM audit_log WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit cleanup: %w", err)
	}
	return res.RowsAffected()
}

// RunRetention calls Cleanup every interval until ctx is done.
func (l *Logger) RunRetention(ctx context.Context, interval time.Duration, log zerolog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := l.Cleanup(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("audit retention failed")
				continue
			}
			if n > 0 {
				log.Info().Int64("deleted", n).Msg("audit retention")
			}
		}
	}
}

// Close closes the database.
func (l *Logger) Close() error {
	return l.db.Close()
}

// NewRequestID returns a fresh identifier for an audited exchange.
func NewRequestID() string {
	return uuid.NewString()
}

// HashMessage returns the SHA-256 hex hash of a chat message, so repeated
// questions can be grouped even when message text is not retained.
func HashMessage(message string) string {
	h := sha256.Sum256([]byte(message))
	return hex.EncodeToString(h[:])
}
