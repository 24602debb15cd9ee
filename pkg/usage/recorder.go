// Package usage keeps the append-only log of completed gateway calls.
// Writes are best-effort: a failed insert is the gateway's problem to
// log, never the caller's.
package usage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/arclight-ai/arclight/pkg/models"
)

// Recorder records and queries usage.
type Recorder interface {
	// Record appends one usage record.
	Record(ctx context.Context, rec models.UsageRecord) error
	// Summary returns aggregated usage grouped by scope and model,
	// optionally filtered by scope.
	Summary(ctx context.Context, scope string) ([]models.UsageSummary, error)
	// Close releases resources.
	Close() error
}

// SQLiteRecorder implements Recorder with a SQLite database.
type SQLiteRecorder struct {
	db            *sql.DB
	retentionDays int
	done          chan struct{}
	wg            sync.WaitGroup
}

const createUsageTable = `
CREATE TABLE IF NOT EXISTS usage_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	scope TEXT NOT NULL,
	user_id TEXT NOT NULL,
	model TEXT NOT NULL,
	provider TEXT NOT NULL,
	prompt_tokens INTEGER NOT NULL,
	completion_tokens INTEGER NOT NULL,
	total_tokens INTEGER NOT NULL,
	estimated_cost REAL NOT NULL,
	endpoint TEXT NOT NULL DEFAULT '',
	request_id TEXT NOT NULL,
	latency_ms INTEGER NOT NULL,
	cache_hit INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_usage_scope_time ON usage_records(scope, created_at);
CREATE INDEX IF NOT EXISTS idx_usage_request ON usage_records(request_id);
`

// New creates a SQLiteRecorder and runs auto-migration. retentionDays <= 0
// disables the cleanup loop.
func New(dbPath string, retentionDays int) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open usage db: %w", err)
	}

	if _, err := db.Exec(createUsageTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate usage db: %w", err)
	}

	r := &SQLiteRecorder{db: db, retentionDays: retentionDays, done: make(chan struct{})}
	if retentionDays > 0 {
		r.wg.Add(1)
		go r.retentionLoop()
	}
	return r, nil
}

// Record appends one usage record.
func (r *SQLiteRecorder) Record(ctx context.Context, rec models.UsageRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO usage_records
		 (scope, user_id, model, provider, prompt_tokens, completion_tokens, total_tokens,
		  estimated_cost, endpoint, request_id, latency_ms, cache_hit, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Scope, rec.UserID, rec.Model, rec.Provider,
		rec.PromptTokens, rec.CompletionTokens, rec.TotalTokens,
		rec.EstimatedCost, rec.Endpoint, rec.RequestID, rec.LatencyMs,
		boolToInt(rec.CacheHit), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// Summary returns aggregated usage grouped by scope and model.
func (r *SQLiteRecorder) Summary(ctx context.Context, scope string) ([]models.UsageSummary, error) {
	query := `SELECT scope, model, COUNT(*), SUM(cache_hit), SUM(prompt_tokens),
		SUM(completion_tokens), SUM(total_tokens), SUM(estimated_cost)
		FROM usage_records`
	var args []any
	if scope != "" {
		query += ` WHERE scope = ?`
		args = append(args, scope)
	}
	query += ` GROUP BY scope, model ORDER BY scope, model`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.UsageSummary
	for rows.Next() {
		var s models.UsageSummary
		if err := rows.Scan(&s.Scope, &s.Model, &s.RequestCount, &s.CacheHits,
			&s.TotalPrompt, &s.TotalCompletion, &s.TotalTokens, &s.TotalCost); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Cleanup deletes records older than the configured retention period.
func (r *SQLiteRecorder) Cleanup(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -r.retentionDays)
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM usage_records WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("usage cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the retention goroutine and closes the database.
func (r *SQLiteRecorder) Close() error {
	close(r.done)
	r.wg.Wait()
	return r.db.Close()
}

func (r *SQLiteRecorder) retentionLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			_, _ = r.Cleanup(context.Background())
		}
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
