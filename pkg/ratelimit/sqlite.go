package ratelimit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/arclight-ai/arclight/pkg/models"
)

// SQLiteStore implements CounterStore with a SQLite database. Admission
// runs inside an immediate transaction, so the check and the increments
// are one atomic unit even under concurrent requests for the same scope.
type SQLiteStore struct {
	db   *sql.DB
	done chan struct{}
	wg   sync.WaitGroup
}

const createCountersTable = `
CREATE TABLE IF NOT EXISTS rate_counters (
	scope TEXT NOT NULL,
	window TEXT NOT NULL,
	window_start DATETIME NOT NULL,
	count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (scope, window, window_start)
);
`

// NewSQLiteStore opens the counter database and runs auto-migration.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open counter db: %w", err)
	}
	// One connection: admission transactions queue in the pool instead of
	// contending for the write lock.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createCountersTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate counter db: %w", err)
	}

	s := &SQLiteStore{db: db, done: make(chan struct{})}
	s.wg.Add(1)
	go s.pruneLoop()
	return s, nil
}

// Admit checks every window and, only if all counts are strictly below
// their limits, increments them. Everything happens in one transaction;
// a denied request consumes no quota.
func (s *SQLiteStore) Admit(ctx context.Context, scope string, quotas []WindowQuota) (*AdmitResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin admit: %w", err)
	}
	defer tx.Rollback()

	counts := make([]int64, len(quotas))
	allowed := true
	for i, q := range quotas {
		var count int64
		err := tx.QueryRowContext(ctx,
			`SELECT count FROM rate_counters WHERE scope = ? AND window = ? AND window_start = ?`,
			scope, string(q.Kind), q.Start,
		).Scan(&count)
		if err != nil && err != sql.ErrNoRows {
			return nil, fmt.Errorf("read counter: %w", err)
		}
		counts[i] = count
		if count >= q.Limit {
			allowed = false
		}
	}

	if !allowed {
		// Read-only path; nothing to commit.
		return &AdmitResult{Allowed: false, Counts: counts}, nil
	}

	for i, q := range quotas {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO rate_counters (scope, window, window_start, count) VALUES (?, ?, ?, 1)
			 ON CONFLICT(scope, window, window_start) DO UPDATE SET count = count + 1`,
			scope, string(q.Kind), q.Start,
		); err != nil {
			return nil, fmt.Errorf("bump counter: %w", err)
		}
		counts[i]++
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit admit: %w", err)
	}
	return &AdmitResult{Allowed: true, Counts: counts}, nil
}

// Count reads the current count for a window without admitting anything.
func (s *SQLiteStore) Count(ctx context.Context, scope string, window models.WindowKind, windowStart time.Time) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT count FROM rate_counters WHERE scope = ? AND window = ? AND window_start = ?`,
		scope, string(window), windowStart,
	).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter: %w", err)
	}
	return count, nil
}

// Prune deletes counter rows whose windows ended before the cutoff.
func (s *SQLiteStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM rate_counters WHERE window_start < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune counters: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the prune goroutine and closes the database.
func (s *SQLiteStore) Close() error {
	close(s.done)
	s.wg.Wait()
	return s.db.Close()
}

func (s *SQLiteStore) pruneLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			_, _ = s.Prune(context.Background(), time.Now().UTC().Add(-48*time.Hour))
		}
	}
}
