package secrets

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/arclight-ai/arclight/pkg/models"
)

// Store persists sealed credential records per (scope, provider) in
// SQLite. The app-wide record uses scope "*".
type Store struct {
	db *sql.DB
}

// AppScope is the scope of the app-wide fallback credential.
const AppScope = "*"

const createCredentialsTable = `
CREATE TABLE IF NOT EXISTS credentials (
	scope TEXT NOT NULL,
	provider TEXT NOT NULL,
	sealed TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (scope, provider)
);
`

// NewStore opens the credential database and runs auto-migration.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open credential db: %w", err)
	}

	if _, err := db.Exec(createCredentialsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate credential db: %w", err)
	}

	return &Store{db: db}, nil
}

// Put upserts a sealed credential for (scope, provider).
func (s *Store) Put(ctx context.Context, scope, provider, sealed string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credentials (scope, provider, sealed, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(scope, provider) DO UPDATE SET sealed = excluded.sealed, updated_at = excluded.updated_at`,
		scope, provider, sealed, now, now,
	)
	if err != nil {
		return fmt.Errorf("put credential: %w", err)
	}
	return nil
}

// Get returns the sealed value for (scope, provider). When no per-scope
// record exists, the app-wide record is consulted.
func (s *Store) Get(ctx context.Context, scope, provider string) (string, bool, error) {
	for _, sc := range []string{scope, AppScope} {
		var sealed string
		err := s.db.QueryRowContext(ctx,
			`SELECT sealed FROM credentials WHERE scope = ? AND provider = ?`,
			sc, provider,
		).Scan(&sealed)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("get credential: %w", err)
		}
		return sealed, true, nil
	}
	return "", false, nil
}

// Delete removes the credential for (scope, provider).
func (s *Store) Delete(ctx context.Context, scope, provider string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM credentials WHERE scope = ? AND provider = ?`, scope, provider)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}

// List returns all credential records, sealed values included.
func (s *Store) List(ctx context.Context) ([]models.CredentialRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT scope, provider, sealed, created_at, updated_at FROM credentials ORDER BY scope, provider`)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var records []models.CredentialRecord
	for rows.Next() {
		var r models.CredentialRecord
		if err := rows.Scan(&r.Scope, &r.Provider, &r.Sealed, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
