package checkpoint

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteCheckpointer persists sessions in a single-file SQLite database.
// Grounded on dshills-langgraph-go/graph/store.SQLiteStore: WAL mode for
// concurrent reads, one writer connection, auto-migration on first use.
//
// Suitable for single-process deployments that need durability across
// restarts without standing up a separate database server.
type SQLiteCheckpointer struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewSQLiteCheckpointer opens (or creates) the SQLite database at path.
// Use ":memory:" for an ephemeral, test-only database.
func NewSQLiteCheckpointer(path string) (*SQLiteCheckpointer, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx := context.Background()
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("checkpoint: %s: %w", pragma, err)
		}
	}

	c := &SQLiteCheckpointer{db: db, path: path}
	if err := c.createTable(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *SQLiteCheckpointer) createTable(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			snapshot   BLOB NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`
	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("checkpoint: create sessions table: %w", err)
	}
	return nil
}

func (c *SQLiteCheckpointer) Load(ctx context.Context, sessionID string) ([]byte, error) {
	var snapshot []byte
	err := c.db.QueryRowContext(ctx, `SELECT snapshot FROM sessions WHERE session_id = ?`, sessionID).Scan(&snapshot)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint: load %s: %w", sessionID, err)
	}
	return snapshot, nil
}

func (c *SQLiteCheckpointer) Save(ctx context.Context, sessionID string, snapshot []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	const upsert = `
		INSERT INTO sessions (session_id, snapshot, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(session_id) DO UPDATE SET snapshot = excluded.snapshot, updated_at = CURRENT_TIMESTAMP
	`
	if _, err := c.db.ExecContext(ctx, upsert, sessionID, snapshot); err != nil {
		return fmt.Errorf("checkpoint: save %s: %w", sessionID, err)
	}
	return nil
}

func (c *SQLiteCheckpointer) Delete(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("checkpoint: delete %s: %w", sessionID, err)
	}
	return nil
}

// Close releases the underlying database connection.
func (c *SQLiteCheckpointer) Close() error {
	return c.db.Close()
}
