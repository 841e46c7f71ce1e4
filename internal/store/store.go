// Package store is the relational layer for dumps, segments, idea threads
// and thread edges, backed by SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a dump or thread does not exist (or is owned
// by a different user).
var ErrNotFound = errors.New("not found")

// DB wraps the SQLite connection for the idea-thread store.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens or creates the store database under dataDir.
func Open(dataDir string) (*DB, error) {
	dbPath := filepath.Join(dataDir, "skein.db")

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &DB{db: db, path: dbPath}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *DB) Close() error {
	return s.db.Close()
}

// SQL exposes the underlying connection for sibling packages that share the
// same database file (the vector index lives in separate tables).
func (s *DB) SQL() *sql.DB {
	return s.db
}

// migrate creates the base schema and applies incremental migrations.
func (s *DB) migrate() error {
	schema := `
	-- Schema version tracking
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Raw user submissions. Never deleted by the pipeline.
	CREATE TABLE IF NOT EXISTS dumps (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		content TEXT NOT NULL,
		content_type TEXT NOT NULL DEFAULT 'text',
		media_urls TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		processed_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_dumps_user ON dumps(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_dumps_status ON dumps(status);

	-- Topic-coherent excerpts derived from dumps.
	CREATE TABLE IF NOT EXISTS segments (
		id TEXT PRIMARY KEY,
		dump_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		content TEXT NOT NULL,
		segment_type TEXT NOT NULL,
		thread_id TEXT,
		confidence REAL DEFAULT 0,
		embedding_stored INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (dump_id) REFERENCES dumps(id)
	);

	CREATE INDEX IF NOT EXISTS idx_segments_dump ON segments(dump_id);
	CREATE INDEX IF NOT EXISTS idx_segments_thread ON segments(thread_id);
	CREATE INDEX IF NOT EXISTS idx_segments_user ON segments(user_id);

	-- Persistent idea threads. segment_count is maintained incrementally.
	CREATE TABLE IF NOT EXISTS idea_threads (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		summary TEXT,
		state TEXT NOT NULL DEFAULT 'seed',
		state_reason TEXT,
		reality_score INTEGER DEFAULT 5,
		grounding_note TEXT,
		momentum TEXT DEFAULT 'steady',
		segment_count INTEGER DEFAULT 0,
		last_activity_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_threads_user ON idea_threads(user_id, last_activity_at);
	CREATE INDEX IF NOT EXISTS idx_threads_state ON idea_threads(state);

	-- Directed thread relationships, replaced wholesale at each synthesis.
	CREATE TABLE IF NOT EXISTS thread_edges (
		id TEXT PRIMARY KEY,
		from_thread_id TEXT NOT NULL,
		to_thread_id TEXT NOT NULL,
		edge_type TEXT NOT NULL DEFAULT 'relates_to',
		strength REAL NOT NULL,
		reason TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (from_thread_id) REFERENCES idea_threads(id),
		FOREIGN KEY (to_thread_id) REFERENCES idea_threads(id)
	);

	CREATE INDEX IF NOT EXISTS idx_edges_from ON thread_edges(from_thread_id);
	CREATE INDEX IF NOT EXISTS idx_edges_to ON thread_edges(to_thread_id);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	return s.runMigrations()
}

// runMigrations applies incremental schema changes.
func (s *DB) runMigrations() error {
	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		version = 1
	}

	// Migration v2: dump processing checkpoint columns for re-entrancy.
	// Fresh databases already have them; ALTER errors are ignored.
	if version < 2 {
		s.db.Exec("ALTER TABLE dumps ADD COLUMN status TEXT NOT NULL DEFAULT 'pending'")
		s.db.Exec("ALTER TABLE dumps ADD COLUMN processed_at DATETIME")
		s.db.Exec("CREATE INDEX IF NOT EXISTS idx_dumps_status ON dumps(status)")
		s.db.Exec("INSERT INTO schema_version (version) VALUES (2)")
	}

	return nil
}

// Stats returns per-table row counts.
func (s *DB) Stats() (map[string]int, error) {
	stats := make(map[string]int)

	tables := []string{"dumps", "segments", "idea_threads", "thread_edges"}
	for _, table := range tables {
		var count int
		err := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count)
		if err != nil {
			return nil, err
		}
		stats[table] = count
	}

	return stats, nil
}

// Clear removes all data (for testing/reset).
func (s *DB) Clear() error {
	tables := []string{"thread_edges", "segments", "idea_threads", "dumps"}
	for _, table := range tables {
		if _, err := s.db.Exec(fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}
