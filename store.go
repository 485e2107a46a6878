package headlessblog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/eringen/headlessblog/datalayer"
)

// ErrNoSnapshot is returned when no sync has been stored for a node type.
var ErrNoSnapshot = errors.New("headlessblog: no content snapshot; run a sync first")

// Store wraps a SQLite database holding the last synced content snapshot.
type Store struct {
	db *sql.DB
}

// SyncInfo describes the last successful sync of a node type.
type SyncInfo struct {
	Type     string
	SyncedAt time.Time
	Total    int
}

// NewStore opens (or creates) the SQLite database at path, ensures the data
// directory exists, and creates the schema.
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL lets the preview server read while a sync writes.
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		PRAGMA synchronous=NORMAL;
	`); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS nodes (
    type TEXT NOT NULL,
    id TEXT NOT NULL,
    position INTEGER NOT NULL,
    data TEXT NOT NULL,
    PRIMARY KEY (type, id)
);
CREATE INDEX IF NOT EXISTS nodes_type_position ON nodes (type, position);
CREATE TABLE IF NOT EXISTS syncs (
    type TEXT PRIMARY KEY,
    synced_at TEXT NOT NULL,
    total INTEGER NOT NULL
);
`)
	return err
}

// ReplaceNodes swaps the stored snapshot of typeName for nodes in a single
// transaction. Readers see either the old or the new snapshot, never a mix.
func (s *Store) ReplaceNodes(ctx context.Context, typeName string, nodes []datalayer.Node) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE type = ?`, typeName); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO nodes (type, id, position, data) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, n := range nodes {
		data, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("encode node %s: %w", n.ID(), err)
		}
		if _, err := stmt.ExecContext(ctx, typeName, n.ID(), i, string(data)); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO syncs (type, synced_at, total) VALUES (?, ?, ?)`,
		typeName, time.Now().UTC().Format(time.RFC3339), len(nodes)); err != nil {
		return err
	}
	return tx.Commit()
}

// ListNodes returns the stored nodes of typeName in sourcing order. It returns
// ErrNoSnapshot if the type was never synced.
func (s *Store) ListNodes(ctx context.Context, typeName string) ([]datalayer.Node, error) {
	if _, err := s.LastSync(ctx, typeName); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM nodes WHERE type = ? ORDER BY position`, typeName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	nodes := []datalayer.Node{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var n datalayer.Node
		if err := json.Unmarshal([]byte(data), &n); err != nil {
			return nil, fmt.Errorf("decode node: %w", err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return nodes, nil
}

// LastSync returns when typeName was last synced.
func (s *Store) LastSync(ctx context.Context, typeName string) (SyncInfo, error) {
	var syncedAt string
	var total int
	err := s.db.QueryRowContext(ctx, `SELECT synced_at, total FROM syncs WHERE type = ?`, typeName).Scan(&syncedAt, &total)
	if errors.Is(err, sql.ErrNoRows) {
		return SyncInfo{}, ErrNoSnapshot
	}
	if err != nil {
		return SyncInfo{}, err
	}
	t, err := time.Parse(time.RFC3339, syncedAt)
	if err != nil {
		return SyncInfo{}, fmt.Errorf("parse synced_at: %w", err)
	}
	return SyncInfo{Type: typeName, SyncedAt: t, Total: total}, nil
}
