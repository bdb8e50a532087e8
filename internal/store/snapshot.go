// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vmihailenco/msgpack/v5"

	"tradedesk/internal/errors"
	"tradedesk/internal/models"
)

// DefaultNamespace is the snapshot key used when none is configured.
const DefaultNamespace = "tradedesk:engine"

// SnapshotStore persists engine snapshots as msgpack blobs in a SQLite
// key-value table. Snapshots are a resume cache, not the source of truth
// for money; the ledger of record is.
type SnapshotStore struct {
	db *sql.DB
}

// NewSnapshotStore opens (or creates) the snapshot database.
func NewSnapshotStore(dbPath string) (*SnapshotStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}

	s := &SnapshotStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize snapshot schema: %w", err)
	}
	return s, nil
}

func (s *SnapshotStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		namespace TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		saved_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save writes the snapshot under the given namespace, replacing any
// previous snapshot.
func (s *SnapshotStore) Save(ctx context.Context, namespace string, snap *models.EngineSnapshot) error {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	payload, err := msgpack.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (namespace, payload, saved_at) VALUES (?, ?, ?)
		 ON CONFLICT(namespace) DO UPDATE SET payload = excluded.payload, saved_at = excluded.saved_at`,
		namespace, payload, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot stored under the namespace. Returns
// errors.ErrSnapshotNotFound when none exists.
func (s *SnapshotStore) Load(ctx context.Context, namespace string) (*models.EngineSnapshot, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM snapshots WHERE namespace = ?`, namespace,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, errors.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var snap models.EngineSnapshot
	if err := msgpack.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return &snap, nil
}

// Delete removes the snapshot stored under the namespace.
func (s *SnapshotStore) Delete(ctx context.Context, namespace string) error {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE namespace = ?`, namespace)
	return err
}

// Close closes the underlying database.
func (s *SnapshotStore) Close() error {
	return s.db.Close()
}
