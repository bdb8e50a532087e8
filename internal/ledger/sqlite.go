// Package ledger provides the balance-sync client for the external ledger
// of record.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"tradedesk/internal/models"
)

// SQLiteLedger appends balance events to a SQLite table and optionally
// publishes each event to a Redis channel so dashboard clients can follow
// balance changes in real time.
type SQLiteLedger struct {
	db  *sql.DB
	rdb *goredis.Client
	log zerolog.Logger
}

// Config holds configuration for the SQLite ledger.
type Config struct {
	DBPath string
	// Redis is optional; nil disables realtime publishing.
	Redis *goredis.Client
	Log   zerolog.Logger
}

// NewSQLiteLedger opens (or creates) the ledger database.
func NewSQLiteLedger(cfg Config) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}

	l := &SQLiteLedger{
		db:  db,
		rdb: cfg.Redis,
		log: cfg.Log.With().Str("component", "ledger").Logger(),
	}

	if err := l.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize ledger schema: %w", err)
	}

	return l, nil
}

func (l *SQLiteLedger) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS balance_events (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		balance REAL NOT NULL,
		delta REAL NOT NULL,
		memo TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_balance_events_user ON balance_events(user_id, created_at DESC);
	`
	_, err := l.db.Exec(schema)
	return err
}

// Sync appends one balance event. The write is the ledger of record; the
// Redis publish that follows is best-effort fan-out only.
func (l *SQLiteLedger) Sync(ctx context.Context, userID string, newBalance, delta float64, memo string) error {
	event := models.BalanceEvent{
		ID:        uuid.New().String(),
		UserID:    userID,
		Balance:   newBalance,
		Delta:     delta,
		Memo:      memo,
		CreatedAt: time.Now().UTC(),
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO balance_events (id, user_id, balance, delta, memo, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		event.ID, event.UserID, event.Balance, event.Delta, event.Memo, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting balance event: %w", err)
	}

	l.publish(ctx, event)
	return nil
}

// publish pushes the event to the per-user realtime channel.
func (l *SQLiteLedger) publish(ctx context.Context, event models.BalanceEvent) {
	if l.rdb == nil {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		l.log.Error().Err(err).Msg("Failed to marshal balance event")
		return
	}

	channel := fmt.Sprintf("ledger:balance:%s", event.UserID)
	if err := l.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		l.log.Warn().Err(err).Str("channel", channel).Msg("Failed to publish balance event")
	}
}

// Recent returns the most recent balance events for a user, newest first.
func (l *SQLiteLedger) Recent(ctx context.Context, userID string, limit int) ([]models.BalanceEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT id, user_id, balance, delta, memo, created_at
		 FROM balance_events WHERE user_id = ?
		 ORDER BY created_at DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying balance events: %w", err)
	}
	defer rows.Close()

	var events []models.BalanceEvent
	for rows.Next() {
		var e models.BalanceEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.Balance, &e.Delta, &e.Memo, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning balance event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Close closes the underlying database.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}
