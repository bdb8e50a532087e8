// Package ledger provides the balance-sync client for the external ledger
// of record. Syncs are best-effort: the engine commits locally first and
// never rolls back on a failed sync.
package ledger

import (
	"context"

	"tradedesk/internal/models"
)

// Syncer appends a balance-delta record to the ledger of record.
type Syncer interface {
	// Sync records that the user's balance moved by delta to newBalance,
	// with a human-readable memo. Implementations must not mutate engine
	// state; failures are the caller's to log and ignore.
	Sync(ctx context.Context, userID string, newBalance, delta float64, memo string) error
}

// Reader exposes the most recent balance events for display.
type Reader interface {
	Recent(ctx context.Context, userID string, limit int) ([]models.BalanceEvent, error)
}

// NopSyncer discards all balance events. Used in tests and when no ledger
// backend is configured.
type NopSyncer struct{}

func (NopSyncer) Sync(ctx context.Context, userID string, newBalance, delta float64, memo string) error {
	return nil
}
