// Package engine implements the unified position-accounting engine: one
// mutex-guarded owner of all position collections, the cash balance and the
// derived account metrics. Every mutating operation recomputes the metrics
// before returning; the only asynchronous step is the best-effort ledger
// sync issued after local state has committed.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tradedesk/internal/errors"
	"tradedesk/internal/ledger"
	"tradedesk/internal/metrics"
	"tradedesk/internal/models"
	"tradedesk/internal/pnlmath"
)

// historyCap is the maximum number of realized-P&L entries persisted in a
// snapshot.
const historyCap = 100

// Config holds engine dependencies.
type Config struct {
	Ledger      ledger.Syncer
	Log         zerolog.Logger
	Instruments *metrics.Instruments
	// SyncTimeout bounds each fire-and-forget ledger call.
	SyncTimeout time.Duration
}

// Engine owns all trading state for one account. All exported methods are
// safe for concurrent use; state is guarded by a single mutex so operations
// never interleave mid-mutation.
type Engine struct {
	mu sync.RWMutex

	userID  string
	balance float64

	fxPositions     []*models.FXPosition
	stockPositions  []*models.SpotPosition
	cryptoPositions []*models.SpotPosition

	metrics       models.AccountMetrics
	history       []models.RealizedPnLEntry
	realizedTotal float64

	fxQuotes     map[string]models.FXQuote
	stockPrices  map[string]float64
	cryptoPrices map[string]float64

	syncer      ledger.Syncer
	ins         *metrics.Instruments
	log         zerolog.Logger
	syncTimeout time.Duration
	syncWG      sync.WaitGroup
}

// New creates a new engine. Initialize must be called before any trading
// operation.
func New(cfg Config) *Engine {
	syncer := cfg.Ledger
	if syncer == nil {
		syncer = ledger.NopSyncer{}
	}
	syncTimeout := cfg.SyncTimeout
	if syncTimeout == 0 {
		syncTimeout = 5 * time.Second
	}

	return &Engine{
		fxQuotes:     make(map[string]models.FXQuote),
		stockPrices:  make(map[string]float64),
		cryptoPrices: make(map[string]float64),
		syncer:       syncer,
		ins:          cfg.Instruments,
		log:          cfg.Log.With().Str("component", "engine").Logger(),
		syncTimeout:  syncTimeout,
	}
}

// Initialize (re)sets the account identity and cash balance and recomputes
// metrics. It does not touch open positions.
func (e *Engine) Initialize(userID string, balance float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.userID = userID
	e.balance = balance
	e.recomputeLocked()

	e.log.Info().Str("user_id", userID).Float64("balance", balance).Msg("Engine initialized")
}

// SyncBalance applies an external correction of the cash balance, e.g. a
// deposit approved elsewhere in the platform. Positions are untouched.
func (e *Engine) SyncBalance(balance float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureInitializedLocked(); err != nil {
		return err
	}

	e.balance = balance
	e.recomputeLocked()
	return nil
}

// ensureInitializedLocked rejects trading operations before Initialize.
func (e *Engine) ensureInitializedLocked() error {
	if e.userID == "" {
		return errors.ErrNotInitialized
	}
	return nil
}

// recomputeLocked rebuilds the metrics object from current state. Called at
// the end of every mutating operation while the write lock is held.
func (e *Engine) recomputeLocked() {
	m := pnlmath.AccountMetrics(e.balance, e.fxPositions, e.stockPositions, e.cryptoPositions)
	m.TotalRealizedPnL = e.realizedTotal
	e.metrics = m

	if e.ins != nil {
		e.ins.Equity.Set(m.Equity)
		e.ins.Balance.Set(m.Balance)
		e.ins.FreeMargin.Set(m.FreeMargin)
		e.ins.OpenPositions.WithLabelValues(string(models.AssetFX)).Set(float64(len(e.fxPositions)))
		e.ins.OpenPositions.WithLabelValues(string(models.AssetStock)).Set(float64(len(e.stockPositions)))
		e.ins.OpenPositions.WithLabelValues(string(models.AssetCrypto)).Set(float64(len(e.cryptoPositions)))
	}
}

// appendHistoryLocked records a realized P&L event and updates the running
// total.
func (e *Engine) appendHistoryLocked(class models.AssetClass, symbol string, pnl float64) {
	e.history = append(e.history, models.RealizedPnLEntry{
		ID:         uuid.New().String(),
		AssetClass: class,
		Symbol:     symbol,
		PnL:        pnl,
		ClosedAt:   time.Now().UTC(),
	})
	e.realizedTotal += pnl
}

// syncBalanceAsync fires the ledger sync for an already-committed balance
// change. It never blocks the calling operation and failures are only
// logged; local state is the provisional truth and the external ledger is
// expected to eventually match it.
func (e *Engine) syncBalanceAsync(newBalance, delta float64, memo string) {
	userID := e.userID

	e.syncWG.Add(1)
	go func() {
		defer e.syncWG.Done()

		ctx, cancel := context.WithTimeout(context.Background(), e.syncTimeout)
		defer cancel()

		err := e.syncer.Sync(ctx, userID, newBalance, delta, memo)
		if e.ins != nil {
			result := "ok"
			if err != nil {
				result = "error"
			}
			e.ins.LedgerSyncs.WithLabelValues(result).Inc()
		}
		if err != nil {
			e.log.Error().Err(err).
				Str("user_id", userID).
				Float64("delta", delta).
				Str("memo", memo).
				Msg("Ledger sync failed")
			return
		}
		e.log.Debug().Float64("delta", delta).Str("memo", memo).Msg("Ledger sync complete")
	}()
}

// Flush waits for in-flight ledger syncs to finish. Used on shutdown and in
// tests; it gives no delivery guarantee beyond what already ran.
func (e *Engine) Flush() {
	e.syncWG.Wait()
}

// UserID returns the initialized account id, empty before Initialize.
func (e *Engine) UserID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.userID
}

// Metrics returns the current account metrics.
func (e *Engine) Metrics() models.AccountMetrics {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.metrics
}

// Balance returns the current cash balance.
func (e *Engine) Balance() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.balance
}

// Equity returns cash balance plus net unrealized FX P&L.
func (e *Engine) Equity() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.metrics.Equity
}

// TotalUnrealizedPnL returns the unrealized P&L summed across all three
// position classes.
func (e *Engine) TotalUnrealizedPnL() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.metrics.TotalUnrealizedPnL
}

// FXPositions returns a copy of the open FX positions.
func (e *Engine) FXPositions() []models.FXPosition {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]models.FXPosition, 0, len(e.fxPositions))
	for _, p := range e.fxPositions {
		out = append(out, *p)
	}
	return out
}

// StockPositions returns a copy of the open stock positions.
func (e *Engine) StockPositions() []models.SpotPosition {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return copySpot(e.stockPositions)
}

// CryptoPositions returns a copy of the open crypto positions.
func (e *Engine) CryptoPositions() []models.SpotPosition {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return copySpot(e.cryptoPositions)
}

func copySpot(positions []*models.SpotPosition) []models.SpotPosition {
	out := make([]models.SpotPosition, 0, len(positions))
	for _, p := range positions {
		out = append(out, *p)
	}
	return out
}

// FXPositionBySymbol returns the first open FX position for a symbol.
func (e *Engine) FXPositionBySymbol(symbol string) (*models.FXPosition, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, p := range e.fxPositions {
		if p.Symbol == symbol {
			out := *p
			return &out, true
		}
	}
	return nil, false
}

// StockPositionBySymbol returns the open stock position for a symbol.
func (e *Engine) StockPositionBySymbol(symbol string) (*models.SpotPosition, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return spotBySymbol(e.stockPositions, symbol)
}

// CryptoPositionBySymbol returns the open crypto position for a symbol.
func (e *Engine) CryptoPositionBySymbol(symbol string) (*models.SpotPosition, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return spotBySymbol(e.cryptoPositions, symbol)
}

func spotBySymbol(positions []*models.SpotPosition, symbol string) (*models.SpotPosition, bool) {
	for _, p := range positions {
		if p.Symbol == symbol {
			out := *p
			return &out, true
		}
	}
	return nil, false
}

// RealizedPnLHistory returns the realized P&L log, oldest first.
func (e *Engine) RealizedPnLHistory() []models.RealizedPnLEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]models.RealizedPnLEntry, len(e.history))
	copy(out, e.history)
	return out
}

// Snapshot captures the persistable engine state. History is capped to the
// most recent entries; live prices and metrics are derived and excluded.
func (e *Engine) Snapshot() *models.EngineSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	history := e.history
	if len(history) > historyCap {
		history = history[len(history)-historyCap:]
	}
	histCopy := make([]models.RealizedPnLEntry, len(history))
	copy(histCopy, history)

	snap := &models.EngineSnapshot{
		UserID:           e.userID,
		Balance:          e.balance,
		FXPositions:      make([]*models.FXPosition, 0, len(e.fxPositions)),
		StockPositions:   make([]*models.SpotPosition, 0, len(e.stockPositions)),
		CryptoPositions:  make([]*models.SpotPosition, 0, len(e.cryptoPositions)),
		History:          histCopy,
		TotalRealizedPnL: e.realizedTotal,
		SavedAt:          time.Now().UTC(),
	}
	for _, p := range e.fxPositions {
		cp := *p
		snap.FXPositions = append(snap.FXPositions, &cp)
	}
	for _, p := range e.stockPositions {
		cp := *p
		snap.StockPositions = append(snap.StockPositions, &cp)
	}
	for _, p := range e.cryptoPositions {
		cp := *p
		snap.CryptoPositions = append(snap.CryptoPositions, &cp)
	}
	return snap
}

// Restore rehydrates engine state from a snapshot. Price maps start empty
// and metrics are recomputed; fresh feed data fills in current valuations.
func (e *Engine) Restore(snap *models.EngineSnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.userID = snap.UserID
	e.balance = snap.Balance
	e.fxPositions = e.fxPositions[:0]
	for _, p := range snap.FXPositions {
		cp := *p
		e.fxPositions = append(e.fxPositions, &cp)
	}
	e.stockPositions = e.stockPositions[:0]
	for _, p := range snap.StockPositions {
		cp := *p
		e.stockPositions = append(e.stockPositions, &cp)
	}
	e.cryptoPositions = e.cryptoPositions[:0]
	for _, p := range snap.CryptoPositions {
		cp := *p
		e.cryptoPositions = append(e.cryptoPositions, &cp)
	}
	e.history = make([]models.RealizedPnLEntry, len(snap.History))
	copy(e.history, snap.History)
	e.realizedTotal = snap.TotalRealizedPnL

	e.fxQuotes = make(map[string]models.FXQuote)
	e.stockPrices = make(map[string]float64)
	e.cryptoPrices = make(map[string]float64)
	e.recomputeLocked()

	e.log.Info().
		Str("user_id", snap.UserID).
		Int("fx", len(snap.FXPositions)).
		Int("stocks", len(snap.StockPositions)).
		Int("cryptos", len(snap.CryptoPositions)).
		Msg("Engine state restored from snapshot")
}
