package engine

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"tradedesk/internal/errors"
	"tradedesk/internal/models"
	"tradedesk/internal/pnlmath"
)

// syncEvent captures one ledger sync call.
type syncEvent struct {
	UserID  string
	Balance float64
	Delta   float64
	Memo    string
}

// recordingSyncer collects ledger syncs for assertions.
type recordingSyncer struct {
	mu     sync.Mutex
	events []syncEvent
}

func (r *recordingSyncer) Sync(ctx context.Context, userID string, newBalance, delta float64, memo string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, syncEvent{UserID: userID, Balance: newBalance, Delta: delta, Memo: memo})
	return nil
}

func (r *recordingSyncer) all() []syncEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]syncEvent, len(r.events))
	copy(out, r.events)
	return out
}

func newTestEngine(syncer *recordingSyncer) *Engine {
	cfg := Config{Log: zerolog.Nop()}
	if syncer != nil {
		cfg.Ledger = syncer
	}
	return New(cfg)
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestTradingRequiresInitialize(t *testing.T) {
	e := newTestEngine(nil)

	if _, err := e.OpenFXPosition(OpenFXRequest{Symbol: "EUR/USD", Side: models.SideLong, Lots: 1, Price: 1.1, Leverage: 100}); !errors.Is(err, errors.ErrNotInitialized) {
		t.Errorf("OpenFXPosition error = %v, want ErrNotInitialized", err)
	}
	if _, err := e.CloseFXPosition("x", 1.1); !errors.Is(err, errors.ErrNotInitialized) {
		t.Errorf("CloseFXPosition error = %v, want ErrNotInitialized", err)
	}
	if _, err := e.BuyStock(BuySpotRequest{Symbol: "AAPL", Quantity: 1, Price: 100}); !errors.Is(err, errors.ErrNotInitialized) {
		t.Errorf("BuyStock error = %v, want ErrNotInitialized", err)
	}
	if _, err := e.SellCrypto("x", 1, 100, 0); !errors.Is(err, errors.ErrNotInitialized) {
		t.Errorf("SellCrypto error = %v, want ErrNotInitialized", err)
	}
	if err := e.SyncBalance(100); !errors.Is(err, errors.ErrNotInitialized) {
		t.Errorf("SyncBalance error = %v, want ErrNotInitialized", err)
	}
}

func TestInitializeSetsBalanceAndMetrics(t *testing.T) {
	e := newTestEngine(nil)
	e.Initialize("user-1", 10000)

	m := e.Metrics()
	if m.Balance != 10000 || m.Equity != 10000 || m.FreeMargin != 10000 {
		t.Errorf("unexpected metrics after initialize: %+v", m)
	}
	if e.UserID() != "user-1" {
		t.Errorf("UserID = %q, want user-1", e.UserID())
	}
}

func TestSyncBalanceDoesNotTouchPositions(t *testing.T) {
	e := newTestEngine(nil)
	e.Initialize("user-1", 10000)

	if _, err := e.BuyStock(BuySpotRequest{Symbol: "AAPL", Name: "Apple", Quantity: 10, Price: 100}); err != nil {
		t.Fatalf("BuyStock: %v", err)
	}

	if err := e.SyncBalance(50000); err != nil {
		t.Fatalf("SyncBalance: %v", err)
	}

	if got := e.Balance(); got != 50000 {
		t.Errorf("Balance = %v, want 50000", got)
	}
	if got := len(e.StockPositions()); got != 1 {
		t.Errorf("stock positions = %d, want 1", got)
	}
}

// Metrics must always equal a fresh aggregation over current state.
func TestMetricsEqualRecomputation(t *testing.T) {
	e := newTestEngine(&recordingSyncer{})
	e.Initialize("user-1", 100000)

	if _, err := e.OpenFXPosition(OpenFXRequest{Symbol: "EUR/USD", Side: models.SideLong, Lots: 0.5, Price: 1.1, Leverage: 100, SpreadCost: 1.5}); err != nil {
		t.Fatalf("OpenFXPosition: %v", err)
	}
	if _, err := e.BuyStock(BuySpotRequest{Symbol: "AAPL", Quantity: 10, Price: 190}); err != nil {
		t.Fatalf("BuyStock: %v", err)
	}
	if _, err := e.BuyCrypto(BuySpotRequest{Symbol: "BTC", Quantity: 0.5, Price: 64000}); err != nil {
		t.Fatalf("BuyCrypto: %v", err)
	}
	e.UpdateFXPrice("EUR/USD", 1.1040, 1.1042)
	e.UpdateStockPrice("AAPL", 195)
	e.UpdateCryptoPrice("BTC", 63000)

	fx := e.FXPositions()
	stocks := e.StockPositions()
	cryptos := e.CryptoPositions()

	fxPtrs := make([]*models.FXPosition, len(fx))
	for i := range fx {
		fxPtrs[i] = &fx[i]
	}
	stockPtrs := make([]*models.SpotPosition, len(stocks))
	for i := range stocks {
		stockPtrs[i] = &stocks[i]
	}
	cryptoPtrs := make([]*models.SpotPosition, len(cryptos))
	for i := range cryptos {
		cryptoPtrs[i] = &cryptos[i]
	}

	want := pnlmath.AccountMetrics(e.Balance(), fxPtrs, stockPtrs, cryptoPtrs)
	got := e.Metrics()

	if !almostEqual(got.Equity, want.Equity) ||
		!almostEqual(got.UsedMargin, want.UsedMargin) ||
		!almostEqual(got.FreeMargin, want.FreeMargin) ||
		!almostEqual(got.TotalUnrealizedPnL, want.TotalUnrealizedPnL) ||
		!almostEqual(got.PortfolioValue, want.PortfolioValue) {
		t.Errorf("metrics diverged from recomputation:\ngot  %+v\nwant %+v", got, want)
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	e := newTestEngine(&recordingSyncer{})
	e.Initialize("user-1", 50000)

	if _, err := e.OpenFXPosition(OpenFXRequest{Symbol: "GBP/USD", Side: models.SideShort, Lots: 0.2, Price: 1.27, Leverage: 50}); err != nil {
		t.Fatalf("OpenFXPosition: %v", err)
	}
	if _, err := e.BuyStock(BuySpotRequest{Symbol: "TSLA", Quantity: 4, Price: 250}); err != nil {
		t.Fatalf("BuyStock: %v", err)
	}
	pos, err := e.BuyCrypto(BuySpotRequest{Symbol: "ETH", Quantity: 2, Price: 3100})
	if err != nil {
		t.Fatalf("BuyCrypto: %v", err)
	}
	if _, err := e.SellCrypto(pos.ID, 1, 3300, 0); err != nil {
		t.Fatalf("SellCrypto: %v", err)
	}

	snap := e.Snapshot()

	restored := newTestEngine(nil)
	restored.Restore(snap)

	if restored.UserID() != "user-1" {
		t.Errorf("restored UserID = %q", restored.UserID())
	}
	if !almostEqual(restored.Balance(), e.Balance()) {
		t.Errorf("restored balance = %v, want %v", restored.Balance(), e.Balance())
	}
	if got := len(restored.FXPositions()); got != 1 {
		t.Errorf("restored fx positions = %d, want 1", got)
	}
	if got := len(restored.CryptoPositions()); got != 1 {
		t.Errorf("restored crypto positions = %d, want 1", got)
	}
	if got := len(restored.RealizedPnLHistory()); got != 1 {
		t.Errorf("restored history = %d, want 1", got)
	}
	if !almostEqual(restored.Metrics().TotalRealizedPnL, e.Metrics().TotalRealizedPnL) {
		t.Errorf("restored realized total = %v, want %v",
			restored.Metrics().TotalRealizedPnL, e.Metrics().TotalRealizedPnL)
	}
}

func TestSnapshotCapsHistory(t *testing.T) {
	e := newTestEngine(&recordingSyncer{})
	e.Initialize("user-1", 100000)

	// Each open/close cycle at an unchanged price realizes zero P&L and
	// appends one history entry.
	for i := 0; i < historyCap+20; i++ {
		pos, err := e.OpenFXPosition(OpenFXRequest{Symbol: "EUR/USD", Side: models.SideLong, Lots: 0.001, Price: 1.1, Leverage: 100})
		if err != nil {
			t.Fatalf("OpenFXPosition #%d: %v", i, err)
		}
		if _, err := e.CloseFXPosition(pos.ID, 1.1); err != nil {
			t.Fatalf("CloseFXPosition #%d: %v", i, err)
		}
	}

	if got := len(e.RealizedPnLHistory()); got != historyCap+20 {
		t.Fatalf("in-memory history = %d, want %d", got, historyCap+20)
	}

	snap := e.Snapshot()
	if got := len(snap.History); got != historyCap {
		t.Errorf("snapshot history = %d, want %d", got, historyCap)
	}
}

func TestAccrueSwapTracksWithoutCharging(t *testing.T) {
	e := newTestEngine(&recordingSyncer{})
	e.Initialize("user-1", 100000)

	if _, err := e.OpenFXPosition(OpenFXRequest{Symbol: "USD/JPY", Side: models.SideLong, Lots: 0.1, Price: 148.5, Leverage: 100}); err != nil {
		t.Fatalf("OpenFXPosition: %v", err)
	}
	balanceBefore := e.Balance()

	e.AccrueSwap(0.0001)

	pos := e.FXPositions()[0]
	wantSwap := pos.Notional * 0.0001
	if !almostEqual(pos.SwapCost, wantSwap) {
		t.Errorf("SwapCost = %v, want %v", pos.SwapCost, wantSwap)
	}
	if e.Balance() != balanceBefore {
		t.Errorf("balance changed by swap accrual: %v -> %v", balanceBefore, e.Balance())
	}
}
