package engine

import (
	"strings"
	"testing"

	"tradedesk/internal/errors"
	"tradedesk/internal/models"
	"tradedesk/internal/pnlmath"
)

func findFXByID(t *testing.T, e *Engine, id string) models.FXPosition {
	t.Helper()
	for _, p := range e.FXPositions() {
		if p.ID == id {
			return p
		}
	}
	t.Fatalf("position %s not found", id)
	return models.FXPosition{}
}

func TestOpenFXPosition(t *testing.T) {
	rec := &recordingSyncer{}
	e := newTestEngine(rec)
	e.Initialize("user-1", 10000)

	pos, err := e.OpenFXPosition(OpenFXRequest{
		Symbol:     "EUR/USD",
		Side:       models.SideLong,
		Lots:       0.5,
		Price:      1.1,
		Leverage:   100,
		SpreadCost: 2.5,
	})
	if err != nil {
		t.Fatalf("OpenFXPosition: %v", err)
	}

	if pos.Units != 50000 {
		t.Errorf("Units = %v, want 50000", pos.Units)
	}
	if !almostEqual(pos.Margin, 550) {
		t.Errorf("Margin = %v, want 550", pos.Margin)
	}
	if pos.CurrentPrice != 1.1 || pos.OpenPrice != 1.1 {
		t.Errorf("open/current price = %v/%v, want 1.1/1.1", pos.OpenPrice, pos.CurrentPrice)
	}
	if got := e.Balance(); !almostEqual(got, 9997.5) {
		t.Errorf("balance after spread = %v, want 9997.5", got)
	}

	m := e.Metrics()
	if !almostEqual(m.UsedMargin, 550) {
		t.Errorf("UsedMargin = %v, want 550", m.UsedMargin)
	}

	e.Flush()
	events := rec.all()
	if len(events) != 1 {
		t.Fatalf("ledger events = %d, want 1", len(events))
	}
	if !almostEqual(events[0].Delta, -2.5) {
		t.Errorf("ledger delta = %v, want -2.5", events[0].Delta)
	}
}

func TestOpenFXZeroSpreadSkipsLedger(t *testing.T) {
	rec := &recordingSyncer{}
	e := newTestEngine(rec)
	e.Initialize("user-1", 10000)

	if _, err := e.OpenFXPosition(OpenFXRequest{Symbol: "EUR/USD", Side: models.SideLong, Lots: 0.1, Price: 1.1, Leverage: 100}); err != nil {
		t.Fatalf("OpenFXPosition: %v", err)
	}

	e.Flush()
	if got := len(rec.all()); got != 0 {
		t.Errorf("ledger events = %d, want 0 for zero spread", got)
	}
}

func TestOpenFXInsufficientMargin(t *testing.T) {
	e := newTestEngine(nil)
	e.Initialize("user-1", 1000)

	// 1 lot at 1.10 with 100x needs 1100 margin against 1000 free.
	_, err := e.OpenFXPosition(OpenFXRequest{Symbol: "EUR/USD", Side: models.SideLong, Lots: 1, Price: 1.1, Leverage: 100})
	if !errors.Is(err, errors.ErrInsufficientMargin) {
		t.Fatalf("error = %v, want ErrInsufficientMargin", err)
	}

	var me *errors.InsufficientMarginError
	if !errors.As(err, &me) {
		t.Fatalf("error is not InsufficientMarginError: %v", err)
	}
	if !almostEqual(me.Required, 1100) || !almostEqual(me.Available, 1000) {
		t.Errorf("margin error = %+v, want required 1100 available 1000", me)
	}

	if got := len(e.FXPositions()); got != 0 {
		t.Errorf("positions after rejected open = %d, want 0", got)
	}
	if got := e.Balance(); got != 1000 {
		t.Errorf("balance after rejected open = %v, want 1000", got)
	}
}

func TestOpenFXValidation(t *testing.T) {
	e := newTestEngine(nil)
	e.Initialize("user-1", 10000)

	if _, err := e.OpenFXPosition(OpenFXRequest{Symbol: "EUR/USD", Side: models.SideLong, Lots: 0, Price: 1.1, Leverage: 100}); !errors.Is(err, errors.ErrInvalidQuantity) {
		t.Errorf("zero lots: error = %v, want ErrInvalidQuantity", err)
	}
	if _, err := e.OpenFXPosition(OpenFXRequest{Symbol: "EUR/USD", Side: models.SideLong, Lots: 0.1, Price: 1.1, Leverage: 0.5}); !errors.Is(err, errors.ErrInvalidLeverage) {
		t.Errorf("sub-1 leverage: error = %v, want ErrInvalidLeverage", err)
	}
}

func TestCloseFXPosition(t *testing.T) {
	rec := &recordingSyncer{}
	e := newTestEngine(rec)
	e.Initialize("user-1", 10000)

	pos, err := e.OpenFXPosition(OpenFXRequest{Symbol: "EUR/USD", Side: models.SideLong, Lots: 1, Price: 1.1, Leverage: 200})
	if err != nil {
		t.Fatalf("OpenFXPosition: %v", err)
	}

	pnl, err := e.CloseFXPosition(pos.ID, 1.105)
	if err != nil {
		t.Fatalf("CloseFXPosition: %v", err)
	}
	if !almostEqual(pnl, 500) {
		t.Errorf("realized P&L = %v, want 500", pnl)
	}
	if got := e.Balance(); !almostEqual(got, 10500) {
		t.Errorf("balance = %v, want 10500", got)
	}
	if got := len(e.FXPositions()); got != 0 {
		t.Errorf("positions after close = %d, want 0", got)
	}

	hist := e.RealizedPnLHistory()
	if len(hist) != 1 {
		t.Fatalf("history = %d entries, want 1", len(hist))
	}
	if hist[0].AssetClass != models.AssetFX || !almostEqual(hist[0].PnL, 500) {
		t.Errorf("history entry = %+v", hist[0])
	}

	if !almostEqual(e.Metrics().TotalRealizedPnL, 500) {
		t.Errorf("TotalRealizedPnL = %v, want 500", e.Metrics().TotalRealizedPnL)
	}

	e.Flush()
	events := rec.all()
	if len(events) != 1 {
		t.Fatalf("ledger events = %d, want 1", len(events))
	}
	if !almostEqual(events[0].Delta, 500) || !almostEqual(events[0].Balance, 10500) {
		t.Errorf("ledger event = %+v", events[0])
	}
}

func TestCloseFXNotFound(t *testing.T) {
	e := newTestEngine(nil)
	e.Initialize("user-1", 10000)

	if _, err := e.CloseFXPosition("missing", 1.1); !errors.Is(err, errors.ErrPositionNotFound) {
		t.Errorf("error = %v, want ErrPositionNotFound", err)
	}
}

func TestUpdateFXPriceMarksClosingSide(t *testing.T) {
	e := newTestEngine(&recordingSyncer{})
	e.Initialize("user-1", 100000)

	long, err := e.OpenFXPosition(OpenFXRequest{Symbol: "EUR/USD", Side: models.SideLong, Lots: 1, Price: 1.1, Leverage: 100})
	if err != nil {
		t.Fatalf("open long: %v", err)
	}
	short, err := e.OpenFXPosition(OpenFXRequest{Symbol: "EUR/USD", Side: models.SideShort, Lots: 1, Price: 1.1, Leverage: 100})
	if err != nil {
		t.Fatalf("open short: %v", err)
	}

	e.UpdateFXPrice("EUR/USD", 1.1040, 1.1044)

	gotLong := findFXByID(t, e, long.ID)
	gotShort := findFXByID(t, e, short.ID)

	// Longs mark at bid, shorts at ask.
	if !almostEqual(gotLong.CurrentPrice, 1.1040) {
		t.Errorf("long mark = %v, want 1.1040", gotLong.CurrentPrice)
	}
	if !almostEqual(gotShort.CurrentPrice, 1.1044) {
		t.Errorf("short mark = %v, want 1.1044", gotShort.CurrentPrice)
	}

	wantLongPnL := pnlmath.FXPnL(models.SideLong, 1.1, 1.1040, 100000)
	if !almostEqual(gotLong.UnrealizedPnL, wantLongPnL) {
		t.Errorf("long unrealized = %v, want %v", gotLong.UnrealizedPnL, wantLongPnL)
	}
}

func TestStopLossAutoClose(t *testing.T) {
	rec := &recordingSyncer{}
	e := newTestEngine(rec)
	e.Initialize("user-1", 100000)

	_, err := e.OpenFXPosition(OpenFXRequest{
		Symbol:   "EUR/USD",
		Side:     models.SideLong,
		Lots:     1,
		Price:    1.1,
		Leverage: 100,
		StopLoss: 1.095,
	})
	if err != nil {
		t.Fatalf("OpenFXPosition: %v", err)
	}

	// Above the stop: nothing happens.
	e.UpdateFXPrice("EUR/USD", 1.0980, 1.0984)
	if got := len(e.FXPositions()); got != 1 {
		t.Fatalf("position closed above stop, positions = %d", got)
	}

	// Bid crosses the stop: closed at the mark, not the stop level.
	e.UpdateFXPrice("EUR/USD", 1.0940, 1.0944)
	if got := len(e.FXPositions()); got != 0 {
		t.Fatalf("positions after stop tick = %d, want 0", got)
	}

	wantPnL := pnlmath.FXPnL(models.SideLong, 1.1, 1.0940, 100000)
	hist := e.RealizedPnLHistory()
	if len(hist) != 1 || !almostEqual(hist[0].PnL, wantPnL) {
		t.Fatalf("history = %+v, want one entry with pnl %v", hist, wantPnL)
	}
	if got := e.Balance(); !almostEqual(got, 100000+wantPnL) {
		t.Errorf("balance = %v, want %v", got, 100000+wantPnL)
	}

	e.Flush()
	events := rec.all()
	if len(events) != 1 {
		t.Fatalf("ledger events = %d, want 1", len(events))
	}
	if !strings.Contains(events[0].Memo, "Stop-loss") {
		t.Errorf("memo = %q, want stop-loss close", events[0].Memo)
	}
}

func TestTakeProfitAutoClose(t *testing.T) {
	rec := &recordingSyncer{}
	e := newTestEngine(rec)
	e.Initialize("user-1", 100000)

	if _, err := e.OpenFXPosition(OpenFXRequest{
		Symbol:     "GBP/USD",
		Side:       models.SideShort,
		Lots:       0.5,
		Price:      1.27,
		Leverage:   100,
		TakeProfit: 1.26,
	}); err != nil {
		t.Fatalf("OpenFXPosition: %v", err)
	}

	// Shorts mark at ask; ask must reach the target.
	e.UpdateFXPrice("GBP/USD", 1.2590, 1.2605)
	if got := len(e.FXPositions()); got != 1 {
		t.Fatalf("closed before target, positions = %d", got)
	}

	e.UpdateFXPrice("GBP/USD", 1.2580, 1.2595)
	if got := len(e.FXPositions()); got != 0 {
		t.Fatalf("positions after target tick = %d, want 0", got)
	}

	e.Flush()
	events := rec.all()
	if len(events) != 1 || !strings.Contains(events[0].Memo, "Take-profit") {
		t.Errorf("ledger events = %+v, want one take-profit close", events)
	}
}

// When both levels would trigger on the same tick, stop-loss wins and
// take-profit is never evaluated for that position.
func TestStopLossBeatsTakeProfit(t *testing.T) {
	rec := &recordingSyncer{}
	e := newTestEngine(rec)
	e.Initialize("user-1", 100000)

	// Degenerate config: long with SL above and TP below the open, so any
	// mark between them satisfies both.
	if _, err := e.OpenFXPosition(OpenFXRequest{
		Symbol:     "EUR/USD",
		Side:       models.SideLong,
		Lots:       0.1,
		Price:      1.1,
		Leverage:   100,
		StopLoss:   1.2,
		TakeProfit: 1.0,
	}); err != nil {
		t.Fatalf("OpenFXPosition: %v", err)
	}

	e.UpdateFXPrice("EUR/USD", 1.1, 1.1002)
	if got := len(e.FXPositions()); got != 0 {
		t.Fatalf("positions = %d, want 0", got)
	}

	e.Flush()
	events := rec.all()
	if len(events) != 1 {
		t.Fatalf("ledger events = %d, want 1", len(events))
	}
	if !strings.Contains(events[0].Memo, "Stop-loss") {
		t.Errorf("memo = %q, want stop-loss precedence", events[0].Memo)
	}
}

func TestSetFXRiskLevels(t *testing.T) {
	e := newTestEngine(&recordingSyncer{})
	e.Initialize("user-1", 100000)

	pos, err := e.OpenFXPosition(OpenFXRequest{Symbol: "USD/JPY", Side: models.SideLong, Lots: 0.1, Price: 148.5, Leverage: 100})
	if err != nil {
		t.Fatalf("OpenFXPosition: %v", err)
	}

	if err := e.SetFXRiskLevels(pos.ID, 147.0, 150.0); err != nil {
		t.Fatalf("SetFXRiskLevels: %v", err)
	}

	got := findFXByID(t, e, pos.ID)
	if got.StopLoss != 147.0 || got.TakeProfit != 150.0 {
		t.Errorf("risk levels = %v/%v, want 147/150", got.StopLoss, got.TakeProfit)
	}

	// Zero clears a level.
	if err := e.SetFXRiskLevels(pos.ID, 0, 150.0); err != nil {
		t.Fatalf("SetFXRiskLevels clear: %v", err)
	}
	got = findFXByID(t, e, pos.ID)
	if got.StopLoss != 0 {
		t.Errorf("StopLoss = %v, want cleared", got.StopLoss)
	}

	if err := e.SetFXRiskLevels("missing", 1, 2); !errors.Is(err, errors.ErrPositionNotFound) {
		t.Errorf("error = %v, want ErrPositionNotFound", err)
	}
}
