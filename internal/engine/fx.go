// Package engine implements the unified position-accounting engine.
package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"tradedesk/internal/errors"
	"tradedesk/internal/models"
	"tradedesk/internal/pnlmath"
)

// OpenFXRequest holds the parameters for opening a margined FX position.
type OpenFXRequest struct {
	Symbol     string
	Name       string
	Side       models.Side
	Lots       float64
	Price      float64
	Leverage   float64
	StopLoss   float64
	TakeProfit float64
	SpreadCost float64
}

// OpenFXPosition opens a leveraged FX position after a one-time free-margin
// sufficiency check. The spread cost is deducted from the cash balance and
// synced to the ledger only when nonzero.
func (e *Engine) OpenFXPosition(req OpenFXRequest) (*models.FXPosition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, err := e.openFXLocked(req)
	e.ins.RecordOp("open_fx", err)
	if err != nil {
		return nil, err
	}

	out := *pos
	return &out, nil
}

func (e *Engine) openFXLocked(req OpenFXRequest) (*models.FXPosition, error) {
	if err := e.ensureInitializedLocked(); err != nil {
		return nil, err
	}
	if req.Lots <= 0 || req.Price <= 0 {
		return nil, errors.ErrInvalidQuantity
	}
	if req.Leverage < 1 {
		return nil, errors.ErrInvalidLeverage
	}

	units := pnlmath.LotsToUnits(req.Lots)
	notional := pnlmath.Notional(units, req.Price)
	margin := pnlmath.Margin(units, req.Price, req.Leverage)

	// Sufficiency is checked once, at open. Later trades can push equity
	// negative; that is handled by SL/TP, not prevented here.
	if margin > e.metrics.FreeMargin {
		return nil, errors.NewInsufficientMarginError(margin, e.metrics.FreeMargin)
	}

	now := time.Now().UTC()
	pos := &models.FXPosition{
		ID:           uuid.New().String(),
		UserID:       e.userID,
		Symbol:       req.Symbol,
		Name:         req.Name,
		Side:         req.Side,
		Lots:         req.Lots,
		Units:        units,
		Leverage:     req.Leverage,
		OpenPrice:    req.Price,
		CurrentPrice: req.Price,
		Notional:     notional,
		Margin:       margin,
		StopLoss:     req.StopLoss,
		TakeProfit:   req.TakeProfit,
		SpreadCost:   req.SpreadCost,
		OpenedAt:     now,
		UpdatedAt:    now,
	}

	e.fxPositions = append(e.fxPositions, pos)
	e.balance -= req.SpreadCost
	e.recomputeLocked()

	if req.SpreadCost > 0 {
		memo := fmt.Sprintf("Spread cost on FX open %s %s", pos.Side, pos.Symbol)
		e.syncBalanceAsync(e.balance, -req.SpreadCost, memo)
	}

	e.log.Info().
		Str("position_id", pos.ID).
		Str("symbol", pos.Symbol).
		Str("side", string(pos.Side)).
		Float64("lots", pos.Lots).
		Float64("margin", margin).
		Msg("FX position opened")

	return pos, nil
}

// CloseFXPosition closes a position at the supplied price and returns the
// realized P&L. The P&L delta is always synced to the ledger.
func (e *Engine) CloseFXPosition(positionID string, closePrice float64) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var pnl float64
	err := e.ensureInitializedLocked()
	if err == nil {
		idx := e.findFXLocked(positionID)
		if idx < 0 {
			err = errors.ErrPositionNotFound
		} else {
			pnl = e.closeFXLocked(idx, closePrice, "Closed")
		}
	}
	e.ins.RecordOp("close_fx", err)
	return pnl, err
}

// UpdateFXPrice applies a bid/ask quote to the live price map and every
// open position on the symbol, then evaluates SL/TP triggers. This is the
// sole trigger point for automatic closes.
func (e *Engine) UpdateFXPrice(symbol string, bid, ask float64) {
	start := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.fxQuotes[symbol] = models.FXQuote{Bid: bid, Ask: ask}

	now := time.Now().UTC()
	for _, pos := range e.fxPositions {
		if pos.Symbol != symbol {
			continue
		}
		mark := closingSideMark(pos.Side, models.FXQuote{Bid: bid, Ask: ask})
		pos.CurrentPrice = mark
		pos.Notional = pnlmath.Notional(pos.Units, mark)
		pos.UnrealizedPnL = pnlmath.FXPnL(pos.Side, pos.OpenPrice, mark, pos.Units)
		if pos.Margin != 0 {
			pos.UnrealizedPnLPercent = pos.UnrealizedPnL / pos.Margin * 100
		}
		pos.UpdatedAt = now
	}

	e.recomputeLocked()
	e.checkAndExecuteSLTPLocked()

	if e.ins != nil {
		e.ins.TickApplyDur.Observe(time.Since(start).Seconds())
	}
}

// closingSideMark returns the price a position would close at: bid for
// longs, ask for shorts.
func closingSideMark(side models.Side, q models.FXQuote) float64 {
	if side == models.SideLong {
		return q.Bid
	}
	return q.Ask
}

// checkAndExecuteSLTPLocked closes any position whose stop-loss or
// take-profit level has been crossed by its closing-side mark price.
// Stop-loss is evaluated first; a triggered position is closed at the mark
// and not also checked for take-profit. Symbols with no cached quote are
// skipped.
func (e *Engine) checkAndExecuteSLTPLocked() {
	// Closing mutates the slice, so walk a snapshot of ids.
	ids := make([]string, 0, len(e.fxPositions))
	for _, pos := range e.fxPositions {
		ids = append(ids, pos.ID)
	}

	for _, id := range ids {
		idx := e.findFXLocked(id)
		if idx < 0 {
			continue
		}
		pos := e.fxPositions[idx]

		quote, ok := e.fxQuotes[pos.Symbol]
		if !ok {
			continue
		}
		mark := closingSideMark(pos.Side, quote)

		switch {
		case pnlmath.StopLossTriggered(pos.Side, mark, pos.StopLoss):
			e.log.Info().
				Str("position_id", pos.ID).
				Str("symbol", pos.Symbol).
				Float64("mark", mark).
				Float64("stop_loss", pos.StopLoss).
				Msg("Stop-loss triggered")
			e.closeFXLocked(idx, mark, "Stop-loss close")
			if e.ins != nil {
				e.ins.AutoCloses.WithLabelValues("stop_loss").Inc()
			}
		case pnlmath.TakeProfitTriggered(pos.Side, mark, pos.TakeProfit):
			e.log.Info().
				Str("position_id", pos.ID).
				Str("symbol", pos.Symbol).
				Float64("mark", mark).
				Float64("take_profit", pos.TakeProfit).
				Msg("Take-profit triggered")
			e.closeFXLocked(idx, mark, "Take-profit close")
			if e.ins != nil {
				e.ins.AutoCloses.WithLabelValues("take_profit").Inc()
			}
		}
	}
}

// closeFXLocked removes the position at idx, credits its realized P&L to
// the balance, appends a history entry and syncs the delta to the ledger.
func (e *Engine) closeFXLocked(idx int, closePrice float64, reason string) float64 {
	pos := e.fxPositions[idx]
	pnl := pnlmath.FXPnL(pos.Side, pos.OpenPrice, closePrice, pos.Units)

	e.fxPositions = append(e.fxPositions[:idx], e.fxPositions[idx+1:]...)
	e.balance += pnl
	e.appendHistoryLocked(models.AssetFX, pos.Symbol, pnl)
	e.recomputeLocked()

	memo := fmt.Sprintf("%s FX %s %s @ %.5f: realized P&L %+.2f", reason, pos.Side, pos.Symbol, closePrice, pnl)
	e.syncBalanceAsync(e.balance, pnl, memo)

	e.log.Info().
		Str("position_id", pos.ID).
		Str("symbol", pos.Symbol).
		Float64("close_price", closePrice).
		Float64("realized_pnl", pnl).
		Msg("FX position closed")

	return pnl
}

// SetFXRiskLevels updates the stop-loss and take-profit levels on an open
// position. Zero clears a level.
func (e *Engine) SetFXRiskLevels(positionID string, stopLoss, takeProfit float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureInitializedLocked(); err != nil {
		return err
	}

	idx := e.findFXLocked(positionID)
	if idx < 0 {
		return errors.ErrPositionNotFound
	}

	pos := e.fxPositions[idx]
	pos.StopLoss = stopLoss
	pos.TakeProfit = takeProfit
	pos.UpdatedAt = time.Now().UTC()
	return nil
}

func (e *Engine) findFXLocked(positionID string) int {
	for i, p := range e.fxPositions {
		if p.ID == positionID {
			return i
		}
	}
	return -1
}
