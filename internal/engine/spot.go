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

// BuySpotRequest holds the parameters for a spot buy.
type BuySpotRequest struct {
	Symbol   string
	Name     string
	Quantity float64
	Price    float64
	Fee      float64
}

// BuyStock buys a stock position. Repeated buys of the same symbol update
// the weighted-average entry price on the existing position; a second
// position is never created.
func (e *Engine) BuyStock(req BuySpotRequest) (*models.SpotPosition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, err := e.buySpotLocked(&e.stockPositions, models.AssetStock, req)
	e.ins.RecordOp("buy_stock", err)
	return pos, err
}

// BuyCrypto buys a crypto position, with the same cost-basis semantics as
// BuyStock.
func (e *Engine) BuyCrypto(req BuySpotRequest) (*models.SpotPosition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, err := e.buySpotLocked(&e.cryptoPositions, models.AssetCrypto, req)
	e.ins.RecordOp("buy_crypto", err)
	return pos, err
}

func (e *Engine) buySpotLocked(positions *[]*models.SpotPosition, class models.AssetClass, req BuySpotRequest) (*models.SpotPosition, error) {
	if err := e.ensureInitializedLocked(); err != nil {
		return nil, err
	}
	if req.Quantity <= 0 || req.Price <= 0 {
		return nil, errors.ErrInvalidQuantity
	}

	cost := req.Quantity*req.Price + req.Fee
	if cost > e.balance {
		return nil, errors.NewInsufficientFundsError(cost, e.balance)
	}

	now := time.Now().UTC()
	var pos *models.SpotPosition
	for _, p := range *positions {
		if p.Symbol == req.Symbol {
			pos = p
			break
		}
	}

	if pos != nil {
		pos.AvgPrice = pnlmath.NewAvgPrice(pos.Quantity, pos.AvgPrice, req.Quantity, req.Price, req.Fee)
		pos.Quantity += req.Quantity
		// Valuation keeps tracking the existing mark, not the trade price.
		e.revalueSpotLocked(pos)
		pos.UpdatedAt = now
	} else {
		pos = &models.SpotPosition{
			ID:           uuid.New().String(),
			UserID:       e.userID,
			Symbol:       req.Symbol,
			Name:         req.Name,
			Quantity:     req.Quantity,
			AvgPrice:     req.Price,
			CurrentPrice: req.Price,
			CostBasis:    req.Quantity * req.Price,
			MarketValue:  req.Quantity * req.Price,
			OpenedAt:     now,
			UpdatedAt:    now,
		}
		*positions = append(*positions, pos)
	}

	e.balance -= cost
	e.recomputeLocked()

	memo := fmt.Sprintf("Bought %.8g %s @ %.2f", req.Quantity, req.Symbol, req.Price)
	e.syncBalanceAsync(e.balance, -cost, memo)

	e.log.Info().
		Str("position_id", pos.ID).
		Str("class", string(class)).
		Str("symbol", req.Symbol).
		Float64("quantity", req.Quantity).
		Float64("price", req.Price).
		Float64("avg_price", pos.AvgPrice).
		Msg("Spot buy")

	out := *pos
	return &out, nil
}

// SellStock sells part or all of a stock position.
func (e *Engine) SellStock(positionID string, quantity, price, fee float64) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pnl, err := e.sellSpotLocked(&e.stockPositions, models.AssetStock, positionID, quantity, price, fee)
	e.ins.RecordOp("sell_stock", err)
	return pnl, err
}

// SellCrypto sells part or all of a crypto position.
func (e *Engine) SellCrypto(positionID string, quantity, price, fee float64) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pnl, err := e.sellSpotLocked(&e.cryptoPositions, models.AssetCrypto, positionID, quantity, price, fee)
	e.ins.RecordOp("sell_crypto", err)
	return pnl, err
}

// sellSpotLocked realizes P&L against the unchanged average price. A full
// sale removes the position; a partial sale reduces quantity without
// touching the average price. Either way one history entry is appended and
// the proceeds delta is synced to the ledger.
func (e *Engine) sellSpotLocked(positions *[]*models.SpotPosition, class models.AssetClass, positionID string, quantity, price, fee float64) (float64, error) {
	if err := e.ensureInitializedLocked(); err != nil {
		return 0, err
	}
	if quantity <= 0 || price <= 0 {
		return 0, errors.ErrInvalidQuantity
	}

	idx := -1
	for i, p := range *positions {
		if p.ID == positionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0, errors.ErrPositionNotFound
	}
	pos := (*positions)[idx]

	if quantity > pos.Quantity {
		return 0, errors.NewOversellError(pos.Symbol, pos.Quantity, quantity)
	}

	realized := pnlmath.RealizedPnL(pos.AvgPrice, price, quantity, fee)
	proceeds := quantity*price - fee

	if quantity == pos.Quantity {
		*positions = append((*positions)[:idx], (*positions)[idx+1:]...)
	} else {
		pos.Quantity -= quantity
		e.revalueSpotLocked(pos)
		pos.UpdatedAt = time.Now().UTC()
	}

	e.balance += proceeds
	e.appendHistoryLocked(class, pos.Symbol, realized)
	e.recomputeLocked()

	memo := fmt.Sprintf("Sold %.8g %s @ %.2f (realized P&L %+.2f)", quantity, pos.Symbol, price, realized)
	e.syncBalanceAsync(e.balance, proceeds, memo)

	e.log.Info().
		Str("position_id", pos.ID).
		Str("class", string(class)).
		Str("symbol", pos.Symbol).
		Float64("quantity", quantity).
		Float64("realized_pnl", realized).
		Msg("Spot sell")

	return realized, nil
}

// UpdateStockPrice applies a last-trade price to every stock position on
// the symbol. Spot assets have no SL/TP evaluation.
func (e *Engine) UpdateStockPrice(symbol string, price float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stockPrices[symbol] = price
	now := time.Now().UTC()
	for _, pos := range e.stockPositions {
		if pos.Symbol != symbol {
			continue
		}
		pos.CurrentPrice = price
		e.revalueSpotLocked(pos)
		pos.UpdatedAt = now
	}
	e.recomputeLocked()
}

// UpdateCryptoPrice applies a last-trade price to every crypto position on
// the symbol. Positions with shield enabled keep their frozen snapshot
// valuation and are skipped.
func (e *Engine) UpdateCryptoPrice(symbol string, price float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cryptoPrices[symbol] = price
	now := time.Now().UTC()
	for _, pos := range e.cryptoPositions {
		if pos.Symbol != symbol || pos.ShieldEnabled {
			continue
		}
		pos.CurrentPrice = price
		e.revalueSpotLocked(pos)
		pos.UpdatedAt = now
	}
	e.recomputeLocked()
}

// ToggleCryptoShield flips the shield flag on a crypto position. Enabling
// captures a snapshot price and value that freeze the displayed valuation;
// disabling clears the snapshot so the next tick resumes live tracking.
// There is no balance or ledger effect.
func (e *Engine) ToggleCryptoShield(positionID string) (*models.SpotPosition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureInitializedLocked(); err != nil {
		e.ins.RecordOp("toggle_shield", err)
		return nil, err
	}

	var pos *models.SpotPosition
	for _, p := range e.cryptoPositions {
		if p.ID == positionID {
			pos = p
			break
		}
	}
	if pos == nil {
		e.ins.RecordOp("toggle_shield", errors.ErrPositionNotFound)
		return nil, errors.ErrPositionNotFound
	}

	now := time.Now().UTC()
	if !pos.ShieldEnabled {
		pos.ShieldEnabled = true
		pos.ShieldSnapPrice = pos.CurrentPrice
		pos.ShieldSnapValue = pos.Quantity * pos.CurrentPrice
		pos.ShieldActivatedAt = now
	} else {
		pos.ShieldEnabled = false
		pos.ShieldSnapPrice = 0
		pos.ShieldSnapValue = 0
		pos.ShieldActivatedAt = time.Time{}
	}
	pos.UpdatedAt = now

	e.ins.RecordOp("toggle_shield", nil)
	e.log.Info().
		Str("position_id", pos.ID).
		Str("symbol", pos.Symbol).
		Bool("shield_enabled", pos.ShieldEnabled).
		Msg("Crypto shield toggled")

	out := *pos
	return &out, nil
}

// revalueSpotLocked recomputes a spot position's derived fields from its
// quantity, average price and valuation price. Shielded positions value
// against the frozen snapshot price.
func (e *Engine) revalueSpotLocked(pos *models.SpotPosition) {
	valuation := pos.CurrentPrice
	if pos.ShieldEnabled {
		valuation = pos.ShieldSnapPrice
		pos.ShieldSnapValue = pos.Quantity * valuation
	}

	pos.CostBasis = pos.Quantity * pos.AvgPrice
	pos.MarketValue = pos.Quantity * valuation
	pos.UnrealizedPnL, pos.UnrealizedPnLPercent = pnlmath.SpotPnL(pos.Quantity, pos.AvgPrice, valuation)
}
