// Package pnlmath provides pure position-accounting math: notional, margin,
// P&L, cost-basis and trigger calculations. Functions here are stateless and
// deterministic; all engine mutations are built on top of them.
package pnlmath

import (
	"tradedesk/internal/models"
)

// UnitsPerLot is the standard FX lot size in base-currency units.
const UnitsPerLot = 100000.0

// LotsToUnits converts a lot count to base-currency units.
func LotsToUnits(lots float64) float64 {
	return lots * UnitsPerLot
}

// UnitsToLots converts base-currency units to lots. Exact inverse of
// LotsToUnits.
func UnitsToLots(units float64) float64 {
	return units / UnitsPerLot
}

// Notional returns the position size in quote-currency terms.
func Notional(units, price float64) float64 {
	return units * price
}

// Margin returns the collateral required to hold a leveraged position.
// Callers must guarantee leverage >= 1.
func Margin(units, price, leverage float64) float64 {
	return Notional(units, price) / leverage
}

// FXPnL returns the profit or loss of a margined position between two
// prices. Long positions gain when price rises, short positions when it
// falls.
func FXPnL(side models.Side, openPrice, closePrice, units float64) float64 {
	pnl := (closePrice - openPrice) * units
	if side == models.SideShort {
		pnl = -pnl
	}
	return pnl
}

// NewAvgPrice returns the weighted-average entry price after adding newQty
// units at newPrice (plus fee) to an existing holding. Returns newPrice when
// the combined quantity is zero.
func NewAvgPrice(existingQty, existingAvg, newQty, newPrice, fee float64) float64 {
	total := existingQty + newQty
	if total == 0 {
		return newPrice
	}
	return ((existingQty * existingAvg) + (newQty * newPrice) + fee) / total
}

// RealizedPnL returns the profit locked in by selling sellQty units at
// sellPrice against an average buy price, net of fee.
func RealizedPnL(avgBuyPrice, sellPrice, sellQty, fee float64) float64 {
	return (sellPrice-avgBuyPrice)*sellQty - fee
}

// SpotPnL returns the unrealized P&L of a spot holding and its percentage
// of cost basis. The percentage is zero when the cost basis is zero.
func SpotPnL(qty, avgPrice, currentPrice float64) (pnl, pnlPercent float64) {
	pnl = (currentPrice - avgPrice) * qty
	costBasis := qty * avgPrice
	if costBasis != 0 {
		pnlPercent = pnl / costBasis * 100
	}
	return pnl, pnlPercent
}

// LiquidationPrice returns the mark price at which a position's equity
// (margin plus unrealized P&L) reaches zero. Long positions liquidate on
// the downside, shorts on the upside.
func LiquidationPrice(side models.Side, openPrice, leverage float64) float64 {
	if leverage == 0 {
		return 0
	}
	if side == models.SideLong {
		return openPrice * (1 - 1/leverage)
	}
	return openPrice * (1 + 1/leverage)
}

// StopLossTriggered reports whether markPrice has crossed the stop-loss
// level. A zero stopLoss means unset and never triggers.
func StopLossTriggered(side models.Side, markPrice, stopLoss float64) bool {
	if stopLoss <= 0 {
		return false
	}
	if side == models.SideLong {
		return markPrice <= stopLoss
	}
	return markPrice >= stopLoss
}

// TakeProfitTriggered reports whether markPrice has crossed the take-profit
// level. A zero takeProfit means unset and never triggers.
func TakeProfitTriggered(side models.Side, markPrice, takeProfit float64) bool {
	if takeProfit <= 0 {
		return false
	}
	if side == models.SideLong {
		return markPrice >= takeProfit
	}
	return markPrice <= takeProfit
}

// AccountMetrics aggregates account-level numbers from the cash balance and
// the three position collections. TotalRealizedPnL is a running figure the
// engine owns and is left zero here.
func AccountMetrics(balance float64, fx []*models.FXPosition, stocks, cryptos []*models.SpotPosition) models.AccountMetrics {
	var fxUnrealized, usedMargin float64
	for _, p := range fx {
		fxUnrealized += p.UnrealizedPnL
		usedMargin += p.Margin
	}

	var spotUnrealized, portfolioValue float64
	for _, p := range stocks {
		spotUnrealized += p.UnrealizedPnL
		portfolioValue += p.MarketValue
	}
	for _, p := range cryptos {
		spotUnrealized += p.UnrealizedPnL
		portfolioValue += p.MarketValue
	}

	equity := balance + fxUnrealized
	return models.AccountMetrics{
		Balance:            balance,
		Equity:             equity,
		UsedMargin:         usedMargin,
		FreeMargin:         equity - usedMargin,
		TotalUnrealizedPnL: fxUnrealized + spotUnrealized,
		PortfolioValue:     portfolioValue,
	}
}
