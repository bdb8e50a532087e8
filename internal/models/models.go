// Package models provides domain models for the position-accounting engine.
package models

import (
	"time"
)

// Side represents the direction of a margined position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// AssetClass identifies which position collection an entry belongs to.
type AssetClass string

const (
	AssetFX     AssetClass = "FX"
	AssetStock  AssetClass = "STOCK"
	AssetCrypto AssetClass = "CRYPTO"
)

// FXPosition represents a leveraged FX position.
type FXPosition struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Side   Side   `json:"side"`

	Lots     float64 `json:"lots"`
	Units    float64 `json:"units"`
	Leverage float64 `json:"leverage"`

	OpenPrice    float64 `json:"openPrice"`
	CurrentPrice float64 `json:"currentPrice"`
	Notional     float64 `json:"notional"`
	Margin       float64 `json:"margin"`

	UnrealizedPnL        float64 `json:"unrealizedPnl"`
	UnrealizedPnLPercent float64 `json:"unrealizedPnlPercent"`

	// Risk thresholds; zero means unset.
	StopLoss   float64 `json:"stopLoss"`
	TakeProfit float64 `json:"takeProfit"`

	SpreadCost float64 `json:"spreadCost"`
	SwapCost   float64 `json:"swapCost"`

	OpenedAt  time.Time `json:"openedAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SpotPosition represents a spot holding (stock or crypto). The shield
// fields are only ever set on crypto positions.
type SpotPosition struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	Symbol string `json:"symbol"`
	Name   string `json:"name"`

	Quantity     float64 `json:"quantity"`
	AvgPrice     float64 `json:"avgPrice"`
	CurrentPrice float64 `json:"currentPrice"`
	CostBasis    float64 `json:"costBasis"`
	MarketValue  float64 `json:"marketValue"`

	UnrealizedPnL        float64 `json:"unrealizedPnl"`
	UnrealizedPnLPercent float64 `json:"unrealizedPnlPercent"`

	ShieldEnabled     bool      `json:"shieldEnabled"`
	ShieldSnapPrice   float64   `json:"shieldSnapPrice,omitempty"`
	ShieldSnapValue   float64   `json:"shieldSnapValue,omitempty"`
	ShieldActivatedAt time.Time `json:"shieldActivatedAt,omitempty"`

	OpenedAt  time.Time `json:"openedAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AccountMetrics holds the derived account-level numbers. It is always
// recomputed from the full engine state, never mutated in place.
type AccountMetrics struct {
	Balance            float64 `json:"balance"`
	Equity             float64 `json:"equity"`
	UsedMargin         float64 `json:"usedMargin"`
	FreeMargin         float64 `json:"freeMargin"`
	TotalUnrealizedPnL float64 `json:"totalUnrealizedPnl"`
	TotalRealizedPnL   float64 `json:"totalRealizedPnl"`
	PortfolioValue     float64 `json:"portfolioValue"`
}

// RealizedPnLEntry is an append-only record of a close or partial close.
type RealizedPnLEntry struct {
	ID         string     `json:"id" csv:"id"`
	AssetClass AssetClass `json:"assetClass" csv:"asset_class"`
	Symbol     string     `json:"symbol" csv:"symbol"`
	PnL        float64    `json:"pnl" csv:"pnl"`
	ClosedAt   time.Time  `json:"closedAt" csv:"closed_at"`
}

// FXQuote is the latest bid/ask for an FX symbol.
type FXQuote struct {
	Bid float64 `json:"bid"`
	Ask float64 `json:"ask"`
}

// EngineSnapshot is the persistable subset of engine state. Live price
// maps and account metrics are transient and rebuilt after a restore.
type EngineSnapshot struct {
	UserID           string             `json:"userId"`
	Balance          float64            `json:"balance"`
	FXPositions      []*FXPosition      `json:"fxPositions"`
	StockPositions   []*SpotPosition    `json:"stockPositions"`
	CryptoPositions  []*SpotPosition    `json:"cryptoPositions"`
	History          []RealizedPnLEntry `json:"history"`
	TotalRealizedPnL float64            `json:"totalRealizedPnl"`
	SavedAt          time.Time          `json:"savedAt"`
}

// BalanceEvent is one row of the external ledger of record.
type BalanceEvent struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Balance   float64   `json:"balance"`
	Delta     float64   `json:"delta"`
	Memo      string    `json:"memo"`
	CreatedAt time.Time `json:"createdAt"`
}

// Tick is a single price-feed message. Class selects which update path
// it takes: FX ticks carry bid/ask, spot ticks carry a last price.
type Tick struct {
	Class  AssetClass `json:"class"`
	Symbol string     `json:"symbol"`
	Bid    float64    `json:"bid,omitempty"`
	Ask    float64    `json:"ask,omitempty"`
	Price  float64    `json:"price,omitempty"`
}
