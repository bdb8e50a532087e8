// Package feed provides push-style price-feed ingestion. The engine
// implements Handler; feeds only push ticks at it and never pull state
// back out.
package feed

import (
	"tradedesk/internal/models"
)

// Handler consumes price updates. Updates for a single symbol are always
// delivered in arrival order; there is no ordering guarantee across
// symbols.
type Handler interface {
	UpdateFXPrice(symbol string, bid, ask float64)
	UpdateStockPrice(symbol string, price float64)
	UpdateCryptoPrice(symbol string, price float64)
}

// Dispatch routes one tick to the matching handler method. Unknown classes
// and malformed ticks are dropped.
func Dispatch(h Handler, tick models.Tick) {
	switch tick.Class {
	case models.AssetFX:
		if tick.Bid > 0 && tick.Ask > 0 {
			h.UpdateFXPrice(tick.Symbol, tick.Bid, tick.Ask)
		}
	case models.AssetStock:
		if tick.Price > 0 {
			h.UpdateStockPrice(tick.Symbol, tick.Price)
		}
	case models.AssetCrypto:
		if tick.Price > 0 {
			h.UpdateCryptoPrice(tick.Symbol, tick.Price)
		}
	}
}
