// Package feed provides push-style price-feed ingestion.
package feed

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"tradedesk/internal/models"
)

// SimSymbol seeds one random-walk instrument in the simulated feed.
type SimSymbol struct {
	Class  models.AssetClass
	Symbol string
	Price  float64
	// Spread is the bid/ask spread applied to FX symbols.
	Spread float64
	// Volatility is the max fractional move per tick.
	Volatility float64
}

// SimFeedConfig holds configuration for the simulated feed.
type SimFeedConfig struct {
	Symbols  []SimSymbol
	Interval time.Duration
	Log      zerolog.Logger
}

// SimFeed generates random-walk ticks for a fixed symbol set. It exists so
// the engine can run without a market-data connection.
type SimFeed struct {
	symbols  []SimSymbol
	interval time.Duration
	log      zerolog.Logger
	rng      *rand.Rand
}

// DefaultSimSymbols returns a small cross-class instrument set.
func DefaultSimSymbols() []SimSymbol {
	return []SimSymbol{
		{Class: models.AssetFX, Symbol: "EUR/USD", Price: 1.0850, Spread: 0.0002, Volatility: 0.0004},
		{Class: models.AssetFX, Symbol: "GBP/USD", Price: 1.2700, Spread: 0.0003, Volatility: 0.0005},
		{Class: models.AssetFX, Symbol: "USD/JPY", Price: 148.50, Spread: 0.02, Volatility: 0.0004},
		{Class: models.AssetStock, Symbol: "AAPL", Price: 190.00, Volatility: 0.002},
		{Class: models.AssetStock, Symbol: "TSLA", Price: 250.00, Volatility: 0.004},
		{Class: models.AssetCrypto, Symbol: "BTC", Price: 64000.00, Volatility: 0.003},
		{Class: models.AssetCrypto, Symbol: "ETH", Price: 3100.00, Volatility: 0.004},
	}
}

// NewSimFeed creates a new simulated feed.
func NewSimFeed(cfg SimFeedConfig) *SimFeed {
	symbols := cfg.Symbols
	if len(symbols) == 0 {
		symbols = DefaultSimSymbols()
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = time.Second
	}

	return &SimFeed{
		symbols:  symbols,
		interval: interval,
		log:      cfg.Log.With().Str("component", "sim_feed").Logger(),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run pushes one tick per symbol per interval until ctx is cancelled.
func (f *SimFeed) Run(ctx context.Context, h Handler) error {
	f.log.Info().Int("symbols", len(f.symbols)).Dur("interval", f.interval).Msg("Simulated feed started")

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for i := range f.symbols {
				f.step(&f.symbols[i], h)
			}
		}
	}
}

// step advances one symbol's random walk and dispatches the tick.
func (f *SimFeed) step(s *SimSymbol, h Handler) {
	move := (f.rng.Float64()*2 - 1) * s.Volatility
	s.Price *= 1 + move

	switch s.Class {
	case models.AssetFX:
		half := s.Spread / 2
		Dispatch(h, models.Tick{Class: s.Class, Symbol: s.Symbol, Bid: s.Price - half, Ask: s.Price + half})
	default:
		Dispatch(h, models.Tick{Class: s.Class, Symbol: s.Symbol, Price: s.Price})
	}
}
