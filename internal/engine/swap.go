// Package engine implements the unified position-accounting engine.
package engine

import (
	"fmt"
	"time"
)

// AccrueSwap adds one period of carry cost to every open FX position.
// The cost is tracked on the position only; it is not charged to the
// balance.
func (e *Engine) AccrueSwap(ratePerDay float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ratePerDay == 0 || len(e.fxPositions) == 0 {
		return
	}

	now := time.Now().UTC()
	for _, pos := range e.fxPositions {
		pos.SwapCost += pos.Notional * ratePerDay
		pos.UpdatedAt = now
	}

	e.log.Debug().
		Int("positions", len(e.fxPositions)).
		Float64("rate_per_day", ratePerDay).
		Msg("Swap accrued")
}

// SwapAccrualJob applies the daily swap rate on a schedule. It satisfies
// the scheduler's Job interface.
type SwapAccrualJob struct {
	Engine     *Engine
	RatePerDay float64
}

// Name returns the job name for scheduler logging.
func (j *SwapAccrualJob) Name() string {
	return fmt.Sprintf("swap-accrual(%.6f/day)", j.RatePerDay)
}

// Run applies one accrual period.
func (j *SwapAccrualJob) Run() error {
	j.Engine.AccrueSwap(j.RatePerDay)
	return nil
}
