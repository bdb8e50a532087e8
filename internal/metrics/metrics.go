// Package metrics provides Prometheus instrumentation for the engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Instruments holds all Prometheus metrics for the position engine.
type Instruments struct {
	OpsTotal      *prometheus.CounterVec // labels: op, result
	AutoCloses    *prometheus.CounterVec // labels: reason (stop_loss, take_profit)
	LedgerSyncs   *prometheus.CounterVec // labels: result
	TickApplyDur  prometheus.Histogram
	Equity        prometheus.Gauge
	Balance       prometheus.Gauge
	FreeMargin    prometheus.Gauge
	OpenPositions *prometheus.GaugeVec // labels: class
}

// New registers and returns the engine instruments on the default registry.
func New() *Instruments {
	return &Instruments{
		OpsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tradedesk_engine_ops_total",
			Help: "Engine operations by name and result.",
		}, []string{"op", "result"}),
		AutoCloses: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tradedesk_engine_auto_closes_total",
			Help: "Automatic FX closes by trigger reason.",
		}, []string{"reason"}),
		LedgerSyncs: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tradedesk_ledger_syncs_total",
			Help: "Fire-and-forget ledger sync attempts by result.",
		}, []string{"result"}),
		TickApplyDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradedesk_tick_apply_duration_seconds",
			Help:    "Time spent applying a price tick to engine state.",
			Buckets: prometheus.ExponentialBuckets(0.000001, 4, 10),
		}),
		Equity: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tradedesk_account_equity",
			Help: "Current account equity.",
		}),
		Balance: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tradedesk_account_balance",
			Help: "Current cash balance.",
		}),
		FreeMargin: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tradedesk_account_free_margin",
			Help: "Current free margin.",
		}),
		OpenPositions: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradedesk_open_positions",
			Help: "Open positions by asset class.",
		}, []string{"class"}),
	}
}

// RecordOp increments the operation counter, mapping err to a result label.
func (m *Instruments) RecordOp(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "rejected"
	}
	m.OpsTotal.WithLabelValues(op, result).Inc()
}
