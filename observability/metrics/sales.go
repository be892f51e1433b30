package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// SalesMetrics tracks the offer and escrow lifecycles of a node.
type SalesMetrics struct {
	offersSent        prometheus.Counter
	offersResolved    *prometheus.CounterVec
	escrowTransitions *prometheus.CounterVec
	transactions      *prometheus.CounterVec
	epoch             prometheus.Gauge
}

var (
	salesOnce     sync.Once
	salesRegistry *SalesMetrics
)

// Sales returns the process-wide sales metrics, registering them on first use.
func Sales() *SalesMetrics {
	salesOnce.Do(func() {
		salesRegistry = &SalesMetrics{
			offersSent: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "fcg_offers_sent_total",
				Help: "Count of offer records minted.",
			}),
			offersResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "fcg_offers_resolved_total",
				Help: "Count of offers resolved by outcome.",
			}, []string{"outcome"}),
			escrowTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "fcg_escrow_transitions_total",
				Help: "Count of escrow lifecycle transitions by kind.",
			}, []string{"transition"}),
			transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "fcg_transactions_total",
				Help: "Count of ledger transactions by final status.",
			}, []string{"status"}),
			epoch: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "fcg_epoch",
				Help: "Current ledger epoch.",
			}),
		}
		prometheus.MustRegister(
			salesRegistry.offersSent,
			salesRegistry.offersResolved,
			salesRegistry.escrowTransitions,
			salesRegistry.transactions,
			salesRegistry.epoch,
		)
	})
	return salesRegistry
}

func (m *SalesMetrics) ObserveOfferSent() {
	if m == nil {
		return
	}
	m.offersSent.Inc()
}

func (m *SalesMetrics) ObserveOfferResolved(outcome string) {
	if m == nil {
		return
	}
	m.offersResolved.WithLabelValues(label(outcome)).Inc()
}

func (m *SalesMetrics) ObserveEscrowTransition(transition string) {
	if m == nil {
		return
	}
	m.escrowTransitions.WithLabelValues(label(transition)).Inc()
}

func (m *SalesMetrics) ObserveTransaction(status string) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(label(status)).Inc()
}

func (m *SalesMetrics) SetEpoch(epoch uint64) {
	if m == nil {
		return
	}
	m.epoch.Set(float64(epoch))
}

func label(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return "unknown"
	}
	return v
}
