package core

import (
	"github.com/olyamironova/escrow-book/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts engine outcomes. A nil *Metrics records nothing.
type Metrics struct {
	ordersCreated   *prometheus.CounterVec
	ordersCancelled prometheus.Counter
	ordersFilled    prometheus.Counter
	rejections      *prometheus.CounterVec
	matchVisited    prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ordersCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "escrowbook_orders_created_total",
				Help: "Orders created, by kind",
			},
			[]string{"kind"},
		),
		ordersCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "escrowbook_orders_cancelled_total",
			Help: "Orders cancelled by their maker",
		}),
		ordersFilled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "escrowbook_fills_total",
			Help: "Settled fills across single-order and continuous matching",
		}),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "escrowbook_rejections_total",
				Help: "Rejected mutating calls, by operation and error kind",
			},
			[]string{"op", "kind"},
		),
		matchVisited: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "escrowbook_match_visited_orders",
			Help:    "Resting orders visited per continuous match",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8),
		}),
	}
	reg.MustRegister(m.ordersCreated, m.ordersCancelled, m.ordersFilled, m.rejections, m.matchVisited)
	return m
}

func (m *Metrics) created(kind domain.OrderKind) {
	if m == nil {
		return
	}
	m.ordersCreated.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) cancelled() {
	if m == nil {
		return
	}
	m.ordersCancelled.Inc()
}

func (m *Metrics) filled(n int) {
	if m == nil {
		return
	}
	m.ordersFilled.Add(float64(n))
}

func (m *Metrics) rejected(op string, err error) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(op, domain.Kind(err)).Inc()
}

func (m *Metrics) visited(n int) {
	if m == nil {
		return
	}
	m.matchVisited.Observe(float64(n))
}
