// Package metrics exposes Prometheus instrumentation for the check cycle.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Recorder interface {
	ObserveFetch(source string, duration time.Duration, err error)
	AddListings(source string, count int)
	IncNotifications(kind string)
	IncStoreWrites(op string, err error)
	ObserveCycle(duration time.Duration)
	IncCyclesSkipped()
	SetKnownDeals(count int)
}

type Metrics struct {
	fetchesTotal   *prometheus.CounterVec
	fetchDuration  prometheus.Histogram
	listingsTotal  *prometheus.CounterVec
	notifications  *prometheus.CounterVec
	storeWrites    *prometheus.CounterVec
	cycleDuration  prometheus.Histogram
	cyclesSkipped  prometheus.Counter
	knownDealsSize prometheus.Gauge
}

// New registers the collectors on reg. It returns a no-op recorder when
// metrics are disabled.
func New(enabled bool, reg prometheus.Registerer) Recorder {
	if !enabled {
		return Noop{}
	}

	factory := promauto.With(reg)
	return &Metrics{
		fetchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dealwatch_fetches_total",
			Help: "Search page fetches by source and result",
		}, []string{"source", "result"}),

		fetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dealwatch_fetch_duration_seconds",
			Help:    "Duration of search page fetches in seconds",
			Buckets: prometheus.DefBuckets,
		}),

		listingsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dealwatch_listings_total",
			Help: "Listings parsed by source",
		}, []string{"source"}),

		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dealwatch_notifications_total",
			Help: "Notifications produced by kind",
		}, []string{"kind"}),

		storeWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dealwatch_store_writes_total",
			Help: "Known-deals store writes by operation and result",
		}, []string{"op", "result"}),

		cycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dealwatch_cycle_duration_seconds",
			Help:    "Duration of a full check cycle in seconds",
			Buckets: []float64{1, 10, 60, 120, 300, 600, 1800},
		}),

		cyclesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "dealwatch_cycles_skipped_total",
			Help: "Cycles skipped by the run window",
		}),

		knownDealsSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dealwatch_known_deals",
			Help: "Number of tracked deals after the last cycle",
		}),
	}
}

func (m *Metrics) ObserveFetch(source string, duration time.Duration, err error) {
	m.fetchesTotal.WithLabelValues(source, result(err)).Inc()
	m.fetchDuration.Observe(duration.Seconds())
}

func (m *Metrics) AddListings(source string, count int) {
	m.listingsTotal.WithLabelValues(source).Add(float64(count))
}

func (m *Metrics) IncNotifications(kind string) {
	m.notifications.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncStoreWrites(op string, err error) {
	m.storeWrites.WithLabelValues(op, result(err)).Inc()
}

func (m *Metrics) ObserveCycle(duration time.Duration) {
	m.cycleDuration.Observe(duration.Seconds())
}

func (m *Metrics) IncCyclesSkipped() {
	m.cyclesSkipped.Inc()
}

func (m *Metrics) SetKnownDeals(count int) {
	m.knownDealsSize.Set(float64(count))
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Noop discards everything.
type Noop struct{}

func (Noop) ObserveFetch(_ string, _ time.Duration, _ error) {}
func (Noop) AddListings(_ string, _ int)                     {}
func (Noop) IncNotifications(_ string)                       {}
func (Noop) IncStoreWrites(_ string, _ error)                {}
func (Noop) ObserveCycle(_ time.Duration)                    {}
func (Noop) IncCyclesSkipped()                               {}
func (Noop) SetKnownDeals(_ int)                             {}
