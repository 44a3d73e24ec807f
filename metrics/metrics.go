// Package metrics exposes Prometheus collectors for the terminal. All
// helper methods are safe to call on a nil *Metrics, so components can
// run without instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "levterm"

// Metrics holds all Prometheus collectors of the terminal.
type Metrics struct {
	TicksTotal     prometheus.Counter
	StaleDiscarded prometheus.Counter
	FeedFallbacks  *prometheus.CounterVec // labels: op=series|latest
	MergeDur       prometheus.Histogram

	TradesTotal   *prometheus.CounterVec // labels: kind
	RejectedTotal *prometheus.CounterVec // labels: reason
	ForcedExits   *prometheus.CounterVec // labels: kind
	JournalErrors prometheus.Counter

	Cash          prometheus.Gauge
	MarginInUse   prometheus.Gauge
	UnrealizedPnL prometheus.Gauge
	Equity        prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg
// leaves them unregistered, which is convenient in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Price points merged into the active series",
		}),
		StaleDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_discarded_total",
			Help:      "Fetch results, stream points and signals dropped because the symbol changed",
		}),
		FeedFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_fallbacks_total",
			Help:      "Upstream fetches answered by the synthetic generator",
		}, []string{"op"}),
		MergeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "series_merge_seconds",
			Help:      "Time spent merging a point and recomputing indicators",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
		}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Executed trades by kind",
		}, []string{"kind"}),
		RejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_orders_total",
			Help:      "Rejected trade requests by reason",
		}, []string{"reason"}),
		ForcedExits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forced_exits_total",
			Help:      "Liquidations, stop losses and take profits",
		}, []string{"kind"}),
		JournalErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "journal_errors_total",
			Help:      "Failed journal writes",
		}),
		Cash: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "account_cash",
			Help:      "Uncommitted cash balance",
		}),
		MarginInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "account_margin_in_use",
			Help:      "Margin reserved against the open position",
		}),
		UnrealizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "account_unrealized_pnl",
			Help:      "Mark-to-market PnL of the open position",
		}),
		Equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "account_equity",
			Help:      "cash + margin in use + unrealized PnL",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.TicksTotal,
			m.StaleDiscarded,
			m.FeedFallbacks,
			m.MergeDur,
			m.TradesTotal,
			m.RejectedTotal,
			m.ForcedExits,
			m.JournalErrors,
			m.Cash,
			m.MarginInUse,
			m.UnrealizedPnL,
			m.Equity,
		)
	}
	return m
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) Tick() {
	if m == nil {
		return
	}
	m.TicksTotal.Inc()
}

func (m *Metrics) StaleDiscard() {
	if m == nil {
		return
	}
	m.StaleDiscarded.Inc()
}

func (m *Metrics) Fallback(op string) {
	if m == nil {
		return
	}
	m.FeedFallbacks.WithLabelValues(op).Inc()
}

func (m *Metrics) ObserveMerge(d time.Duration) {
	if m == nil {
		return
	}
	m.MergeDur.Observe(d.Seconds())
}

func (m *Metrics) Trade(kind string) {
	if m == nil {
		return
	}
	m.TradesTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) Rejected(reason string) {
	if m == nil {
		return
	}
	m.RejectedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) ForcedExit(kind string) {
	if m == nil {
		return
	}
	m.ForcedExits.WithLabelValues(kind).Inc()
}

func (m *Metrics) JournalError() {
	if m == nil {
		return
	}
	m.JournalErrors.Inc()
}

// ObserveAccount sets the account gauges.
func (m *Metrics) ObserveAccount(cash, margin, upnl, equity float64) {
	if m == nil {
		return
	}
	m.Cash.Set(cash)
	m.MarginInUse.Set(margin)
	m.UnrealizedPnL.Set(upnl)
	m.Equity.Set(equity)
}
