// monitor/monitor.go
package monitor

import (
	"expvar"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	OnlinePlayers        prometheus.Gauge
	ActiveSessions       prometheus.Gauge
	MessagesReceived     prometheus.Counter
	GuessesSubmitted     prometheus.Counter
	GamesCompleted       prometheus.Counter
	TicketsSold          prometheus.Counter
	TransactionsRouted   *prometheus.CounterVec
	TransactionFailures  *prometheus.CounterVec
	DuplicateResolutions prometheus.Counter
	SettlementRuns       *prometheus.CounterVec
	PrizesClaimed        prometheus.Counter
	RouteLatency         *prometheus.HistogramVec
}

func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		OnlinePlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_players",
			Help:      "Number of connected players",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of sessions with a game in progress",
		}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of gateway messages received",
		}),
		GuessesSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guesses_submitted_total",
			Help:      "Total number of guesses submitted",
		}),
		GamesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_completed_total",
			Help:      "Total number of games completed",
		}),
		TicketsSold: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tickets_sold_total",
			Help:      "Total number of tickets sold",
		}),
		TransactionsRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_routed_total",
			Help:      "Transactions routed, by operation and layer",
		}, []string{"op", "layer"}),
		TransactionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transaction_failures_total",
			Help:      "Routed transactions that failed, by operation",
		}, []string{"op"}),
		DuplicateResolutions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_resolutions_total",
			Help:      "Ambiguous duplicate submissions resolved by state polling",
		}),
		SettlementRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_runs_total",
			Help:      "Settlement runs, by period type and outcome",
		}, []string{"period_type", "outcome"}),
		PrizesClaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prizes_claimed_total",
			Help:      "Total number of prizes claimed",
		}),
		RouteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "route_latency_seconds",
			Help:      "End-to-end latency of routed transactions",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"layer"}),
	}

	prometheus.MustRegister(
		m.OnlinePlayers,
		m.ActiveSessions,
		m.MessagesReceived,
		m.GuessesSubmitted,
		m.GamesCompleted,
		m.TicketsSold,
		m.TransactionsRouted,
		m.TransactionFailures,
		m.DuplicateResolutions,
		m.SettlementRuns,
		m.PrizesClaimed,
		m.RouteLatency,
	)

	return m
}

type Monitor struct {
	metrics      *Metrics
	startTime    time.Time
	requestCount int64
	mutex        sync.Mutex
}

func NewMonitor(namespace string) *Monitor {
	return &Monitor{
		metrics:   NewMetrics(namespace),
		startTime: time.Now(),
	}
}

func (m *Monitor) StartServer(addr string) {
	http.Handle("/metrics", promhttp.Handler())

	expvar.Publish("uptime", expvar.Func(func() interface{} {
		return time.Since(m.startTime).Seconds()
	}))

	expvar.Publish("requests", expvar.Func(func() interface{} {
		m.mutex.Lock()
		defer m.mutex.Unlock()
		return m.requestCount
	}))

	go http.ListenAndServe(addr, nil)
}

func (m *Monitor) IncOnlinePlayers() {
	m.metrics.OnlinePlayers.Inc()
}

func (m *Monitor) DecOnlinePlayers() {
	m.metrics.OnlinePlayers.Dec()
}

func (m *Monitor) SetActiveSessions(count int) {
	m.metrics.ActiveSessions.Set(float64(count))
}

func (m *Monitor) IncMessagesReceived() {
	m.metrics.MessagesReceived.Inc()
	m.mutex.Lock()
	m.requestCount++
	m.mutex.Unlock()
}

func (m *Monitor) IncGuessesSubmitted() {
	m.metrics.GuessesSubmitted.Inc()
}

func (m *Monitor) IncGamesCompleted() {
	m.metrics.GamesCompleted.Inc()
}

func (m *Monitor) IncTicketsSold() {
	m.metrics.TicketsSold.Inc()
}

func (m *Monitor) IncTransactionsRouted(op, layer string) {
	m.metrics.TransactionsRouted.WithLabelValues(op, layer).Inc()
}

func (m *Monitor) IncTransactionFailures(op string) {
	m.metrics.TransactionFailures.WithLabelValues(op).Inc()
}

func (m *Monitor) IncDuplicateResolutions() {
	m.metrics.DuplicateResolutions.Inc()
}

func (m *Monitor) IncSettlementRuns(periodType, outcome string) {
	m.metrics.SettlementRuns.WithLabelValues(periodType, outcome).Inc()
}

func (m *Monitor) IncPrizesClaimed() {
	m.metrics.PrizesClaimed.Inc()
}

func (m *Monitor) ObserveRouteLatency(layer string, duration time.Duration) {
	m.metrics.RouteLatency.WithLabelValues(layer).Observe(duration.Seconds())
}
