// Package metrics holds the Prometheus collectors of the scoring service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scoreboard"

type Metrics struct {
	registry *prometheus.Registry

	gamesFinished  prometheus.Counter
	scoreUpdates   *prometheus.CounterVec
	grants         *prometheus.CounterVec
	outOfStock     *prometheus.CounterVec
	inventory      *prometheus.GaugeVec
	rewardFailures prometheus.Counter
	rpcDuration    *prometheus.HistogramVec
}

// New registers every collector on a private registry, so tests can build
// as many instances as they like.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		gamesFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_finished_total",
			Help:      "Finished games recorded into score totals.",
		}),
		scoreUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "score_updates_total",
			Help:      "In-progress score updates by result.",
		}, []string{"result"}),
		grants: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reward_grants_total",
			Help:      "Promocodes granted per tier.",
		}, []string{"tier"}),
		outOfStock: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reward_out_of_stock_total",
			Help:      "Eligible grants skipped because the tier inventory was empty.",
		}, []string{"tier"}),
		inventory: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inventory_available_codes",
			Help:      "Unassigned promocodes per tier at the last inventory read.",
		}, []string{"tier"}),
		rewardFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reward_failures_total",
			Help:      "Reward evaluations that failed and were swallowed.",
		}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_duration_seconds",
			Help:      "gRPC handler latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "code"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.gamesFinished,
		m.scoreUpdates,
		m.grants,
		m.outOfStock,
		m.inventory,
		m.rewardFailures,
		m.rpcDuration,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) GameFinished() {
	m.gamesFinished.Inc()
}

// ScoreUpdate counts one update as "accepted", "rejected" or "throttled".
func (m *Metrics) ScoreUpdate(result string) {
	m.scoreUpdates.WithLabelValues(result).Inc()
}

func (m *Metrics) GrantAllocated(tierId string) {
	m.grants.WithLabelValues(tierId).Inc()
}

func (m *Metrics) OutOfStock(tierId string) {
	m.outOfStock.WithLabelValues(tierId).Inc()
}

func (m *Metrics) InventoryAvailable(tierId string, n int64) {
	m.inventory.WithLabelValues(tierId).Set(float64(n))
}

func (m *Metrics) RewardFailure() {
	m.rewardFailures.Inc()
}

func (m *Metrics) ObserveRPC(method, code string, elapsed time.Duration) {
	m.rpcDuration.WithLabelValues(method, code).Observe(elapsed.Seconds())
}
