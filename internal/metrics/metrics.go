package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "waitline"

var (
	once sync.Once

	broadcasts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Count of snapshot broadcasts by trigger and result.",
		},
		[]string{"trigger", "result"},
	)

	sendFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_send_failures_total",
			Help:      "Count of per-connection send failures that dropped a subscriber.",
		},
		[]string{"reason"},
	)

	snapshotBuild = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snapshot_build_duration_seconds",
			Help:      "Time to load state and build a queue display snapshot.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	connections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Live subscriber connections across all businesses.",
		},
	)

	refreshSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_ticks_skipped_total",
			Help:      "Periodic refresh ticks skipped because the previous pass was still running.",
		},
	)

	notifyDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Change notifications dropped because the work queue was full.",
		},
	)

	mutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Count of committed queue and appointment mutations by kind.",
		},
		[]string{"kind"},
	)

	appointmentsFlagged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointments_flagged_total",
			Help:      "Appointments flagged for review after availability shrank.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Count of HTTP API requests by route.",
		},
		[]string{"route"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			broadcasts,
			sendFailures,
			snapshotBuild,
			connections,
			refreshSkipped,
			notifyDropped,
			mutations,
			appointmentsFlagged,
			httpRequests,
		)
	})
}

func IncBroadcast(trigger, result string) {
	broadcasts.WithLabelValues(trigger, result).Inc()
}

func IncSendFailure(reason string) {
	sendFailures.WithLabelValues(reason).Inc()
}

func ObserveSnapshotBuild(d time.Duration) {
	snapshotBuild.Observe(d.Seconds())
}

func SetConnections(n int) {
	connections.Set(float64(n))
}

func IncRefreshSkipped() {
	refreshSkipped.Inc()
}

func IncNotifyDropped() {
	notifyDropped.Inc()
}

func IncMutation(kind string) {
	mutations.WithLabelValues(kind).Inc()
}

func AddAppointmentsFlagged(n int) {
	appointmentsFlagged.Add(float64(n))
}

func IncHTTP(route string) {
	httpRequests.WithLabelValues(route).Inc()
}
