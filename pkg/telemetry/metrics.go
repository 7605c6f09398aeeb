package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vitals"

var (
	// ReadingsProcessed counts readings by what the monitor did with them:
	// applied, dropout, stale or duplicate.
	ReadingsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_processed_total",
			Help:      "Readings seen by device monitors, by outcome",
		},
		[]string{"outcome"},
	)

	RowsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_rejected_total",
			Help:      "Backend rows quarantined at the ingestion boundary",
		},
		[]string{"source", "reason"},
	)

	AlertsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_emitted_total",
			Help:      "Alerts emitted by the debounced emitter",
		},
		[]string{"kind"},
	)

	NotificationsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Alert notifications dropped or failed, by notifier",
		},
		[]string{"notifier"},
	)

	SubscriptionReconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscription_reconnects_total",
			Help:      "Push subscription reconnect attempts",
		},
		[]string{"device"},
	)

	HeartbeatRecoveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeat_recoveries_total",
			Help:      "Readings the heartbeat poll found before the push channel delivered them",
		},
		[]string{"device"},
	)

	DeviceConnected = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_connected",
			Help:      "1 while a watched device is inside its liveness window",
		},
		[]string{"device"},
	)

	once sync.Once
)

// InitMetrics registers the collectors with the default registry. Safe to
// call more than once.
func InitMetrics() {
	once.Do(func() {
		for _, c := range []prometheus.Collector{
			ReadingsProcessed,
			RowsRejected,
			AlertsEmitted,
			NotificationsDropped,
			SubscriptionReconnects,
			HeartbeatRecoveries,
			DeviceConnected,
		} {
			_ = prometheus.DefaultRegisterer.Register(c)
		}
	})
}
