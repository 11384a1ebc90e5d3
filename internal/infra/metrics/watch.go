package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(reconcileSnapshotsTotal, notificationsEmittedTotal)
}

var reconcileSnapshotsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "reconcile_snapshots_total",
		Help: "List reconciliation fetches by the cadence they scheduled next (active/idle/error).",
	},
	[]string{"cadence"},
)

var notificationsEmittedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notifications_emitted_total",
		Help: "User notifications emitted, by kind (started/completed/ended).",
	},
	[]string{"kind"},
)

func IncSnapshot(cadence string) {
	reconcileSnapshotsTotal.WithLabelValues(norm(cadence)).Inc()
}

func IncNotification(kind string) {
	notificationsEmittedTotal.WithLabelValues(norm(kind)).Inc()
}
