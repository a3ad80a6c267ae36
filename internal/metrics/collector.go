package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncPassesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evcam_sync_passes_total",
		Help: "Total reconciliation passes, by result",
	}, []string{"result"})

	SyncEventsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evcam_sync_events_created_total",
		Help: "Events created by reconciliation, by source",
	}, []string{"source"})

	SyncCameraFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evcam_sync_camera_failures_total",
		Help: "Camera fetches that failed within a pass",
	})

	SyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "evcam_sync_pass_duration_seconds",
		Help:    "Duration of one full reconciliation pass",
		Buckets: prometheus.DefBuckets,
	})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evcam_notifications_total",
		Help: "Notification delivery attempts, by channel and result",
	}, []string{"channel", "result"})

	PushSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "evcam_push_sessions",
		Help: "Currently connected push sessions",
	})

	CamerasOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "evcam_cameras_online",
		Help: "Cameras the health monitor currently sees online",
	})

	HealthChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evcam_camera_health_checks_total",
		Help: "Camera health probes, by result",
	}, []string{"result"})

	RetentionDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evcam_retention_events_deleted_total",
		Help: "Soft-deleted events hard-deleted by retention cleanup",
	})
)
