package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cw",
		Name:      "cycles_total",
		Help:      "Recognition cycles applied, by outcome (ok, degraded, discarded)",
	}, []string{"zone_id", "outcome"})

	CyclesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cw",
		Name:      "cycles_skipped_total",
		Help:      "Scheduled firings dropped because the previous cycle was still running",
	}, []string{"zone_id"})

	FacesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cw",
		Name:      "faces_detected_total",
		Help:      "Total number of faces detected",
	}, []string{"zone_id"})

	FacesMatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cw",
		Name:      "faces_matched_total",
		Help:      "Faces accepted as an enrolled identity",
	}, []string{"zone_id"})

	UnauthorizedMatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cw",
		Name:      "unauthorized_matches_total",
		Help:      "Accepted matches against identities without authorization",
	}, []string{"zone_id"})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cw",
		Name:      "inference_duration_seconds",
		Help:      "Duration of recognition stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	AlertsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cw",
		Name:      "alerts_emitted_total",
		Help:      "Alert deliveries per sink and status",
	}, []string{"sink", "status"})

	EnrolledEmbeddings = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "cw",
		Name:      "enrolled_embeddings",
		Help:      "Number of embeddings in the enrollment store",
	})

	ActiveMonitors = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "cw",
		Name:      "active_monitors",
		Help:      "Number of running surveillance loops",
	})

	FramesCaptured = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cw",
		Name:      "frames_captured_total",
		Help:      "Frames read from capture devices",
	}, []string{"camera_id"})

	CaptureRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cw",
		Name:      "capture_restarts_total",
		Help:      "Times a capture process was restarted after failing",
	}, []string{"camera_id"})

	AlertsPersisted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cw",
		Name:      "alerts_persisted_total",
		Help:      "Alerts written to the security log by the worker, by status",
	}, []string{"status"})

	AlertBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "cw",
		Name:      "alert_backlog",
		Help:      "Alerts retained in the ALERTS stream",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cw",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "cw",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
