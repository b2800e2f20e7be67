package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "port42_http_requests_total",
		Help: "HTTP requests by route, method and status.",
	}, []string{"route", "method", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "port42_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	VotesApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "port42_votes_applied_total",
		Help: "Votes applied by entity type and choice.",
	}, []string{"entity_type", "choice"})

	CommentsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "port42_comments_created_total",
		Help: "Comments created.",
	})

	CommentsDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "port42_comments_deleted_total",
		Help: "Comments soft-deleted.",
	})

	RealtimeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "port42_realtime_connections",
		Help: "Open realtime connections.",
	})

	RealtimeDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "port42_realtime_events_delivered_total",
		Help: "Realtime events queued to connections.",
	}, []string{"event"})

	RealtimeDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "port42_realtime_events_dropped_total",
		Help: "Realtime events dropped because a connection queue was full.",
	})

	RankingUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "port42_ranking_updates_total",
		Help: "Resources whose hot score was recomputed.",
	})
)
