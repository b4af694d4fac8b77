package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dispatch"

var (
	MatchPasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "match_passes_total", Help: "Matching passes by outcome",
	}, []string{"outcome"})
	MatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Name: "match_latency_seconds", Help: "Matching pass latency", Buckets: prometheus.DefBuckets,
	})
	MatchRadiusKm = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Name: "match_radius_km", Help: "Radius at which candidates were found", Buckets: []float64{2, 4, 6},
	})

	RideTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "ride_transitions_total", Help: "Ride state transitions by target status",
	}, []string{"status"})
	BookingTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "booking_transitions_total", Help: "Booking state transitions by target status",
	}, []string{"status"})
	SeatsReserved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "route_seats_reserved_total", Help: "Seats reserved on fixed routes",
	})
	SeatsReleased = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Name: "route_seats_released_total", Help: "Seats released on fixed routes",
	})
	Expired = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "expired_total", Help: "Records expired by the sweeper",
	}, []string{"kind"})

	SideChannelFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "side_channel_failures_total", Help: "Best-effort notification and publish failures",
	}, []string{"channel"})
	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Name: "websocket_clients", Help: "Connected realtime clients",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
