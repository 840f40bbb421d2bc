package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce       sync.Once
	httpRequestsTotal  *prometheus.CounterVec
	httpLatencySeconds *prometheus.HistogramVec
	httpErrorsTotal    *prometheus.CounterVec
	wsConnections      prometheus.Gauge
	chatMessagesSent   *prometheus.CounterVec
	roomJoinsTotal     prometheus.Counter
	tokensMintedTotal  *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors for the live API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "live_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "live_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "live_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		wsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "live_ws_connections",
			Help: "Number of websocket connections currently subscribed to rooms.",
		})

		chatMessagesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "live_chat_messages_sent_total",
			Help: "Total number of chat messages persisted and broadcast.",
		}, []string{"type"})

		roomJoinsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "live_room_joins_total",
			Help: "Total number of accepted room join operations.",
		})

		tokensMintedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "live_tokens_minted_total",
			Help: "Total number of RTC/RTM credentials minted.",
		}, []string{"kind"})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			wsConnections,
			chatMessagesSent,
			roomJoinsTotal,
			tokensMintedTotal,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// WsConnections exposes the gauge of live websocket subscriptions.
func WsConnections() prometheus.Gauge {
	RegisterMetrics()
	return wsConnections
}

// ChatMessagesSent exposes the counter of persisted chat messages by type.
func ChatMessagesSent() *prometheus.CounterVec {
	RegisterMetrics()
	return chatMessagesSent
}

// RoomJoins exposes the counter of accepted joins.
func RoomJoins() prometheus.Counter {
	RegisterMetrics()
	return roomJoinsTotal
}

// TokensMinted exposes the counter of minted credentials by kind.
func TokensMinted() *prometheus.CounterVec {
	RegisterMetrics()
	return tokensMintedTotal
}
