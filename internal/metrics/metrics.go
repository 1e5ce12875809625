package metrics

import (
	"sync"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "neon",
		Name:      "ws_active_connections",
		Help:      "Active websocket connections",
	})
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "neon",
		Name:      "online_users",
		Help:      "Users with at least one authenticated connection",
	})
	ActiveCalls = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "neon",
		Name:      "active_calls",
		Help:      "Calls not yet ended",
	})
	EventsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "neon",
		Name:      "ws_events_received_total",
		Help:      "Inbound websocket events by name",
	}, []string{"event"})
	AcksFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "neon",
		Name:      "ws_acks_failed_total",
		Help:      "Acknowledgments replied with success false, by event",
	}, []string{"event"})
	MessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "neon",
		Name:      "messages_sent_total",
		Help:      "Messages confirmed by the server",
	})
	CallsEnded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "neon",
		Name:      "calls_ended_total",
		Help:      "Ended calls by end reason",
	}, []string{"reason"})
	EventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "neon",
		Name:      "ws_events_rate_limited_total",
		Help:      "Inbound events dropped by the per-connection limiter",
	})
)

var once sync.Once

// Init registers every collector with the default registry
func Init() {
	once.Do(func() {
		prometheus.MustRegister(Connections, OnlineUsers, ActiveCalls, EventsReceived,
			AcksFailed, MessagesSent, CallsEnded, EventsDropped)
	})
}

// Handler returns the scrape endpoint as a hertz handler
func Handler() app.HandlerFunc {
	return adaptor.HertzHandler(promhttp.Handler())
}
