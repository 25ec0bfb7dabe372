// Package metrics exposes the prometheus collectors shared by the pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "events_total", Help: "Normalized stream events applied to market state"},
		[]string{"symbol", "kind"},
	)
	EventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "events_dropped_total", Help: "Buffered events evicted to keep delivery fresh"},
		[]string{"symbol"},
	)
	MalformedMessages = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "malformed_messages_total", Help: "Stream messages that could not be normalized"},
	)
	Reconnects = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "ws_reconnects_total", Help: "Websocket reconnect attempts"},
	)
	Connected = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "ws_connected", Help: "1 while the market stream is connected"},
	)
	SignalsScored = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_scored_total", Help: "Candidates scored by tier"},
		[]string{"asset", "tier"},
	)
	SignalsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_rejected_total", Help: "Signals rejected by gate reason"},
		[]string{"asset", "reason"},
	)
	TradesOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "trades_open", Help: "Trades currently tracked by the lifecycle monitor"},
	)
	TradeAlerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trade_alerts_total", Help: "Lifecycle alerts fired"},
		[]string{"asset", "kind"},
	)
	TradesClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trades_closed_total", Help: "Trades closed by result"},
		[]string{"asset", "result"},
	)
	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "notifications_total", Help: "Notifications sent by kind"},
		[]string{"kind"},
	)
	MonitorCycle = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "monitor_cycle_seconds", Help: "Lifecycle monitor cycle duration", Buckets: prometheus.DefBuckets},
	)
)

func init() {
	prometheus.MustRegister(
		EventsTotal, EventsDropped, MalformedMessages, Reconnects, Connected,
		SignalsScored, SignalsRejected, TradesOpen, TradeAlerts, TradesClosed, Notifications, MonitorCycle,
	)
}

// Serve exposes /metrics on addr in a background goroutine.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
