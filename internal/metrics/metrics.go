package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "battle_active_connections",
		Help: "Currently open websocket connections.",
	})
	FramesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "battle_inbound_frames_total",
		Help: "Inbound websocket frames processed.",
	})
	DroppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "battle_dropped_frames_total",
		Help: "Outbound frames dropped because a client outbox was full.",
	})
	BattlesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "battle_completed_total",
		Help: "Battles that reached the completed state.",
	})
)

// Handler exposes Prometheus metrics at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
