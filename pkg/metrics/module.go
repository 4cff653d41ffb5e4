package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FramesRendered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quipcast_frames_rendered_total",
		Help: "Frames drawn by the render loop.",
	})

	ChunksSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quipcast_capture_chunks_sent_total",
		Help: "Capture chunks handed to the relay transport.",
	})

	ChunksDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quipcast_capture_chunks_dropped_total",
		Help: "Capture chunks dropped because the transport was congested.",
	})

	RelayChunks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quipcast_relay_chunks_total",
		Help: "Capture chunks forwarded to the encoder.",
	})

	RelayBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quipcast_relay_bytes_total",
		Help: "Capture bytes forwarded to the encoder.",
	})

	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quipcast_statesync_reconnects_total",
		Help: "Reconnect attempts scheduled by the state sync client.",
	})

	SessionResets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quipcast_statesync_resets_total",
		Help: "Sessions discarded because the server protocol version changed.",
	})

	Viewers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quipcast_hub_viewers",
		Help: "Viewers currently connected to the hub.",
	})

	ArchivedRounds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quipcast_history_rounds_archived_total",
		Help: "Completed rounds appended to the history archive.",
	})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
