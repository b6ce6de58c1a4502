package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector implements services.Metrics on top of a
// prometheus registry.
type PrometheusCollector struct {
	roomsActive      prometheus.Gauge
	roomsOpenedTotal prometheus.Counter
	peersConnected   prometheus.Gauge
	peersJoinedTotal prometheus.Counter
	joinDuration     prometheus.Histogram

	recordingsActive    prometheus.Gauge
	recordingsTotal     prometheus.Counter
	recordingBytesTotal prometheus.Counter
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		roomsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "roomrelay_rooms_active",
			Help: "Number of currently active rooms",
		}),

		roomsOpenedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roomrelay_rooms_opened_total",
			Help: "Total number of rooms opened",
		}),

		peersConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "roomrelay_peers_connected",
			Help: "Number of peers currently in rooms",
		}),

		peersJoinedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roomrelay_peers_joined_total",
			Help: "Total number of peer joins",
		}),

		joinDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "roomrelay_join_duration_seconds",
			Help:    "Duration of the join operation",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),

		recordingsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "roomrelay_recordings_active",
			Help: "Number of recording sessions currently running",
		}),

		recordingsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roomrelay_recordings_total",
			Help: "Total number of recording sessions started",
		}),

		recordingBytesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roomrelay_recording_bytes_total",
			Help: "Total bytes of finalized recording artifacts",
		}),
	}
}

func (p *PrometheusCollector) RoomOpened() {
	p.roomsActive.Inc()
	p.roomsOpenedTotal.Inc()
}

func (p *PrometheusCollector) RoomClosed() {
	p.roomsActive.Dec()
}

func (p *PrometheusCollector) PeerJoined() {
	p.peersConnected.Inc()
	p.peersJoinedTotal.Inc()
}

func (p *PrometheusCollector) PeerLeft() {
	p.peersConnected.Dec()
}

func (p *PrometheusCollector) ObserveJoin(d time.Duration) {
	p.joinDuration.Observe(d.Seconds())
}

func (p *PrometheusCollector) RecordingStarted() {
	p.recordingsActive.Inc()
	p.recordingsTotal.Inc()
}

func (p *PrometheusCollector) RecordingStopped() {
	p.recordingsActive.Dec()
}

func (p *PrometheusCollector) RecordingBytes(n int64) {
	p.recordingBytesTotal.Add(float64(n))
}
