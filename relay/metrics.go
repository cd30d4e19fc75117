package relay

import "github.com/prometheus/client_golang/prometheus"

type relayMetrics struct {
	connections prometheus.Gauge
	frames      *prometheus.CounterVec
}

func newRelayMetrics(reg prometheus.Registerer) *relayMetrics {
	m := &relayMetrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kanban",
			Subsystem: "relay",
			Name:      "connections",
			Help:      "Open websocket connections.",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kanban",
			Subsystem: "relay",
			Name:      "frames_total",
			Help:      "Frames handled by the relay, by event and outcome.",
		}, []string{"event", "outcome"}),
	}
	reg.MustRegister(m.connections, m.frames)
	return m
}

func (m *relayMetrics) frame(event, outcome string) {
	m.frames.WithLabelValues(event, outcome).Inc()
}
