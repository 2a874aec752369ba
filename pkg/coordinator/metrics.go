package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metrics = struct {
	Waiting        prometheus.Gauge
	Inspecting     prometheus.Gauge
	Moderators     prometheus.Gauge
	RelayedPackets prometheus.Counter
	DroppedRelays  prometheus.Counter
}{
	Waiting: promauto.NewGauge(prometheus.GaugeOpts{
		Name: "greenroom_participants_waiting",
		Help: "Participants currently in the waiting queue.",
	}),
	Inspecting: promauto.NewGauge(prometheus.GaugeOpts{
		Name: "greenroom_participants_inspecting",
		Help: "Participants currently under inspection.",
	}),
	Moderators: promauto.NewGauge(prometheus.GaugeOpts{
		Name: "greenroom_moderators_connected",
		Help: "Connected moderator observers.",
	}),
	RelayedPackets: promauto.NewCounter(prometheus.CounterOpts{
		Name: "greenroom_relay_packets_total",
		Help: "Addressed payloads forwarded between peers.",
	}),
	DroppedRelays: promauto.NewCounter(prometheus.CounterOpts{
		Name: "greenroom_relay_drops_total",
		Help: "Addressed payloads dropped for disconnected targets.",
	}),
}
