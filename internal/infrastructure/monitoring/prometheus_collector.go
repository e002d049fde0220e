package monitoring

import (
	"time"

	"callrelay/internal/core/domain"
	"callrelay/internal/core/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector exports relay activity under the callrelay_ prefix.
// It registers on the default registry, so construct it once per process.
type PrometheusCollector struct {
	sessionsActive prometheus.Gauge
	roomsActive    prometheus.Gauge

	sessionsAdmitted   *prometheus.CounterVec
	sessionsClosed     *prometheus.CounterVec
	admissionsRejected *prometheus.CounterVec
	admissionDuration  prometheus.Histogram

	packetsRelayed *prometheus.CounterVec
	packetBytes    *prometheus.CounterVec
	packetsDropped *prometheus.CounterVec

	busPublished prometheus.Counter
	busReceived  prometheus.Counter
	busDropped   *prometheus.CounterVec
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		sessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "callrelay_sessions_active",
			Help: "Number of sessions currently connected to this instance",
		}),

		roomsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "callrelay_rooms_active",
			Help: "Number of rooms with at least one local member",
		}),

		sessionsAdmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "callrelay_sessions_admitted_total",
			Help: "Admitted sessions by transport",
		}, []string{"transport"}),

		sessionsClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "callrelay_sessions_closed_total",
			Help: "Closed sessions by transport and reason",
		}, []string{"transport", "reason"}),

		admissionsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "callrelay_admissions_rejected_total",
			Help: "Rejected admission attempts by reason",
		}, []string{"reason"}),

		admissionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "callrelay_admission_duration_seconds",
			Help:    "Time from upgrade to registered session",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),

		packetsRelayed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "callrelay_packets_relayed_total",
			Help: "Packets accepted for relay by kind",
		}, []string{"kind"}),

		packetBytes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "callrelay_packet_bytes_total",
			Help: "Payload bytes accepted for relay by kind",
		}, []string{"kind"}),

		packetsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "callrelay_packets_dropped_total",
			Help: "Packets dropped on delivery by reason",
		}, []string{"reason"}),

		busPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "callrelay_bus_published_total",
			Help: "Packets published to the bus",
		}),

		busReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "callrelay_bus_received_total",
			Help: "Packets received from the bus, own echoes excluded",
		}),

		busDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "callrelay_bus_dropped_total",
			Help: "Bus publish failures by reason",
		}, []string{"reason"}),
	}
}

func (p *PrometheusCollector) SessionAdmitted(transport domain.TransportKind) {
	p.sessionsAdmitted.WithLabelValues(string(transport)).Inc()
}

func (p *PrometheusCollector) SessionClosed(transport domain.TransportKind, reason string) {
	p.sessionsClosed.WithLabelValues(string(transport), reason).Inc()
}

func (p *PrometheusCollector) AdmissionRejected(reason string) {
	p.admissionsRejected.WithLabelValues(reason).Inc()
}

func (p *PrometheusCollector) AdmissionDuration(d time.Duration) {
	p.admissionDuration.Observe(d.Seconds())
}

func (p *PrometheusCollector) PacketRelayed(kind domain.PacketKind, bytes int) {
	p.packetsRelayed.WithLabelValues(kind.String()).Inc()
	p.packetBytes.WithLabelValues(kind.String()).Add(float64(bytes))
}

func (p *PrometheusCollector) PacketDropped(reason string) {
	p.packetsDropped.WithLabelValues(reason).Inc()
}

func (p *PrometheusCollector) BusPublished() {
	p.busPublished.Inc()
}

func (p *PrometheusCollector) BusReceived() {
	p.busReceived.Inc()
}

func (p *PrometheusCollector) BusDropped(reason string) {
	p.busDropped.WithLabelValues(reason).Inc()
}

func (p *PrometheusCollector) SetSessions(n int) {
	p.sessionsActive.Set(float64(n))
}

func (p *PrometheusCollector) SetRooms(n int) {
	p.roomsActive.Set(float64(n))
}

var _ ports.Collector = (*PrometheusCollector)(nil)
