package monitoring

import (
	"time"

	"callrelay/internal/core/domain"
	"callrelay/internal/core/ports"
)

// NopCollector discards every observation. Used when monitoring is
// disabled and in tests, where registering on the default Prometheus
// registry twice would panic.
type NopCollector struct{}

func NewNopCollector() *NopCollector { return &NopCollector{} }

func (NopCollector) SessionAdmitted(domain.TransportKind)       {}
func (NopCollector) SessionClosed(domain.TransportKind, string) {}
func (NopCollector) AdmissionRejected(string)                   {}
func (NopCollector) AdmissionDuration(time.Duration)            {}
func (NopCollector) PacketRelayed(domain.PacketKind, int)       {}
func (NopCollector) PacketDropped(string)                       {}
func (NopCollector) BusPublished()                              {}
func (NopCollector) BusReceived()                               {}
func (NopCollector) BusDropped(string)                          {}
func (NopCollector) SetSessions(int)                            {}
func (NopCollector) SetRooms(int)                               {}

var _ ports.Collector = NopCollector{}
