package ports

import (
	"context"
	"time"

	"callrelay/internal/core/domain"
)

// AdmissionService validates join tokens and produces the claim a
// session is built from.
type AdmissionService interface {
	// Validate checks a token against the signing key and clock and
	// returns the embedded claim. Failures map onto the admission
	// error taxonomy: malformed, expired, bad signature, or not
	// authorized for the room.
	Validate(token string, now time.Time) (*domain.AdmissionClaim, error)

	// ValidateForRoom additionally requires the claim to match the
	// identity and room named in a legacy join path.
	ValidateForRoom(token, identity string, room domain.RoomID, now time.Time) (*domain.AdmissionClaim, error)

	// Mint signs a fresh token for the given claim. Used by tooling,
	// never on the relay hot path.
	Mint(claim *domain.AdmissionClaim) (string, error)
}

// RelayService owns the session lifecycle and packet fanout.
type RelayService interface {
	// Admit registers a validated claim as a live session on the given
	// transport and wires the room's bus subscription if it is the
	// first local member.
	Admit(ctx context.Context, claim *domain.AdmissionClaim, transport domain.TransportKind) (*domain.Session, error)

	// Route takes one inbound packet from a transport, stamps its
	// sequence, and delivers it to every other member of the room,
	// locally and over the bus. RTT probes are echoed to the sender
	// instead.
	Route(ctx context.Context, sess *domain.Session, kind domain.PacketKind, payload []byte)

	// HandleFromBus delivers a packet that arrived over the inter-node
	// bus. Packets originating from this instance are discarded.
	HandleFromBus(origin string, p *domain.Packet)

	// Teardown removes a session and broadcasts its departure. Safe to
	// call from multiple paths; only the first caller wins.
	Teardown(ctx context.Context, id domain.SessionID, reason string)

	Stats(ctx context.Context) *domain.RelayStats
}

// Collector receives relay telemetry. Implementations must be safe for
// concurrent use from transport goroutines.
type Collector interface {
	SessionAdmitted(transport domain.TransportKind)
	SessionClosed(transport domain.TransportKind, reason string)
	AdmissionRejected(reason string)
	AdmissionDuration(d time.Duration)
	PacketRelayed(kind domain.PacketKind, bytes int)
	PacketDropped(reason string)
	BusPublished()
	BusReceived()
	BusDropped(reason string)
	SetSessions(n int)
	SetRooms(n int)
}

// EventEmitter publishes lifecycle diagnostics off the hot path.
type EventEmitter interface {
	SessionAdmitted(sess *domain.Session)
	SessionClosed(sess *domain.Session, reason string)
}
