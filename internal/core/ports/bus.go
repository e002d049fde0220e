package ports

import (
	"context"

	"callrelay/internal/core/domain"
)

// BusHandler consumes packets arriving from other instances. origin is
// the publishing instance's ID so the relay can discard its own
// deliveries.
type BusHandler func(origin string, p *domain.Packet)

// Bus fans packets out between relay instances, one subject per room.
// Implementations deliver best-effort: a slow or partitioned bus drops
// traffic rather than stalling local fanout.
type Bus interface {
	// Publish sends a packet to the room's subject. Never blocks the
	// caller; over-full publish queues drop.
	Publish(ctx context.Context, room domain.RoomID, p *domain.Packet) error

	// Subscribe starts delivery for a room's subject. Idempotent.
	Subscribe(ctx context.Context, room domain.RoomID) error

	// Unsubscribe stops delivery for a room's subject. Idempotent.
	Unsubscribe(ctx context.Context, room domain.RoomID) error

	// SetHandler installs the packet consumer. Must be called before
	// the first Subscribe.
	SetHandler(h BusHandler)

	// Events publishes an out-of-band diagnostics payload.
	Events(ctx context.Context, payload []byte) error

	// Ping checks bus reachability for readiness probes.
	Ping(ctx context.Context) error

	Close() error
}
