package bus

import (
	"fmt"
	"strings"

	"callrelay/internal/core/domain"

	"github.com/fxamacker/cbor/v2"
)

// envelope is the cross-instance wire form of a packet. Deterministic
// encoding keeps identical packets byte-identical regardless of which
// instance published them.
type envelope struct {
	Origin   string `cbor:"origin"`
	Sender   string `cbor:"sender"`
	Identity string `cbor:"identity"`
	Room     string `cbor:"room"`
	Kind     uint8  `cbor:"kind"`
	Sequence uint64 `cbor:"seq"`
	Payload  []byte `cbor:"payload"`
}

var encMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

func encodeEnvelope(origin string, p *domain.Packet) ([]byte, error) {
	return encMode.Marshal(envelope{
		Origin:   origin,
		Sender:   string(p.Sender),
		Identity: p.Identity,
		Room:     string(p.RoomID),
		Kind:     uint8(p.Kind),
		Sequence: p.Sequence,
		Payload:  p.Payload,
	})
}

func decodeEnvelope(raw []byte) (string, *domain.Packet, error) {
	var env envelope
	if err := cbor.Unmarshal(raw, &env); err != nil {
		return "", nil, fmt.Errorf("failed to decode bus envelope: %w", err)
	}

	kind := domain.PacketKind(env.Kind)
	if !kind.Valid() {
		return "", nil, fmt.Errorf("bus envelope carries unknown packet kind 0x%02x", env.Kind)
	}
	if env.Origin == "" || env.Room == "" {
		return "", nil, fmt.Errorf("bus envelope missing origin or room")
	}

	return env.Origin, &domain.Packet{
		Sender:   domain.SessionID(env.Sender),
		Identity: env.Identity,
		RoomID:   domain.RoomID(env.Room),
		Kind:     kind,
		Sequence: env.Sequence,
		Payload:  env.Payload,
	}, nil
}

// subjectFor derives the bus subject for a room. Spaces are sanitized so
// every instance computes the same subject for the same room.
func subjectFor(namespace string, room domain.RoomID) string {
	return namespace + "." + strings.ReplaceAll(string(room), " ", "_")
}

// diagnosticsSubject is where advisory instance events go, keyed by
// instance so consumers can tail a single relay.
func diagnosticsSubject(namespace, instanceID string) string {
	return namespace + ".diagnostics." + instanceID
}
