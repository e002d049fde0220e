package domain

import (
	"bytes"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// PacketKind tags the first byte of every frame on the wire.
type PacketKind byte

const (
	KindUnknown   PacketKind = 0
	KindMedia     PacketKind = 1
	KindControl   PacketKind = 2
	KindHeartbeat PacketKind = 3
)

func (k PacketKind) String() string {
	switch k {
	case KindMedia:
		return "media"
	case KindControl:
		return "control"
	case KindHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

func (k PacketKind) Valid() bool {
	return k == KindMedia || k == KindControl || k == KindHeartbeat
}

// Packet is one relay unit. The payload is opaque: the relay never
// parses media content, only the one-byte kind prefix and the RTT
// probe marker.
type Packet struct {
	Sender   SessionID
	Identity string
	RoomID   RoomID
	Kind     PacketKind
	Sequence uint64
	Payload  []byte
}

// EncodeFrame prepends the kind byte to the payload, producing the unit
// a transport writes to its client.
func EncodeFrame(p *Packet) []byte {
	frame := make([]byte, 1+len(p.Payload))
	frame[0] = byte(p.Kind)
	copy(frame[1:], p.Payload)
	return frame
}

// AppendFrame encodes the same unit into dst, for write loops that
// recycle their scratch buffer between packets.
func AppendFrame(dst []byte, p *Packet) []byte {
	dst = append(dst, byte(p.Kind))
	return append(dst, p.Payload...)
}

// DecodeFrame splits an inbound unit into kind and payload. Empty
// frames and unknown kind bytes are rejected; transports drop them and
// keep the connection.
func DecodeFrame(frame []byte) (PacketKind, []byte, error) {
	if len(frame) == 0 {
		return KindUnknown, nil, fmt.Errorf("empty frame")
	}
	kind := PacketKind(frame[0])
	if !kind.Valid() {
		return KindUnknown, nil, fmt.Errorf("unknown packet kind 0x%02x", frame[0])
	}
	return kind, frame[1:], nil
}

var rttProbePrefix = []byte("RTT:")

// IsRTTProbe reports whether a media payload is a latency probe. Probes
// are echoed to their sender instead of being fanned out.
func IsRTTProbe(payload []byte) bool {
	return bytes.HasPrefix(payload, rttProbePrefix)
}

// PeerLeft is the control payload broadcast when a session departs, so
// remaining clients can drop the peer's tiles without waiting for
// media to go silent.
type PeerLeft struct {
	Event     string `cbor:"event"`
	SessionID string `cbor:"session_id"`
	Identity  string `cbor:"identity"`
	RoomID    string `cbor:"room_id"`
	Reason    string `cbor:"reason"`
}

const PeerLeftEvent = "peer_left"

func EncodePeerLeft(sess *Session, reason string) ([]byte, error) {
	return cbor.Marshal(&PeerLeft{
		Event:     PeerLeftEvent,
		SessionID: string(sess.ID),
		Identity:  sess.Identity,
		RoomID:    string(sess.RoomID),
		Reason:    reason,
	})
}

func DecodePeerLeft(payload []byte) (*PeerLeft, error) {
	var ev PeerLeft
	if err := cbor.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode peer_left payload: %w", err)
	}
	return &ev, nil
}
