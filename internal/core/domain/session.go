package domain

import (
	"sync"
	"sync/atomic"
	"time"
)

type SessionID string
type RoomID string

type TransportKind string

const (
	TransportWebSocket    TransportKind = "websocket"
	TransportWebTransport TransportKind = "webtransport"
)

// Departure reasons recorded when a session is torn down.
const (
	DepartLeft         = "left"
	DepartDisconnected = "disconnected"
	DepartWriteFailed  = "write_failed"
	DepartEvicted      = "evicted"
	DepartShutdown     = "shutdown"
)

// Session is one admitted connection. The relay writes to its outbound
// queues, the owning transport drains them; nothing else touches the
// session's internals.
type Session struct {
	ID          SessionID
	Identity    string
	RoomID      RoomID
	DisplayName string
	IsHost      bool
	Transport   TransportKind
	JoinedAt    time.Time

	media   chan *Packet
	control chan *Packet

	lastHeartbeat atomic.Int64 // unix nanoseconds
	nextSeq       atomic.Uint64

	done      chan struct{}
	closeOnce sync.Once
}

func NewSession(id SessionID, claim *AdmissionClaim, transport TransportKind, mediaQueue, controlQueue int) *Session {
	s := &Session{
		ID:          id,
		Identity:    claim.Identity,
		RoomID:      claim.RoomID,
		DisplayName: claim.DisplayName,
		IsHost:      claim.IsHost,
		Transport:   transport,
		JoinedAt:    time.Now(),
		media:       make(chan *Packet, mediaQueue),
		control:     make(chan *Packet, controlQueue),
		done:        make(chan struct{}),
	}
	s.lastHeartbeat.Store(s.JoinedAt.UnixNano())
	return s
}

// TrySend enqueues a packet for delivery to this session's client. It
// never blocks: a full queue drops the packet with ErrQueueFull and a
// closed session reports ErrTransportClosed. Control packets use their
// own smaller queue so media volume cannot starve them.
func (s *Session) TrySend(p *Packet) error {
	select {
	case <-s.done:
		return ErrTransportClosed
	default:
	}

	q := s.media
	if p.Kind == KindControl {
		q = s.control
	}

	select {
	case q <- p:
		return nil
	default:
		return ErrQueueFull
	}
}

// Media returns the outbound media/heartbeat queue drained by the transport.
func (s *Session) Media() <-chan *Packet { return s.media }

// Control returns the outbound control queue; transports drain it at
// higher priority than Media.
func (s *Session) Control() <-chan *Packet { return s.control }

// Done is closed exactly once when the session is torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close signals the owning transport to stop. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

func (s *Session) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Touch refreshes the liveness timestamp. Called on every inbound unit,
// including pure heartbeats.
func (s *Session) Touch(now time.Time) {
	s.lastHeartbeat.Store(now.UnixNano())
}

func (s *Session) LastHeartbeat() time.Time {
	return time.Unix(0, s.lastHeartbeat.Load())
}

// NextSeq hands out the per-session inbound sequence number. Assigned
// once at ingest and never renumbered downstream.
func (s *Session) NextSeq() uint64 {
	return s.nextSeq.Add(1)
}
