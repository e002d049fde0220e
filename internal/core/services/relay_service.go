package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"callrelay/internal/core/domain"
	"callrelay/internal/core/ports"
	"callrelay/pkg/utils"

	"go.uber.org/zap"
)

// RelayConfig carries the relay tunables taken from the config file.
type RelayConfig struct {
	MediaQueueSize   int
	ControlQueueSize int
	ResubscribeGrace time.Duration
}

type relayService struct {
	registry   ports.SessionRegistry
	bus        ports.Bus
	collector  ports.Collector
	events     ports.EventEmitter
	cfg        RelayConfig
	instanceID string
	startedAt  time.Time
	logger     *zap.SugaredLogger

	// Guards the per-room bus subscription state. Subscribe happens when a
	// room gains its first local member, unsubscribe when it loses its last,
	// optionally deferred by the resubscribe grace.
	mu          sync.Mutex
	subscribed  map[domain.RoomID]bool
	graceTimers map[domain.RoomID]*time.Timer

	packetsRelayed atomic.Uint64
	packetsDropped atomic.Uint64
	busPublished   atomic.Uint64
	busReceived    atomic.Uint64
	admitted       atomic.Uint64
	closed         atomic.Uint64
}

// NewRelayService builds the session coordinator. The bus and the event
// emitter may be nil, in which case the relay serves local members only.
func NewRelayService(
	registry ports.SessionRegistry,
	bus ports.Bus,
	collector ports.Collector,
	events ports.EventEmitter,
	instanceID string,
	cfg RelayConfig,
	logger *zap.SugaredLogger,
) ports.RelayService {
	return &relayService{
		registry:    registry,
		bus:         bus,
		collector:   collector,
		events:      events,
		cfg:         cfg,
		instanceID:  instanceID,
		startedAt:   time.Now(),
		logger:      logger,
		subscribed:  make(map[domain.RoomID]bool),
		graceTimers: make(map[domain.RoomID]*time.Timer),
	}
}

func (s *relayService) Admit(ctx context.Context, claim *domain.AdmissionClaim, transport domain.TransportKind) (*domain.Session, error) {
	sess := domain.NewSession(
		domain.SessionID(utils.GenerateSessionID()),
		claim,
		transport,
		s.cfg.MediaQueueSize,
		s.cfg.ControlQueueSize,
	)

	first, err := s.registry.Insert(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("failed to register session: %w", err)
	}

	if first {
		s.ensureSubscribed(ctx, sess.RoomID)
	}

	s.admitted.Add(1)
	s.collector.SessionAdmitted(transport)
	s.publishGauges(ctx)

	if s.events != nil {
		s.events.SessionAdmitted(sess)
	}

	s.logger.Infow("session admitted",
		"session_id", sess.ID,
		"identity", sess.Identity,
		"room_id", sess.RoomID,
		"transport", transport,
		"first_in_room", first,
	)

	return sess, nil
}

func (s *relayService) Route(ctx context.Context, sender *domain.Session, kind domain.PacketKind, payload []byte) {
	p := &domain.Packet{
		Sender:   sender.ID,
		Identity: sender.Identity,
		RoomID:   sender.RoomID,
		Kind:     kind,
		Sequence: sender.NextSeq(),
		Payload:  payload,
	}

	// Probe frames measure the client's round trip through this instance.
	// They bounce straight back to the sender and are never fanned out.
	if kind == domain.KindMedia && domain.IsRTTProbe(payload) {
		if err := sender.TrySend(p); err != nil {
			s.countDrop(err)
		}
		return
	}

	s.deliverLocal(ctx, p)
	s.publishToBus(ctx, p)

	s.packetsRelayed.Add(1)
	s.collector.PacketRelayed(kind, len(payload))
}

// HandleFromBus feeds a packet delivered over the bus to local members.
// Packets that carry our own origin marker are broker echoes and are
// discarded; nothing received here is ever re-published.
func (s *relayService) HandleFromBus(origin string, p *domain.Packet) {
	if origin == s.instanceID {
		return
	}

	s.busReceived.Add(1)
	s.collector.BusReceived()

	s.deliverLocal(context.Background(), p)
}

func (s *relayService) Teardown(ctx context.Context, id domain.SessionID, reason string) {
	sess, last, ok := s.registry.Remove(ctx, id)
	if !ok {
		// Another teardown path won the removal; everything below already ran
		return
	}

	sess.Close()

	s.closed.Add(1)
	s.collector.SessionClosed(sess.Transport, reason)

	s.notifyPeerLeft(ctx, sess, reason)

	if last {
		s.scheduleUnsubscribe(sess.RoomID)
	}

	s.publishGauges(ctx)

	if s.events != nil {
		s.events.SessionClosed(sess, reason)
	}

	s.logger.Infow("session closed",
		"session_id", sess.ID,
		"identity", sess.Identity,
		"room_id", sess.RoomID,
		"reason", reason,
		"last_in_room", last,
	)
}

func (s *relayService) Stats(ctx context.Context) *domain.RelayStats {
	sessions, rooms := s.registry.Counts(ctx)

	return &domain.RelayStats{
		InstanceID:       s.instanceID,
		Uptime:           utils.FormatDuration(time.Since(s.startedAt)),
		Sessions:         sessions,
		Rooms:            rooms,
		PacketsRelayed:   s.packetsRelayed.Load(),
		PacketsDropped:   s.packetsDropped.Load(),
		BusPublished:     s.busPublished.Load(),
		BusReceived:      s.busReceived.Load(),
		SessionsAdmitted: s.admitted.Load(),
		SessionsClosed:   s.closed.Load(),
		RoomList:         s.registry.Rooms(ctx),
		Timestamp:        time.Now(),
	}
}

func (s *relayService) deliverLocal(ctx context.Context, p *domain.Packet) int {
	members := s.registry.MembersOf(ctx, p.RoomID)

	delivered := 0
	for _, member := range members {
		if member.ID == p.Sender {
			continue
		}
		if err := member.TrySend(p); err != nil {
			s.countDrop(err)
			continue
		}
		delivered++
	}

	return delivered
}

func (s *relayService) countDrop(err error) {
	s.packetsDropped.Add(1)

	switch {
	case errors.Is(err, domain.ErrQueueFull):
		s.collector.PacketDropped("queue_full")
	case errors.Is(err, domain.ErrTransportClosed):
		s.collector.PacketDropped("closed")
	default:
		s.collector.PacketDropped("error")
	}
}

func (s *relayService) notifyPeerLeft(ctx context.Context, sess *domain.Session, reason string) {
	raw, err := domain.EncodePeerLeft(sess, reason)
	if err != nil {
		s.logger.Errorw("failed to encode departure notice", "session_id", sess.ID, "error", err)
		return
	}

	p := &domain.Packet{
		Sender:   sess.ID,
		Identity: sess.Identity,
		RoomID:   sess.RoomID,
		Kind:     domain.KindControl,
		Sequence: sess.NextSeq(),
		Payload:  raw,
	}

	s.deliverLocal(ctx, p)
	s.publishToBus(ctx, p)
}

func (s *relayService) publishToBus(ctx context.Context, p *domain.Packet) {
	if s.bus == nil {
		return
	}

	if err := s.bus.Publish(ctx, p.RoomID, p); err != nil {
		reason := "publish_failed"
		if errors.Is(err, domain.ErrQueueFull) {
			reason = "queue_full"
		}
		s.collector.BusDropped(reason)
		s.logger.Debugw("bus publish failed", "room_id", p.RoomID, "error", err)
		return
	}

	s.busPublished.Add(1)
	s.collector.BusPublished()
}

func (s *relayService) ensureSubscribed(ctx context.Context, room domain.RoomID) {
	if s.bus == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.graceTimers[room]; ok {
		timer.Stop()
		delete(s.graceTimers, room)
	}

	if s.subscribed[room] {
		return
	}

	if err := s.bus.Subscribe(ctx, room); err != nil {
		// Local fanout keeps working without the bus
		s.logger.Warnw("room subscribe failed", "room_id", room, "error", err)
		return
	}
	s.subscribed[room] = true
}

func (s *relayService) scheduleUnsubscribe(room domain.RoomID) {
	if s.bus == nil {
		return
	}

	if s.cfg.ResubscribeGrace <= 0 {
		s.unsubscribeIfEmpty(room)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.graceTimers[room]; ok {
		timer.Stop()
	}
	s.graceTimers[room] = time.AfterFunc(s.cfg.ResubscribeGrace, func() {
		s.mu.Lock()
		delete(s.graceTimers, room)
		s.mu.Unlock()
		s.unsubscribeIfEmpty(room)
	})
}

func (s *relayService) unsubscribeIfEmpty(room domain.RoomID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A member may have joined between the registry removal and this point
	if len(s.registry.MembersOf(context.Background(), room)) > 0 {
		return
	}
	if !s.subscribed[room] {
		return
	}

	if err := s.bus.Unsubscribe(context.Background(), room); err != nil {
		s.logger.Warnw("room unsubscribe failed", "room_id", room, "error", err)
		return
	}
	delete(s.subscribed, room)
}

func (s *relayService) publishGauges(ctx context.Context) {
	sessions, rooms := s.registry.Counts(ctx)
	s.collector.SetSessions(sessions)
	s.collector.SetRooms(rooms)
}
