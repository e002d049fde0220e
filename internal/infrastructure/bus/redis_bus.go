package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"callrelay/internal/core/domain"
	"callrelay/internal/core/ports"
	"callrelay/pkg/circuitbreaker"
	"callrelay/pkg/retry"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type outbound struct {
	subject string
	payload []byte
}

// RedisBus bridges this instance to the shared pub/sub fabric. Publishes
// go through a bounded queue drained by a single goroutine, so a slow or
// partitioned broker degrades relay to local-only instead of blocking
// the routing path. A circuit breaker keeps the publisher from hammering
// a broker that is already failing.
type RedisBus struct {
	client     *redis.Client
	instanceID string
	namespace  string
	logger     *zap.SugaredLogger

	pubsub *redis.PubSub

	mu       sync.RWMutex
	handler  ports.BusHandler
	subjects map[domain.RoomID]string

	publishCh chan outbound
	breaker   *circuitbreaker.CircuitBreaker
	retryCfg  retry.Config

	stopOnce sync.Once
	stop     chan struct{}
}

func NewRedisBus(client *redis.Client, instanceID, namespace string, queueSize int, logger *zap.SugaredLogger) *RedisBus {
	b := &RedisBus{
		client:     client,
		instanceID: instanceID,
		namespace:  namespace,
		logger:     logger,
		// Empty subscription; subjects are added per room as members join
		pubsub:    client.Subscribe(context.Background()),
		subjects:  make(map[domain.RoomID]string),
		publishCh: make(chan outbound, queueSize),
		breaker:   circuitbreaker.New(circuitbreaker.DefaultConfig()),
		retryCfg:  retry.DefaultConfig(),
		stop:      make(chan struct{}),
	}

	go b.publishLoop()
	go b.receiveLoop()

	return b
}

func (b *RedisBus) Publish(ctx context.Context, room domain.RoomID, p *domain.Packet) error {
	raw, err := encodeEnvelope(b.instanceID, p)
	if err != nil {
		return fmt.Errorf("failed to encode packet for bus: %w", err)
	}
	return b.enqueue(subjectFor(b.namespace, room), raw)
}

func (b *RedisBus) Subscribe(ctx context.Context, room domain.RoomID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subjects[room]; ok {
		return nil
	}

	subject := subjectFor(b.namespace, room)
	err := retry.Retry(ctx, b.retryCfg, func() error {
		return b.pubsub.Subscribe(ctx, subject)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	b.subjects[room] = subject
	b.logger.Debugw("subscribed to room subject", "subject", subject)
	return nil
}

func (b *RedisBus) Unsubscribe(ctx context.Context, room domain.RoomID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	subject, ok := b.subjects[room]
	if !ok {
		return nil
	}

	if err := b.pubsub.Unsubscribe(ctx, subject); err != nil {
		return fmt.Errorf("failed to unsubscribe from %s: %w", subject, err)
	}

	delete(b.subjects, room)
	b.logger.Debugw("unsubscribed from room subject", "subject", subject)
	return nil
}

func (b *RedisBus) SetHandler(h ports.BusHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = h
}

func (b *RedisBus) Events(ctx context.Context, payload []byte) error {
	return b.enqueue(diagnosticsSubject(b.namespace, b.instanceID), payload)
}

func (b *RedisBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBus) Close() error {
	var err error
	b.stopOnce.Do(func() {
		close(b.stop)
		err = b.pubsub.Close()
	})
	return err
}

func (b *RedisBus) enqueue(subject string, payload []byte) error {
	select {
	case b.publishCh <- outbound{subject: subject, payload: payload}:
		return nil
	default:
		return domain.ErrQueueFull
	}
}

func (b *RedisBus) publishLoop() {
	for {
		select {
		case <-b.stop:
			return
		case out := <-b.publishCh:
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			err := b.breaker.Execute(ctx, func() error {
				return b.client.Publish(ctx, out.subject, out.payload).Err()
			})
			cancel()

			if err != nil {
				// Drop and move on; real-time packets are stale by the
				// time a broker recovers
				b.logger.Debugw("bus publish failed", "subject", out.subject, "error", err)
			}
		}
	}
}

func (b *RedisBus) receiveLoop() {
	ch := b.pubsub.Channel()
	for msg := range ch {
		origin, p, err := decodeEnvelope([]byte(msg.Payload))
		if err != nil {
			b.logger.Warnw("dropping undecodable bus message",
				"subject", msg.Channel,
				"error", err,
			)
			continue
		}

		b.mu.RLock()
		handler := b.handler
		b.mu.RUnlock()

		if handler != nil {
			handler(origin, p)
		}
	}
}

var _ ports.Bus = (*RedisBus)(nil)
