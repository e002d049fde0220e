package bus

import (
	"context"
	"fmt"
	"sync"

	"callrelay/internal/core/domain"
	"callrelay/internal/core/ports"
)

// MemoryBus is a process-local loopback broker for single-instance runs
// and tests. Like a broker without self-delivery suppression, it echoes
// the publisher's own messages back, so the relay's origin filtering gets
// exercised even without Redis.
type MemoryBus struct {
	origin string

	mu       sync.RWMutex
	handler  ports.BusHandler
	subjects map[domain.RoomID]bool
	events   [][]byte
	closed   bool
}

func NewMemoryBus(origin string) *MemoryBus {
	return &MemoryBus{
		origin:   origin,
		subjects: make(map[domain.RoomID]bool),
	}
}

func (b *MemoryBus) Publish(ctx context.Context, room domain.RoomID, p *domain.Packet) error {
	// Round trip through the envelope so the loopback exercises the same
	// codec path as the real broker.
	raw, err := encodeEnvelope(b.origin, p)
	if err != nil {
		return err
	}
	b.Inject(raw)
	return nil
}

// Inject delivers an encoded envelope as if it arrived from the broker.
// Tests use it to emulate packets published by other instances.
func (b *MemoryBus) Inject(raw []byte) {
	origin, p, err := decodeEnvelope(raw)
	if err != nil {
		return
	}

	b.mu.RLock()
	handler := b.handler
	subscribed := b.subjects[p.RoomID]
	closed := b.closed
	b.mu.RUnlock()

	if closed || !subscribed || handler == nil {
		return
	}
	handler(origin, p)
}

// InjectRemote is a test helper that publishes a packet under a foreign
// origin marker.
func (b *MemoryBus) InjectRemote(origin string, p *domain.Packet) {
	raw, err := encodeEnvelope(origin, p)
	if err != nil {
		return
	}
	b.Inject(raw)
}

func (b *MemoryBus) Subscribe(ctx context.Context, room domain.RoomID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("bus is closed")
	}
	b.subjects[room] = true
	return nil
}

func (b *MemoryBus) Unsubscribe(ctx context.Context, room domain.RoomID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subjects, room)
	return nil
}

func (b *MemoryBus) SetHandler(h ports.BusHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = h
}

func (b *MemoryBus) Events(ctx context.Context, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("bus is closed")
	}
	b.events = append(b.events, payload)
	return nil
}

// EventBatches returns the diagnostics payloads published so far.
func (b *MemoryBus) EventBatches() [][]byte {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([][]byte, len(b.events))
	copy(out, b.events)
	return out
}

// Subscribed reports whether the room's subject has an active
// subscription.
func (b *MemoryBus) Subscribed(room domain.RoomID) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.subjects[room]
}

func (b *MemoryBus) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return fmt.Errorf("bus is closed")
	}
	return nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	return nil
}

var _ ports.Bus = (*MemoryBus)(nil)
