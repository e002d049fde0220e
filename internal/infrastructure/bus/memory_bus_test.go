package bus

import (
	"context"
	"testing"

	"callrelay/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	origin string
	packet *domain.Packet
}

func TestMemoryBus_LoopsOwnPublishes(t *testing.T) {
	b := NewMemoryBus("relay_self")
	ctx := context.Background()

	var got []captured
	b.SetHandler(func(origin string, p *domain.Packet) {
		got = append(got, captured{origin: origin, packet: p})
	})

	require.NoError(t, b.Subscribe(ctx, "room-a"))

	p := &domain.Packet{Sender: "s1", RoomID: "room-a", Kind: domain.KindMedia, Payload: []byte("x")}
	require.NoError(t, b.Publish(ctx, "room-a", p))

	// The loopback echoes our own publish, origin marker intact
	require.Len(t, got, 1)
	assert.Equal(t, "relay_self", got[0].origin)
	assert.Equal(t, domain.SessionID("s1"), got[0].packet.Sender)
}

func TestMemoryBus_NoDeliveryWithoutSubscription(t *testing.T) {
	b := NewMemoryBus("relay_self")
	ctx := context.Background()

	delivered := 0
	b.SetHandler(func(origin string, p *domain.Packet) { delivered++ })

	p := &domain.Packet{Sender: "s1", RoomID: "room-a", Kind: domain.KindMedia}
	require.NoError(t, b.Publish(ctx, "room-a", p))
	assert.Zero(t, delivered)

	require.NoError(t, b.Subscribe(ctx, "room-a"))
	require.NoError(t, b.Publish(ctx, "room-a", p))
	assert.Equal(t, 1, delivered)

	require.NoError(t, b.Unsubscribe(ctx, "room-a"))
	require.NoError(t, b.Publish(ctx, "room-a", p))
	assert.Equal(t, 1, delivered)
}

func TestMemoryBus_InjectRemote(t *testing.T) {
	b := NewMemoryBus("relay_self")
	ctx := context.Background()

	var origins []string
	b.SetHandler(func(origin string, p *domain.Packet) {
		origins = append(origins, origin)
	})
	require.NoError(t, b.Subscribe(ctx, "room-a"))

	b.InjectRemote("relay_other", &domain.Packet{Sender: "s9", RoomID: "room-a", Kind: domain.KindControl})

	require.Len(t, origins, 1)
	assert.Equal(t, "relay_other", origins[0])
}

func TestMemoryBus_EventsAndPing(t *testing.T) {
	b := NewMemoryBus("relay_self")
	ctx := context.Background()

	require.NoError(t, b.Ping(ctx))
	require.NoError(t, b.Events(ctx, []byte("batch-1")))
	require.NoError(t, b.Events(ctx, []byte("batch-2")))

	batches := b.EventBatches()
	require.Len(t, batches, 2)
	assert.Equal(t, []byte("batch-1"), batches[0])

	require.NoError(t, b.Close())
	assert.Error(t, b.Ping(ctx))
	assert.Error(t, b.Events(ctx, nil))
	assert.Error(t, b.Subscribe(ctx, "room-a"))
}
