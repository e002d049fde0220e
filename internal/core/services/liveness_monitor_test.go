package services

import (
	"context"
	"testing"
	"time"

	"callrelay/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestLivenessMonitor_SweepEvictsStaleSessions(t *testing.T) {
	relay, registry := newTestRelay(t, nil, 0)
	ctx := context.Background()

	fresh := admit(t, relay, "alice", "room-a")
	stale := admit(t, relay, "bob", "room-a")

	require.NoError(t, registry.Touch(ctx, fresh.ID, time.Now()))
	require.NoError(t, registry.Touch(ctx, stale.ID, time.Now().Add(-time.Minute)))

	monitor := NewLivenessMonitor(registry, relay, 10*time.Second, 2*time.Second, zaptest.NewLogger(t).Sugar())

	evicted := monitor.Sweep(ctx)
	assert.Equal(t, 1, evicted)

	_, err := registry.Get(ctx, stale.ID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = registry.Get(ctx, fresh.ID)
	assert.NoError(t, err)

	// The survivor hears about the eviction
	notices := drainControl(fresh)
	require.Len(t, notices, 1)
	evt, err := domain.DecodePeerLeft(notices[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, domain.DepartEvicted, evt.Reason)
}

func TestLivenessMonitor_SweepKeepsActiveSessions(t *testing.T) {
	relay, registry := newTestRelay(t, nil, 0)
	ctx := context.Background()

	alice := admit(t, relay, "alice", "room-a")
	require.NoError(t, registry.Touch(ctx, alice.ID, time.Now()))

	monitor := NewLivenessMonitor(registry, relay, 10*time.Second, 2*time.Second, zaptest.NewLogger(t).Sugar())
	assert.Zero(t, monitor.Sweep(ctx))

	_, err := registry.Get(ctx, alice.ID)
	assert.NoError(t, err)
}

func TestLivenessMonitor_StartAndStop(t *testing.T) {
	relay, registry := newTestRelay(t, nil, 0)
	ctx := context.Background()

	sess := admit(t, relay, "alice", "room-a")
	require.NoError(t, registry.Touch(ctx, sess.ID, time.Now().Add(-time.Minute)))

	monitor := NewLivenessMonitor(registry, relay, 10*time.Second, 10*time.Millisecond, zaptest.NewLogger(t).Sugar())
	monitor.Start(ctx)
	defer monitor.Stop()

	assert.Eventually(t, func() bool {
		_, err := registry.Get(ctx, sess.ID)
		return err != nil
	}, time.Second, 10*time.Millisecond)
}
