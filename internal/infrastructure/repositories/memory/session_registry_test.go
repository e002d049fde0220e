package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"callrelay/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(id, room string) *domain.Session {
	claim := &domain.AdmissionClaim{
		Identity:    "user-" + id,
		RoomID:      domain.RoomID(room),
		DisplayName: "User " + id,
	}
	return domain.NewSession(domain.SessionID(id), claim, domain.TransportWebSocket, 8, 4)
}

func TestRegistry_InsertReportsFirst(t *testing.T) {
	reg := NewMemorySessionRegistry()
	ctx := context.Background()

	first, err := reg.Insert(ctx, newTestSession("s1", "room-a"))
	require.NoError(t, err)
	assert.True(t, first)

	first, err = reg.Insert(ctx, newTestSession("s2", "room-a"))
	require.NoError(t, err)
	assert.False(t, first)

	// A different room starts its own epoch
	first, err = reg.Insert(ctx, newTestSession("s3", "room-b"))
	require.NoError(t, err)
	assert.True(t, first)
}

func TestRegistry_InsertDuplicate(t *testing.T) {
	reg := NewMemorySessionRegistry()
	ctx := context.Background()

	_, err := reg.Insert(ctx, newTestSession("s1", "room-a"))
	require.NoError(t, err)

	_, err = reg.Insert(ctx, newTestSession("s1", "room-a"))
	assert.ErrorIs(t, err, domain.ErrSessionExists)
}

func TestRegistry_RemoveReportsLast(t *testing.T) {
	reg := NewMemorySessionRegistry()
	ctx := context.Background()

	_, _ = reg.Insert(ctx, newTestSession("s1", "room-a"))
	_, _ = reg.Insert(ctx, newTestSession("s2", "room-a"))

	sess, last, ok := reg.Remove(ctx, "s1")
	require.True(t, ok)
	assert.False(t, last)
	assert.Equal(t, domain.SessionID("s1"), sess.ID)

	sess, last, ok = reg.Remove(ctx, "s2")
	require.True(t, ok)
	assert.True(t, last)
	assert.Equal(t, domain.SessionID("s2"), sess.ID)

	_, _, ok = reg.Remove(ctx, "s2")
	assert.False(t, ok)
}

func TestRegistry_ConcurrentRemoveSingleWinner(t *testing.T) {
	reg := NewMemorySessionRegistry()
	ctx := context.Background()

	for round := 0; round < 50; round++ {
		id := fmt.Sprintf("s%d", round)
		_, err := reg.Insert(ctx, newTestSession(id, "room-a"))
		require.NoError(t, err)

		var winners atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, _, ok := reg.Remove(ctx, domain.SessionID(id)); ok {
					winners.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), winners.Load(), "round %d", round)
	}
}

func TestRegistry_ConcurrentInsertSingleFirst(t *testing.T) {
	reg := NewMemorySessionRegistry()
	ctx := context.Background()

	var firsts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			first, err := reg.Insert(ctx, newTestSession(fmt.Sprintf("s%d", n), "room-a"))
			require.NoError(t, err)
			if first {
				firsts.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), firsts.Load())
}

func TestRegistry_MembersOfSnapshot(t *testing.T) {
	reg := NewMemorySessionRegistry()
	ctx := context.Background()

	_, _ = reg.Insert(ctx, newTestSession("s1", "room-a"))
	_, _ = reg.Insert(ctx, newTestSession("s2", "room-a"))
	_, _ = reg.Insert(ctx, newTestSession("s3", "room-b"))

	members := reg.MembersOf(ctx, "room-a")
	assert.Len(t, members, 2)

	ids := map[domain.SessionID]bool{}
	for _, m := range members {
		ids[m.ID] = true
	}
	assert.True(t, ids["s1"])
	assert.True(t, ids["s2"])
	assert.False(t, ids["s3"])

	reg.Remove(ctx, "s1")
	assert.Len(t, reg.MembersOf(ctx, "room-a"), 1)
	assert.Nil(t, reg.MembersOf(ctx, "missing"))
}

func TestRegistry_RemovedSessionInvisible(t *testing.T) {
	reg := NewMemorySessionRegistry()
	ctx := context.Background()

	_, _ = reg.Insert(ctx, newTestSession("s1", "room-a"))
	reg.Remove(ctx, "s1")

	_, err := reg.Get(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.Empty(t, reg.MembersOf(ctx, "room-a"))
}

func TestRegistry_TouchAndStale(t *testing.T) {
	reg := NewMemorySessionRegistry()
	ctx := context.Background()
	base := time.Now()

	fresh := newTestSession("fresh", "room-a")
	idle := newTestSession("idle", "room-a")
	_, _ = reg.Insert(ctx, fresh)
	_, _ = reg.Insert(ctx, idle)

	require.NoError(t, reg.Touch(ctx, "fresh", base.Add(time.Minute)))
	require.NoError(t, reg.Touch(ctx, "idle", base.Add(-time.Minute)))

	stale := reg.Stale(ctx, base)
	require.Len(t, stale, 1)
	assert.Equal(t, domain.SessionID("idle"), stale[0].ID)

	assert.ErrorIs(t, reg.Touch(ctx, "missing", base), domain.ErrSessionNotFound)
}

func TestRegistry_CountsAndRooms(t *testing.T) {
	reg := NewMemorySessionRegistry()
	ctx := context.Background()

	host := newTestSession("h", "room-a")
	host.IsHost = true
	_, _ = reg.Insert(ctx, host)
	_, _ = reg.Insert(ctx, newTestSession("g", "room-a"))
	_, _ = reg.Insert(ctx, newTestSession("x", "room-b"))

	sessions, rooms := reg.Counts(ctx)
	assert.Equal(t, 3, sessions)
	assert.Equal(t, 2, rooms)

	stats := reg.Rooms(ctx)
	require.Len(t, stats, 2)
	byRoom := map[domain.RoomID]domain.RoomStats{}
	for _, rs := range stats {
		byRoom[rs.RoomID] = rs
	}
	assert.Equal(t, 2, byRoom["room-a"].Sessions)
	assert.Equal(t, 1, byRoom["room-a"].Hosts)
	assert.Equal(t, 1, byRoom["room-b"].Sessions)
}
