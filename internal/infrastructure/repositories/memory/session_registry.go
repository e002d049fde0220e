package memory

import (
	"context"
	"sync"
	"time"

	"callrelay/internal/core/domain"
	"callrelay/internal/core/ports"
	"callrelay/pkg/optimize"
)

// MemorySessionRegistry is the authoritative per-instance membership
// map. A single mutex over both indexes keeps every operation
// linearizable; nothing slow ever runs under the lock.
type MemorySessionRegistry struct {
	sessions map[domain.SessionID]*domain.Session
	rooms    map[domain.RoomID]map[domain.SessionID]*domain.Session
	mu       sync.RWMutex
}

func NewMemorySessionRegistry() ports.SessionRegistry {
	return &MemorySessionRegistry{
		sessions: make(map[domain.SessionID]*domain.Session),
		rooms:    make(map[domain.RoomID]map[domain.SessionID]*domain.Session),
	}
}

func (r *MemorySessionRegistry) Insert(ctx context.Context, sess *domain.Session) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[sess.ID]; exists {
		return false, domain.ErrSessionExists
	}

	members, ok := r.rooms[sess.RoomID]
	if !ok {
		members = make(map[domain.SessionID]*domain.Session)
		r.rooms[sess.RoomID] = members
	}

	first := len(members) == 0
	members[sess.ID] = sess
	r.sessions[sess.ID] = sess
	return first, nil
}

// Remove deletes the session from both indexes. The map delete under
// the lock is what makes teardown races safe: exactly one caller sees
// ok=true, every later caller gets a no-op.
func (r *MemorySessionRegistry) Remove(ctx context.Context, id domain.SessionID) (*domain.Session, bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, exists := r.sessions[id]
	if !exists {
		return nil, false, false
	}

	delete(r.sessions, id)

	last := false
	if members, ok := r.rooms[sess.RoomID]; ok {
		delete(members, id)
		if len(members) == 0 {
			delete(r.rooms, sess.RoomID)
			last = true
		}
	}

	return sess, last, true
}

func (r *MemorySessionRegistry) Get(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, exists := r.sessions[id]
	if !exists {
		return nil, domain.ErrSessionNotFound
	}

	return sess, nil
}

// MembersOf snapshots the room under the read lock. Callers own the
// returned slice and iterate it without holding anything.
func (r *MemorySessionRegistry) MembersOf(ctx context.Context, room domain.RoomID) []*domain.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.rooms[room]
	if !ok {
		return nil
	}

	snapshot := optimize.PreAllocateSlice[*domain.Session](0, len(members))
	for _, sess := range members {
		snapshot = append(snapshot, sess)
	}
	return snapshot
}

func (r *MemorySessionRegistry) Touch(ctx context.Context, id domain.SessionID, now time.Time) error {
	r.mu.RLock()
	sess, exists := r.sessions[id]
	r.mu.RUnlock()

	if !exists {
		return domain.ErrSessionNotFound
	}

	// Heartbeat timestamp is atomic; the read lock only guards the map
	sess.Touch(now)
	return nil
}

func (r *MemorySessionRegistry) Stale(ctx context.Context, cutoff time.Time) []*domain.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stale []*domain.Session
	for _, sess := range r.sessions {
		if sess.LastHeartbeat().Before(cutoff) {
			stale = append(stale, sess)
		}
	}
	return stale
}

func (r *MemorySessionRegistry) Counts(ctx context.Context) (int, int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions), len(r.rooms)
}

func (r *MemorySessionRegistry) Rooms(ctx context.Context) []domain.RoomStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()
	stats := optimize.PreAllocateSlice[domain.RoomStats](0, len(r.rooms))
	for roomID, members := range r.rooms {
		rs := domain.RoomStats{
			RoomID:    roomID,
			Sessions:  len(members),
			Timestamp: now,
		}
		for _, sess := range members {
			if sess.IsHost {
				rs.Hosts++
			}
			if rs.OldestAt.IsZero() || sess.JoinedAt.Before(rs.OldestAt) {
				rs.OldestAt = sess.JoinedAt
			}
			if sess.JoinedAt.After(rs.NewestAt) {
				rs.NewestAt = sess.JoinedAt
			}
		}
		stats = append(stats, rs)
	}
	return stats
}
