package ports

import (
	"context"
	"time"

	"callrelay/internal/core/domain"
)

// SessionRegistry is the authoritative membership map. All operations
// are linearizable: concurrent Insert/Remove/MembersOf calls observe a
// single total order, and Remove reports the winner exactly once no
// matter how many paths race to evict the same session.
type SessionRegistry interface {
	// Insert registers a session and reports whether it is the first
	// member of its room on this instance.
	Insert(ctx context.Context, sess *domain.Session) (first bool, err error)

	// Remove deletes a session. ok is true for exactly one caller per
	// session; last is true when the room became empty on this instance.
	Remove(ctx context.Context, id domain.SessionID) (sess *domain.Session, last bool, ok bool)

	Get(ctx context.Context, id domain.SessionID) (*domain.Session, error)

	// MembersOf snapshots the sessions currently in a room. The slice
	// is owned by the caller.
	MembersOf(ctx context.Context, room domain.RoomID) []*domain.Session

	// Touch refreshes a session's liveness timestamp.
	Touch(ctx context.Context, id domain.SessionID, now time.Time) error

	// Stale returns sessions whose last heartbeat is older than cutoff.
	Stale(ctx context.Context, cutoff time.Time) []*domain.Session

	// Counts reports total sessions and distinct rooms on this instance.
	Counts(ctx context.Context) (sessions, rooms int)

	Rooms(ctx context.Context) []domain.RoomStats
}
