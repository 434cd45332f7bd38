package repository

import (
	"context"

	"github.com/AtharvaKatiyar/WRAITHNET-sub000/internal/domain"
	"github.com/google/uuid"
)

// PresenceRepository mirrors who is online into a store reachable from every
// server process. Records are TTL-managed: a record that lapses without a
// heartbeat is presumed offline by the store itself.
//
// AddConnection and RemoveConnection keep a shared per-identity connection
// count so that an identity with tabs open against several server processes
// stays online until the last one anywhere goes away. Both return the count
// after the change. The counter carries the online TTL as a crash fallback.
type PresenceRepository interface {
	MarkOnline(ctx context.Context, user *domain.User) error
	MarkOffline(ctx context.Context, userID uuid.UUID) error
	AddConnection(ctx context.Context, userID uuid.UUID) (int, error)
	RemoveConnection(ctx context.Context, userID uuid.UUID) (int, error)
	Heartbeat(ctx context.Context, userID uuid.UUID) error
	Get(ctx context.Context, userID uuid.UUID) (*domain.PresenceRecord, error)
	ListOnline(ctx context.Context) ([]uuid.UUID, error)
}

// HistoryRepository is the bounded append log of recent chat messages per
// room. Append beyond the bound evicts the oldest entry. Recent returns
// oldest first and must observe a just-completed Append from any process.
type HistoryRepository interface {
	Append(ctx context.Context, room string, msg *domain.ChatMessage) error
	Recent(ctx context.Context, room string) ([]*domain.ChatMessage, error)
}

// WraithStateRepository owns the single shared wraith state blob.
//
// Mutate applies fn to the current state and persists the result as one
// atomic step; two processes mutating concurrently must never lose an
// update. Get creates the default state on first access.
type WraithStateRepository interface {
	Get(ctx context.Context) (*domain.WraithState, error)
	Mutate(ctx context.Context, fn func(*domain.WraithState) error) (*domain.WraithState, error)
	Reset(ctx context.Context) (*domain.WraithState, error)
}
