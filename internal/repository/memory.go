package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/AtharvaKatiyar/WRAITHNET-sub000/internal/domain"
	"github.com/google/uuid"
)

type presenceEntry struct {
	record    domain.PresenceRecord
	expiresAt time.Time
}

// InMemoryPresenceRepository mirrors the Redis adapter's semantics, TTL lapse
// included, for single-node runs and tests.
type InMemoryPresenceRepository struct {
	mu         sync.RWMutex
	entries    map[uuid.UUID]*presenceEntry
	conns      map[uuid.UUID]int
	onlineTTL  time.Duration
	offlineTTL time.Duration
	now        func() time.Time
}

func NewInMemoryPresenceRepository(onlineTTL, offlineTTL time.Duration) *InMemoryPresenceRepository {
	return &InMemoryPresenceRepository{
		entries:    make(map[uuid.UUID]*presenceEntry),
		conns:      make(map[uuid.UUID]int),
		onlineTTL:  onlineTTL,
		offlineTTL: offlineTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (r *InMemoryPresenceRepository) AddConnection(ctx context.Context, userID uuid.UUID) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[userID]++
	return r.conns[userID], nil
}

func (r *InMemoryPresenceRepository) RemoveConnection(ctx context.Context, userID uuid.UUID) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conns[userID] > 0 {
		r.conns[userID]--
	}
	count := r.conns[userID]
	if count == 0 {
		delete(r.conns, userID)
	}
	return count, nil
}

func (r *InMemoryPresenceRepository) MarkOnline(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if user == nil {
		return errors.New("user is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.entries[user.ID] = &presenceEntry{
		record: domain.PresenceRecord{
			UserID:      user.ID,
			Username:    user.Username,
			Status:      domain.PresenceStatusOnline,
			ConnectedAt: now,
			LastSeen:    now,
		},
		expiresAt: now.Add(r.onlineTTL),
	}
	return nil
}

func (r *InMemoryPresenceRepository) MarkOffline(ctx context.Context, userID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.entries[userID]
	if !ok || now.After(entry.expiresAt) {
		entry = &presenceEntry{record: domain.PresenceRecord{UserID: userID}}
		r.entries[userID] = entry
	}

	entry.record.Status = domain.PresenceStatusOffline
	entry.record.DisconnectedAt = now
	entry.record.LastSeen = now
	entry.expiresAt = now.Add(r.offlineTTL)
	return nil
}

func (r *InMemoryPresenceRepository) Heartbeat(ctx context.Context, userID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.entries[userID]
	if !ok || now.After(entry.expiresAt) {
		return ErrPresenceNotFound
	}

	entry.record.LastSeen = now
	ttl := r.offlineTTL
	if entry.record.Status == domain.PresenceStatusOnline {
		ttl = r.onlineTTL
	}
	entry.expiresAt = now.Add(ttl)
	return nil
}

func (r *InMemoryPresenceRepository) Get(ctx context.Context, userID uuid.UUID) (*domain.PresenceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[userID]
	if !ok || r.now().After(entry.expiresAt) {
		return nil, ErrPresenceNotFound
	}

	record := entry.record
	return &record, nil
}

func (r *InMemoryPresenceRepository) ListOnline(ctx context.Context) ([]uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.now()
	online := make([]uuid.UUID, 0, len(r.entries))
	for id, entry := range r.entries {
		if entry.record.IsOnline() && now.Before(entry.expiresAt) {
			online = append(online, id)
		}
	}
	return online, nil
}

type InMemoryHistoryRepository struct {
	mu    sync.RWMutex
	rooms map[string][]*domain.ChatMessage
	limit int
}

func NewInMemoryHistoryRepository() *InMemoryHistoryRepository {
	return &InMemoryHistoryRepository{
		rooms: make(map[string][]*domain.ChatMessage),
		limit: historyLimit,
	}
}

func (r *InMemoryHistoryRepository) Append(ctx context.Context, room string, msg *domain.ChatMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg == nil {
		return errors.New("message is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	messages := append(r.rooms[room], msg)
	if len(messages) > r.limit {
		messages = messages[len(messages)-r.limit:]
	}
	r.rooms[room] = messages
	return nil
}

func (r *InMemoryHistoryRepository) Recent(ctx context.Context, room string) ([]*domain.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	messages := r.rooms[room]
	result := make([]*domain.ChatMessage, len(messages))
	copy(result, messages)
	return result, nil
}

// InMemoryWraithStateRepository serializes mutations behind a mutex, the
// single-process equivalent of the Redis WATCH transaction.
type InMemoryWraithStateRepository struct {
	mu    sync.Mutex
	state *domain.WraithState
}

func NewInMemoryWraithStateRepository() *InMemoryWraithStateRepository {
	return &InMemoryWraithStateRepository{}
}

func (r *InMemoryWraithStateRepository) Get(ctx context.Context) (*domain.WraithState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == nil {
		r.state = domain.NewWraithState()
	}
	return r.snapshot(), nil
}

func (r *InMemoryWraithStateRepository) Mutate(ctx context.Context, fn func(*domain.WraithState) error) (*domain.WraithState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == nil {
		r.state = domain.NewWraithState()
	}
	if err := fn(r.state); err != nil {
		return nil, err
	}
	r.state.Normalize()
	return r.snapshot(), nil
}

func (r *InMemoryWraithStateRepository) Reset(ctx context.Context) (*domain.WraithState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.state = domain.NewWraithState()
	return r.snapshot(), nil
}

func (r *InMemoryWraithStateRepository) snapshot() *domain.WraithState {
	clone := *r.state
	clone.History = make([]domain.TriggerEvent, len(r.state.History))
	copy(clone.History, r.state.History)
	return &clone
}
