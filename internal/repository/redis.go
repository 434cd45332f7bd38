package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AtharvaKatiyar/WRAITHNET-sub000/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrPresenceNotFound = errors.New("presence record not found")
	ErrStateConflict    = errors.New("record modified concurrently, retries exhausted")
)

const (
	presenceKeyPrefix   = "presence:"
	presenceOnlineKey   = "presence:online"
	presenceConnsPrefix = "presence:conns:"
	historyKeyPrefix    = "chat:history"
	ghostStateKey       = "ghost:state"

	historyLimit   = 50
	mutateRetries  = 8
	connectTimeout = 3 * time.Second
	ghostStateTTL  = 0 // the state blob never expires
)

// NewRedisClient connects and verifies the shared store is reachable.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return client, nil
}

func presenceKey(userID uuid.UUID) string {
	return presenceKeyPrefix + userID.String()
}

func presenceConnsKey(userID uuid.UUID) string {
	return presenceConnsPrefix + userID.String()
}

func historyKey(room string) string {
	if room == domain.GlobalRoom {
		return historyKeyPrefix
	}
	return historyKeyPrefix + ":" + room
}

type RedisPresenceRepository struct {
	client     *redis.Client
	onlineTTL  time.Duration
	offlineTTL time.Duration
}

func NewRedisPresenceRepository(client *redis.Client, onlineTTL, offlineTTL time.Duration) *RedisPresenceRepository {
	return &RedisPresenceRepository{
		client:     client,
		onlineTTL:  onlineTTL,
		offlineTTL: offlineTTL,
	}
}

func (r *RedisPresenceRepository) MarkOnline(ctx context.Context, user *domain.User) error {
	if user == nil {
		return errors.New("user is nil")
	}

	now := time.Now().UTC()
	record := &domain.PresenceRecord{
		UserID:      user.ID,
		Username:    user.Username,
		Status:      domain.PresenceStatusOnline,
		ConnectedAt: now,
		LastSeen:    now,
	}

	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, presenceKey(user.ID), data, r.onlineTTL)
		pipe.SAdd(ctx, presenceOnlineKey, user.ID.String())
		return nil
	})
	return err
}

func (r *RedisPresenceRepository) MarkOffline(ctx context.Context, userID uuid.UUID) error {
	record, err := r.Get(ctx, userID)
	if err != nil && !errors.Is(err, ErrPresenceNotFound) {
		return err
	}

	now := time.Now().UTC()
	if record == nil {
		record = &domain.PresenceRecord{UserID: userID}
	}
	record.Status = domain.PresenceStatusOffline
	record.DisconnectedAt = now
	record.LastSeen = now

	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, presenceKey(userID), data, r.offlineTTL)
		pipe.SRem(ctx, presenceOnlineKey, userID.String())
		return nil
	})
	return err
}

// removeConnScript decrements the shared connection count atomically,
// deleting the key at zero so a stray double-decrement cannot push it
// negative.
var removeConnScript = redis.NewScript(`
local count = redis.call("DECR", KEYS[1])
if count <= 0 then
	redis.call("DEL", KEYS[1])
	return 0
end
return count
`)

// AddConnection bumps the identity's shared connection count. The counter
// carries the online TTL so a crashed process cannot pin an identity online
// forever; heartbeats refresh it.
func (r *RedisPresenceRepository) AddConnection(ctx context.Context, userID uuid.UUID) (int, error) {
	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, presenceConnsKey(userID))
		pipe.Expire(ctx, presenceConnsKey(userID), r.onlineTTL)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(incr.Val()), nil
}

func (r *RedisPresenceRepository) RemoveConnection(ctx context.Context, userID uuid.UUID) (int, error) {
	count, err := removeConnScript.Run(ctx, r.client, []string{presenceConnsKey(userID)}).Int()
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Heartbeat refreshes last-seen and the record's expiry without changing
// status. The read-modify-write runs inside a WATCH transaction so a racing
// MarkOffline cannot be overwritten with a stale online record.
func (r *RedisPresenceRepository) Heartbeat(ctx context.Context, userID uuid.UUID) error {
	key := presenceKey(userID)

	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return ErrPresenceNotFound
		}
		if err != nil {
			return err
		}

		var record domain.PresenceRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			return err
		}
		record.LastSeen = time.Now().UTC()

		data, err := json.Marshal(&record)
		if err != nil {
			return err
		}

		ttl := r.offlineTTL
		if record.Status == domain.PresenceStatusOnline {
			ttl = r.onlineTTL
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, ttl)
			if record.Status == domain.PresenceStatusOnline {
				pipe.Expire(ctx, presenceConnsKey(userID), r.onlineTTL)
			}
			return nil
		})
		return err
	}

	for i := 0; i < mutateRetries; i++ {
		err := r.client.Watch(ctx, txn, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrStateConflict
}

func (r *RedisPresenceRepository) Get(ctx context.Context, userID uuid.UUID) (*domain.PresenceRecord, error) {
	raw, err := r.client.Get(ctx, presenceKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrPresenceNotFound
	}
	if err != nil {
		return nil, err
	}

	var record domain.PresenceRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// ListOnline returns members of the online set whose record still exists and
// is marked online. Stale members, left behind by an ungraceful disconnect
// whose record TTL has since lapsed, are pruned from the set as a side effect.
func (r *RedisPresenceRepository) ListOnline(ctx context.Context) ([]uuid.UUID, error) {
	members, err := r.client.SMembers(ctx, presenceOnlineKey).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}

	online := make([]uuid.UUID, 0, len(members))
	var stale []interface{}

	for _, member := range members {
		id, err := uuid.Parse(member)
		if err != nil {
			stale = append(stale, member)
			continue
		}

		record, err := r.Get(ctx, id)
		if errors.Is(err, ErrPresenceNotFound) || (err == nil && !record.IsOnline()) {
			stale = append(stale, member)
			continue
		}
		if err != nil {
			return nil, err
		}
		online = append(online, id)
	}

	if len(stale) > 0 {
		_ = r.client.SRem(ctx, presenceOnlineKey, stale...).Err()
	}
	return online, nil
}

type RedisHistoryRepository struct {
	client *redis.Client
	limit  int64
}

func NewRedisHistoryRepository(client *redis.Client) *RedisHistoryRepository {
	return &RedisHistoryRepository{client: client, limit: historyLimit}
}

func (r *RedisHistoryRepository) Append(ctx context.Context, room string, msg *domain.ChatMessage) error {
	if msg == nil {
		return errors.New("message is nil")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	key := historyKey(room)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.LTrim(ctx, key, -r.limit, -1)
		return nil
	})
	return err
}

func (r *RedisHistoryRepository) Recent(ctx context.Context, room string) ([]*domain.ChatMessage, error) {
	entries, err := r.client.LRange(ctx, historyKey(room), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]*domain.ChatMessage, 0, len(entries))
	for _, entry := range entries {
		var msg domain.ChatMessage
		if err := json.Unmarshal([]byte(entry), &msg); err != nil {
			continue
		}
		messages = append(messages, &msg)
	}
	return messages, nil
}

type RedisWraithStateRepository struct {
	client *redis.Client
}

func NewRedisWraithStateRepository(client *redis.Client) *RedisWraithStateRepository {
	return &RedisWraithStateRepository{client: client}
}

func (r *RedisWraithStateRepository) Get(ctx context.Context) (*domain.WraithState, error) {
	raw, err := r.client.Get(ctx, ghostStateKey).Result()
	if errors.Is(err, redis.Nil) {
		state := domain.NewWraithState()
		data, err := json.Marshal(state)
		if err != nil {
			return nil, err
		}

		// First access seeds the default blob. Losing the SETNX race means
		// another process seeded (or already mutated) the state, so re-read
		// the winner's blob instead of returning the local default.
		seeded, err := r.client.SetNX(ctx, ghostStateKey, data, ghostStateTTL).Result()
		if err != nil {
			return nil, err
		}
		if seeded {
			return state, nil
		}

		raw, err = r.client.Get(ctx, ghostStateKey).Result()
		if errors.Is(err, redis.Nil) {
			return state, nil
		}
		if err != nil {
			return nil, err
		}
		return decodeWraithState(raw)
	}
	if err != nil {
		return nil, err
	}

	return decodeWraithState(raw)
}

// Mutate runs fn inside an optimistic WATCH transaction so the whole
// read-decide-write sequence is one atomic step against the store. On
// contention the transaction is retried with a fresh read.
func (r *RedisWraithStateRepository) Mutate(ctx context.Context, fn func(*domain.WraithState) error) (*domain.WraithState, error) {
	var result *domain.WraithState

	txn := func(tx *redis.Tx) error {
		var state *domain.WraithState

		raw, err := tx.Get(ctx, ghostStateKey).Result()
		switch {
		case errors.Is(err, redis.Nil):
			state = domain.NewWraithState()
		case err != nil:
			return err
		default:
			state, err = decodeWraithState(raw)
			if err != nil {
				return err
			}
		}

		if err := fn(state); err != nil {
			return err
		}
		state.Normalize()

		data, err := json.Marshal(state)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, ghostStateKey, data, ghostStateTTL)
			return nil
		})
		if err != nil {
			return err
		}

		result = state
		return nil
	}

	for i := 0; i < mutateRetries; i++ {
		err := r.client.Watch(ctx, txn, ghostStateKey)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, ErrStateConflict
}

func (r *RedisWraithStateRepository) Reset(ctx context.Context) (*domain.WraithState, error) {
	state := domain.NewWraithState()
	data, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	if err := r.client.Set(ctx, ghostStateKey, data, ghostStateTTL).Err(); err != nil {
		return nil, err
	}
	return state, nil
}

func decodeWraithState(raw string) (*domain.WraithState, error) {
	var state domain.WraithState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, err
	}
	state.Normalize()
	return &state, nil
}
