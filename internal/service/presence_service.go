package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/AtharvaKatiyar/WRAITHNET-sub000/internal/domain"
	"github.com/AtharvaKatiyar/WRAITHNET-sub000/internal/realtime"
	"github.com/AtharvaKatiyar/WRAITHNET-sub000/internal/repository"
	"github.com/AtharvaKatiyar/WRAITHNET-sub000/lib/logger/sl"
	"github.com/google/uuid"
)

var ErrUnknownIdentity = errors.New("identity has no presence record")

// PresenceService ties the registry's connection lifecycle to the shared
// presence store and announces every connect/disconnect to all clients.
// Store failures are best-effort: a presence write must never take down a
// connection.
type PresenceService struct {
	registry *realtime.Registry
	presence repository.PresenceRepository
	log      *slog.Logger
}

func NewPresenceService(registry *realtime.Registry, presence repository.PresenceRepository, log *slog.Logger) *PresenceService {
	if log == nil {
		log = slog.Default()
	}
	return &PresenceService{
		registry: registry,
		presence: presence,
		log:      log,
	}
}

// Connected registers the handshake-authenticated connection, mirrors the
// identity into the presence store and broadcasts the presence update.
// Whether this is the identity's first connection is decided by the store's
// shared refcount, not the local registry, so tabs on another server process
// count too.
func (s *PresenceService) Connected(ctx context.Context, conn *realtime.Connection) {
	const op = "service.presence.connected"
	log := s.log.With(
		slog.String("op", op),
		slog.String("user_id", conn.User.ID.String()),
		slog.String("conn_id", conn.ID),
	)

	first := s.registry.Register(conn)
	if count, err := s.presence.AddConnection(ctx, conn.User.ID); err != nil {
		log.Error("presence refcount failed", sl.Err(err))
	} else {
		first = count == 1
	}

	if first {
		if err := s.presence.MarkOnline(ctx, conn.User); err != nil {
			log.Error("presence store write failed", sl.Err(err))
		}
	}

	s.registry.BroadcastAll(domain.EventPresenceUpdate, PresenceUpdatePayload{
		UserID:    conn.User.ID.String(),
		Username:  conn.User.Username,
		Status:    string(domain.PresenceStatusOnline),
		Timestamp: nowStamp(),
	})
	log.Info("connection registered")
}

// Disconnected broadcasts a presence update for every disconnect and marks
// the store offline only when the identity's last connection anywhere went
// away, before the registry state is released. There is no reconnection
// grace period; the client retries with backoff.
func (s *PresenceService) Disconnected(ctx context.Context, conn *realtime.Connection) {
	const op = "service.presence.disconnected"
	log := s.log.With(
		slog.String("op", op),
		slog.String("user_id", conn.User.ID.String()),
		slog.String("conn_id", conn.ID),
	)

	last := s.registry.ConnCount(conn.User.ID) <= 1
	if count, err := s.presence.RemoveConnection(ctx, conn.User.ID); err != nil {
		log.Error("presence refcount failed", sl.Err(err))
	} else {
		last = count == 0
	}

	status := domain.PresenceStatusOnline
	if last {
		status = domain.PresenceStatusOffline
		if err := s.presence.MarkOffline(ctx, conn.User.ID); err != nil {
			log.Error("presence store write failed", sl.Err(err))
		}
	}

	s.registry.BroadcastAll(domain.EventPresenceUpdate, PresenceUpdatePayload{
		UserID:    conn.User.ID.String(),
		Username:  conn.User.Username,
		Status:    string(status),
		Timestamp: nowStamp(),
	})

	s.registry.Unregister(conn)
	log.Info("connection released")
}

// Heartbeat refreshes the record's last-seen timestamp and expiry without
// changing status.
func (s *PresenceService) Heartbeat(ctx context.Context, userID uuid.UUID) error {
	const op = "service.presence.heartbeat"

	err := s.presence.Heartbeat(ctx, userID)
	if errors.Is(err, repository.ErrPresenceNotFound) {
		return ErrUnknownIdentity
	}
	if err != nil {
		s.log.Error("heartbeat failed",
			slog.String("op", op),
			slog.String("user_id", userID.String()),
			sl.Err(err),
		)
		return err
	}
	return nil
}

func (s *PresenceService) ListOnline(ctx context.Context) ([]*domain.PresenceRecord, error) {
	ids, err := s.presence.ListOnline(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]*domain.PresenceRecord, 0, len(ids))
	for _, id := range ids {
		record, err := s.presence.Get(ctx, id)
		if errors.Is(err, repository.ErrPresenceNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}
