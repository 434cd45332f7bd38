package service

import (
	"context"

	"github.com/AtharvaKatiyar/WRAITHNET-sub000/internal/domain"
	"github.com/AtharvaKatiyar/WRAITHNET-sub000/internal/realtime"
	"github.com/AtharvaKatiyar/WRAITHNET-sub000/internal/trigger"
	"github.com/google/uuid"
)

type ChatInteractor interface {
	Join(ctx context.Context, conn *realtime.Connection) error
	Leave(ctx context.Context, conn *realtime.Connection)
	Send(ctx context.Context, conn *realtime.Connection, content string) error
	SilenceSweep(ctx context.Context)
}

type PresenceInteractor interface {
	Connected(ctx context.Context, conn *realtime.Connection)
	Disconnected(ctx context.Context, conn *realtime.Connection)
	Heartbeat(ctx context.Context, userID uuid.UUID) error
	ListOnline(ctx context.Context) ([]*domain.PresenceRecord, error)
}

type WraithInteractor interface {
	State(ctx context.Context) (*domain.WraithState, error)
	TransitionTo(ctx context.Context, mood domain.Mood, reason string) (*domain.WraithState, error)
	UpdateIntensity(ctx context.Context, delta int) (*domain.WraithState, error)
	RecordIntervention(ctx context.Context, triggerType domain.TriggerType, payload map[string]any) (*domain.WraithState, error)
	Reset(ctx context.Context) (*domain.WraithState, error)
	ProcessTriggers(ctx context.Context, results []trigger.Result) (*domain.WraithState, *trigger.Result, error)
}
