package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/AtharvaKatiyar/WRAITHNET-sub000/internal/domain"
	"github.com/AtharvaKatiyar/WRAITHNET-sub000/internal/repository"
	"github.com/AtharvaKatiyar/WRAITHNET-sub000/internal/trigger"
	"github.com/AtharvaKatiyar/WRAITHNET-sub000/lib/logger/sl"
)

// Intensity nudges applied per intervention.
const (
	transitionIntensityDelta   = 10
	interventionIntensityDelta = 5
)

// WraithService is the mood state machine. All four moods form a complete
// graph, so TransitionTo always succeeds; every mutation goes through the
// repository's atomic mutate so concurrent writers never lose an update.
type WraithService struct {
	states repository.WraithStateRepository
	log    *slog.Logger
}

func NewWraithService(states repository.WraithStateRepository, log *slog.Logger) *WraithService {
	if log == nil {
		log = slog.Default()
	}
	return &WraithService{states: states, log: log}
}

func (s *WraithService) State(ctx context.Context) (*domain.WraithState, error) {
	return s.states.Get(ctx)
}

func (s *WraithService) TransitionTo(ctx context.Context, mood domain.Mood, reason string) (*domain.WraithState, error) {
	const op = "service.wraith.transition"

	if !mood.Valid() {
		return nil, errors.New("unknown mood: " + string(mood))
	}

	state, err := s.states.Mutate(ctx, func(state *domain.WraithState) error {
		applyTransition(state, mood, domain.TriggerNarrative, map[string]any{"reason": reason})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("mood transition",
		slog.String("op", op),
		slog.String("mood", string(state.Mood)),
		slog.String("reason", reason),
	)
	return state, nil
}

func (s *WraithService) UpdateIntensity(ctx context.Context, delta int) (*domain.WraithState, error) {
	return s.states.Mutate(ctx, func(state *domain.WraithState) error {
		state.Intensity = domain.ClampIntensity(state.Intensity + delta)
		return nil
	})
}

// RecordIntervention appends to history and refreshes the last-intervention
// timestamp without changing mood. Used when the winning trigger's target
// mood equals the current one: a no-op transition that still counts.
func (s *WraithService) RecordIntervention(ctx context.Context, triggerType domain.TriggerType, payload map[string]any) (*domain.WraithState, error) {
	return s.states.Mutate(ctx, func(state *domain.WraithState) error {
		applyIntervention(state, triggerType, payload)
		return nil
	})
}

func (s *WraithService) Reset(ctx context.Context) (*domain.WraithState, error) {
	const op = "service.wraith.reset"

	state, err := s.states.Reset(ctx)
	if err != nil {
		return nil, err
	}
	s.log.Info("wraith state reset", slog.String("op", op))
	return state, nil
}

// ProcessTriggers applies the highest-priority proposal from one evaluation
// batch as a single atomic mutation. It returns the applied result, or nil
// when the batch was empty. A store failure is reported to the caller, which
// treats it as fail-open: the batch is dropped, the engine keeps running.
func (s *WraithService) ProcessTriggers(ctx context.Context, results []trigger.Result) (*domain.WraithState, *trigger.Result, error) {
	const op = "service.wraith.process"

	if len(results) == 0 {
		return nil, nil, nil
	}

	top := results[0]
	for _, r := range results[1:] {
		if r.Priority > top.Priority {
			top = r
		}
	}

	state, err := s.states.Mutate(ctx, func(state *domain.WraithState) error {
		payload := map[string]any{"reason": top.Reason}
		if state.Mood == top.Mood {
			applyIntervention(state, top.Type, payload)
			return nil
		}
		applyTransition(state, top.Mood, top.Type, payload)
		return nil
	})
	if err != nil {
		s.log.Error("trigger batch not applied",
			slog.String("op", op),
			slog.String("trigger", string(top.Type)),
			sl.Err(err),
		)
		return nil, nil, err
	}

	s.log.Info("trigger applied",
		slog.String("op", op),
		slog.String("trigger", string(top.Type)),
		slog.String("mood", string(state.Mood)),
		slog.Int("intensity", state.Intensity),
	)
	return state, &top, nil
}

func applyTransition(state *domain.WraithState, mood domain.Mood, triggerType domain.TriggerType, payload map[string]any) {
	now := time.Now().UTC()
	state.History = append(state.History, domain.TriggerEvent{
		Type:      triggerType,
		Payload:   payload,
		Mood:      mood,
		Timestamp: now,
	})
	state.Mood = mood
	state.Intensity = domain.ClampIntensity(state.Intensity + transitionIntensityDelta)
	state.LastIntervention = now
}

func applyIntervention(state *domain.WraithState, triggerType domain.TriggerType, payload map[string]any) {
	now := time.Now().UTC()
	state.History = append(state.History, domain.TriggerEvent{
		Type:      triggerType,
		Payload:   payload,
		Mood:      state.Mood,
		Timestamp: now,
	})
	state.Intensity = domain.ClampIntensity(state.Intensity + interventionIntensityDelta)
	state.LastIntervention = now
}
