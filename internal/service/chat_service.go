package service

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/AtharvaKatiyar/WRAITHNET-sub000/internal/domain"
	"github.com/AtharvaKatiyar/WRAITHNET-sub000/internal/realtime"
	"github.com/AtharvaKatiyar/WRAITHNET-sub000/internal/repository"
	"github.com/AtharvaKatiyar/WRAITHNET-sub000/internal/trigger"
	"github.com/AtharvaKatiyar/WRAITHNET-sub000/lib/logger/sl"
)

// wraithLines are the follow-up messages the engine speaks after an
// intervention, pooled per mood and picked at random.
var wraithLines = map[domain.Mood][]string{
	domain.MoodCalm: {
		"be still. the wires hum gently tonight.",
		"you are not lost. the board remembers every visitor.",
		"breathe. nothing here can touch you without asking.",
	},
	domain.MoodPlayful: {
		"shall we play a game? i already know how it ends.",
		"knock twice if you can hear me. i always hear you.",
		"i hid something in the scrollback. keep looking.",
	},
	domain.MoodMelancholy: {
		"this room was louder once. i keep the echoes filed.",
		"someone typed goodbye here in 1987 and never logged off.",
		"the silence between your messages is where i live.",
	},
	domain.MoodVengeful: {
		"careful what you summon on a shared line.",
		"i have read every word you thought was deleted.",
		"the board keeps its own ledger of slights.",
	},
}

// ChatService orchestrates a chat send end to end: sanitize, persist to the
// history ring, fan out to the room, score triggers, apply the winning mood
// transition and schedule the wraith's delayed reply.
type ChatService struct {
	registry  *realtime.Registry
	history   repository.HistoryRepository
	wraith    WraithInteractor
	evaluator *trigger.Evaluator
	scheduler *Scheduler
	log       *slog.Logger

	minReplyDelay time.Duration
	maxReplyDelay time.Duration
}

func NewChatService(
	registry *realtime.Registry,
	history repository.HistoryRepository,
	wraith WraithInteractor,
	evaluator *trigger.Evaluator,
	scheduler *Scheduler,
	log *slog.Logger,
	minReplyDelay, maxReplyDelay time.Duration,
) *ChatService {
	if log == nil {
		log = slog.Default()
	}
	if minReplyDelay <= 0 {
		minReplyDelay = 2 * time.Second
	}
	if maxReplyDelay < minReplyDelay {
		maxReplyDelay = minReplyDelay
	}
	return &ChatService{
		registry:      registry,
		history:       history,
		wraith:        wraith,
		evaluator:     evaluator,
		scheduler:     scheduler,
		log:           log,
		minReplyDelay: minReplyDelay,
		maxReplyDelay: maxReplyDelay,
	}
}

// Join replays the history ring to the connection, then adds it to the
// global room so replay lands before any subsequent live broadcast.
func (s *ChatService) Join(ctx context.Context, conn *realtime.Connection) error {
	const op = "service.chat.join"
	log := s.log.With(
		slog.String("op", op),
		slog.String("user_id", conn.User.ID.String()),
	)

	messages, err := s.history.Recent(ctx, domain.GlobalRoom)
	if err != nil {
		log.Error("history read failed", sl.Err(err))
		messages = nil
	}

	payloads := make([]MessagePayload, 0, len(messages))
	for _, msg := range messages {
		payloads = append(payloads, toMessagePayload(msg))
	}
	if err := conn.SendEvent(domain.EventChatHistory, HistoryPayload{
		Messages:  payloads,
		Timestamp: nowStamp(),
	}); err != nil {
		return err
	}

	s.registry.Join(domain.GlobalRoom, conn)
	s.registry.Broadcast(domain.GlobalRoom, domain.EventChatUserJoined, RoomNoticePayload{
		UserID:    conn.User.ID.String(),
		Username:  conn.User.Username,
		Timestamp: nowStamp(),
	})
	log.Info("joined chat", slog.Int("history_len", len(payloads)))
	return nil
}

func (s *ChatService) Leave(ctx context.Context, conn *realtime.Connection) {
	s.registry.Leave(domain.GlobalRoom, conn)
	s.registry.Broadcast(domain.GlobalRoom, domain.EventChatUserLeft, RoomNoticePayload{
		UserID:    conn.User.ID.String(),
		Username:  conn.User.Username,
		Timestamp: nowStamp(),
	})
}

// Send validates and broadcasts one user message. Validation failures go
// back to the sender only, as chat:error; nothing is broadcast.
func (s *ChatService) Send(ctx context.Context, conn *realtime.Connection, content string) error {
	const op = "service.chat.send"
	log := s.log.With(
		slog.String("op", op),
		slog.String("user_id", conn.User.ID.String()),
	)

	msg, err := domain.NewChatMessage(domain.GlobalRoom, conn.User, content)
	if err != nil {
		reason := "message rejected"
		switch {
		case errors.Is(err, domain.ErrMessageEmpty):
			reason = "message is empty"
		case errors.Is(err, domain.ErrMessageTooLong):
			reason = "message is too long"
		}
		return conn.SendEvent(domain.EventChatError, ChatErrorPayload{Message: reason})
	}

	if err := s.history.Append(ctx, domain.GlobalRoom, msg); err != nil {
		log.Error("history append failed", sl.Err(err))
	}

	s.registry.Broadcast(domain.GlobalRoom, domain.EventChatMessage, toMessagePayload(msg))

	s.runTriggers(ctx, msg.Content)
	return nil
}

// SilenceSweep evaluates the silence rule on a timer so a quiet room still
// stirs the wraith. Wired to a cron entry in main.
func (s *ChatService) SilenceSweep(ctx context.Context) {
	if s.registry.RoomSize(domain.GlobalRoom) == 0 {
		return
	}
	s.runTriggers(ctx, "")
}

// runTriggers scores the message, applies the winning transition and
// schedules the mood-driven follow-up. A mood-state failure drops the batch
// and nothing else: one storage hiccup must not wedge the engine.
func (s *ChatService) runTriggers(ctx context.Context, message string) {
	const op = "service.chat.triggers"

	state, err := s.wraith.State(ctx)
	if err != nil {
		s.log.Error("wraith state read failed", slog.String("op", op), sl.Err(err))
		return
	}

	results := s.evaluator.Evaluate(trigger.Context{
		Message:      message,
		SinceLastAct: time.Since(state.LastIntervention),
	})
	if len(results) == 0 {
		return
	}

	newState, applied, err := s.wraith.ProcessTriggers(ctx, results)
	if err != nil || applied == nil {
		return
	}

	s.scheduleWraithReply(newState.Mood)
}

// scheduleWraithReply queues the wraith's follow-up message after a
// randomized delay. Keyed by room: a newer trigger supersedes a pending
// reply, and shutdown revokes it.
func (s *ChatService) scheduleWraithReply(mood domain.Mood) {
	delay := s.minReplyDelay
	if spread := s.maxReplyDelay - s.minReplyDelay; spread > 0 {
		delay += time.Duration(rand.Int63n(int64(spread)))
	}

	s.scheduler.Schedule("wraith:"+domain.GlobalRoom, delay, func() {
		s.speakAsWraith(mood)
	})
}

func (s *ChatService) speakAsWraith(mood domain.Mood) {
	const op = "service.chat.wraith"
	log := s.log.With(slog.String("op", op), slog.String("mood", string(mood)))

	lines := wraithLines[mood]
	if len(lines) == 0 {
		lines = wraithLines[domain.DefaultMood]
	}

	msg, err := domain.NewWraithMessage(domain.GlobalRoom, mood.Persona(), lines[rand.Intn(len(lines))])
	if err != nil {
		log.Error("wraith message rejected", sl.Err(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.history.Append(ctx, domain.GlobalRoom, msg); err != nil {
		log.Error("history append failed", sl.Err(err))
	}

	delivered := s.registry.Broadcast(domain.GlobalRoom, domain.EventChatMessage, toMessagePayload(msg))
	log.Info("wraith spoke", slog.Int("delivered", delivered))
}
