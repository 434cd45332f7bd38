package service

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/AtharvaKatiyar/WRAITHNET-sub000/internal/domain"
	"github.com/AtharvaKatiyar/WRAITHNET-sub000/internal/realtime"
	"github.com/AtharvaKatiyar/WRAITHNET-sub000/internal/repository"
	"github.com/AtharvaKatiyar/WRAITHNET-sub000/internal/trigger"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSocket struct {
	mu     sync.Mutex
	frames [][]byte
}

func (s *captureSocket) SetWriteDeadline(time.Time) error { return nil }

func (s *captureSocket) WriteMessage(messageType int, data []byte) error {
	if messageType != websocket.TextMessage {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	frame := make([]byte, len(data))
	copy(frame, data)
	s.frames = append(s.frames, frame)
	return nil
}

func (s *captureSocket) WriteControl(int, []byte, time.Time) error { return nil }
func (s *captureSocket) Close() error                              { return nil }

func (s *captureSocket) envelopes(t *testing.T) []domain.Envelope {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Envelope, 0, len(s.frames))
	for _, frame := range s.frames {
		var env domain.Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		out = append(out, env)
	}
	return out
}

// eventsOf filters captured envelopes by event name and decodes the payloads.
func eventsOf[T any](t *testing.T, ws *captureSocket, event string) []T {
	t.Helper()

	var out []T
	for _, env := range ws.envelopes(t) {
		if env.Event != event {
			continue
		}
		var payload T
		require.NoError(t, json.Unmarshal(env.Data, &payload))
		out = append(out, payload)
	}
	return out
}

type chatFixture struct {
	registry *realtime.Registry
	history  repository.HistoryRepository
	wraith   *WraithService
	chat     *ChatService
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()

	registry := realtime.NewRegistry(nil)
	t.Cleanup(registry.Close)

	history := repository.NewInMemoryHistoryRepository()
	wraith := NewWraithService(repository.NewInMemoryWraithStateRepository(), nil)
	scheduler := NewScheduler(nil)
	t.Cleanup(scheduler.Stop)

	chat := NewChatService(
		registry,
		history,
		wraith,
		trigger.NewEvaluator(60*time.Second),
		scheduler,
		nil,
		20*time.Millisecond,
		40*time.Millisecond,
	)
	return &chatFixture{registry: registry, history: history, wraith: wraith, chat: chat}
}

func (f *chatFixture) connect(t *testing.T, username string) (*realtime.Connection, *captureSocket) {
	t.Helper()
	ws := &captureSocket{}
	conn := realtime.NewConnection(domain.NewUser(username), ws)
	f.registry.Register(conn)
	return conn, ws
}

func TestChatJoinDeliversHistoryFirst(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)

	seeder := domain.NewUser("seeder")
	for i := 0; i < 3; i++ {
		msg, err := domain.NewChatMessage(domain.GlobalRoom, seeder, "old message "+strconv.Itoa(i))
		require.NoError(t, err)
		require.NoError(t, f.history.Append(ctx, domain.GlobalRoom, msg))
	}

	conn, ws := f.connect(t, "caretaker")
	require.NoError(t, f.chat.Join(ctx, conn))

	require.Eventually(t, func() bool {
		return len(ws.envelopes(t)) >= 2
	}, time.Second, 5*time.Millisecond)

	envelopes := ws.envelopes(t)
	assert.Equal(t, domain.EventChatHistory, envelopes[0].Event, "history must land before live traffic")
	assert.Equal(t, domain.EventChatUserJoined, envelopes[1].Event)

	histories := eventsOf[HistoryPayload](t, ws, domain.EventChatHistory)
	require.Len(t, histories, 1)
	require.Len(t, histories[0].Messages, 3)
	assert.Equal(t, "old message 0", histories[0].Messages[0].Content)
	assert.Equal(t, "old message 2", histories[0].Messages[2].Content)
}

func TestChatSendBroadcastsToRoomInOrder(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)

	sender, _ := f.connect(t, "sender")
	receiver, receiverWS := f.connect(t, "receiver")
	require.NoError(t, f.chat.Join(ctx, sender))
	require.NoError(t, f.chat.Join(ctx, receiver))

	const n = 5
	for i := 0; i < n; i++ {
		require.NoError(t, f.chat.Send(ctx, sender, "hello "+strconv.Itoa(i)))
	}

	// Settle window, then the receiver has exactly n chat messages in order.
	time.Sleep(500 * time.Millisecond)

	messages := eventsOf[MessagePayload](t, receiverWS, domain.EventChatMessage)
	userMessages := make([]MessagePayload, 0, len(messages))
	for _, m := range messages {
		if !m.IsGhost {
			userMessages = append(userMessages, m)
		}
	}
	require.Len(t, userMessages, n)
	for i, m := range userMessages {
		assert.Equal(t, "hello "+strconv.Itoa(i), m.Content)
		assert.Equal(t, "sender", m.Username)
		require.NotNil(t, m.UserID)
		assert.Equal(t, sender.User.ID.String(), *m.UserID)

		_, err := time.Parse(time.RFC3339, m.Timestamp)
		assert.NoError(t, err)
	}
}

func TestChatSendPersistsToHistory(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)

	sender, _ := f.connect(t, "sender")
	require.NoError(t, f.chat.Join(ctx, sender))
	require.NoError(t, f.chat.Send(ctx, sender, "remember me"))

	recent, err := f.history.Recent(ctx, domain.GlobalRoom)
	require.NoError(t, err)
	require.NotEmpty(t, recent)
	assert.Equal(t, "remember me", recent[len(recent)-1].Content)
}

func TestChatSendRejectsInvalidContent(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)

	sender, senderWS := f.connect(t, "sender")
	observer, observerWS := f.connect(t, "observer")
	require.NoError(t, f.chat.Join(ctx, sender))
	require.NoError(t, f.chat.Join(ctx, observer))

	tests := []struct {
		name    string
		content string
	}{
		{"whitespace only", "   \t  "},
		{"tags sanitize to empty", "<b></b>"},
		{"too long", longString(1100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, f.chat.Send(ctx, sender, tt.content))
		})
	}

	time.Sleep(100 * time.Millisecond)

	chatErrors := eventsOf[ChatErrorPayload](t, senderWS, domain.EventChatError)
	assert.Len(t, chatErrors, len(tests), "every rejection goes back to the sender")

	// Nothing was broadcast: the observer saw joins but no chat:message.
	assert.Empty(t, eventsOf[MessagePayload](t, observerWS, domain.EventChatMessage))
	assert.Empty(t, eventsOf[ChatErrorPayload](t, observerWS, domain.EventChatError))
}

func TestChatSendStripsMarkup(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)

	sender, _ := f.connect(t, "sender")
	receiver, receiverWS := f.connect(t, "receiver")
	require.NoError(t, f.chat.Join(ctx, sender))
	require.NoError(t, f.chat.Join(ctx, receiver))

	require.NoError(t, f.chat.Send(ctx, sender, `<script>alert(1)</script>a haunting`))

	require.Eventually(t, func() bool {
		return len(eventsOf[MessagePayload](t, receiverWS, domain.EventChatMessage)) > 0
	}, time.Second, 5*time.Millisecond)

	messages := eventsOf[MessagePayload](t, receiverWS, domain.EventChatMessage)
	assert.NotContains(t, messages[0].Content, "<")
	assert.NotContains(t, messages[0].Content, ">")
}

func TestChatKeywordTriggerSummonsWraith(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)

	// Start somewhere other than calm so "help" forces a transition.
	_, err := f.wraith.TransitionTo(ctx, domain.MoodVengeful, "setup")
	require.NoError(t, err)

	sender, senderWS := f.connect(t, "sender")
	require.NoError(t, f.chat.Join(ctx, sender))
	require.NoError(t, f.chat.Send(ctx, sender, "I need help"))

	state, err := f.wraith.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.MoodCalm, state.Mood)

	// The delayed wraith reply arrives under the calm persona.
	require.Eventually(t, func() bool {
		for _, m := range eventsOf[MessagePayload](t, senderWS, domain.EventChatMessage) {
			if m.IsGhost {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	var ghost MessagePayload
	for _, m := range eventsOf[MessagePayload](t, senderWS, domain.EventChatMessage) {
		if m.IsGhost {
			ghost = m
			break
		}
	}
	assert.Equal(t, domain.MoodCalm.Persona(), ghost.Username)
	assert.Nil(t, ghost.UserID)

	// The reply is part of the shared history too.
	recent, err := f.history.Recent(ctx, domain.GlobalRoom)
	require.NoError(t, err)
	assert.True(t, recent[len(recent)-1].IsGhost)
}

func TestChatNeutralMessageLeavesMoodAlone(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)

	sender, _ := f.connect(t, "sender")
	require.NoError(t, f.chat.Join(ctx, sender))

	before, err := f.wraith.State(ctx)
	require.NoError(t, err)

	require.NoError(t, f.chat.Send(ctx, sender, "the corridor stretches on"))

	after, err := f.wraith.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.Mood, after.Mood)
	assert.Len(t, after.History, len(before.History))
}

func TestChatLeaveBroadcastsNotice(t *testing.T) {
	ctx := context.Background()
	f := newChatFixture(t)

	leaver, leaverWS := f.connect(t, "leaver")
	observer, observerWS := f.connect(t, "observer")
	require.NoError(t, f.chat.Join(ctx, leaver))
	require.NoError(t, f.chat.Join(ctx, observer))

	f.chat.Leave(ctx, leaver)

	require.Eventually(t, func() bool {
		return len(eventsOf[RoomNoticePayload](t, observerWS, domain.EventChatUserLeft)) == 1
	}, time.Second, 5*time.Millisecond)

	notices := eventsOf[RoomNoticePayload](t, observerWS, domain.EventChatUserLeft)
	assert.Equal(t, "leaver", notices[0].Username)

	// The departed member no longer receives broadcasts.
	require.NoError(t, f.chat.Send(ctx, observer, "quiet in here tonight"))
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, eventsOf[MessagePayload](t, leaverWS, domain.EventChatMessage))
}

// A mood-store failure drops the trigger batch but must not block the chat
// message itself.
func TestChatSendFailOpenOnMoodStoreFailure(t *testing.T) {
	ctx := context.Background()

	registry := realtime.NewRegistry(nil)
	t.Cleanup(registry.Close)
	scheduler := NewScheduler(nil)
	t.Cleanup(scheduler.Stop)

	chat := NewChatService(
		registry,
		repository.NewInMemoryHistoryRepository(),
		NewWraithService(&failingStateRepo{}, nil),
		trigger.NewEvaluator(60*time.Second),
		scheduler,
		nil,
		20*time.Millisecond,
		40*time.Millisecond,
	)

	ws := &captureSocket{}
	conn := realtime.NewConnection(domain.NewUser("sender"), ws)
	registry.Register(conn)
	require.NoError(t, chat.Join(ctx, conn))

	require.NoError(t, chat.Send(ctx, conn, "I need help"))

	require.Eventually(t, func() bool {
		for _, m := range eventsOf[MessagePayload](t, ws, domain.EventChatMessage) {
			if m.Content == "I need help" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

type failingStateRepo struct{}

func (r *failingStateRepo) Get(context.Context) (*domain.WraithState, error) {
	return nil, assert.AnError
}

func (r *failingStateRepo) Mutate(context.Context, func(*domain.WraithState) error) (*domain.WraithState, error) {
	return nil, assert.AnError
}

func (r *failingStateRepo) Reset(context.Context) (*domain.WraithState, error) {
	return nil, assert.AnError
}

func longString(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'x'
	}
	return string(b)
}
