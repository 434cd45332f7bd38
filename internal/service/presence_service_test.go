package service

import (
	"context"
	"testing"
	"time"

	"github.com/AtharvaKatiyar/WRAITHNET-sub000/internal/domain"
	"github.com/AtharvaKatiyar/WRAITHNET-sub000/internal/realtime"
	"github.com/AtharvaKatiyar/WRAITHNET-sub000/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type presenceFixture struct {
	registry *realtime.Registry
	store    *repository.InMemoryPresenceRepository
	service  *PresenceService
}

func newPresenceFixture(t *testing.T) *presenceFixture {
	t.Helper()

	registry := realtime.NewRegistry(nil)
	t.Cleanup(registry.Close)

	store := repository.NewInMemoryPresenceRepository(time.Hour, 24*time.Hour)
	return &presenceFixture{
		registry: registry,
		store:    store,
		service:  NewPresenceService(registry, store, nil),
	}
}

func TestPresenceConnectedMarksOnlineAndAnnounces(t *testing.T) {
	ctx := context.Background()
	f := newPresenceFixture(t)

	// An already-connected watcher should see the announcement.
	watcherWS := &captureSocket{}
	watcher := realtime.NewConnection(domain.NewUser("watcher"), watcherWS)
	f.service.Connected(ctx, watcher)

	ws := &captureSocket{}
	conn := realtime.NewConnection(domain.NewUser("specter"), ws)
	f.service.Connected(ctx, conn)

	record, err := f.store.Get(ctx, conn.User.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PresenceStatusOnline, record.Status)
	assert.Equal(t, "specter", record.Username)
	assert.True(t, record.IsOnline())

	online, err := f.service.ListOnline(ctx)
	require.NoError(t, err)
	assert.Len(t, online, 2)

	waitForUpdate(t, watcherWS, conn.User.ID.String(), string(domain.PresenceStatusOnline))
}

func TestPresenceDisconnectedMarksOfflineAndAnnounces(t *testing.T) {
	ctx := context.Background()
	f := newPresenceFixture(t)

	watcherWS := &captureSocket{}
	watcher := realtime.NewConnection(domain.NewUser("watcher"), watcherWS)
	f.service.Connected(ctx, watcher)

	conn := realtime.NewConnection(domain.NewUser("specter"), &captureSocket{})
	f.service.Connected(ctx, conn)
	f.service.Disconnected(ctx, conn)

	record, err := f.store.Get(ctx, conn.User.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PresenceStatusOffline, record.Status)
	assert.False(t, record.DisconnectedAt.IsZero())

	online, err := f.service.ListOnline(ctx)
	require.NoError(t, err)
	require.Len(t, online, 1)
	assert.Equal(t, watcher.User.ID, online[0].UserID)

	waitForUpdate(t, watcherWS, conn.User.ID.String(), string(domain.PresenceStatusOffline))
	assert.False(t, f.registry.IsOnline(conn.User.ID))
}

// Two tabs for one identity: the store flips offline only when the last
// connection goes away.
func TestPresenceMultiTabOfflineOnlyOnLastConn(t *testing.T) {
	ctx := context.Background()
	f := newPresenceFixture(t)

	user := domain.NewUser("specter")
	first := realtime.NewConnection(user, &captureSocket{})
	second := realtime.NewConnection(user, &captureSocket{})

	f.service.Connected(ctx, first)
	f.service.Connected(ctx, second)
	assert.Equal(t, 2, f.registry.ConnCount(user.ID))

	f.service.Disconnected(ctx, first)

	record, err := f.store.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PresenceStatusOnline, record.Status, "one tab remains")
	assert.True(t, f.registry.IsOnline(user.ID))

	f.service.Disconnected(ctx, second)

	record, err = f.store.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PresenceStatusOffline, record.Status)
	assert.False(t, f.registry.IsOnline(user.ID))
}

func TestPresenceHeartbeat(t *testing.T) {
	ctx := context.Background()
	f := newPresenceFixture(t)

	conn := realtime.NewConnection(domain.NewUser("specter"), &captureSocket{})
	f.service.Connected(ctx, conn)

	assert.NoError(t, f.service.Heartbeat(ctx, conn.User.ID))
}

func TestPresenceHeartbeatUnknownIdentity(t *testing.T) {
	ctx := context.Background()
	f := newPresenceFixture(t)

	err := f.service.Heartbeat(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrUnknownIdentity)
}

// Two server processes share one presence store. Closing the last tab on one
// process must not flip the store offline while the other process still holds
// a live connection for the same identity.
func TestPresenceSharedAcrossProcesses(t *testing.T) {
	ctx := context.Background()
	store := repository.NewInMemoryPresenceRepository(time.Hour, 24*time.Hour)

	registryA := realtime.NewRegistry(nil)
	t.Cleanup(registryA.Close)
	registryB := realtime.NewRegistry(nil)
	t.Cleanup(registryB.Close)

	processA := NewPresenceService(registryA, store, nil)
	processB := NewPresenceService(registryB, store, nil)

	user := domain.NewUser("specter")
	tabA := realtime.NewConnection(user, &captureSocket{})
	tabB := realtime.NewConnection(user, &captureSocket{})

	processA.Connected(ctx, tabA)
	processB.Connected(ctx, tabB)

	processA.Disconnected(ctx, tabA)

	record, err := store.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, record.IsOnline(), "a tab on another process keeps the identity online")

	online, err := store.ListOnline(ctx)
	require.NoError(t, err)
	assert.Contains(t, online, user.ID)

	processB.Disconnected(ctx, tabB)

	record, err = store.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, record.IsOnline())
}

// Every disconnect announces a presence update; a non-last one carries status
// online so watchers never see an identity with live tabs go dark.
func TestPresenceNonLastDisconnectAnnouncesOnline(t *testing.T) {
	ctx := context.Background()
	f := newPresenceFixture(t)

	watcherWS := &captureSocket{}
	watcher := realtime.NewConnection(domain.NewUser("watcher"), watcherWS)
	f.service.Connected(ctx, watcher)

	user := domain.NewUser("specter")
	first := realtime.NewConnection(user, &captureSocket{})
	second := realtime.NewConnection(user, &captureSocket{})
	f.service.Connected(ctx, first)
	f.service.Connected(ctx, second)

	f.service.Disconnected(ctx, first)

	// Two connects plus the non-last disconnect: three online updates.
	require.Eventually(t, func() bool {
		online := 0
		for _, u := range eventsOf[PresenceUpdatePayload](t, watcherWS, domain.EventPresenceUpdate) {
			if u.UserID == user.ID.String() && u.Status == string(domain.PresenceStatusOnline) {
				online++
			}
		}
		return online == 3
	}, time.Second, 5*time.Millisecond)

	for _, u := range eventsOf[PresenceUpdatePayload](t, watcherWS, domain.EventPresenceUpdate) {
		if u.UserID == user.ID.String() {
			assert.NotEqual(t, string(domain.PresenceStatusOffline), u.Status)
		}
	}
}

func waitForUpdate(t *testing.T, ws *captureSocket, userID, status string) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, u := range eventsOf[PresenceUpdatePayload](t, ws, domain.EventPresenceUpdate) {
			if u.UserID == userID && u.Status == status {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}
