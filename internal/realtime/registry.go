package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/AtharvaKatiyar/WRAITHNET-sub000/internal/domain"
	"github.com/google/uuid"
)

// Registry tracks live connections, their owning identities and their room
// memberships, and fans broadcasts out to room members.
//
// One identity may own several simultaneous connections (multi-tab); the
// most recently registered one is what Resolve returns for directed sends.
type Registry struct {
	log *slog.Logger

	mu        sync.RWMutex
	conns     map[string]*Connection
	userConns map[uuid.UUID][]string            // oldest first, latest last
	rooms     map[string]map[string]*Connection // room -> connID -> conn
	connRooms map[string]map[string]struct{}    // connID -> set of rooms
}

func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		log:       log,
		conns:     make(map[string]*Connection),
		userConns: make(map[uuid.UUID][]string),
		rooms:     make(map[string]map[string]*Connection),
		connRooms: make(map[string]map[string]struct{}),
	}
}

// Register tracks a freshly authenticated connection and starts its write
// loop. FirstForUser reports whether this is the identity's only connection.
func (r *Registry) Register(conn *Connection) (firstForUser bool) {
	r.mu.Lock()
	r.conns[conn.ID] = conn
	existing := r.userConns[conn.User.ID]
	firstForUser = len(existing) == 0
	r.userConns[conn.User.ID] = append(existing, conn.ID)
	r.connRooms[conn.ID] = make(map[string]struct{})
	r.mu.Unlock()

	conn.Start()
	return firstForUser
}

// Unregister removes a connection and every room membership it held.
// LastForUser reports whether the identity no longer owns any connection.
func (r *Registry) Unregister(conn *Connection) (lastForUser bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[conn.ID]; !ok {
		return len(r.userConns[conn.User.ID]) == 0
	}
	delete(r.conns, conn.ID)

	ids := r.userConns[conn.User.ID]
	for i, id := range ids {
		if id == conn.ID {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(r.userConns, conn.User.ID)
	} else {
		r.userConns[conn.User.ID] = ids
	}

	for room := range r.connRooms[conn.ID] {
		r.leaveLocked(room, conn.ID)
	}
	delete(r.connRooms, conn.ID)

	return len(ids) == 0
}

// ConnCount reports how many live connections the identity owns.
func (r *Registry) ConnCount(userID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.userConns[userID])
}

// IsOnline reports whether the identity owns at least one live connection.
func (r *Registry) IsOnline(userID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.userConns[userID]) > 0
}

// Resolve returns the identity's latest connection. An unknown identity is
// not an error; callers treat it as "message undeliverable".
func (r *Registry) Resolve(userID uuid.UUID) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.userConns[userID]
	if len(ids) == 0 {
		return nil, false
	}
	conn, ok := r.conns[ids[len(ids)-1]]
	return conn, ok
}

// Join adds the connection to a room. Replay of recent history happens in
// the service layer before any live broadcast reaches the new member.
func (r *Registry) Join(room string, conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[conn.ID]; !ok {
		return
	}

	members := r.rooms[room]
	if members == nil {
		members = make(map[string]*Connection)
		r.rooms[room] = members
	}
	members[conn.ID] = conn
	r.connRooms[conn.ID][room] = struct{}{}
}

// Leave removes the connection from a room.
func (r *Registry) Leave(room string, conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(room, conn.ID)
}

// Broadcast delivers the event exactly once to every connection currently in
// the room. The exclusive lock is held while enqueuing so that concurrent
// broadcasts cannot interleave: every member observes the same order.
func (r *Registry) Broadcast(room string, event string, data any) int {
	frame, err := encodeFrame(event, data)
	if err != nil {
		r.log.Error("broadcast encode failed", slog.String("event", event), slog.Any("error", err))
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delivered := 0
	for _, conn := range r.rooms[room] {
		if err := conn.Send(frame); err == nil {
			delivered++
		}
	}
	return delivered
}

// BroadcastAll delivers the event to every registered connection, room
// membership aside. Used for presence updates.
func (r *Registry) BroadcastAll(event string, data any) int {
	frame, err := encodeFrame(event, data)
	if err != nil {
		r.log.Error("broadcast encode failed", slog.String("event", event), slog.Any("error", err))
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delivered := 0
	for _, conn := range r.conns {
		if err := conn.Send(frame); err == nil {
			delivered++
		}
	}
	return delivered
}

// SendToUser delivers the event to the identity's resolved connection. An
// unresolved identity is a logged no-op, not an error: the caller may be the
// wraith engine, which has no client to report to.
func (r *Registry) SendToUser(userID uuid.UUID, event string, data any) bool {
	conn, ok := r.Resolve(userID)
	if !ok {
		r.log.Warn("send to unresolved identity dropped",
			slog.String("user_id", userID.String()),
			slog.String("event", event),
		)
		return false
	}

	if err := conn.SendEvent(event, data); err != nil {
		r.log.Warn("send to identity failed",
			slog.String("user_id", userID.String()),
			slog.String("event", event),
		)
		return false
	}
	return true
}

// RoomSize reports the member count of a room.
func (r *Registry) RoomSize(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

// Close terminates every tracked connection and clears registry state.
func (r *Registry) Close() {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		conns = append(conns, conn)
	}
	r.conns = make(map[string]*Connection)
	r.userConns = make(map[uuid.UUID][]string)
	r.rooms = make(map[string]map[string]*Connection)
	r.connRooms = make(map[string]map[string]struct{})
	r.mu.Unlock()

	for _, conn := range conns {
		conn.Close(1001, "server shutting down")
	}
}

func (r *Registry) leaveLocked(room string, connID string) {
	members := r.rooms[room]
	if members == nil {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
	if memberships, ok := r.connRooms[connID]; ok {
		delete(memberships, room)
	}
}

func encodeFrame(event string, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(domain.Envelope{Event: event, Data: payload})
}
