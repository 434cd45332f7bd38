package domain

import "encoding/json"

// Wire event names, client and server side.
const (
	EventConnectionSuccess = "connection:success"
	EventHeartbeat         = "presence:heartbeat"
	EventHeartbeatAck      = "presence:heartbeat:ack"
	EventPresenceUpdate    = "presence:update"
	EventChatJoin          = "chat:join"
	EventChatLeave         = "chat:leave"
	EventChatSend          = "chat:send"
	EventChatMessage       = "chat:message"
	EventChatHistory       = "chat:history"
	EventChatError         = "chat:error"
	EventChatUserJoined    = "chat:user-joined"
	EventChatUserLeft      = "chat:user-left"
)

// GlobalRoom is the single primary chat room.
const GlobalRoom = "global"

// Envelope is the frame format on the websocket: one JSON object per text
// frame carrying the event name and its payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}
