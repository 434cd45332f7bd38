package service

import (
	"time"

	"github.com/AtharvaKatiyar/WRAITHNET-sub000/internal/domain"
)

// Wire payloads for server-emitted events. Field names follow the client
// protocol (camelCase), timestamps are RFC3339.

type ConnectionSuccessPayload struct {
	UserID    string `json:"userId"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type HeartbeatAckPayload struct {
	Timestamp string `json:"timestamp"`
}

type PresenceUpdatePayload struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type MessagePayload struct {
	ID        string  `json:"id"`
	UserID    *string `json:"userId,omitempty"`
	Username  string  `json:"username"`
	Content   string  `json:"content"`
	IsGhost   bool    `json:"isGhost"`
	Timestamp string  `json:"timestamp"`
}

type HistoryPayload struct {
	Messages  []MessagePayload `json:"messages"`
	Timestamp string           `json:"timestamp"`
}

type ChatErrorPayload struct {
	Message string `json:"message"`
}

type RoomNoticePayload struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Timestamp string `json:"timestamp"`
}

func toMessagePayload(msg *domain.ChatMessage) MessagePayload {
	payload := MessagePayload{
		ID:        msg.ID.String(),
		Username:  msg.Username,
		Content:   msg.Content,
		IsGhost:   msg.IsGhost,
		Timestamp: msg.CreatedAt.UTC().Format(time.RFC3339),
	}
	if msg.UserID != nil {
		id := msg.UserID.String()
		payload.UserID = &id
	}
	return payload
}

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
