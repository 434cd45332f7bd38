package domain

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
)

const maxMessageLength = 1000

var (
	ErrMessageEmpty   = errors.New("message is empty")
	ErrMessageTooLong = errors.New("message is too long")
)

var stripPolicy = bluemonday.StrictPolicy()

// ChatMessage is immutable once created. UserID is nil for wraith-authored
// messages, which carry the mood persona as Username instead.
type ChatMessage struct {
	ID        uuid.UUID  `json:"id"`
	RoomID    string     `json:"room_id"`
	UserID    *uuid.UUID `json:"user_id,omitempty"`
	Username  string     `json:"username"`
	Content   string     `json:"content"`
	IsGhost   bool       `json:"is_ghost"`
	CreatedAt time.Time  `json:"created_at"`
}

// NewChatMessage builds a user-authored message with sanitized content.
// The raw content is stripped of HTML, whitespace-collapsed and length-checked.
func NewChatMessage(roomID string, user *User, content string) (*ChatMessage, error) {
	clean, err := SanitizeContent(content)
	if err != nil {
		return nil, err
	}

	msg := &ChatMessage{
		ID:        newMessageID(),
		RoomID:    roomID,
		Username:  "anonymous",
		Content:   clean,
		CreatedAt: time.Now().UTC(),
	}
	if user != nil {
		id := user.ID
		msg.UserID = &id
		msg.Username = user.Username
	}
	return msg, nil
}

// NewWraithMessage builds a mood-engine message authored under a persona name.
// Persona content is trusted, but it still goes through the same sanitizer so
// nothing with markup ever reaches a client.
func NewWraithMessage(roomID string, persona string, content string) (*ChatMessage, error) {
	clean, err := SanitizeContent(content)
	if err != nil {
		return nil, err
	}

	return &ChatMessage{
		ID:        newMessageID(),
		RoomID:    roomID,
		Username:  persona,
		Content:   clean,
		IsGhost:   true,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// SanitizeContent strips HTML, collapses runs of whitespace and enforces the
// length bound. It returns ErrMessageEmpty when nothing survives stripping.
func SanitizeContent(content string) (string, error) {
	stripped := stripPolicy.Sanitize(content)
	collapsed := strings.Join(strings.Fields(stripped), " ")
	if collapsed == "" {
		return "", ErrMessageEmpty
	}
	if utf8.RuneCountInString(collapsed) > maxMessageLength {
		return "", ErrMessageTooLong
	}
	return collapsed, nil
}

// newMessageID returns a generation-ordered id. V7 ids sort by creation time,
// which keeps the history ring ordering stable even across processes.
func newMessageID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}
