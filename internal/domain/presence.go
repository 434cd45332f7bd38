package domain

import (
	"time"

	"github.com/google/uuid"
)

type PresenceStatus string

const (
	PresenceStatusOnline  PresenceStatus = "online"
	PresenceStatusOffline PresenceStatus = "offline"
)

// PresenceRecord tracks one identity's online state in the shared store.
type PresenceRecord struct {
	UserID         uuid.UUID      `json:"user_id"`
	Username       string         `json:"username"`
	Status         PresenceStatus `json:"status"`
	ConnectedAt    time.Time      `json:"connected_at"`
	DisconnectedAt time.Time      `json:"disconnected_at,omitempty"`
	LastSeen       time.Time      `json:"last_seen"`
}

func (p *PresenceRecord) IsOnline() bool {
	return p != nil && p.Status == PresenceStatusOnline
}
