package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is the authenticated identity behind one or more live connections.
type User struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

func NewUser(username string) *User {
	return &User{
		ID:        uuid.New(),
		Username:  username,
		CreatedAt: time.Now().UTC(),
	}
}
