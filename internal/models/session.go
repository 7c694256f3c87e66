package models

import (
	"time"

	"github.com/google/uuid"
)

// Session maps an opaque access token (its ID) to a user until ExpiresAt.
type Session struct {
	ID        string
	UserID    uuid.UUID
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
