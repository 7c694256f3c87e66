package models

import (
	"time"

	"github.com/google/uuid"
)

const DefaultTagColor = "#000000"

type Tag struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"-"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"-"`
}
