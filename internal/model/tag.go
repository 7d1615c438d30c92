package model

import "time"

// Tag is a label attached to topics. Tag names are normalized by the
// provider that produced them.
type Tag struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
