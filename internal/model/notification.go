package model

import "time"

// Notification 通知
type Notification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"` // like | comment | follow | group_invite ...
	Actor     User      `json:"actor"`
	EntityID  string    `json:"entity_id,omitempty"`
	Text      string    `json:"text,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
