package models

import "time"

// TrackedMessage is the activity row kept for every inbound message
type TrackedMessage struct {
	MessageID string    `json:"message_id" db:"message_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	ChannelID string    `json:"channel_id" db:"channel_id"`
	Length    int       `json:"length" db:"length"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Setting is a runtime key/value override
type Setting struct {
	Key       string    `json:"key" db:"key"`
	Value     string    `json:"value" db:"value"`
	UpdatedBy string    `json:"updated_by" db:"updated_by"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
