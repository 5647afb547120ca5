package models

import (
	"encoding/json"
	"time"
)

// ConfirmationStatus is the lifecycle state of an AI confirmation
type ConfirmationStatus string

const (
	ConfirmationPending  ConfirmationStatus = "pending"
	ConfirmationApproved ConfirmationStatus = "approved"
	ConfirmationRejected ConfirmationStatus = "rejected"
)

// PendingConfirmation is an AI graylist verdict waiting for an operator
type PendingConfirmation struct {
	ID              string             `json:"id" db:"id"`
	MessageID       string             `json:"message_id" db:"message_id"`
	ChannelID       string             `json:"channel_id" db:"channel_id"`
	UserID          string             `json:"user_id" db:"user_id"`
	ModeratorID     string             `json:"moderator_id,omitempty" db:"moderator_id"`
	Status          ConfirmationStatus `json:"status" db:"status"`
	MatchedWord     string             `json:"matched_word" db:"matched_word"`
	Content         string             `json:"content" db:"content"`
	ContextSnapshot string             `json:"context_snapshot" db:"context_snapshot"`
	AIAnalysis      json.RawMessage    `json:"ai_analysis,omitempty" db:"ai_analysis"`
	CreatedAt       time.Time          `json:"created_at" db:"created_at"`
	ResolvedAt      *time.Time         `json:"resolved_at,omitempty" db:"resolved_at"`
}

// PendingWarn is a manual warning held back by the abuse check. It lives
// only in memory.
type PendingWarn struct {
	ID              string    `json:"id"`
	TargetID        string    `json:"target_id"`
	ModeratorID     string    `json:"moderator_id"`
	Reason          string    `json:"reason"`
	Content         string    `json:"content"`
	ContextSnapshot string    `json:"context_snapshot"`
	ChannelID       string    `json:"channel_id"`
	MessageID       string    `json:"message_id"`
	ExpiresAt       time.Time `json:"expires_at"`
}
