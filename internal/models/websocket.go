package models

import "time"

// Operator alert event types
const (
	EventThresholdReached     = "alert.threshold_reached"
	EventConfirmationRequired = "alert.confirmation_required"
	EventConfirmationResolved = "alert.confirmation_resolved"
	EventAbuseSuspected       = "alert.abuse_suspected"
	EventPendingWarnResolved  = "alert.pending_warn_resolved"
	EventPendingExpired       = "alert.pending_expired"
	EventManualWarn           = "alert.manual_warn"
	EventError                = "error"

	// Keepalive events sent by operator consoles
	EventPing = "ping"
	EventPong = "pong"
)

type WSMessage struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
	SentAt  time.Time   `json:"sent_at"`
}

type WSErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
