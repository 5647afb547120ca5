package models

import "time"

// WarningRecord is one warning issued to a user. Records are never updated;
// they are deleted when they expire or when warnings are reduced.
type WarningRecord struct {
	ID          string    `json:"id" db:"id"`
	UserID      string    `json:"user_id" db:"user_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	ExpiresAt   time.Time `json:"expires_at" db:"expires_at"`
	Reason      string    `json:"reason" db:"reason"`
	ModeratorID string    `json:"moderator_id" db:"moderator_id"`
	OriginLogID string    `json:"origin_log_id" db:"origin_log_id"`
}

// Active reports whether the record still counts at now
func (w WarningRecord) Active(now time.Time) bool {
	return !w.ExpiresAt.Before(now)
}

// WarningCount mirrors the number of active records for a user
type WarningCount struct {
	UserID    string    `json:"user_id" db:"user_id"`
	Count     int       `json:"count" db:"count"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
