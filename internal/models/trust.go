package models

import "time"

// TrustScore is recomputed from scratch on every refresh
type TrustScore struct {
	UserID               string    `json:"user_id" db:"user_id"`
	Score                int       `json:"score" db:"score"`
	WarningCountSnapshot int       `json:"warning_count_snapshot" db:"warning_count_snapshot"`
	SpamRatioSnapshot    float64   `json:"spam_ratio_snapshot" db:"spam_ratio_snapshot"`
	FirstSeen            time.Time `json:"first_seen" db:"first_seen"`
	LastUpdated          time.Time `json:"last_updated" db:"last_updated"`
}
