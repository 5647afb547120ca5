package models

import (
	"encoding/json"
	"time"
)

// LogType classifies a moderation log entry
type LogType string

const (
	LogBlacklist        LogType = "BLACKLIST"
	LogAIJudge          LogType = "AI_JUDGE"
	LogAIJudgeConfirmed LogType = "AI_JUDGE_CONFIRMED"
	LogSpam             LogType = "SPAM"
	LogLongMessage      LogType = "LONG_MESSAGE"
	LogSpamLong         LogType = "SPAM_LONG"
	LogWarnManual       LogType = "WARN_MANUAL"
	LogUnwarn           LogType = "UNWARN"
	LogTimeout          LogType = "TIMEOUT"
	LogAddWord          LogType = "ADDWORD"
	LogRemoveWord       LogType = "REMOVEWORD"
)

var logTypes = map[LogType]bool{
	LogBlacklist: true, LogAIJudge: true, LogAIJudgeConfirmed: true,
	LogSpam: true, LogLongMessage: true, LogSpamLong: true,
	LogWarnManual: true, LogUnwarn: true, LogTimeout: true,
	LogAddWord: true, LogRemoveWord: true,
}

// Valid reports whether t is a known log type
func (t LogType) Valid() bool { return logTypes[t] }

// Punitive reports whether entries of this type come with a warning and can
// be appealed.
func (t LogType) Punitive() bool {
	switch t {
	case LogBlacklist, LogAIJudge, LogAIJudgeConfirmed, LogSpam, LogLongMessage, LogSpamLong, LogWarnManual:
		return true
	}
	return false
}

// SpamIncidentTypes are the log types counted as spam incidents
var SpamIncidentTypes = []LogType{LogSpam, LogLongMessage, LogSpamLong}

// ModLog is one append-only entry of the moderation audit trail. Only
// IsResolved ever changes after insert, and only from false to true.
type ModLog struct {
	ID              string          `json:"id" db:"id"`
	Type            LogType         `json:"type" db:"type"`
	UserID          string          `json:"user_id" db:"user_id"`
	ModeratorID     string          `json:"moderator_id" db:"moderator_id"`
	ChannelID       string          `json:"channel_id,omitempty" db:"channel_id"`
	MessageID       string          `json:"message_id,omitempty" db:"message_id"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	Reason          string          `json:"reason" db:"reason"`
	Content         string          `json:"content,omitempty" db:"content"`
	ContextSnapshot string          `json:"context_snapshot,omitempty" db:"context_snapshot"`
	AIAnalysis      json.RawMessage `json:"ai_analysis,omitempty" db:"ai_analysis"`
	IsResolved      bool            `json:"is_resolved" db:"is_resolved"`
}

// ListType is the list a banned word belongs to
type ListType string

const (
	ListBlack ListType = "BLACK"
	ListGray  ListType = "GRAY"
)

// Valid reports whether l names a known list
func (l ListType) Valid() bool { return l == ListBlack || l == ListGray }

// BannedWord is a normalized word on the blacklist or graylist
type BannedWord struct {
	Word      string    `json:"word" db:"word"`
	ListType  ListType  `json:"list_type" db:"list_type"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// KeyCount is one row of a grouped count
type KeyCount struct {
	Key   string `json:"key" db:"key"`
	Count int    `json:"count" db:"count"`
}

// HourCount counts log entries created in one UTC hour of the day
type HourCount struct {
	Hour  int `json:"hour" db:"hour"`
	Count int `json:"count" db:"count"`
}

// ModerationStats summarizes the audit trail since a point in time
type ModerationStats struct {
	Since    time.Time   `json:"since"`
	Total    int         `json:"total"`
	TopTypes []KeyCount  `json:"top_types"`
	TopUsers []KeyCount  `json:"top_users"`
	Hourly   []HourCount `json:"hourly"`
	// WordHits counts entries raised by word matches, blacklist and AI judged
	WordHits []KeyCount `json:"word_hits"`
}
