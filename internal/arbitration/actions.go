package arbitration

import (
	"context"
	"fmt"
	"time"

	"github.com/fairguard/backend/internal/models"
	"github.com/fairguard/backend/internal/platform"
	"github.com/fairguard/backend/internal/validation"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

type Unwarn struct {
	TargetID    string `json:"target_id" validate:"required,userid"`
	Amount      int    `json:"amount" validate:"min=1,max=100"`
	ModeratorID string `json:"moderator_id" validate:"required,userid"`
	Reason      string `json:"reason" validate:"reason"`
}

type UnwarnResult struct {
	LogID       string `json:"log_id"`
	ActiveCount int    `json:"active_count"`
}

// Unwarn lifts up to Amount of the target's oldest warnings. The UNWARN
// log and the reduction commit together.
func (a *Arbiter) Unwarn(ctx context.Context, u Unwarn) (UnwarnResult, error) {
	if u.Amount == 0 {
		u.Amount = 1
	}
	u.Reason = validation.NormalizeReason(u.Reason)
	if err := validation.Struct(u); err != nil {
		return UnwarnResult{}, err
	}

	entry := models.ModLog{
		ID:          uuid.NewString(),
		Type:        models.LogUnwarn,
		UserID:      u.TargetID,
		ModeratorID: u.ModeratorID,
		CreatedAt:   a.now(),
		Reason:      fmt.Sprintf("removed %d warning(s)", u.Amount),
	}
	if u.Reason != "" {
		entry.Reason += ": " + u.Reason
	}

	count, err := a.ledger.ReduceWarningWith(ctx, u.TargetID, u.Amount, func(ctx context.Context, tx *sqlx.Tx) error {
		return a.logs.WithTx(tx).AddLog(ctx, &entry)
	})
	if err != nil {
		return UnwarnResult{}, err
	}

	log.Info().Str("user_id", u.TargetID).Str("moderator_id", u.ModeratorID).Int("amount", u.Amount).Int("active", count).Msg("warnings lifted")
	return UnwarnResult{LogID: entry.ID, ActiveCount: count}, nil
}

type Timeout struct {
	TargetID    string `json:"target_id" validate:"required,userid"`
	Minutes     int    `json:"minutes" validate:"min=0,max=40320"`
	ModeratorID string `json:"moderator_id" validate:"required,userid"`
	Reason      string `json:"reason" validate:"reason"`
}

type TimeoutStatus string

const (
	TimeoutApplied       TimeoutStatus = "applied"
	TimeoutTargetIsAdmin TimeoutStatus = "target_is_admin"
)

type TimeoutResult struct {
	Status   TimeoutStatus `json:"status"`
	LogID    string        `json:"log_id,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

// Timeout mutes the target on the platform, then logs TIMEOUT. Zero
// minutes uses the configured default.
func (a *Arbiter) Timeout(ctx context.Context, t Timeout) (TimeoutResult, error) {
	t.Reason = validation.NormalizeReason(t.Reason)
	if err := validation.Struct(t); err != nil {
		return TimeoutResult{}, err
	}

	admin, err := a.isAdmin(ctx, t.TargetID)
	if err != nil {
		return TimeoutResult{}, err
	}
	if admin {
		return TimeoutResult{Status: TimeoutTargetIsAdmin}, nil
	}

	d := a.cfg.TimeoutDuration
	if t.Minutes > 0 {
		d = time.Duration(t.Minutes) * time.Minute
	}
	if err := a.platform.TimeoutMember(ctx, t.TargetID, d, t.Reason); err != nil {
		return TimeoutResult{}, fmt.Errorf("failed to time out member: %w", err)
	}

	entry := &models.ModLog{
		ID:          uuid.NewString(),
		Type:        models.LogTimeout,
		UserID:      t.TargetID,
		ModeratorID: t.ModeratorID,
		CreatedAt:   a.now(),
		Reason:      fmt.Sprintf("%s: %s", d, t.Reason),
	}
	if err := a.logs.AddLog(ctx, entry); err != nil {
		return TimeoutResult{}, err
	}

	log.Info().Str("user_id", t.TargetID).Str("moderator_id", t.ModeratorID).Dur("duration", d).Msg("member timed out")
	if a.cfg.LogChannelID != "" {
		n := platform.Notice{
			ChannelID: a.cfg.LogChannelID,
			Kind:      platform.NoticeInfo,
			Title:     "Timeout",
			Body:      fmt.Sprintf("<@%s> was timed out for %s.", t.TargetID, d),
			Fields:    map[string]string{"reason": t.Reason, "moderator": t.ModeratorID, "log": entry.ID},
		}
		if err := a.platform.SendNotice(ctx, n); err != nil {
			log.Warn().Err(err).Str("log_id", entry.ID).Msg("failed to post timeout to log channel")
		}
	}
	return TimeoutResult{Status: TimeoutApplied, LogID: entry.ID, Duration: d}, nil
}
