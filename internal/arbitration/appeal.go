package arbitration

import (
	"context"
	"errors"
	"time"

	"github.com/fairguard/backend/internal/classifier"
	"github.com/fairguard/backend/internal/repository"
	"github.com/fairguard/backend/internal/validation"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

type AppealStatus string

const (
	AppealAccepted         AppealStatus = "accepted"
	AppealRejected         AppealStatus = "rejected"
	AppealNotFound         AppealStatus = "not_found"
	AppealNotSubject       AppealStatus = "not_subject"
	AppealNotAppealable    AppealStatus = "not_appealable"
	AppealAlreadyResolved  AppealStatus = "already_resolved"
	AppealDeadlineExceeded AppealStatus = "deadline_exceeded"
	// AppealUnavailable means try again later; nothing was changed
	AppealUnavailable AppealStatus = "unavailable"
)

type appealInput struct {
	LogID  string `json:"log_id" validate:"required,logid"`
	UserID string `json:"user_id" validate:"required,userid"`
	Text   string `json:"reason" validate:"required,reason"`
}

type AppealResult struct {
	Status AppealStatus `json:"status"`
	Reason string       `json:"reason,omitempty"`
	// ActiveCount is the user's warning count after an accepted appeal
	ActiveCount int           `json:"active_count,omitempty"`
	Age         time.Duration `json:"age,omitempty"`
	Err         error         `json:"-"`
}

// AdjudicateAppeal lets the subject of a punitive log entry contest it
// within the appeal deadline. An accepted appeal lifts the user's oldest
// active warning and marks the entry resolved in one transaction.
func (a *Arbiter) AdjudicateAppeal(ctx context.Context, logID, userID, appealText string) (AppealResult, error) {
	in := appealInput{LogID: logID, UserID: userID, Text: validation.NormalizeReason(appealText)}
	if err := validation.Struct(in); err != nil {
		return AppealResult{}, err
	}

	entry, err := a.logs.GetLog(ctx, logID)
	if errors.Is(err, repository.ErrNotFound) {
		return AppealResult{Status: AppealNotFound}, nil
	}
	if err != nil {
		return AppealResult{}, err
	}
	if entry.UserID != userID {
		return AppealResult{Status: AppealNotSubject}, nil
	}
	if !entry.Type.Punitive() {
		return AppealResult{Status: AppealNotAppealable}, nil
	}
	if entry.IsResolved {
		return AppealResult{Status: AppealAlreadyResolved}, nil
	}
	if age := a.now().Sub(entry.CreatedAt); age > a.cfg.AppealDeadline {
		return AppealResult{Status: AppealDeadlineExceeded, Age: age}, nil
	}

	var v classifier.AppealVerdict
	if err := a.classifier.Classify(ctx, appealPrompt(entry, in.Text), &v); err != nil {
		log.Warn().Err(err).Str("log_id", logID).Str("user_id", userID).Msg("appeal judgment unavailable")
		return AppealResult{Status: AppealUnavailable, Err: err}, nil
	}

	if v.Status != classifier.AppealAccepted {
		log.Info().Str("log_id", logID).Str("user_id", userID).Str("reason", v.Reason).Msg("appeal rejected")
		return AppealResult{Status: AppealRejected, Reason: v.Reason}, nil
	}

	count, err := a.ledger.ReduceWarningWith(ctx, userID, 1, func(ctx context.Context, tx *sqlx.Tx) error {
		return a.logs.WithTx(tx).MarkLogResolved(ctx, logID)
	})
	if errors.Is(err, repository.ErrAlreadyResolved) {
		return AppealResult{Status: AppealAlreadyResolved}, nil
	}
	if err != nil {
		return AppealResult{}, err
	}

	log.Info().Str("log_id", logID).Str("user_id", userID).Int("active", count).Msg("appeal accepted")
	return AppealResult{Status: AppealAccepted, Reason: v.Reason, ActiveCount: count}, nil
}
