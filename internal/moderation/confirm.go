package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fairguard/backend/internal/classifier"
	"github.com/fairguard/backend/internal/models"
	"github.com/fairguard/backend/internal/platform"
	"github.com/fairguard/backend/internal/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

// ConfirmationStatus is the typed result of resolving a staged verdict
type ConfirmationStatus string

const (
	ConfirmationApproved        ConfirmationStatus = "approved"
	ConfirmationRejected        ConfirmationStatus = "rejected"
	ConfirmationNotFound        ConfirmationStatus = "not_found"
	ConfirmationAlreadyResolved ConfirmationStatus = "already_resolved"
	// ConfirmationUnavailable means the approval could not be enforced; the
	// confirmation stays pending
	ConfirmationUnavailable ConfirmationStatus = "unavailable"
)

type ConfirmationResult struct {
	Status     ConfirmationStatus `json:"status"`
	Punishment *Punishment        `json:"punishment,omitempty"`
	Err        error              `json:"-"`
}

// stageConfirmation holds an UNSAFE graylist verdict for operator approval
// instead of punishing
func (p *Pipeline) stageConfirmation(ctx context.Context, msg platform.Message, word, snapshot string, v classifier.SafetyVerdict, analysis json.RawMessage) (Decision, error) {
	c := models.PendingConfirmation{
		ID:              uuid.NewString(),
		MessageID:       msg.ID,
		ChannelID:       msg.ChannelID,
		UserID:          msg.AuthorID,
		Status:          models.ConfirmationPending,
		MatchedWord:     word,
		Content:         msg.Content,
		ContextSnapshot: snapshot,
		AIAnalysis:      analysis,
		CreatedAt:       p.now(),
	}
	if err := p.confirmations.Create(ctx, &c); err != nil {
		return Decision{}, err
	}
	p.pending.Set(c.ID, c)

	if p.alerter != nil {
		p.alerter.Alert(ctx, platform.Alert{
			Event:   models.EventConfirmationRequired,
			UserID:  msg.AuthorID,
			Message: fmt.Sprintf("AI flagged a message from %s (%s): %s", msg.AuthorID, word, v.Reason),
			Payload: c,
		})
	}
	log.Info().Str("confirmation_id", c.ID).Str("user_id", msg.AuthorID).Str("word", word).Msg("verdict staged for confirmation")

	return p.record(Decision{
		Check:          CheckGraylist,
		Outcome:        OutcomePendingReview,
		MatchedWord:    word,
		Reason:         v.Reason,
		ConfirmationID: c.ID,
	}), nil
}

// ResolveConfirmation approves or rejects a staged verdict. The entry is
// claimed atomically, so of two concurrent resolutions only one acts; the
// other sees not_found. A resolution that fails releases the claim and the
// confirmation stays pending until its original deadline.
// Approval applies the punishment policy with moderatorID as the moderator.
func (p *Pipeline) ResolveConfirmation(ctx context.Context, id string, approve bool, moderatorID string) (ConfirmationResult, error) {
	claim, ok := p.pending.Claim(id)
	if !ok {
		row, err := p.confirmations.Get(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return ConfirmationResult{Status: ConfirmationNotFound}, nil
		}
		if err != nil {
			return ConfirmationResult{}, err
		}
		if row.Status != models.ConfirmationPending {
			return ConfirmationResult{Status: ConfirmationAlreadyResolved}, nil
		}
		// pending in storage but not claimable: being resolved right now, or
		// lost to a restart
		return ConfirmationResult{Status: ConfirmationNotFound}, nil
	}
	c := claim.Value()

	if !approve {
		err := p.confirmations.Resolve(ctx, id, models.ConfirmationRejected, moderatorID, p.now())
		if errors.Is(err, repository.ErrAlreadyResolved) {
			claim.Commit()
			return ConfirmationResult{Status: ConfirmationAlreadyResolved}, nil
		}
		if err != nil {
			claim.Release()
			return ConfirmationResult{}, err
		}
		claim.Commit()
		p.alertResolved(ctx, c, ConfirmationRejected, moderatorID)
		return ConfirmationResult{Status: ConfirmationRejected}, nil
	}

	var v classifier.SafetyVerdict
	_ = json.Unmarshal(c.AIAnalysis, &v)
	msg := platform.Message{ID: c.MessageID, ChannelID: c.ChannelID, AuthorID: c.UserID, Content: c.Content}

	d, err := p.punish(ctx, msg, c.ContextSnapshot, punishment{
		check:       CheckConfirmation,
		logType:     models.LogAIJudgeConfirmed,
		reason:      v.Reason,
		word:        c.MatchedWord,
		analysis:    c.AIAnalysis,
		moderatorID: moderatorID,
		inTx: func(ctx context.Context, tx *sqlx.Tx) error {
			return p.confirmations.WithTx(tx).Resolve(ctx, id, models.ConfirmationApproved, moderatorID, p.now())
		},
	})
	if errors.Is(err, repository.ErrAlreadyResolved) {
		claim.Commit()
		return ConfirmationResult{Status: ConfirmationAlreadyResolved}, nil
	}
	if err != nil {
		claim.Release()
		return ConfirmationResult{}, err
	}
	if d.Outcome != OutcomePunished {
		claim.Release()
		return ConfirmationResult{Status: ConfirmationUnavailable, Err: d.Err}, nil
	}

	claim.Commit()
	p.alertResolved(ctx, c, ConfirmationApproved, moderatorID)
	return ConfirmationResult{Status: ConfirmationApproved, Punishment: d.Punishment}, nil
}

// expireConfirmation closes a confirmation nobody resolved in time
func (p *Pipeline) expireConfirmation(id string, c models.PendingConfirmation) {
	ctx := context.Background()
	err := p.confirmations.Resolve(ctx, id, models.ConfirmationRejected, "system", p.now())
	if err != nil && !errors.Is(err, repository.ErrAlreadyResolved) {
		log.Error().Err(err).Str("confirmation_id", id).Msg("failed to close expired confirmation")
		return
	}
	log.Info().Str("confirmation_id", id).Str("user_id", c.UserID).Msg("confirmation expired")
	if p.alerter != nil {
		p.alerter.Alert(ctx, platform.Alert{
			Event:   models.EventPendingExpired,
			UserID:  c.UserID,
			Message: fmt.Sprintf("confirmation %s expired without a decision", id),
			Payload: map[string]string{"confirmation_id": id, "kind": "ai_confirmation"},
		})
	}
}

func (p *Pipeline) alertResolved(ctx context.Context, c models.PendingConfirmation, status ConfirmationStatus, moderatorID string) {
	log.Info().Str("confirmation_id", c.ID).Str("status", string(status)).Str("moderator_id", moderatorID).Msg("confirmation resolved")
	if p.alerter == nil {
		return
	}
	p.alerter.Alert(ctx, platform.Alert{
		Event:   models.EventConfirmationResolved,
		UserID:  c.UserID,
		Message: fmt.Sprintf("confirmation %s %s by %s", c.ID, status, moderatorID),
		Payload: map[string]string{"confirmation_id": c.ID, "status": string(status), "moderator_id": moderatorID},
	})
}
