package arbitration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fairguard/backend/internal/classifier"
	"github.com/fairguard/backend/internal/ledger"
	"github.com/fairguard/backend/internal/models"
	"github.com/fairguard/backend/internal/moderation"
	"github.com/fairguard/backend/internal/platform"
	"github.com/fairguard/backend/internal/validation"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

const (
	defaultManualReason = "manual warning"
	noTargetMessage     = "(no target message)"
)

// ManualWarn is a moderator's request to warn a member
type ManualWarn struct {
	ModeratorID string `json:"moderator_id" validate:"required,userid"`
	TargetID    string `json:"target_id" validate:"required,userid"`
	Reason      string `json:"reason" validate:"reason"`
	ChannelID   string `json:"channel_id" validate:"max=64"`
	// MessageID optionally points at the message being warned for
	MessageID string `json:"message_id" validate:"max=64"`
}

type WarnStatus string

const (
	WarnCommitted           WarnStatus = "committed"
	WarnPendingConfirmation WarnStatus = "pending_confirmation"
	WarnCancelled           WarnStatus = "cancelled"
	WarnTargetIsAdmin       WarnStatus = "target_is_admin"
	WarnSelfConfirmation    WarnStatus = "self_confirmation"
	WarnNotAdmin            WarnStatus = "not_admin"
	WarnNotFound            WarnStatus = "not_found"
)

// WarnResult carries either the committed punishment or the staged pending
// warn with the abuse verdict behind it
type WarnResult struct {
	Status     WarnStatus               `json:"status"`
	Punishment *moderation.Punishment   `json:"punishment,omitempty"`
	PendingID  string                   `json:"pending_id,omitempty"`
	Abuse      *classifier.AbuseVerdict `json:"abuse,omitempty"`
	// RecentWarns is set when the moderator repeatedly warned the target
	// inside the lookback window
	RecentWarns int `json:"recent_warns,omitempty"`
	// AbuseCheckSkipped reports that the classifier was unavailable and the
	// warning went through unchecked
	AbuseCheckSkipped bool `json:"abuse_check_skipped,omitempty"`
}

// CheckManualWarnAbuse screens a manual warning before committing it. A
// warning the classifier flags as abusive is staged as a PendingWarn and
// waits for a second admin.
func (a *Arbiter) CheckManualWarnAbuse(ctx context.Context, w ManualWarn, fetcher platform.ContextFetcher) (WarnResult, error) {
	w.Reason = validation.NormalizeReason(w.Reason)
	if err := validation.Struct(w); err != nil {
		return WarnResult{}, err
	}
	if w.Reason == "" {
		w.Reason = defaultManualReason
	}

	targetAdmin, err := a.isAdmin(ctx, w.TargetID)
	if err != nil {
		return WarnResult{}, err
	}
	if targetAdmin {
		return WarnResult{Status: WarnTargetIsAdmin}, nil
	}

	content, snapshot, err := a.targetMessage(ctx, w, fetcher)
	if err != nil {
		return WarnResult{}, err
	}

	recent, err := a.logs.CountManualWarns(ctx, w.ModeratorID, w.TargetID, a.now().Add(-a.cfg.AbuseLookback))
	if err != nil {
		return WarnResult{}, err
	}
	repeated := recent >= a.cfg.AbuseRepeatThreshold

	pw := models.PendingWarn{
		ID:              uuid.NewString(),
		TargetID:        w.TargetID,
		ModeratorID:     w.ModeratorID,
		Reason:          w.Reason,
		Content:         content,
		ContextSnapshot: snapshot,
		ChannelID:       w.ChannelID,
		MessageID:       w.MessageID,
	}

	var v classifier.AbuseVerdict
	if err := a.classifier.Classify(ctx, abusePrompt(w, content, snapshot, recent, repeated), &v); err != nil {
		log.Warn().Err(err).Str("moderator_id", w.ModeratorID).Str("user_id", w.TargetID).Msg("abuse check unavailable, committing warning")
		res, err := a.commit(ctx, pw)
		res.AbuseCheckSkipped = true
		return res, err
	}

	if !v.IsAbuse {
		return a.commit(ctx, pw)
	}

	pw.ExpiresAt = a.now().Add(a.cfg.PendingWarnTTL)
	a.pending.Set(pw.ID, pw)

	res := WarnResult{Status: WarnPendingConfirmation, PendingID: pw.ID, Abuse: &v}
	if repeated {
		res.RecentWarns = recent
	}

	log.Info().
		Str("pending_id", pw.ID).
		Str("moderator_id", w.ModeratorID).
		Str("user_id", w.TargetID).
		Strs("concerns", v.Concerns).
		Msg("manual warning held for abuse review")
	a.alert(ctx, platform.Alert{
		Event:   models.EventAbuseSuspected,
		UserID:  w.TargetID,
		Message: fmt.Sprintf("warning of %s by %s looks abusive: %s", w.TargetID, w.ModeratorID, v.Reason),
		Payload: res,
	})
	return res, nil
}

// targetMessage loads the warned message and its surroundings. Without a
// message id the warning stands on its reason alone.
func (a *Arbiter) targetMessage(ctx context.Context, w ManualWarn, fetcher platform.ContextFetcher) (content, snapshot string, err error) {
	if w.MessageID == "" || w.ChannelID == "" {
		return noTargetMessage, "", nil
	}

	msg, err := a.platform.FetchMessage(ctx, w.ChannelID, w.MessageID)
	if errors.Is(err, platform.ErrMessageNotFound) {
		return "", "", validation.Errors{"message_id": "Message not found"}
	}
	if err != nil {
		return "", "", err
	}
	if msg.AuthorID != w.TargetID {
		return "", "", validation.Errors{"message_id": "Message is not from the target user"}
	}

	if fetcher != nil {
		snapshot = fetcher.FetchContext(ctx, w.ChannelID, w.MessageID)
	} else {
		snapshot = platform.FormatWindow(nil, msg, nil)
	}
	return msg.Content, snapshot, nil
}

// ConfirmPendingWarn commits a held warning. The confirming admin must not
// be the moderator who issued it. The entry is consumed atomically, so
// concurrent confirmations commit at most one warning.
func (a *Arbiter) ConfirmPendingWarn(ctx context.Context, id, confirmerID string) (WarnResult, error) {
	pw, ok := a.pending.Get(id)
	if !ok {
		return WarnResult{Status: WarnNotFound}, nil
	}
	if pw.ModeratorID == confirmerID {
		return WarnResult{Status: WarnSelfConfirmation}, nil
	}
	admin, err := a.isAdmin(ctx, confirmerID)
	if err != nil {
		return WarnResult{}, err
	}
	if !admin {
		return WarnResult{Status: WarnNotAdmin}, nil
	}

	pw, ok = a.pending.Take(id)
	if !ok {
		return WarnResult{Status: WarnNotFound}, nil
	}

	// a failed commit leaves the entry consumed; the moderator re-issues
	res, err := a.commit(ctx, pw)
	if err != nil {
		return WarnResult{}, err
	}

	log.Info().Str("pending_id", id).Str("confirmer_id", confirmerID).Msg("held warning confirmed")
	a.alert(ctx, platform.Alert{
		Event:   models.EventPendingWarnResolved,
		UserID:  pw.TargetID,
		Message: fmt.Sprintf("held warning %s confirmed by %s", id, confirmerID),
		Payload: map[string]string{"pending_id": id, "status": string(WarnCommitted), "moderator_id": confirmerID},
	})
	return res, nil
}

// CancelPendingWarn drops a held warning without touching the ledger
func (a *Arbiter) CancelPendingWarn(ctx context.Context, id, actorID string) (WarnResult, error) {
	pw, ok := a.pending.Take(id)
	if !ok {
		return WarnResult{Status: WarnNotFound}, nil
	}

	log.Info().Str("pending_id", id).Str("actor_id", actorID).Msg("held warning cancelled")
	a.alert(ctx, platform.Alert{
		Event:   models.EventPendingWarnResolved,
		UserID:  pw.TargetID,
		Message: fmt.Sprintf("held warning %s cancelled by %s", id, actorID),
		Payload: map[string]string{"pending_id": id, "status": string(WarnCancelled), "moderator_id": actorID},
	})
	return WarnResult{Status: WarnCancelled, PendingID: id}, nil
}

func (a *Arbiter) expirePendingWarn(id string, pw models.PendingWarn) {
	log.Info().Str("pending_id", id).Str("user_id", pw.TargetID).Msg("held warning expired")
	a.alert(context.Background(), platform.Alert{
		Event:   models.EventPendingExpired,
		UserID:  pw.TargetID,
		Message: fmt.Sprintf("held warning %s expired without a decision", id),
		Payload: map[string]string{"pending_id": id, "kind": "pending_warn"},
	})
}

// commit writes the WARN_MANUAL log and the warning in one transaction,
// then notifies. The issuing moderator stays the recorded moderator.
func (a *Arbiter) commit(ctx context.Context, pw models.PendingWarn) (WarnResult, error) {
	entry := models.ModLog{
		ID:              uuid.NewString(),
		Type:            models.LogWarnManual,
		UserID:          pw.TargetID,
		ModeratorID:     pw.ModeratorID,
		ChannelID:       pw.ChannelID,
		MessageID:       pw.MessageID,
		CreatedAt:       a.now(),
		Reason:          pw.Reason,
		Content:         pw.Content,
		ContextSnapshot: pw.ContextSnapshot,
	}

	count, err := a.ledger.AddWarningWith(ctx, ledger.Warning{
		UserID:      pw.TargetID,
		Reason:      pw.Reason,
		ModeratorID: pw.ModeratorID,
		OriginLogID: entry.ID,
	}, func(ctx context.Context, tx *sqlx.Tx) error {
		return a.logs.WithTx(tx).AddLog(ctx, &entry)
	})
	if err != nil {
		return WarnResult{}, err
	}

	pun := &moderation.Punishment{
		LogID:            entry.ID,
		LogType:          entry.Type,
		Reason:           pw.Reason,
		ActiveCount:      count,
		Threshold:        a.cfg.WarnThreshold,
		ThresholdReached: count == a.cfg.WarnThreshold,
	}
	log.Info().Str("user_id", pw.TargetID).Str("moderator_id", pw.ModeratorID).Str("log_id", entry.ID).Int("active", count).Msg("manual warning committed")

	n := moderation.PunishmentNotice(pw.ChannelID, pw.TargetID, pun)
	for _, ch := range []string{pw.ChannelID, a.cfg.LogChannelID} {
		if ch == "" {
			continue
		}
		n.ChannelID = ch
		if err := a.platform.SendNotice(ctx, n); err != nil {
			log.Warn().Err(err).Str("log_id", entry.ID).Str("channel_id", ch).Msg("failed to send warning notice")
		}
	}

	payload, _ := json.Marshal(pun)
	a.alert(ctx, platform.Alert{
		Event:   models.EventManualWarn,
		UserID:  pw.TargetID,
		Message: fmt.Sprintf("%s warned %s: %s", pw.ModeratorID, pw.TargetID, pw.Reason),
		Payload: json.RawMessage(payload),
	})
	if pun.ThresholdReached {
		a.alert(ctx, platform.Alert{
			Event:   models.EventThresholdReached,
			UserID:  pw.TargetID,
			Message: fmt.Sprintf("user %s reached the warning threshold (%d/%d)", pw.TargetID, count, a.cfg.WarnThreshold),
			Payload: pun,
		})
	}

	return WarnResult{Status: WarnCommitted, Punishment: pun}, nil
}
