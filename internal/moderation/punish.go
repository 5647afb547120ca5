package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fairguard/backend/internal/ledger"
	"github.com/fairguard/backend/internal/models"
	"github.com/fairguard/backend/internal/platform"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

type punishment struct {
	check       Check
	logType     models.LogType
	reason      string
	word        string
	analysis    json.RawMessage
	moderatorID string
	// inTx runs extra writes in the ledger transaction
	inTx ledger.TxFunc
}

// errEnforcement marks a deletion failure that kept the warning out
var errEnforcement = errors.New("enforcement failed")

// punish applies the punishment policy. The count is read before the new
// warning: below the threshold the message stays and the author is warned;
// at or above it the message is deleted first and the warning is added only
// if the deletion succeeded or the message was already gone. The count read,
// the deletion and the add hold the author's ledger lock, so concurrent
// punishments see consecutive counts. The log entry and the warning commit
// together.
func (p *Pipeline) punish(ctx context.Context, msg platform.Message, snapshot string, in punishment) (Decision, error) {
	d := Decision{Check: in.check, MatchedWord: in.word, Reason: in.reason}

	deleted := false
	guard := func(ctx context.Context, prev int) error {
		if prev < p.cfg.WarnThreshold {
			return nil
		}
		err := p.platform.DeleteMessage(ctx, msg.ChannelID, msg.ID)
		switch {
		case err == nil:
			deleted = true
		case errors.Is(err, platform.ErrMessageNotFound):
			deleted = true
			log.Info().Str("message_id", msg.ID).Msg("message already deleted before enforcement")
		default:
			log.Error().Err(err).Str("message_id", msg.ID).Str("user_id", msg.AuthorID).Msg("failed to delete message, warning not applied")
			return fmt.Errorf("%w: %w", errEnforcement, err)
		}
		return nil
	}

	moderatorID := in.moderatorID
	if moderatorID == "" {
		moderatorID = p.cfg.BotUserID
	}
	entry := models.ModLog{
		ID:              uuid.NewString(),
		Type:            in.logType,
		UserID:          msg.AuthorID,
		ModeratorID:     moderatorID,
		ChannelID:       msg.ChannelID,
		MessageID:       msg.ID,
		CreatedAt:       p.now(),
		Reason:          in.reason,
		Content:         msg.Content,
		ContextSnapshot: snapshot,
		AIAnalysis:      in.analysis,
	}

	count, err := p.ledger.AddWarningGuarded(ctx, ledger.Warning{
		UserID:      msg.AuthorID,
		Reason:      in.reason,
		ModeratorID: moderatorID,
		OriginLogID: entry.ID,
	}, guard, func(ctx context.Context, tx *sqlx.Tx) error {
		if err := p.logs.WithTx(tx).AddLog(ctx, &entry); err != nil {
			return err
		}
		if in.inTx != nil {
			return in.inTx(ctx, tx)
		}
		return nil
	})
	if errors.Is(err, errEnforcement) {
		d.Outcome = OutcomeUnavailable
		d.Err = err
		return p.record(d), nil
	}
	if err != nil {
		return Decision{}, err
	}

	pun := &Punishment{
		LogID:            entry.ID,
		LogType:          entry.Type,
		Reason:           in.reason,
		MatchedWord:      in.word,
		Deleted:          deleted,
		ActiveCount:      count,
		Threshold:        p.cfg.WarnThreshold,
		ThresholdReached: count == p.cfg.WarnThreshold,
	}
	d.Outcome = OutcomePunished
	d.Punishment = pun

	log.Info().
		Str("user_id", msg.AuthorID).
		Str("log_id", entry.ID).
		Str("type", string(entry.Type)).
		Int("active", count).
		Bool("deleted", deleted).
		Msg("punishment applied")

	p.notifyPunishment(ctx, msg, pun)
	return p.record(d), nil
}

func (p *Pipeline) notifyPunishment(ctx context.Context, msg platform.Message, pun *Punishment) {
	n := PunishmentNotice(msg.ChannelID, msg.AuthorID, pun)
	if err := p.platform.SendNotice(ctx, n); err != nil {
		log.Warn().Err(err).Str("log_id", pun.LogID).Msg("failed to send punishment notice")
	}
	if p.cfg.LogChannelID != "" {
		n.ChannelID = p.cfg.LogChannelID
		if err := p.platform.SendNotice(ctx, n); err != nil {
			log.Warn().Err(err).Str("log_id", pun.LogID).Msg("failed to post to log channel")
		}
	}

	if pun.ThresholdReached && p.alerter != nil {
		p.alerter.Alert(ctx, platform.Alert{
			Event:   models.EventThresholdReached,
			UserID:  msg.AuthorID,
			Message: fmt.Sprintf("user %s reached the warning threshold (%d/%d)", msg.AuthorID, pun.ActiveCount, pun.Threshold),
			Payload: pun,
		})
	}
}

// PunishmentNotice renders the user-facing notice for a committed warning.
// It carries the count against the threshold and the log id to appeal.
func PunishmentNotice(channelID, userID string, pun *Punishment) platform.Notice {
	n := platform.Notice{
		ChannelID: channelID,
		Kind:      platform.NoticeWarning,
		Title:     "Warning: " + describe(pun.LogType),
		Body:      fmt.Sprintf("<@%s> received a warning.", userID),
		Fields: map[string]string{
			"reason":   pun.Reason,
			"warnings": fmt.Sprintf("%d/%d", pun.ActiveCount, pun.Threshold),
			"appeal":   pun.LogID,
		},
	}
	if pun.MatchedWord != "" {
		n.Fields["word"] = pun.MatchedWord
	}
	if pun.Deleted {
		n.Kind = platform.NoticeDeletion
		n.Title = "Deleted: " + describe(pun.LogType)
		n.Body = fmt.Sprintf("A message from <@%s> was deleted.", userID)
	}
	return n
}

func describe(t models.LogType) string {
	switch t {
	case models.LogBlacklist:
		return "banned word"
	case models.LogAIJudge, models.LogAIJudgeConfirmed:
		return "AI judgment"
	case models.LogSpam:
		return "spamming"
	case models.LogLongMessage:
		return "long message"
	case models.LogSpamLong:
		return "long message and spamming"
	case models.LogWarnManual:
		return "moderator warning"
	}
	return string(t)
}
