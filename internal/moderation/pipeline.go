// Package moderation runs the per-message decision flow: blacklist, then
// graylist with an AI judgment, then the spam and length check. A punish
// verdict goes through one shared punishment policy that decides between
// warn and delete+warn from the author's current warning count.
//
// A classifier that cannot answer never leads to a punishment; the check
// reports OutcomeUnavailable instead.
package moderation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/fairguard/backend/internal/classifier"
	"github.com/fairguard/backend/internal/database"
	"github.com/fairguard/backend/internal/ledger"
	"github.com/fairguard/backend/internal/models"
	"github.com/fairguard/backend/internal/pending"
	"github.com/fairguard/backend/internal/platform"
	"github.com/fairguard/backend/internal/repository"
	"github.com/fairguard/backend/internal/wordlist"
	"github.com/rs/zerolog/log"
)

// Outcome is the result kind of one check or of a whole message
type Outcome string

const (
	OutcomeSafe          Outcome = "safe"
	OutcomePunished      Outcome = "punished"
	OutcomeUnavailable   Outcome = "unavailable"
	OutcomePendingReview Outcome = "pending_human_review"
)

// Check names a pipeline stage
type Check string

const (
	CheckBlacklist    Check = "blacklist"
	CheckGraylist     Check = "graylist"
	CheckSpam         Check = "spam"
	CheckConfirmation Check = "confirmation"
)

// BlacklistReason is the reason recorded for blacklist hits
const BlacklistReason = "blacklisted word"

// Punishment describes a committed warning
type Punishment struct {
	LogID       string         `json:"log_id"`
	LogType     models.LogType `json:"log_type"`
	Reason      string         `json:"reason"`
	MatchedWord string         `json:"matched_word,omitempty"`
	// Deleted is set when the message was removed (or already gone)
	Deleted          bool `json:"deleted"`
	ActiveCount      int  `json:"active_count"`
	Threshold        int  `json:"threshold"`
	ThresholdReached bool `json:"threshold_reached"`
}

// Decision is the result of one check
type Decision struct {
	Check          Check       `json:"check"`
	Outcome        Outcome     `json:"outcome"`
	MatchedWord    string      `json:"matched_word,omitempty"`
	Reason         string      `json:"reason,omitempty"`
	Punishment     *Punishment `json:"punishment,omitempty"`
	ConfirmationID string      `json:"confirmation_id,omitempty"`
	Err            error       `json:"-"`
}

// Result is everything the pipeline decided about one message
type Result struct {
	MessageID string     `json:"message_id"`
	Exempt    bool       `json:"exempt"`
	Decisions []Decision `json:"decisions"`
}

// Outcome folds the per-check decisions: any punishment wins, then a
// pending review, then unavailability
func (r Result) Outcome() Outcome {
	rank := map[Outcome]int{OutcomeSafe: 0, OutcomeUnavailable: 1, OutcomePendingReview: 2, OutcomePunished: 3}
	out := OutcomeSafe
	for _, d := range r.Decisions {
		if rank[d.Outcome] > rank[out] {
			out = d.Outcome
		}
	}
	return out
}

// Punishments lists the warnings committed for the message
func (r Result) Punishments() []Punishment {
	var out []Punishment
	for _, d := range r.Decisions {
		if d.Punishment != nil {
			out = append(out, *d.Punishment)
		}
	}
	return out
}

// Classifier is the part of the gateway the pipeline needs
type Classifier interface {
	Classify(ctx context.Context, prompt classifier.Prompt, v classifier.Verdict) error
}

// AdminChecker reports operator status
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

type Config struct {
	WarnThreshold        int
	MaxMessageLength     int
	SpamMessageCount     int
	SpamWindow           time.Duration
	ConfirmationRequired bool
	ConfirmationTTL      time.Duration
	// BotUserID is recorded as the moderator of automatic actions
	BotUserID    string
	LogChannelID string
}

type Deps struct {
	DB         *database.DB
	Ledger     *ledger.Ledger
	Words      *wordlist.Lists
	Classifier Classifier
	Platform   platform.Client
	Alerter    platform.Alerter
	Admins     AdminChecker
	Trust      *TrustScorer
}

type Pipeline struct {
	cfg Config

	ledger     *ledger.Ledger
	words      *wordlist.Lists
	classifier Classifier
	platform   platform.Client
	alerter    platform.Alerter
	admins     AdminChecker
	trust      *TrustScorer

	logs          *repository.ModerationRepository
	messages      *repository.MessageRepository
	confirmations *repository.ConfirmationRepository
	pending       *pending.Cache[models.PendingConfirmation]

	now func() time.Time
}

func New(deps Deps, cfg Config) *Pipeline {
	if cfg.WarnThreshold <= 0 {
		cfg.WarnThreshold = 3
	}
	if cfg.ConfirmationTTL <= 0 {
		cfg.ConfirmationTTL = 24 * time.Hour
	}
	p := &Pipeline{
		cfg:           cfg,
		ledger:        deps.Ledger,
		words:         deps.Words,
		classifier:    deps.Classifier,
		platform:      deps.Platform,
		alerter:       deps.Alerter,
		admins:        deps.Admins,
		trust:         deps.Trust,
		logs:          repository.NewModerationRepository(deps.DB),
		messages:      repository.NewMessageRepository(deps.DB),
		confirmations: repository.NewConfirmationRepository(deps.DB),
		now:           time.Now,
	}
	p.pending = pending.New("ai_confirmation", cfg.ConfirmationTTL, p.expireConfirmation)
	return p
}

// Pending exposes the confirmation cache for sweeps
func (p *Pipeline) Pending() *pending.Cache[models.PendingConfirmation] { return p.pending }

// ModerateMessage runs every check on msg. Storage failures are returned
// as errors; a check whose classifier was unavailable reports
// OutcomeUnavailable and punishes nothing.
func (p *Pipeline) ModerateMessage(ctx context.Context, msg platform.Message, fetcher platform.ContextFetcher) (Result, error) {
	res := Result{MessageID: msg.ID}
	if msg.AuthorID == "" || msg.ID == "" {
		return res, fmt.Errorf("message id and author are required")
	}

	if p.admins != nil {
		admin, err := p.admins.IsAdmin(ctx, msg.AuthorID)
		if err != nil {
			log.Warn().Err(err).Str("user_id", msg.AuthorID).Msg("admin check failed, moderating as member")
		}
		if admin {
			res.Exempt = true
			return res, nil
		}
	}

	now := p.now()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	err := p.messages.Track(ctx, &models.TrackedMessage{
		MessageID: msg.ID,
		UserID:    msg.AuthorID,
		ChannelID: msg.ChannelID,
		Length:    utf8.RuneCountInString(msg.Content),
		CreatedAt: now,
	})
	if err != nil {
		return res, err
	}
	if p.trust != nil {
		defer p.trust.RefreshAsync(msg.AuthorID)
	}

	window := &contextWindow{fetcher: fetcher, msg: msg}

	if word, ok := p.words.IsBlacklisted(msg.Content); ok {
		d, err := p.punish(ctx, msg, window.get(ctx), punishment{
			check:   CheckBlacklist,
			logType: models.LogBlacklist,
			reason:  BlacklistReason,
			word:    word,
		})
		if err != nil {
			return res, err
		}
		res.Decisions = append(res.Decisions, d)
	} else if word, ok := p.words.MatchGraylist(msg.Content); ok {
		d, err := p.checkGraylist(ctx, msg, window, word)
		if err != nil {
			return res, err
		}
		res.Decisions = append(res.Decisions, d)
	}

	d, ran, err := p.checkSpam(ctx, msg, window, now)
	if err != nil {
		return res, err
	}
	if ran {
		res.Decisions = append(res.Decisions, d)
	}

	log.Debug().Str("message_id", msg.ID).Str("user_id", msg.AuthorID).Str("outcome", string(res.Outcome())).Msg("message moderated")
	return res, nil
}

func (p *Pipeline) checkGraylist(ctx context.Context, msg platform.Message, window *contextWindow, word string) (Decision, error) {
	snapshot := window.get(ctx)

	var v classifier.SafetyVerdict
	if err := p.classifier.Classify(ctx, graylistPrompt(snapshot, msg.Content), &v); err != nil {
		log.Warn().Err(err).Str("message_id", msg.ID).Str("word", word).Msg("graylist judgment unavailable")
		return p.record(Decision{Check: CheckGraylist, Outcome: OutcomeUnavailable, MatchedWord: word, Err: err}), nil
	}
	if v.Verdict == classifier.Safe {
		log.Info().Str("user_id", msg.AuthorID).Str("word", word).Str("reason", v.Reason).Msg("graylist match judged safe")
		return p.record(Decision{Check: CheckGraylist, Outcome: OutcomeSafe, MatchedWord: word, Reason: v.Reason}), nil
	}

	analysis, _ := json.Marshal(v)
	if p.cfg.ConfirmationRequired {
		return p.stageConfirmation(ctx, msg, word, snapshot, v, analysis)
	}
	return p.punish(ctx, msg, snapshot, punishment{
		check:    CheckGraylist,
		logType:  models.LogAIJudge,
		reason:   v.Reason,
		word:     word,
		analysis: analysis,
	})
}

// checkSpam runs when the message is over length or the author's recent
// message count in the channel reaches the threshold. ran is false when
// neither trigger fired.
func (p *Pipeline) checkSpam(ctx context.Context, msg platform.Message, window *contextWindow, now time.Time) (d Decision, ran bool, err error) {
	length := utf8.RuneCountInString(msg.Content)
	recent, err := p.messages.CountInChannelSince(ctx, msg.AuthorID, msg.ChannelID, now.Add(-p.cfg.SpamWindow))
	if err != nil {
		return Decision{}, false, err
	}

	long := p.cfg.MaxMessageLength > 0 && length > p.cfg.MaxMessageLength
	burst := p.cfg.SpamMessageCount > 0 && recent >= p.cfg.SpamMessageCount
	if !long && !burst {
		return Decision{}, false, nil
	}

	var v classifier.SpamVerdict
	prompt := spamPrompt(msg.Content, length, recent, p.cfg.SpamWindow, p.cfg.MaxMessageLength)
	if err := p.classifier.Classify(ctx, prompt, &v); err != nil {
		log.Warn().Err(err).Str("message_id", msg.ID).Msg("spam judgment unavailable")
		return p.record(Decision{Check: CheckSpam, Outcome: OutcomeUnavailable, Err: err}), true, nil
	}
	if v.Verdict != classifier.SpamPunish {
		return p.record(Decision{Check: CheckSpam, Outcome: OutcomeSafe, Reason: v.Reason}), true, nil
	}

	analysis, _ := json.Marshal(v)
	d, err = p.punish(ctx, msg, window.get(ctx), punishment{
		check:    CheckSpam,
		logType:  spamLogType(v.Type),
		reason:   v.Reason,
		analysis: analysis,
	})
	return d, true, err
}

func spamLogType(k classifier.SpamKind) models.LogType {
	switch k {
	case classifier.SpamLongMessage:
		return models.LogLongMessage
	case classifier.SpamBurst:
		return models.LogSpam
	}
	return models.LogSpamLong
}

func (p *Pipeline) record(d Decision) Decision {
	pipelineDecisions.WithLabelValues(string(d.Check), string(d.Outcome)).Inc()
	return d
}

// contextWindow fetches the surrounding conversation at most once per
// message
type contextWindow struct {
	fetcher platform.ContextFetcher
	msg     platform.Message

	once     sync.Once
	snapshot string
}

func (w *contextWindow) get(ctx context.Context) string {
	w.once.Do(func() {
		if w.fetcher == nil {
			w.snapshot = platform.FormatWindow(nil, &w.msg, nil)
			return
		}
		w.snapshot = w.fetcher.FetchContext(ctx, w.msg.ChannelID, w.msg.ID)
	})
	return w.snapshot
}
