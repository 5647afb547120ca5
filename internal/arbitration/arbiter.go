// Package arbitration decides the human-initiated paths: manual warnings
// screened for abuse of power, appeals against logged punishments, and the
// operator actions that lift warnings or time members out.
//
// The abuse check is advisory. When the classifier cannot answer, the
// manual warning goes through. Appeals are the opposite: an unanswered
// appeal changes nothing and reports AppealUnavailable.
package arbitration

import (
	"context"
	"time"

	"github.com/fairguard/backend/internal/classifier"
	"github.com/fairguard/backend/internal/database"
	"github.com/fairguard/backend/internal/ledger"
	"github.com/fairguard/backend/internal/models"
	"github.com/fairguard/backend/internal/pending"
	"github.com/fairguard/backend/internal/platform"
	"github.com/fairguard/backend/internal/repository"
)

const (
	DefaultAppealDeadline       = 3 * 24 * time.Hour
	DefaultAbuseLookback        = time.Hour
	DefaultAbuseRepeatThreshold = 2
	DefaultPendingWarnTTL       = 5 * time.Minute
	DefaultTimeout              = time.Hour
)

type Classifier interface {
	Classify(ctx context.Context, prompt classifier.Prompt, v classifier.Verdict) error
}

type AdminChecker interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

type Config struct {
	WarnThreshold        int
	AppealDeadline       time.Duration
	AbuseLookback        time.Duration
	AbuseRepeatThreshold int
	PendingWarnTTL       time.Duration
	TimeoutDuration      time.Duration
	LogChannelID         string
}

type Deps struct {
	DB         *database.DB
	Ledger     *ledger.Ledger
	Classifier Classifier
	Platform   platform.Client
	Alerter    platform.Alerter
	Admins     AdminChecker
}

type Arbiter struct {
	cfg Config

	db         *database.DB
	ledger     *ledger.Ledger
	classifier Classifier
	platform   platform.Client
	alerter    platform.Alerter
	admins     AdminChecker

	logs    *repository.ModerationRepository
	pending *pending.Cache[models.PendingWarn]

	now func() time.Time
}

func New(deps Deps, cfg Config) *Arbiter {
	if cfg.WarnThreshold <= 0 {
		cfg.WarnThreshold = 3
	}
	if cfg.AppealDeadline <= 0 {
		cfg.AppealDeadline = DefaultAppealDeadline
	}
	if cfg.AbuseLookback <= 0 {
		cfg.AbuseLookback = DefaultAbuseLookback
	}
	if cfg.AbuseRepeatThreshold <= 0 {
		cfg.AbuseRepeatThreshold = DefaultAbuseRepeatThreshold
	}
	if cfg.PendingWarnTTL <= 0 {
		cfg.PendingWarnTTL = DefaultPendingWarnTTL
	}
	if cfg.TimeoutDuration <= 0 {
		cfg.TimeoutDuration = DefaultTimeout
	}

	a := &Arbiter{
		cfg:        cfg,
		db:         deps.DB,
		ledger:     deps.Ledger,
		classifier: deps.Classifier,
		platform:   deps.Platform,
		alerter:    deps.Alerter,
		admins:     deps.Admins,
		logs:       repository.NewModerationRepository(deps.DB),
		now:        time.Now,
	}
	a.pending = pending.New("pending_warn", cfg.PendingWarnTTL, a.expirePendingWarn)
	return a
}

// Pending exposes the pending-warn cache for sweeps
func (a *Arbiter) Pending() *pending.Cache[models.PendingWarn] { return a.pending }

func (a *Arbiter) alert(ctx context.Context, al platform.Alert) {
	if a.alerter != nil {
		a.alerter.Alert(ctx, al)
	}
}

func (a *Arbiter) isAdmin(ctx context.Context, userID string) (bool, error) {
	if a.admins == nil {
		return false, nil
	}
	return a.admins.IsAdmin(ctx, userID)
}
