package arbitration

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fairguard/backend/internal/classifier"
	"github.com/fairguard/backend/internal/classifier/classifiertest"
	"github.com/fairguard/backend/internal/database"
	"github.com/fairguard/backend/internal/database/dbtest"
	"github.com/fairguard/backend/internal/ledger"
	"github.com/fairguard/backend/internal/models"
	"github.com/fairguard/backend/internal/platform"
	"github.com/fairguard/backend/internal/platform/platformtest"
	"github.com/fairguard/backend/internal/repository"
	"github.com/fairguard/backend/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	member  = "100000000000000001"
	other   = "100000000000000002"
	modA    = "900000000000000001"
	modB    = "900000000000000002"
	channel = "500000000000000005"
)

const (
	abusive    = `{"is_abuse": true, "reason": "the reason is only an emotional complaint", "concerns": ["no rule cited"]}`
	notAbusive = `{"is_abuse": false, "reason": "cites the spam rule", "concerns": []}`
	accepted   = `{"status": "ACCEPTED", "reason": "the word was quoted, not used"}`
	rejected   = `{"status": "REJECTED", "reason": "the context contradicts the appeal"}`
)

// script answers abuse and appeal prompts separately
type script struct {
	mu     sync.Mutex
	abuse  string
	appeal string
	err    error
}

func (s *script) set(abuse, appeal string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abuse, s.appeal, s.err = abuse, appeal, err
}

func (s *script) respond(p classifier.Prompt) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	if strings.Contains(p.System, "abuse of moderator power") {
		return s.abuse, nil
	}
	return s.appeal, nil
}

type fixture struct {
	db     *database.DB
	arb    *Arbiter
	ledger *ledger.Ledger
	logs   *repository.ModerationRepository
	plat   *platformtest.Fake
	cls    *classifiertest.Fake
	script *script
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, Config{WarnThreshold: 3, LogChannelID: "500000000000000099"})
}

func newFixtureWith(t *testing.T, cfg Config) *fixture {
	t.Helper()
	db := dbtest.New(t)
	l := ledger.New(db)
	plat := platformtest.New()
	s := &script{abuse: notAbusive, appeal: accepted}
	cls := &classifiertest.Fake{Respond: s.respond}

	arb := New(Deps{
		DB:         db,
		Ledger:     l,
		Classifier: cls,
		Platform:   plat,
		Alerter:    plat,
		Admins:     platform.NewAdmins(plat, []string{modA, modB}, nil),
	}, cfg)

	return &fixture{db: db, arb: arb, ledger: l, logs: repository.NewModerationRepository(db), plat: plat, cls: cls, script: s}
}

func (f *fixture) count(t *testing.T, user string) int {
	t.Helper()
	n, err := f.ledger.GetActiveWarningCount(context.Background(), user)
	require.NoError(t, err)
	return n
}

func (f *fixture) warn(t *testing.T, reason string) WarnResult {
	t.Helper()
	res, err := f.arb.CheckManualWarnAbuse(context.Background(), ManualWarn{ModeratorID: modA, TargetID: member, Reason: reason}, nil)
	require.NoError(t, err)
	return res
}

func TestManualWarnCommitsWhenNotAbusive(t *testing.T) {
	f := newFixture(t)

	res := f.warn(t, "posted the same invite link five times, rule 3")
	require.Equal(t, WarnCommitted, res.Status)
	require.NotNil(t, res.Punishment)
	assert.Equal(t, models.LogWarnManual, res.Punishment.LogType)
	assert.Equal(t, 1, res.Punishment.ActiveCount)
	assert.Equal(t, 1, f.count(t, member))

	entry, err := f.logs.GetLog(context.Background(), res.Punishment.LogID)
	require.NoError(t, err)
	assert.Equal(t, modA, entry.ModeratorID)
	assert.Equal(t, noTargetMessage, entry.Content)

	notices, _, alerts := f.plat.Snapshot()
	require.Len(t, notices, 1, "only the log channel without a target channel")
	assert.Equal(t, "1/3", notices[0].Fields["warnings"])
	require.Len(t, alerts, 1)
	assert.Equal(t, models.EventManualWarn, alerts[0].Event)
}

func TestAbusiveWarnIsHeldUntilSecondModeratorConfirms(t *testing.T) {
	f := newFixture(t)
	f.script.set(abusive, accepted, nil)
	ctx := context.Background()

	res := f.warn(t, "うざいから")
	require.Equal(t, WarnPendingConfirmation, res.Status)
	require.NotEmpty(t, res.PendingID)
	require.NotNil(t, res.Abuse)
	assert.True(t, res.Abuse.IsAbuse)
	assert.Zero(t, f.count(t, member))
	assert.True(t, f.arb.Pending().Has(res.PendingID))

	_, _, alerts := f.plat.Snapshot()
	require.Len(t, alerts, 1)
	assert.Equal(t, models.EventAbuseSuspected, alerts[0].Event)

	self, err := f.arb.ConfirmPendingWarn(ctx, res.PendingID, modA)
	require.NoError(t, err)
	assert.Equal(t, WarnSelfConfirmation, self.Status)
	assert.True(t, f.arb.Pending().Has(res.PendingID))

	outsider, err := f.arb.ConfirmPendingWarn(ctx, res.PendingID, other)
	require.NoError(t, err)
	assert.Equal(t, WarnNotAdmin, outsider.Status)

	done, err := f.arb.ConfirmPendingWarn(ctx, res.PendingID, modB)
	require.NoError(t, err)
	require.Equal(t, WarnCommitted, done.Status)
	assert.Equal(t, 1, f.count(t, member))

	entry, err := f.logs.GetLog(ctx, done.Punishment.LogID)
	require.NoError(t, err)
	assert.Equal(t, modA, entry.ModeratorID, "the issuing moderator stays on record")

	again, err := f.arb.ConfirmPendingWarn(ctx, res.PendingID, modB)
	require.NoError(t, err)
	assert.Equal(t, WarnNotFound, again.Status)
	cancelled, err := f.arb.CancelPendingWarn(ctx, res.PendingID, modB)
	require.NoError(t, err)
	assert.Equal(t, WarnNotFound, cancelled.Status)
	assert.Equal(t, 1, f.count(t, member))
}

func TestCancelledWarnLeavesLedger(t *testing.T) {
	f := newFixture(t)
	f.script.set(abusive, accepted, nil)
	ctx := context.Background()

	res := f.warn(t, "キモい")
	out, err := f.arb.CancelPendingWarn(ctx, res.PendingID, modB)
	require.NoError(t, err)
	assert.Equal(t, WarnCancelled, out.Status)
	assert.False(t, f.arb.Pending().Has(res.PendingID))

	confirm, err := f.arb.ConfirmPendingWarn(ctx, res.PendingID, modB)
	require.NoError(t, err)
	assert.Equal(t, WarnNotFound, confirm.Status)
	assert.Zero(t, f.count(t, member))
}

func TestConcurrentConfirmsCommitOnce(t *testing.T) {
	f := newFixture(t)
	f.script.set(abusive, accepted, nil)
	res := f.warn(t, "うざいから")

	var wg sync.WaitGroup
	statuses := make([]WarnStatus, 8)
	for i := range statuses {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var out WarnResult
			var err error
			if i%4 == 3 {
				out, err = f.arb.CancelPendingWarn(context.Background(), res.PendingID, modB)
			} else {
				out, err = f.arb.ConfirmPendingWarn(context.Background(), res.PendingID, modB)
			}
			assert.NoError(t, err)
			statuses[i] = out.Status
		}(i)
	}
	wg.Wait()

	terminal := 0
	committed := 0
	for _, s := range statuses {
		switch s {
		case WarnCommitted:
			committed++
			terminal++
		case WarnCancelled:
			terminal++
		}
	}
	assert.Equal(t, 1, terminal)
	assert.Equal(t, committed, f.count(t, member))
}

func TestAbuseCheckFailsOpen(t *testing.T) {
	f := newFixture(t)
	f.script.set("", "", classifier.ErrUnavailable)

	res := f.warn(t, "うざいから")
	assert.Equal(t, WarnCommitted, res.Status)
	assert.True(t, res.AbuseCheckSkipped)
	assert.Equal(t, 1, f.count(t, member))
}

func TestWarningAnAdminIsRefused(t *testing.T) {
	f := newFixture(t)

	res, err := f.arb.CheckManualWarnAbuse(context.Background(), ManualWarn{ModeratorID: modA, TargetID: modB, Reason: "rule 1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, WarnTargetIsAdmin, res.Status)
	assert.Zero(t, f.cls.Calls())
	assert.Zero(t, f.count(t, modB))
}

func TestRepeatedWarnsAddFrequencyHint(t *testing.T) {
	f := newFixture(t)
	f.warn(t, "rule 2")
	f.warn(t, "rule 2 again")

	f.script.set(abusive, accepted, nil)
	res := f.warn(t, "うざいから")
	require.Equal(t, WarnPendingConfirmation, res.Status)
	assert.Equal(t, 2, res.RecentWarns)

	prompts := f.cls.Prompts()
	assert.NotContains(t, prompts[0].User, "[note]")
	assert.Contains(t, prompts[2].User, "warned this user 2 times")
}

func TestWarnTargetMessageMustBelongToTarget(t *testing.T) {
	f := newFixture(t)
	f.plat.Put(platform.Message{ID: "700000000000000001", ChannelID: channel, AuthorID: other, Content: "hello", CreatedAt: time.Now()})

	_, err := f.arb.CheckManualWarnAbuse(context.Background(), ManualWarn{
		ModeratorID: modA, TargetID: member, Reason: "rule 1", ChannelID: channel, MessageID: "700000000000000001",
	}, nil)
	var verrs validation.Errors
	require.True(t, errors.As(err, &verrs))
	assert.Contains(t, verrs, "message_id")
	assert.Zero(t, f.cls.Calls())
}

func TestWarnWithTargetMessageCarriesContext(t *testing.T) {
	f := newFixture(t)
	f.plat.Put(platform.Message{ID: "700000000000000002", ChannelID: channel, AuthorID: member, AuthorTag: "member", Content: "join my server", CreatedAt: time.Now()})

	res, err := f.arb.CheckManualWarnAbuse(context.Background(), ManualWarn{
		ModeratorID: modA, TargetID: member, Reason: "advertising, rule 4", ChannelID: channel, MessageID: "700000000000000002",
	}, &platform.WindowFetcher{Client: f.plat, Before: 5, After: 5})
	require.NoError(t, err)
	require.Equal(t, WarnCommitted, res.Status)

	entry, err := f.logs.GetLog(context.Background(), res.Punishment.LogID)
	require.NoError(t, err)
	assert.Equal(t, "join my server", entry.Content)
	assert.Contains(t, entry.ContextSnapshot, ">>> [member]: join my server")

	notices, _, _ := f.plat.Snapshot()
	assert.Len(t, notices, 2)
}

func TestInvalidWarnIsRejectedBeforeSideEffects(t *testing.T) {
	f := newFixture(t)

	_, err := f.arb.CheckManualWarnAbuse(context.Background(), ManualWarn{ModeratorID: modA, TargetID: "abc", Reason: "x"}, nil)
	var verrs validation.Errors
	require.True(t, errors.As(err, &verrs))
	assert.Contains(t, verrs, "target_id")
	assert.Zero(t, f.cls.Calls())
}

func TestHeldWarnExpires(t *testing.T) {
	f := newFixtureWith(t, Config{WarnThreshold: 3, LogChannelID: "500000000000000099", PendingWarnTTL: 20 * time.Millisecond})
	f.script.set(abusive, accepted, nil)

	res := f.warn(t, "うざいから")
	require.Eventually(t, func() bool {
		_, _, alerts := f.plat.Snapshot()
		return len(alerts) == 2 && alerts[1].Event == models.EventPendingExpired
	}, 2*time.Second, 10*time.Millisecond)

	out, err := f.arb.ConfirmPendingWarn(context.Background(), res.PendingID, modB)
	require.NoError(t, err)
	assert.Equal(t, WarnNotFound, out.Status)
	assert.Zero(t, f.count(t, member))
}

func TestFailedConfirmLeavesHeldWarnConsumed(t *testing.T) {
	f := newFixture(t)
	f.script.set(abusive, accepted, nil)
	ctx := context.Background()

	res := f.warn(t, "うざいから")
	require.Equal(t, WarnPendingConfirmation, res.Status)

	require.NoError(t, f.db.Close())
	_, err := f.arb.ConfirmPendingWarn(ctx, res.PendingID, modB)
	require.Error(t, err)

	out, err := f.arb.ConfirmPendingWarn(ctx, res.PendingID, modB)
	require.NoError(t, err)
	assert.Equal(t, WarnNotFound, out.Status)
	assert.Zero(t, f.arb.pending.Len())
}

func TestAppealAcceptedLiftsWarningAndResolves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.warn(t, "rule 1")
	f.warn(t, "rule 2")

	res, err := f.arb.AdjudicateAppeal(ctx, first.Punishment.LogID, member, "I was quoting what someone else said")
	require.NoError(t, err)
	require.Equal(t, AppealAccepted, res.Status)
	assert.Equal(t, 1, res.ActiveCount)
	assert.Equal(t, 1, f.count(t, member))

	entry, err := f.logs.GetLog(ctx, first.Punishment.LogID)
	require.NoError(t, err)
	assert.True(t, entry.IsResolved)

	calls := f.cls.Calls()
	again, err := f.arb.AdjudicateAppeal(ctx, first.Punishment.LogID, member, "again")
	require.NoError(t, err)
	assert.Equal(t, AppealAlreadyResolved, again.Status)
	assert.Equal(t, calls, f.cls.Calls())
}

func TestAppealPastDeadlineSkipsClassifier(t *testing.T) {
	f := newFixture(t)
	w := f.warn(t, "rule 1")
	calls := f.cls.Calls()

	f.arb.now = func() time.Time { return time.Now().Add(4 * 24 * time.Hour) }
	res, err := f.arb.AdjudicateAppeal(context.Background(), w.Punishment.LogID, member, "please")
	require.NoError(t, err)
	assert.Equal(t, AppealDeadlineExceeded, res.Status)
	assert.Equal(t, calls, f.cls.Calls())
	assert.Equal(t, 1, f.count(t, member))
}

func TestAppealUnavailableChangesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.warn(t, "rule 1")

	f.script.set("", "", classifier.ErrUnavailable)
	res, err := f.arb.AdjudicateAppeal(ctx, w.Punishment.LogID, member, "it was a joke between friends")
	require.NoError(t, err)
	assert.Equal(t, AppealUnavailable, res.Status)
	assert.ErrorIs(t, res.Err, classifier.ErrUnavailable)

	entry, err := f.logs.GetLog(ctx, w.Punishment.LogID)
	require.NoError(t, err)
	assert.False(t, entry.IsResolved)
	assert.Equal(t, 1, f.count(t, member))
}

func TestAppealRejectedAndTypedRefusals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	w := f.warn(t, "rule 1")

	f.script.set(notAbusive, rejected, nil)
	res, err := f.arb.AdjudicateAppeal(ctx, w.Punishment.LogID, member, "I never said that")
	require.NoError(t, err)
	assert.Equal(t, AppealRejected, res.Status)
	assert.Equal(t, "the context contradicts the appeal", res.Reason)
	assert.Equal(t, 1, f.count(t, member))

	res, err = f.arb.AdjudicateAppeal(ctx, w.Punishment.LogID, other, "not me")
	require.NoError(t, err)
	assert.Equal(t, AppealNotSubject, res.Status)

	res, err = f.arb.AdjudicateAppeal(ctx, "missing-log", member, "where")
	require.NoError(t, err)
	assert.Equal(t, AppealNotFound, res.Status)

	lifted, err := f.arb.Unwarn(ctx, Unwarn{TargetID: member, ModeratorID: modA})
	require.NoError(t, err)
	res, err = f.arb.AdjudicateAppeal(ctx, lifted.LogID, member, "appeal an unwarn")
	require.NoError(t, err)
	assert.Equal(t, AppealNotAppealable, res.Status)

	_, err = f.arb.AdjudicateAppeal(ctx, w.Punishment.LogID, member, "")
	assert.Error(t, err)
}

func TestUnwarnLogsAndReduces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.warn(t, "rule 1")
	}

	res, err := f.arb.Unwarn(ctx, Unwarn{TargetID: member, Amount: 2, ModeratorID: modB, Reason: "served the sentence"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ActiveCount)
	assert.Equal(t, 1, f.count(t, member))

	entry, err := f.logs.GetLog(ctx, res.LogID)
	require.NoError(t, err)
	assert.Equal(t, models.LogUnwarn, entry.Type)
	assert.Equal(t, modB, entry.ModeratorID)
	assert.Equal(t, "removed 2 warning(s): served the sentence", entry.Reason)

	_, err = f.arb.Unwarn(ctx, Unwarn{TargetID: member, Amount: 101, ModeratorID: modB})
	assert.Error(t, err)
}

func TestTimeout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.arb.Timeout(ctx, Timeout{TargetID: modB, ModeratorID: modA, Reason: "x"})
	require.NoError(t, err)
	assert.Equal(t, TimeoutTargetIsAdmin, res.Status)

	res, err = f.arb.Timeout(ctx, Timeout{TargetID: member, Minutes: 10, ModeratorID: modA, Reason: "cool off"})
	require.NoError(t, err)
	assert.Equal(t, TimeoutApplied, res.Status)
	assert.Equal(t, 10*time.Minute, res.Duration)
	require.Len(t, f.plat.Timeouts, 1)
	assert.Equal(t, member, f.plat.Timeouts[0].UserID)

	entry, err := f.logs.GetLog(ctx, res.LogID)
	require.NoError(t, err)
	assert.Equal(t, models.LogTimeout, entry.Type)

	f.plat.TimeoutErr = platform.ErrForbidden
	_, err = f.arb.Timeout(ctx, Timeout{TargetID: member, ModeratorID: modA})
	assert.ErrorIs(t, err, platform.ErrForbidden)
}
