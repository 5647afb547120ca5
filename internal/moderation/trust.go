package moderation

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/fairguard/backend/internal/database"
	"github.com/fairguard/backend/internal/ledger"
	"github.com/fairguard/backend/internal/models"
	"github.com/fairguard/backend/internal/repository"
	"github.com/rs/zerolog/log"
)

const trustLookback = 30 * 24 * time.Hour

type TrustConfig struct {
	Min          int
	Max          int
	Default      int
	LowThreshold int
}

// TrustScorer recomputes a user's trust score from warnings, spam
// incidents, tenure and activity. Scores are overwritten, never
// accumulated.
type TrustScorer struct {
	cfg      TrustConfig
	ledger   *ledger.Ledger
	messages *repository.MessageRepository
	logs     *repository.ModerationRepository
	repo     *repository.TrustRepository
	now      func() time.Time

	// mu guards inflight: users with a refresh running, mapped to whether
	// another was requested meanwhile
	mu       sync.Mutex
	inflight map[string]bool
	wg       sync.WaitGroup
}

func NewTrustScorer(db *database.DB, l *ledger.Ledger, cfg TrustConfig) *TrustScorer {
	if cfg.Max <= cfg.Min {
		cfg = TrustConfig{Min: 0, Max: 100, Default: 50, LowThreshold: 30}
	}
	return &TrustScorer{
		cfg:      cfg,
		ledger:   l,
		messages: repository.NewMessageRepository(db),
		logs:     repository.NewModerationRepository(db),
		repo:     repository.NewTrustRepository(db),
		now:      time.Now,
		inflight: make(map[string]bool),
	}
}

// Compute recalculates and stores the user's score:
//
//	default - 10*warnings - 5*spamIncidents + min(0.1*days, 20) + min(messages/100, 10)
//
// clamped to the configured range. Spam incidents and messages count the
// last 30 days.
func (s *TrustScorer) Compute(ctx context.Context, userID string) (*models.TrustScore, error) {
	now := s.now()
	since := now.Add(-trustLookback)

	warnings, err := s.ledger.GetActiveWarningCount(ctx, userID)
	if err != nil {
		return nil, err
	}
	messages, err := s.messages.CountSince(ctx, userID, since)
	if err != nil {
		return nil, err
	}
	incidents, err := s.logs.CountLogsByTypes(ctx, userID, models.SpamIncidentTypes, since)
	if err != nil {
		return nil, err
	}
	firstSeen, seen, err := s.messages.FirstSeen(ctx, userID)
	if err != nil {
		return nil, err
	}

	days := 0.0
	if seen {
		days = math.Floor(now.Sub(firstSeen).Hours() / 24)
	} else {
		firstSeen = now
	}

	score := float64(s.cfg.Default)
	score -= float64(warnings * 10)
	score -= float64(incidents * 5)
	score += math.Min(days*0.1, 20)
	score += math.Min(math.Floor(float64(messages)/100), 10)
	score = math.Round(score)
	score = math.Max(float64(s.cfg.Min), math.Min(float64(s.cfg.Max), score))

	ts := &models.TrustScore{
		UserID:               userID,
		Score:                int(score),
		WarningCountSnapshot: warnings,
		SpamRatioSnapshot:    float64(incidents) / math.Max(float64(messages), 1),
		FirstSeen:            firstSeen,
		LastUpdated:          now,
	}
	if err := s.repo.Upsert(ctx, ts); err != nil {
		return nil, err
	}
	return ts, nil
}

// Get returns the stored score, computing it for users never scored
func (s *TrustScorer) Get(ctx context.Context, userID string) (*models.TrustScore, error) {
	ts, err := s.repo.Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return s.Compute(ctx, userID)
	}
	return ts, err
}

// IsLowTrust reports whether the user's score is below the low-trust
// threshold
func (s *TrustScorer) IsLowTrust(ctx context.Context, userID string) (bool, error) {
	ts, err := s.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	return ts.Score < s.cfg.LowThreshold, nil
}

// RefreshAsync recomputes the score in the background. Requests for a
// user whose refresh is running are coalesced into one more run after it,
// so the last stored score always reflects the latest request.
func (s *TrustScorer) RefreshAsync(userID string) {
	s.mu.Lock()
	if _, running := s.inflight[userID]; running {
		s.inflight[userID] = true
		s.mu.Unlock()
		return
	}
	s.inflight[userID] = false
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		for {
			s.refresh(userID)

			s.mu.Lock()
			if !s.inflight[userID] {
				delete(s.inflight, userID)
				s.mu.Unlock()
				return
			}
			s.inflight[userID] = false
			s.mu.Unlock()
		}
	}()
}

func (s *TrustScorer) refresh(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := s.Compute(ctx, userID); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("trust score refresh failed")
	}
}

// Wait blocks until background refreshes finish
func (s *TrustScorer) Wait() {
	s.wg.Wait()
}
