// Package cleanup runs the periodic sweeps: expired warnings, stale
// message tracking rows and pending actions whose timers were missed.
package cleanup

import (
	"context"
	"errors"
	"time"

	"github.com/fairguard/backend/internal/database"
	"github.com/fairguard/backend/internal/ledger"
	"github.com/fairguard/backend/internal/repository"
	"github.com/rs/zerolog/log"
)

const (
	DefaultInterval  = 10 * time.Minute
	DefaultRetention = 30 * 24 * time.Hour
)

// Sweeper drops expired entries and returns how many it removed
type Sweeper interface {
	Cleanup() int
}

// Report counts what one run removed
type Report struct {
	ExpiredWarnings int   `json:"expired_warnings"`
	PrunedMessages  int64 `json:"pruned_messages"`
	ExpiredPending  int   `json:"expired_pending"`
}

// Job handles retention cleanup
type Job struct {
	ledger    *ledger.Ledger
	messages  *repository.MessageRepository
	retention time.Duration
	caches    map[string]Sweeper
	now       func() time.Time
}

// NewJob creates a cleanup job
func NewJob(db *database.DB, l *ledger.Ledger, retention time.Duration) *Job {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Job{
		ledger:    l,
		messages:  repository.NewMessageRepository(db),
		retention: retention,
		caches:    make(map[string]Sweeper),
		now:       time.Now,
	}
}

// AddCache includes a pending-action cache in every run
func (j *Job) AddCache(name string, c Sweeper) {
	j.caches[name] = c
}

// Start runs the job immediately and then every interval until ctx is done
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.run(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("cleanup job stopped")
			return
		case <-ticker.C:
			j.run(ctx)
		}
	}
}

func (j *Job) run(ctx context.Context) {
	r, err := j.RunOnce(ctx)
	if err != nil {
		log.Error().Err(err).Msg("cleanup run failed")
	}
	if r != (Report{}) {
		log.Info().
			Int("expired_warnings", r.ExpiredWarnings).
			Int64("pruned_messages", r.PrunedMessages).
			Int("expired_pending", r.ExpiredPending).
			Msg("cleanup run finished")
	}
}

// RunOnce runs every sweep once. A failing sweep does not stop the others;
// their errors are joined.
func (j *Job) RunOnce(ctx context.Context) (Report, error) {
	var r Report
	var errs []error

	n, err := j.ledger.CleanupExpired(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	r.ExpiredWarnings = n

	pruned, err := j.messages.PruneBefore(ctx, j.now().Add(-j.retention))
	if err != nil {
		errs = append(errs, err)
	}
	r.PrunedMessages = pruned

	for name, c := range j.caches {
		removed := c.Cleanup()
		if removed > 0 {
			log.Debug().Str("cache", name).Int("removed", removed).Msg("expired pending actions swept")
		}
		r.ExpiredPending += removed
	}

	return r, errors.Join(errs...)
}
