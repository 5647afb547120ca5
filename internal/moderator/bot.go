// Package moderator feeds messages published on Redis by the platform glue
// into the moderation pipeline.
package moderator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fairguard/backend/internal/cache"
	"github.com/fairguard/backend/internal/moderation"
	"github.com/fairguard/backend/internal/platform"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	defaultWorkers = 8

	// upper bound for one message, classifier retries included
	messageTimeout = 2 * time.Minute
)

var ingested = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fairguard_ingested_messages_total",
	Help: "Messages consumed from the ingest channel by result.",
}, []string{"result"})

// Moderator is the pipeline entry point the bot drives
type Moderator interface {
	ModerateMessage(ctx context.Context, msg platform.Message, fetcher platform.ContextFetcher) (moderation.Result, error)
}

// Bot consumes the ingest channel with bounded concurrency
type Bot struct {
	redis     *cache.RedisClient
	channel   string
	moderator Moderator
	fetcher   platform.ContextFetcher
	workers   int
}

func NewBot(redis *cache.RedisClient, channel string, moderator Moderator, fetcher platform.ContextFetcher, workers int) *Bot {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Bot{
		redis:     redis,
		channel:   channel,
		moderator: moderator,
		fetcher:   fetcher,
		workers:   workers,
	}
}

// Run consumes messages until ctx is cancelled, then waits for the
// messages in flight
func (b *Bot) Run(ctx context.Context) error {
	ps, err := b.redis.SubscribeToMessages(ctx, b.channel)
	if err != nil {
		return err
	}
	defer ps.Close()

	var g errgroup.Group
	g.SetLimit(b.workers)
	defer g.Wait()

	ch := ps.Channel()
	log.Info().Str("channel", b.channel).Int("workers", b.workers).Msg("moderation bot listening")
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg platform.Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				ingested.WithLabelValues("malformed").Inc()
				log.Warn().Err(err).Msg("dropping malformed ingest payload")
				continue
			}
			g.Go(func() error {
				b.processMessage(ctx, msg)
				return nil
			})
		}
	}
}

func (b *Bot) processMessage(ctx context.Context, msg platform.Message) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), messageTimeout)
	defer cancel()

	res, err := b.moderator.ModerateMessage(ctx, msg, b.fetcher)
	if err != nil {
		ingested.WithLabelValues("error").Inc()
		log.Error().Err(err).Str("message_id", msg.ID).Str("user_id", msg.AuthorID).Msg("failed to moderate message")
		return
	}
	ingested.WithLabelValues(string(res.Outcome())).Inc()
	if res.Outcome() != moderation.OutcomeSafe {
		log.Info().Str("message_id", msg.ID).Str("user_id", msg.AuthorID).Str("outcome", string(res.Outcome())).Msg("message moderated")
	}
}
