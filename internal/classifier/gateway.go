// Package classifier calls an external language-model judge and turns its
// answer into a typed verdict.
//
// Gateway owns the retry contract: every attempt gets its own deadline,
// transient failures are retried with exponential backoff, and terminal
// failures return at once. Callers see ErrUnavailable when every attempt
// failed and must not act on the missing verdict.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

var (
	// ErrUnavailable means no verdict could be obtained within the retry
	// budget
	ErrUnavailable = errors.New("classification unavailable")

	// ErrRejected means the provider refused the request in a way retrying
	// cannot fix (bad request, auth failure)
	ErrRejected = errors.New("classification rejected")
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxAttempts = 3
	DefaultBackoffBase = time.Second
	DefaultBackoffMax  = 30 * time.Second
	DefaultTemperature = 0.1
)

var retryableStatuses = []int{
	http.StatusRequestTimeout,
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// Prompt is one classification question
type Prompt struct {
	System string
	User   string
}

type providerHolder struct{ p Provider }

type Gateway struct {
	provider atomic.Pointer[providerHolder]

	timeout     time.Duration
	maxAttempts int
	backoffBase time.Duration
	backoffMax  time.Duration
	temperature float64
	limiter     *rate.Limiter

	sleep func(ctx context.Context, d time.Duration) error
}

type Option func(*Gateway)

// WithTimeout bounds each attempt
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithMaxAttempts sets the total number of attempts, first call included
func WithMaxAttempts(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

// WithBackoff sets the first retry delay and the cap; delays double between
// attempts
func WithBackoff(base, max time.Duration) Option {
	return func(g *Gateway) {
		if base > 0 {
			g.backoffBase = base
		}
		if max >= base {
			g.backoffMax = max
		}
	}
}

// WithRateLimit paces provider calls to rps requests per second
func WithRateLimit(rps float64) Option {
	return func(g *Gateway) {
		if rps > 0 {
			g.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

func WithTemperature(t float64) Option {
	return func(g *Gateway) { g.temperature = t }
}

func New(p Provider, opts ...Option) *Gateway {
	g := &Gateway{
		timeout:     DefaultTimeout,
		maxAttempts: DefaultMaxAttempts,
		backoffBase: DefaultBackoffBase,
		backoffMax:  DefaultBackoffMax,
		temperature: DefaultTemperature,
		limiter:     rate.NewLimiter(rate.Inf, 1),
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.SetProvider(p)
	return g
}

// SetProvider swaps the backend for subsequent calls. Calls already in
// flight finish on the provider they started with.
func (g *Gateway) SetProvider(p Provider) {
	g.provider.Store(&providerHolder{p: p})
	if p != nil {
		log.Info().Str("provider", p.Name()).Msg("classifier provider set")
	}
}

// ProviderName returns the active provider, or "" when none is configured
func (g *Gateway) ProviderName() string {
	if h := g.provider.Load(); h != nil && h.p != nil {
		return h.p.Name()
	}
	return ""
}

// Classify submits prompt and parses the answer into v. It returns an error
// wrapping ErrUnavailable or ErrRejected when no verdict was produced.
func (g *Gateway) Classify(ctx context.Context, prompt Prompt, v Verdict) error {
	h := g.provider.Load()
	if h == nil || h.p == nil {
		return fmt.Errorf("%w: no provider configured", ErrUnavailable)
	}
	p := h.p
	req := Request{System: prompt.System, Prompt: prompt.User, Temperature: g.temperature}

	var lastErr error
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := retryablehttp.DefaultBackoff(g.backoffBase, g.backoffMax, attempt-1, nil)
			if err := g.sleep(ctx, delay); err != nil {
				return fmt.Errorf("%w: %w", ErrUnavailable, err)
			}
		}
		if err := g.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}

		err := g.attempt(ctx, p, req, v)
		if err == nil {
			classifierAttempts.WithLabelValues(p.Name(), "ok").Inc()
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			classifierAttempts.WithLabelValues(p.Name(), "cancelled").Inc()
			return fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
		}
		if !retryable(err) {
			classifierAttempts.WithLabelValues(p.Name(), "rejected").Inc()
			log.Error().Err(err).Str("provider", p.Name()).Int("attempt", attempt+1).Msg("classifier request rejected")
			if errors.Is(err, ErrRejected) {
				return err
			}
			return fmt.Errorf("%w: %w", ErrRejected, err)
		}

		classifierAttempts.WithLabelValues(p.Name(), "retry").Inc()
		log.Warn().Err(err).Str("provider", p.Name()).Int("attempt", attempt+1).Int("max_attempts", g.maxAttempts).Msg("classifier attempt failed")
	}

	log.Error().Err(lastErr).Str("provider", p.Name()).Int("max_attempts", g.maxAttempts).Msg("classifier retries exhausted")
	return fmt.Errorf("%w: %s after %d attempts: %w", ErrUnavailable, p.Name(), g.maxAttempts, lastErr)
}

func (g *Gateway) attempt(ctx context.Context, p Provider, req Request, v Verdict) error {
	actx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	text, err := p.Submit(actx, req)
	classifierDuration.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}
	if text == "" {
		return errEmptyResponse
	}
	if err := v.Parse(text); err != nil {
		log.Debug().Str("provider", p.Name()).Str("text", truncate(text, 200)).Msg("classifier response not parseable")
		return err
	}
	return nil
}

var errEmptyResponse = errors.New("empty classifier response")

// retryable reports whether another attempt may succeed. Status errors
// retry only for overload and transient server codes; deadlines, transport
// failures, empty and unparseable answers always retry.
func retryable(err error) bool {
	if errors.Is(err, ErrRejected) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return isStatus(err, retryableStatuses...)
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
