// Package bridge implements platform.Client against the HTTP bridge exposed
// by the gateway process.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fairguard/backend/internal/platform"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"
)

type Client struct {
	baseURL string
	token   string
	http    *retryablehttp.Client
}

var _ platform.Client = (*Client)(nil)

type Option func(*retryablehttp.Client)

// WithRetry overrides the retry budget
func WithRetry(max int, waitMin, waitMax time.Duration) Option {
	return func(c *retryablehttp.Client) {
		c.RetryMax = max
		c.RetryWaitMin = waitMin
		c.RetryWaitMax = waitMax
	}
}

// WithHTTPClient replaces the underlying transport client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *retryablehttp.Client) { c.HTTPClient = hc }
}

// New returns a bridge client. Connection errors and 5xx answers are retried
// with backoff; 429 honours Retry-After.
func New(baseURL, token string, opts ...Option) *Client {
	rc := retryablehttp.NewClient()
	rc.HTTPClient = cleanhttp.DefaultPooledClient()
	rc.HTTPClient.Timeout = 20 * time.Second
	rc.RetryMax = 3
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.Logger = retryablehttp.LeveledLogger(leveledZerolog{})
	for _, opt := range opts {
		opt(rc)
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), token: token, http: rc}
}

func (c *Client) FetchMessage(ctx context.Context, channelID, messageID string) (*platform.Message, error) {
	var m platform.Message
	path := fmt.Sprintf("/channels/%s/messages/%s", url.PathEscape(channelID), url.PathEscape(messageID))
	if err := c.do(ctx, http.MethodGet, path, nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) FetchMessagesBefore(ctx context.Context, channelID, messageID string, limit int) ([]platform.Message, error) {
	return c.fetchMessages(ctx, channelID, "before", messageID, limit)
}

func (c *Client) FetchMessagesAfter(ctx context.Context, channelID, messageID string, limit int) ([]platform.Message, error) {
	return c.fetchMessages(ctx, channelID, "after", messageID, limit)
}

func (c *Client) fetchMessages(ctx context.Context, channelID, direction, messageID string, limit int) ([]platform.Message, error) {
	q := url.Values{}
	q.Set(direction, messageID)
	q.Set("limit", strconv.Itoa(limit))
	path := fmt.Sprintf("/channels/%s/messages?%s", url.PathEscape(channelID), q.Encode())

	var out struct {
		Messages []platform.Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *Client) SendNotice(ctx context.Context, n platform.Notice) error {
	path := fmt.Sprintf("/channels/%s/notices", url.PathEscape(n.ChannelID))
	return c.do(ctx, http.MethodPost, path, n, nil)
}

func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	path := fmt.Sprintf("/channels/%s/messages/%s", url.PathEscape(channelID), url.PathEscape(messageID))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) MemberRoles(ctx context.Context, userID string) ([]string, error) {
	var out struct {
		RoleIDs []string `json:"role_ids"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/members/%s/roles", url.PathEscape(userID)), nil, &out)
	if errors.Is(err, platform.ErrMessageNotFound) {
		return nil, platform.ErrMemberNotFound
	}
	if err != nil {
		return nil, err
	}
	return out.RoleIDs, nil
}

func (c *Client) TimeoutMember(ctx context.Context, userID string, d time.Duration, reason string) error {
	body := map[string]any{
		"duration_seconds": int(d.Seconds()),
		"reason":           reason,
	}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/members/%s/timeout", url.PathEscape(userID)), body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		payload = bytes.NewReader(b)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("bridge %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return platform.ErrMessageNotFound
	case resp.StatusCode == http.StatusForbidden:
		return platform.ErrForbidden
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("bridge %s %s: HTTP %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode bridge response: %w", err)
	}
	return nil
}

// leveledZerolog routes retryablehttp logs into zerolog. Request errors are
// logged at warn because they are retried.
type leveledZerolog struct{}

func (leveledZerolog) Error(msg string, kv ...interface{}) { log.Warn().Fields(kv).Msg(msg) }
func (leveledZerolog) Warn(msg string, kv ...interface{})  { log.Warn().Fields(kv).Msg(msg) }
func (leveledZerolog) Info(msg string, kv ...interface{})  { log.Info().Fields(kv).Msg(msg) }
func (leveledZerolog) Debug(msg string, kv ...interface{}) { log.Debug().Fields(kv).Msg(msg) }
