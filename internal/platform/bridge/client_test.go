package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fairguard/backend/internal/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL, "bridge-token", WithRetry(2, time.Millisecond, 2*time.Millisecond))
}

func TestFetchMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer bridge-token", r.Header.Get("Authorization"))
		assert.Equal(t, "/channels/c1/messages/m1", r.URL.Path)
		json.NewEncoder(w).Encode(platform.Message{ID: "m1", ChannelID: "c1", Content: "hello"})
	})

	m, err := c.FetchMessage(context.Background(), "c1", "m1")
	require.NoError(t, err)
	assert.Equal(t, "hello", m.Content)
}

func TestFetchMessagesAround(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "m5", r.URL.Query().Get("before"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"messages":[{"id":"m3"},{"id":"m4"}]}`))
	})

	msgs, err := c.FetchMessagesBefore(context.Background(), "c1", "m5", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m4", msgs[1].ID)
}

func TestDeleteMessageDistinguishesFailures(t *testing.T) {
	status := http.StatusNotFound
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(status)
	})
	ctx := context.Background()

	assert.ErrorIs(t, c.DeleteMessage(ctx, "c1", "m1"), platform.ErrMessageNotFound)

	status = http.StatusForbidden
	assert.ErrorIs(t, c.DeleteMessage(ctx, "c1", "m1"), platform.ErrForbidden)

	status = http.StatusNoContent
	assert.NoError(t, c.DeleteMessage(ctx, "c1", "m1"))
}

func TestTransientFailuresAreRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.SendNotice(context.Background(), platform.Notice{ChannelID: "c1", Title: "t"}))
	assert.Equal(t, int32(3), calls.Load())
}

func TestMemberRolesAndTimeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/members/u1/roles":
			w.Write([]byte(`{"role_ids":["r1","r2"]}`))
		case "/members/u1/timeout":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, float64(3600), body["duration_seconds"])
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	roles, err := c.MemberRoles(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2"}, roles)

	_, err = c.MemberRoles(ctx, "u2")
	assert.ErrorIs(t, err, platform.ErrMemberNotFound)

	assert.NoError(t, c.TimeoutMember(ctx, "u1", time.Hour, "spam"))
}
