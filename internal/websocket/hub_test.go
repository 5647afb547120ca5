package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fairguard/backend/internal/auth"
	"github.com/fairguard/backend/internal/cache"
	"github.com/fairguard/backend/internal/models"
	"github.com/fairguard/backend/internal/platform"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	operatorA = "200000000000000001"
	operatorB = "200000000000000002"
	member    = "100000000000000001"
)

func startHub(t *testing.T, redis *cache.RedisClient) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub(redis)
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return h
}

func fakeClient(userID string, buffer int) *Client {
	return &Client{userID: userID, send: make(chan []byte, buffer)}
}

func receive(t *testing.T, c *Client) models.WSMessage {
	t.Helper()
	select {
	case b, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		var msg models.WSMessage
		require.NoError(t, json.Unmarshal(b, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for alert to %s", c.userID)
	}
	return models.WSMessage{}
}

func assertNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case b := <-c.send:
		t.Fatalf("unexpected message: %s", b)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubAlertReachesEveryClient(t *testing.T) {
	h := startHub(t, nil)
	c1 := fakeClient(operatorA, 4)
	c2 := fakeClient(operatorB, 4)
	require.True(t, h.Register(c1))
	require.True(t, h.Register(c2))

	h.Alert(context.Background(), platform.Alert{
		Event:   models.EventThresholdReached,
		UserID:  member,
		Message: "warning threshold reached",
	})

	for _, c := range []*Client{c1, c2} {
		msg := receive(t, c)
		assert.Equal(t, models.EventThresholdReached, msg.Event)
		payload, ok := msg.Payload.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, member, payload["user_id"])
		assert.Equal(t, "warning threshold reached", payload["message"])
		assert.False(t, msg.SentAt.IsZero())
	}
}

func TestHubDropsSlowClient(t *testing.T) {
	h := startHub(t, nil)
	slow := fakeClient(operatorA, 0)
	fast := fakeClient(operatorB, 4)
	require.True(t, h.Register(slow))
	require.True(t, h.Register(fast))

	h.Alert(context.Background(), platform.Alert{Event: models.EventManualWarn})
	receive(t, fast)

	_, ok := <-slow.send
	assert.False(t, ok)
	assert.Equal(t, []string{operatorB}, h.ConnectedOperators())
}

func TestConnectedOperatorsCountsEachOperatorOnce(t *testing.T) {
	h := startHub(t, nil)
	require.True(t, h.Register(fakeClient(operatorA, 1)))
	require.True(t, h.Register(fakeClient(operatorA, 1)))
	second := fakeClient(operatorB, 1)
	require.True(t, h.Register(second))

	assert.ElementsMatch(t, []string{operatorA, operatorB}, h.ConnectedOperators())

	h.leave(second)
	assert.Eventually(t, func() bool {
		return len(h.ConnectedOperators()) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestHubStopClosesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub(nil)
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	c := fakeClient(operatorA, 1)
	require.True(t, h.Register(c))
	cancel()
	require.NoError(t, <-done)

	_, ok := <-c.send
	assert.False(t, ok)
	assert.False(t, h.Register(fakeClient(operatorB, 1)))
}

func TestHubFansOutAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	connect := func() *cache.RedisClient {
		r, err := cache.NewRedisClient(context.Background(), mr.Addr(), "", 0)
		require.NoError(t, err)
		t.Cleanup(func() { r.Close() })
		return r
	}

	hubA := startHub(t, connect())
	hubB := startHub(t, connect())
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(cache.AlertChannel)[cache.AlertChannel] == 2
	}, time.Second, 10*time.Millisecond)

	onA := fakeClient(operatorA, 4)
	onB := fakeClient(operatorB, 4)
	require.True(t, hubA.Register(onA))
	require.True(t, hubB.Register(onB))

	hubA.Alert(context.Background(), platform.Alert{Event: models.EventAbuseSuspected, UserID: member})

	assert.Equal(t, models.EventAbuseSuspected, receive(t, onA).Event)
	assert.Equal(t, models.EventAbuseSuspected, receive(t, onB).Event)
	assertNothing(t, onA)
}

func TestHandleWebSocket(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwtService := auth.NewJWTService("ws-secret", 1)
	hub := startHub(t, nil)
	admins := platform.NewAdmins(nil, []string{operatorA}, nil)

	router := gin.New()
	router.GET("/ws/alerts", NewHandler(hub, jwtService, admins, nil).HandleWebSocket)
	srv := httptest.NewServer(router)
	defer srv.Close()

	dial := func(userID string) (*websocket.Conn, *http.Response, error) {
		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/alerts"
		if userID != "" {
			token, err := jwtService.GenerateToken(userID, "")
			require.NoError(t, err)
			url += "?token=" + token
		}
		return websocket.DefaultDialer.Dial(url, nil)
	}

	t.Run("missing token", func(t *testing.T) {
		_, resp, err := dial("")
		require.Error(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("member is refused", func(t *testing.T) {
		_, resp, err := dial(member)
		require.Error(t, err)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("operator receives alerts", func(t *testing.T) {
		conn, _, err := dial(operatorA)
		require.NoError(t, err)
		defer conn.Close()

		require.Eventually(t, func() bool {
			return len(hub.ConnectedOperators()) == 1
		}, time.Second, 10*time.Millisecond)

		hub.Alert(context.Background(), platform.Alert{Event: models.EventConfirmationRequired, Message: "review"})

		conn.SetReadDeadline(time.Now().Add(time.Second))
		var msg models.WSMessage
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, models.EventConfirmationRequired, msg.Event)

		require.NoError(t, conn.WriteJSON(models.WSMessage{Event: models.EventPing}))
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, models.EventPong, msg.Event)

		require.NoError(t, conn.WriteJSON(models.WSMessage{Event: "message.send"}))
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, models.EventError, msg.Event)
	})
}

func TestMatchOrigin(t *testing.T) {
	tests := []struct {
		pattern, origin string
		want            bool
	}{
		{"https://console.example.com", "https://console.example.com", true},
		{"*.example.com", "https://console.example.com", true},
		{"*.example.com", "https://evilexample.com", false},
		{"https://console.example.com", "https://other.example.com", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchOrigin(tt.pattern, tt.origin), "%s vs %s", tt.pattern, tt.origin)
	}
}
