// Package websocket pushes operator alerts to connected moderator consoles.
// With Redis configured every engine instance relays alerts through one
// pub/sub channel, so a console sees alerts raised by any instance.
package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/fairguard/backend/internal/cache"
	"github.com/fairguard/backend/internal/models"
	"github.com/fairguard/backend/internal/platform"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var connectedOperators = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "fairguard_operator_connections",
	Help: "Operator consoles connected to the alert hub.",
})

// Hub maintains the set of active clients and broadcasts alerts to them
type Hub struct {
	// Registered clients
	clients map[*Client]struct{}

	// Encoded alerts waiting for delivery
	broadcast chan []byte

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Redis client for cross-instance fan-out, nil for local delivery
	redis *cache.RedisClient

	done chan struct{}
	now  func() time.Time

	mu sync.RWMutex
}

// NewHub creates a new Hub. redis may be nil.
func NewHub(redis *cache.RedisClient) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		redis:      redis,
		done:       make(chan struct{}),
		now:        time.Now,
	}
}

// Run delivers alerts until ctx is cancelled, then closes every client
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	if h.redis != nil {
		ps, err := h.redis.SubscribeToAlerts(ctx)
		if err != nil {
			return err
		}
		defer ps.Close()
		go h.forward(ctx, ps.Channel())
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			connectedOperators.Set(0)
			return nil

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			connectedOperators.Set(float64(n))
			log.Info().Str("user_id", client.userID).Msg("operator connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			connectedOperators.Set(float64(n))
			log.Info().Str("user_id", client.userID).Msg("operator disconnected")

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// slow consumer
					close(client.send)
					delete(h.clients, client)
					log.Warn().Str("user_id", client.userID).Msg("dropping slow operator connection")
				}
			}
			h.mu.Unlock()
		}
	}
}

// forward relays alerts published by any instance to local clients
func (h *Hub) forward(ctx context.Context, msgs <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			h.enqueue([]byte(msg.Payload))
		}
	}
}

// Alert implements platform.Alerter
func (h *Hub) Alert(ctx context.Context, a platform.Alert) {
	data, err := json.Marshal(models.WSMessage{
		Event:   a.Event,
		Payload: a,
		SentAt:  h.now(),
	})
	if err != nil {
		log.Error().Err(err).Str("event", a.Event).Msg("failed to encode alert")
		return
	}

	if h.redis != nil {
		err := h.redis.PublishAlert(ctx, data)
		if err == nil {
			return
		}
		log.Warn().Err(err).Str("event", a.Event).Msg("alert fan-out failed, delivering locally")
	}
	h.enqueue(data)
}

func (h *Hub) enqueue(data []byte) {
	select {
	case h.broadcast <- data:
	case <-h.done:
	default:
		log.Warn().Msg("alert queue full, dropping alert")
	}
}

// Register adds a client; it is a no-op once the hub stopped
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// ConnectedOperators returns the ids of connected operators, one entry per
// operator even with several consoles open
func (h *Hub) ConnectedOperators() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]struct{}, len(h.clients))
	ids := make([]string, 0, len(h.clients))
	for c := range h.clients {
		if _, ok := seen[c.userID]; ok {
			continue
		}
		seen[c.userID] = struct{}{}
		ids = append(ids, c.userID)
	}
	return ids
}
