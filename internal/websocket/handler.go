package websocket

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/fairguard/backend/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// AdminChecker reports operator status
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// Handler upgrades operator consoles onto the alert hub
type Handler struct {
	hub        *Hub
	jwtService *auth.JWTService
	admins     AdminChecker
	upgrader   websocket.Upgrader
}

// NewHandler creates a new WebSocket handler. With no allowed origins
// every origin is accepted.
func NewHandler(hub *Hub, jwtService *auth.JWTService, admins AdminChecker, allowedOrigins []string) *Handler {
	h := &Handler{
		hub:        hub,
		jwtService: jwtService,
		admins:     admins,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	h.upgrader.CheckOrigin = func(r *http.Request) bool {
		if len(allowedOrigins) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return false
		}
		for _, pattern := range allowedOrigins {
			if matchOrigin(pattern, origin) {
				return true
			}
		}
		return false
	}
	return h
}

// HandleWebSocket authenticates the token query parameter, requires an
// operator and upgrades the connection
func (h *Handler) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token required"})
		return
	}

	claims, err := h.jwtService.ValidateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	admin, err := h.admins.IsAdmin(c.Request.Context(), claims.UserID)
	if err != nil {
		log.Error().Err(err).Str("user_id", claims.UserID).Msg("admin check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "admin check unavailable"})
		return
	}
	if !admin {
		c.JSON(http.StatusForbidden, gin.H{"error": "operators only"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("user_id", claims.UserID).Msg("failed to upgrade connection")
		return
	}

	client := NewClient(h.hub, conn, claims.UserID)
	if !h.hub.Register(client) {
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}

// matchOrigin supports exact matches or wildcard patterns like *.example.com
func matchOrigin(pattern, origin string) bool {
	if pattern == origin {
		return true
	}
	if !strings.HasPrefix(pattern, "*.") {
		return false
	}
	originHost := origin
	if u, err := url.Parse(origin); err == nil && u.Host != "" {
		originHost = u.Hostname()
	}
	suffix := strings.TrimPrefix(pattern, "*")
	return strings.HasSuffix(originHost, suffix)
}
