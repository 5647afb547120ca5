package handlers

import (
	"net/http"
	"strconv"

	"github.com/fairguard/backend/internal/database"
	"github.com/fairguard/backend/internal/ledger"
	"github.com/fairguard/backend/internal/models"
	"github.com/fairguard/backend/internal/moderation"
	"github.com/fairguard/backend/internal/repository"
	"github.com/fairguard/backend/internal/validation"
	"github.com/gin-gonic/gin"
)

const maxLogPage = 200

// UserHandler serves read-only views of one member's standing
type UserHandler struct {
	ledger *ledger.Ledger
	trust  *moderation.TrustScorer
	logs   *repository.ModerationRepository
}

func NewUserHandler(db *database.DB, l *ledger.Ledger, trust *moderation.TrustScorer) *UserHandler {
	return &UserHandler{ledger: l, trust: trust, logs: repository.NewModerationRepository(db)}
}

func (h *UserHandler) userID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if err := validation.UserID("id", id); err != nil {
		respondError(c, "user", err)
		return "", false
	}
	return id, true
}

func (h *UserHandler) Warnings(c *gin.Context) {
	id, ok := h.userID(c)
	if !ok {
		return
	}
	records, err := h.ledger.ActiveWarnings(c.Request.Context(), id)
	if err != nil {
		respondError(c, "warnings", err)
		return
	}
	if records == nil {
		records = []models.WarningRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"user_id": id, "active_count": len(records), "warnings": records})
}

func (h *UserHandler) Trust(c *gin.Context) {
	id, ok := h.userID(c)
	if !ok {
		return
	}
	score, err := h.trust.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, "trust", err)
		return
	}
	low, err := h.trust.IsLowTrust(c.Request.Context(), id)
	if err != nil {
		respondError(c, "trust", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trust": score, "low_trust": low})
}

func (h *UserHandler) Logs(c *gin.Context) {
	id, ok := h.userID(c)
	if !ok {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > maxLogPage {
		respondError(c, "logs", validation.Errors{"limit": "Value must be between 1 and " + strconv.Itoa(maxLogPage)})
		return
	}

	logs, err := h.logs.GetLogsByUser(c.Request.Context(), id, limit)
	if err != nil {
		respondError(c, "logs", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": id, "logs": logs})
}
