package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fairguard/backend/internal/database"
	"github.com/fairguard/backend/internal/models"
	"github.com/fairguard/backend/internal/repository"
	"github.com/fairguard/backend/internal/validation"
	"github.com/gin-gonic/gin"
)

const (
	defaultAnalyticsDays = 30
	maxAnalyticsDays     = 365
)

// AnalyticsHandler reports on the moderation audit trail
type AnalyticsHandler struct {
	logs *repository.ModerationRepository
	now  func() time.Time
}

func NewAnalyticsHandler(db *database.DB) *AnalyticsHandler {
	return &AnalyticsHandler{logs: repository.NewModerationRepository(db), now: time.Now}
}

// since parses ?days= into the start of the reporting window
func (h *AnalyticsHandler) since(c *gin.Context) (time.Time, bool) {
	days, err := strconv.Atoi(c.DefaultQuery("days", strconv.Itoa(defaultAnalyticsDays)))
	if err != nil || days < 1 || days > maxAnalyticsDays {
		respondError(c, "analytics", validation.Errors{"days": "Value must be between 1 and " + strconv.Itoa(maxAnalyticsDays)})
		return time.Time{}, false
	}
	return h.now().Add(-time.Duration(days) * 24 * time.Hour), true
}

func (h *AnalyticsHandler) Stats(c *gin.Context) {
	since, ok := h.since(c)
	if !ok {
		return
	}
	stats, err := h.logs.Stats(c.Request.Context(), since)
	if err != nil {
		respondError(c, "analytics", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Recent lists the newest log entries, optionally of one type
func (h *AnalyticsHandler) Recent(c *gin.Context) {
	since, ok := h.since(c)
	if !ok {
		return
	}
	logType := models.LogType(strings.ToUpper(c.Query("type")))
	if logType != "" && !logType.Valid() {
		respondError(c, "recent logs", validation.Errors{"type": "Unknown log type"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > maxLogPage {
		respondError(c, "recent logs", validation.Errors{"limit": "Value must be between 1 and " + strconv.Itoa(maxLogPage)})
		return
	}

	logs, err := h.logs.ListRecent(c.Request.Context(), logType, since, limit)
	if err != nil {
		respondError(c, "recent logs", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"since": since, "logs": logs})
}
