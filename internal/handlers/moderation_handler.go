package handlers

import (
	"net/http"
	"time"

	"github.com/fairguard/backend/internal/middleware"
	"github.com/fairguard/backend/internal/moderation"
	"github.com/fairguard/backend/internal/platform"
	"github.com/fairguard/backend/internal/validation"
	"github.com/gin-gonic/gin"
)

type ModerationHandler struct {
	pipeline *moderation.Pipeline
	fetcher  platform.ContextFetcher
}

func NewModerationHandler(pipeline *moderation.Pipeline, fetcher platform.ContextFetcher) *ModerationHandler {
	return &ModerationHandler{pipeline: pipeline, fetcher: fetcher}
}

type moderateRequest struct {
	ID        string    `json:"id" validate:"required,max=64"`
	ChannelID string    `json:"channel_id" validate:"required,max=64"`
	AuthorID  string    `json:"author_id" validate:"required,userid"`
	AuthorTag string    `json:"author_tag" validate:"max=100"`
	Content   string    `json:"content" validate:"max=10000"`
	CreatedAt time.Time `json:"created_at"`
}

// Moderate runs the pipeline on one message
func (h *ModerationHandler) Moderate(c *gin.Context) {
	var req moderateRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := validation.Struct(req); err != nil {
		respondError(c, "moderate", err)
		return
	}

	res, err := h.pipeline.ModerateMessage(c.Request.Context(), platform.Message{
		ID:        req.ID,
		ChannelID: req.ChannelID,
		AuthorID:  req.AuthorID,
		AuthorTag: req.AuthorTag,
		Content:   req.Content,
		CreatedAt: req.CreatedAt,
	}, h.fetcher)
	if err != nil {
		respondError(c, "moderate", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcome": res.Outcome(), "result": res})
}

// ApproveConfirmation applies a staged AI verdict
func (h *ModerationHandler) ApproveConfirmation(c *gin.Context) {
	h.resolve(c, true)
}

// RejectConfirmation discards a staged AI verdict
func (h *ModerationHandler) RejectConfirmation(c *gin.Context) {
	h.resolve(c, false)
}

func (h *ModerationHandler) resolve(c *gin.Context, approve bool) {
	res, err := h.pipeline.ResolveConfirmation(c.Request.Context(), c.Param("id"), approve, middleware.UserID(c))
	if err != nil {
		respondError(c, "resolve_confirmation", err)
		return
	}
	if res.Status == moderation.ConfirmationUnavailable {
		c.JSON(http.StatusServiceUnavailable, res)
		return
	}
	c.JSON(statusCode(res.Status == moderation.ConfirmationNotFound), res)
}
