package handlers

import (
	"net/http"

	"github.com/fairguard/backend/internal/arbitration"
	"github.com/fairguard/backend/internal/middleware"
	"github.com/fairguard/backend/internal/platform"
	"github.com/gin-gonic/gin"
)

// WarnHandler serves manual warnings, operator actions and appeals. The
// acting moderator is always the authenticated user, never the body.
type WarnHandler struct {
	arbiter *arbitration.Arbiter
	fetcher platform.ContextFetcher
}

func NewWarnHandler(arbiter *arbitration.Arbiter, fetcher platform.ContextFetcher) *WarnHandler {
	return &WarnHandler{arbiter: arbiter, fetcher: fetcher}
}

func (h *WarnHandler) Warn(c *gin.Context) {
	var req arbitration.ManualWarn
	if !bindJSON(c, &req) {
		return
	}
	req.ModeratorID = middleware.UserID(c)

	res, err := h.arbiter.CheckManualWarnAbuse(c.Request.Context(), req, h.fetcher)
	if err != nil {
		respondError(c, "warn", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *WarnHandler) ConfirmPending(c *gin.Context) {
	res, err := h.arbiter.ConfirmPendingWarn(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		respondError(c, "confirm_pending_warn", err)
		return
	}
	c.JSON(statusCode(res.Status == arbitration.WarnNotFound), res)
}

func (h *WarnHandler) CancelPending(c *gin.Context) {
	res, err := h.arbiter.CancelPendingWarn(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		respondError(c, "cancel_pending_warn", err)
		return
	}
	c.JSON(statusCode(res.Status == arbitration.WarnNotFound), res)
}

func (h *WarnHandler) Unwarn(c *gin.Context) {
	var req arbitration.Unwarn
	if !bindJSON(c, &req) {
		return
	}
	req.ModeratorID = middleware.UserID(c)

	res, err := h.arbiter.Unwarn(c.Request.Context(), req)
	if err != nil {
		respondError(c, "unwarn", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *WarnHandler) Timeout(c *gin.Context) {
	var req arbitration.Timeout
	if !bindJSON(c, &req) {
		return
	}
	req.ModeratorID = middleware.UserID(c)

	res, err := h.arbiter.Timeout(c.Request.Context(), req)
	if err != nil {
		respondError(c, "timeout", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type appealRequest struct {
	LogID  string `json:"log_id"`
	Reason string `json:"reason"`
}

// Appeal contests a log entry on behalf of the authenticated user
func (h *WarnHandler) Appeal(c *gin.Context) {
	var req appealRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.arbiter.AdjudicateAppeal(c.Request.Context(), req.LogID, middleware.UserID(c), req.Reason)
	if err != nil {
		respondError(c, "appeal", err)
		return
	}
	switch res.Status {
	case arbitration.AppealNotFound:
		c.JSON(http.StatusNotFound, res)
	case arbitration.AppealUnavailable:
		c.JSON(http.StatusServiceUnavailable, res)
	default:
		c.JSON(http.StatusOK, res)
	}
}
