package handlers

import (
	"net/http"

	"github.com/fairguard/backend/internal/auth"
	"github.com/fairguard/backend/internal/middleware"
	"github.com/fairguard/backend/internal/ratelimit"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes wires the operator API onto a gin engine
type Routes struct {
	JWT     *auth.JWTService
	Admins  middleware.AdminChecker
	Limiter *ratelimit.Limiter

	Moderation *ModerationHandler
	Warns      *WarnHandler
	Words      *WordHandler
	Users      *UserHandler
	Settings   *SettingsHandler
	Analytics  *AnalyticsHandler

	// Alerts upgrades operator consoles; nil disables the endpoint
	Alerts gin.HandlerFunc
}

func (rt Routes) Register(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if rt.Alerts != nil {
		router.GET("/ws/alerts", rt.Alerts)
	}

	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(rt.JWT))

	limited := middleware.RateLimitMiddleware(rt.Limiter)
	admin := middleware.RequireAdmin(rt.Admins)

	// any authenticated user
	api.POST("/messages/moderate", limited, rt.Moderation.Moderate)
	api.POST("/appeals", limited, rt.Warns.Appeal)
	api.GET("/words", rt.Words.List)

	ops := api.Group("", admin)
	{
		ops.POST("/warns", limited, rt.Warns.Warn)
		ops.POST("/warns/pending/:id/confirm", limited, rt.Warns.ConfirmPending)
		ops.POST("/warns/pending/:id/cancel", limited, rt.Warns.CancelPending)
		ops.POST("/confirmations/:id/approve", limited, rt.Moderation.ApproveConfirmation)
		ops.POST("/confirmations/:id/reject", limited, rt.Moderation.RejectConfirmation)
		ops.POST("/unwarn", limited, rt.Warns.Unwarn)
		ops.POST("/timeouts", limited, rt.Warns.Timeout)

		ops.POST("/words", limited, rt.Words.Add)
		ops.DELETE("/words/:word", limited, rt.Words.Remove)

		ops.GET("/users/:id/warnings", rt.Users.Warnings)
		ops.GET("/users/:id/trust", rt.Users.Trust)
		ops.GET("/users/:id/logs", rt.Users.Logs)

		ops.GET("/analytics", rt.Analytics.Stats)
		ops.GET("/logs", rt.Analytics.Recent)

		ops.GET("/settings", rt.Settings.List)
		ops.PUT("/settings/classifier", limited, rt.Settings.UpdateClassifier)
	}
}
