package handlers

import (
	"errors"
	"net/http"

	"github.com/fairguard/backend/config"
	"github.com/fairguard/backend/internal/middleware"
	"github.com/fairguard/backend/internal/settings"
	"github.com/fairguard/backend/internal/validation"
	"github.com/gin-gonic/gin"
)

type SettingsHandler struct {
	store   *settings.Store
	base    config.AIConfig
	gateway settings.Swapper
	client  *http.Client
}

// NewSettingsHandler takes the env classifier config; stored overrides are
// layered on top of it on every change
func NewSettingsHandler(store *settings.Store, base config.AIConfig, gateway settings.Swapper, client *http.Client) *SettingsHandler {
	return &SettingsHandler{store: store, base: base, gateway: gateway, client: client}
}

func (h *SettingsHandler) UpdateClassifier(c *gin.Context) {
	var req settings.ClassifierUpdate
	if !bindJSON(c, &req) {
		return
	}
	if err := validation.Struct(req); err != nil {
		respondError(c, "update_classifier", err)
		return
	}

	cfg, err := h.store.UpdateClassifier(c.Request.Context(), h.base, req, middleware.UserID(c), h.gateway, h.client)
	if errors.Is(err, settings.ErrInvalidClassifier) {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	if errors.Is(err, settings.ErrNoEncryptionKey) {
		ErrorResponse(c, http.StatusConflict, "secret settings need ENCRYPTION_KEY")
		return
	}
	if err != nil {
		respondError(c, "update_classifier", err)
		return
	}
	pc, _ := cfg.ProviderSettings(cfg.Provider)
	c.JSON(http.StatusOK, gin.H{
		"provider":    cfg.Provider,
		"model":       pc.Model,
		"endpoint":    pc.Endpoint,
		"api_key_set": pc.APIKey != "",
	})
}

// List returns every stored setting with secrets redacted
func (h *SettingsHandler) List(c *gin.Context) {
	list, err := h.store.List(c.Request.Context())
	if err != nil {
		respondError(c, "list_settings", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": list})
}
