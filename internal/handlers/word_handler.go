package handlers

import (
	"net/http"

	"github.com/fairguard/backend/internal/middleware"
	"github.com/fairguard/backend/internal/models"
	"github.com/fairguard/backend/internal/validation"
	"github.com/fairguard/backend/internal/wordlist"
	"github.com/gin-gonic/gin"
)

type WordHandler struct {
	lists *wordlist.Lists
}

func NewWordHandler(lists *wordlist.Lists) *WordHandler {
	return &WordHandler{lists: lists}
}

// List returns both lists in lookup order
func (h *WordHandler) List(c *gin.Context) {
	black, gray := h.lists.Words()
	if black == nil {
		black = []string{}
	}
	if gray == nil {
		gray = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"black": black, "gray": gray})
}

type addWordRequest struct {
	Word string          `json:"word" validate:"required,word"`
	List models.ListType `json:"list" validate:"required,oneof=BLACK GRAY"`
}

func (h *WordHandler) Add(c *gin.Context) {
	var req addWordRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := validation.Struct(req); err != nil {
		respondError(c, "add_word", err)
		return
	}

	res, err := h.lists.Add(c.Request.Context(), req.Word, req.List, middleware.UserID(c))
	if err != nil {
		respondError(c, "add_word", err)
		return
	}
	status := http.StatusCreated
	if res == wordlist.AlreadyExists {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"word": wordlist.Normalize(req.Word), "result": res.String()})
}

type removeWordRequest struct {
	Word string `json:"word" validate:"required,word"`
}

func (h *WordHandler) Remove(c *gin.Context) {
	req := removeWordRequest{Word: c.Param("word")}
	if err := validation.Struct(req); err != nil {
		respondError(c, "remove_word", err)
		return
	}

	res, err := h.lists.Remove(c.Request.Context(), req.Word, middleware.UserID(c))
	if err != nil {
		respondError(c, "remove_word", err)
		return
	}
	c.JSON(statusCode(res == wordlist.NotFound), gin.H{"word": wordlist.Normalize(req.Word), "result": res.String()})
}
