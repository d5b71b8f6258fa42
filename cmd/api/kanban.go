package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/inboxforge/core/internal/apperr"
	"github.com/inboxforge/core/internal/column"
)

type KanbanHandler struct {
	columns *column.Manager
}

func NewKanbanHandler(columns *column.Manager) *KanbanHandler {
	return &KanbanHandler{columns: columns}
}

func (h *KanbanHandler) List(c *gin.Context) {
	cols, err := h.columns.List(userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"columns": cols})
}

type createColumnRequest struct {
	Title      string `json:"title" binding:"required"`
	LabelToken string `json:"labelToken"`
	Color      string `json:"color"`
	OrderIndex *int   `json:"orderIndex"`
}

func (h *KanbanHandler) Create(c *gin.Context) {
	var req createColumnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Validation("title is required"))
		return
	}
	col, err := h.columns.Create(userID(c), req.Title, req.LabelToken, req.Color, req.OrderIndex)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, col)
}

type patchColumnRequest struct {
	Title      *string `json:"title"`
	LabelToken *string `json:"labelToken"`
	Color      *string `json:"color"`
	OrderIndex *int    `json:"orderIndex"`
}

func (h *KanbanHandler) Patch(c *gin.Context) {
	var req patchColumnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Validation("malformed request body"))
		return
	}
	col, err := h.columns.Update(userID(c), c.Param("id"), req.Title, req.LabelToken, req.Color, req.OrderIndex)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, col)
}

func (h *KanbanHandler) Delete(c *gin.Context) {
	if err := h.columns.Delete(userID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Initialize implements POST /kanban/columns/initialize, seeding the
// default column set for a user who has none yet.
func (h *KanbanHandler) Initialize(c *gin.Context) {
	if err := h.columns.SeedDefaults(userID(c)); err != nil {
		respondError(c, err)
		return
	}
	cols, err := h.columns.List(userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"columns": cols})
}
