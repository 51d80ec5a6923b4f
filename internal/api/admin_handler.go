package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Focerqc/CLONEpubparts.xyz/internal/models"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/service"
)

// AdminHandler handles the admin review console endpoints
type AdminHandler struct {
	services *service.Services
	log      zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(services *service.Services, log zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		services: services,
		log:      log.With().Str("handler", "admin").Logger(),
	}
}

// ListPRs handles GET /api/admin/list-prs
func (h *AdminHandler) ListPRs(c *gin.Context) {
	prs, err := h.services.Admin.ListOpen(c.Request.Context())
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, prs)
}

// GetPRContent handles GET /api/admin/pr/:number
func (h *AdminHandler) GetPRContent(c *gin.Context) {
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil || number <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid pull request number"})
		return
	}

	content, err := h.services.Admin.Content(c.Request.Context(), number)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, content)
}

// MergePR handles POST /api/admin/merge-pr
func (h *AdminHandler) MergePR(c *gin.Context) {
	var req struct {
		PullNumber int `json:"pull_number"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.PullNumber <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pull_number is required"})
		return
	}

	if err := h.services.Admin.Merge(c.Request.Context(), req.PullNumber); err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("Pull request #%d merged", req.PullNumber),
	})
}

// Batch handles POST /api/admin/batch
func (h *AdminHandler) Batch(c *gin.Context) {
	var action models.BatchAction
	if err := c.ShouldBindJSON(&action); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
		return
	}

	res, err := h.services.Admin.Batch(c.Request.Context(), &action)
	if err != nil {
		var extra gin.H
		if res != nil {
			extra = gin.H{"result": res}
		}
		respondError(c, err, extra)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Duplicates handles GET /api/admin/duplicates
func (h *AdminHandler) Duplicates(c *gin.Context) {
	groups, err := h.services.Admin.Duplicates(c.Request.Context())
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups, "count": len(groups)})
}

// Categories handles GET /api/admin/categories
func (h *AdminHandler) Categories(c *gin.Context) {
	categories, err := h.services.Admin.Categories(c.Request.Context())
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}
