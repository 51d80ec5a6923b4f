package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Focerqc/CLONEpubparts.xyz/internal/resolver"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/service"
)

// ScrapeHandler handles the metadata resolution endpoint
type ScrapeHandler struct {
	services *service.Services
	log      zerolog.Logger
}

// NewScrapeHandler creates a new ScrapeHandler
func NewScrapeHandler(services *service.Services, log zerolog.Logger) *ScrapeHandler {
	return &ScrapeHandler{
		services: services,
		log:      log.With().Str("handler", "scrape").Logger(),
	}
}

// Scrape handles GET /api/scrape?url=
// Exhaustion is 422 so the client falls through to manual entry.
func (h *ScrapeHandler) Scrape(c *gin.Context) {
	raw := c.Query("url")
	if _, err := resolver.ParseTarget(raw); err != nil {
		respondError(c, err, gin.H{"success": false})
		return
	}

	res := h.services.Resolver.Resolve(c.Request.Context(), raw)
	if !res.Success {
		h.log.Info().Str("url", raw).Int("attempts", len(res.Attempts)).Msg("Metadata resolution exhausted")
		c.JSON(http.StatusUnprocessableEntity, res)
		return
	}
	c.JSON(http.StatusOK, res)
}
