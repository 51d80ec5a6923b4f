package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Focerqc/CLONEpubparts.xyz/internal/models"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/ratelimit"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/service"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/validation"
)

const maxSubmitBody = 1 << 20

// SubmitHandler handles the submission endpoint
type SubmitHandler struct {
	services *service.Services
	log      zerolog.Logger
}

// NewSubmitHandler creates a new SubmitHandler
func NewSubmitHandler(services *service.Services, log zerolog.Logger) *SubmitHandler {
	return &SubmitHandler{
		services: services,
		log:      log.With().Str("handler", "submit").Logger(),
	}
}

// Submit handles POST /api/submit
// Accepts {parts, hp_field} or the legacy {printablesUrl, editedPart} body
func (h *SubmitHandler) Submit(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSubmitBody)

	var req models.SubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("Malformed submission body")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
		return
	}

	identity := ratelimit.Identity(c.ClientIP())
	res, err := h.services.Submission.Submit(c.Request.Context(), identity, req.ToBatch())
	if err != nil {
		extra := gin.H{}
		if res != nil {
			extra["manualUrl"] = res.ManualURL
			extra["branch"] = res.Branch
		}
		var batchErr *validation.BatchError
		if errors.As(err, &batchErr) {
			extra["fields"] = batchErr.Fields()
			if batchErr.Record > 0 {
				extra["part"] = batchErr.Record
			}
		}
		respondError(c, err, extra)
		return
	}

	c.JSON(http.StatusOK, res)
}
