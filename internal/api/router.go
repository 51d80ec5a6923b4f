package api

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Focerqc/CLONEpubparts.xyz/internal/config"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/errs"
	"github.com/Focerqc/CLONEpubparts.xyz/internal/service"
)

const requestIDHeader = "X-Request-ID"

// NewRouter creates and configures the Gin router
func NewRouter(services *service.Services, cfg *config.Config, log zerolog.Logger) *gin.Engine {
	// Set Gin mode
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Client address: forwarding headers count only from configured proxies or the edge platform
	router.TrustedPlatform = trustedPlatform(cfg.Server.TrustedPlatform)
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		log.Error().Err(err).Msg("Invalid trusted proxies, trusting none")
		_ = router.SetTrustedProxies(nil)
	}

	// Middleware
	router.Use(requestIDMiddleware())
	router.Use(recoveryMiddleware(log))
	router.Use(loggingMiddleware(log))
	router.Use(corsMiddleware(cfg.Admin.Header))

	// Handlers
	submitHandler := NewSubmitHandler(services, log)
	scrapeHandler := NewScrapeHandler(services, log)
	adminHandler := NewAdminHandler(services, log)

	// Health check
	router.GET("/health", healthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.POST("/submit", submitHandler.Submit)
		api.GET("/scrape", scrapeHandler.Scrape)

		// Admin endpoints
		admin := api.Group("/admin", adminAuthMiddleware(cfg.Admin, log))
		{
			admin.GET("/list-prs", adminHandler.ListPRs)
			admin.GET("/pr/:number", adminHandler.GetPRContent)
			admin.POST("/merge-pr", adminHandler.MergePR)
			admin.POST("/batch", adminHandler.Batch)
			admin.GET("/duplicates", adminHandler.Duplicates)
			admin.GET("/categories", adminHandler.Categories)
		}
	}

	return router
}

// trustedPlatform maps the configured platform onto the header gin should read the client IP from
func trustedPlatform(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return ""
	case "cloudflare":
		return gin.PlatformCloudflare
	case "appengine", "google-app-engine":
		return gin.PlatformGoogleAppEngine
	default:
		return name
	}
}

// healthCheck returns the health status
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"service":   "parts-submission-api",
	})
}

// requestIDMiddleware propagates or assigns a request id
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

// recoveryMiddleware handles panics
func recoveryMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().Interface("error", err).Str("request_id", c.GetString("request_id")).Msg("Panic recovered")
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Internal server error",
				})
				c.Abort()
			}
		}()
		c.Next()
	}
}

// loggingMiddleware logs requests
func loggingMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()

		event := log.Info()
		if statusCode >= 400 {
			event = log.Warn()
		}
		if statusCode >= 500 {
			event = log.Error()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", statusCode).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP()).
			Str("request_id", c.GetString("request_id")).
			Msg("Request completed")
	}
}

// corsMiddleware handles CORS; the scrape and submit endpoints are called cross-origin
func corsMiddleware(adminHeader string) gin.HandlerFunc {
	allowHeaders := "Content-Type, " + requestIDHeader
	if adminHeader != "" {
		allowHeaders += ", " + adminHeader
	}
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", allowHeaders)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// adminAuthMiddleware compares the credential header against the configured shared secret.
// A wrong or missing credential is always 401; an unconfigured password disables the console with 503.
func adminAuthMiddleware(cfg config.AdminConfig, log zerolog.Logger) gin.HandlerFunc {
	header := cfg.Header
	if header == "" {
		header = "x-admin-password"
	}
	return func(c *gin.Context) {
		if cfg.Password == "" {
			log.Error().Msg("Admin request received but ADMIN_PASSWORD is not configured")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Admin console is not configured"})
			return
		}
		given := c.GetHeader(header)
		if given == "" || subtle.ConstantTimeCompare([]byte(given), []byte(cfg.Password)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}

// statusFor maps an error kind to its HTTP status
func statusFor(kind errs.Kind) int {
	switch kind {
	case errs.KindInvalid:
		return http.StatusBadRequest
	case errs.KindUnauthorized:
		return http.StatusUnauthorized
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindConflict:
		return http.StatusConflict
	case errs.KindRateLimited:
		return http.StatusTooManyRequests
	case errs.KindBusy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes {error} with the status for err's kind, plus any extra fields.
// Throttled responses carry Retry-After when the error knows the wait.
func respondError(c *gin.Context, err error, extra gin.H) {
	if seconds := errs.RetryAfterSeconds(err); seconds > 0 {
		c.Header("Retry-After", strconv.Itoa(seconds))
	}
	body := gin.H{"error": errs.Message(err)}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(statusFor(errs.KindOf(err)), body)
}
