package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/zhejian/cipherlink/internal/model"
	"github.com/zhejian/cipherlink/internal/service"
	"github.com/zhejian/cipherlink/internal/validation"
)

// Handler holds HTTP handlers and dependencies.
type Handler struct {
	urlService service.URLServiceInterface
	db         DBInterface
	baseURL    string
	logger     *slog.Logger
}

// DBInterface defines the database operations needed for health checks.
type DBInterface interface {
	Ping(ctx context.Context) error
}

// NewHandler creates a new handler instance. baseURL prefixes the short
// URLs returned to clients.
func NewHandler(urlService service.URLServiceInterface, db DBInterface, baseURL string, logger *slog.Logger) *Handler {
	return &Handler{
		urlService: urlService,
		db:         db,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		logger:     logger,
	}
}

// RegisterRoutes registers all route definitions on the given Gin engine.
// Middleware must be added to the engine before calling this.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.healthCheck)

	api := r.Group("/api")
	{
		api.POST("/urls", h.createURL)
		api.GET("/urls", h.listURLs)
	}

	r.GET("/r/:short_code", h.redirect)
}

// healthCheck handles GET /health
// Response codes:
//   - 200 OK: database reachable
//   - 503 Service Unavailable: database down
func (h *Handler) healthCheck(c *gin.Context) {
	if err := h.db.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":       "degraded",
			"dependencies": gin.H{"database": "down"},
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"dependencies": gin.H{"database": "up"},
	})
}

// createURL handles POST /api/urls
// Response codes:
//   - 201 Created: new entry stored
//   - 200 OK: the URL was already shortened; existing entry returned
//   - 400 Bad Request: malformed body or a validation failure
//   - 500 Internal Server Error: store or crypto failure
func (h *Handler) createURL(c *gin.Context) {
	ctx := c.Request.Context()
	var req model.CreateURLRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid request body",
			slog.String("error", err.Error()),
			slog.String("path", c.Request.URL.Path))
		h.errorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	entry, created, err := h.urlService.CreateURL(ctx, validation.CreateInput{
		URL:           req.URL,
		ExpiresInDays: req.ExpiresInDays,
		ShortCode:     req.ShortCode,
	})
	if err != nil {
		h.serviceError(c, err, "creating short URL")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, model.NewURLResponse(entry, h.baseURL))
}

// listURLs handles GET /api/urls
func (h *Handler) listURLs(c *gin.Context) {
	entries, err := h.urlService.ListURLs(c.Request.Context())
	if err != nil {
		h.serviceError(c, err, "listing URLs")
		return
	}

	resp := make([]model.URLResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, model.NewURLResponse(e, h.baseURL))
	}
	c.JSON(http.StatusOK, resp)
}

// redirect handles GET /r/:short_code
// Response codes:
//   - 307 Temporary Redirect: to the original URL; every visit is counted
//   - 404 Not Found: unknown code
//   - 410 Gone: code expired
func (h *Handler) redirect(c *gin.Context) {
	code := c.Param("short_code")

	entry, err := h.urlService.GetURLByCode(c.Request.Context(), code)
	if err != nil {
		h.serviceError(c, err, "resolving short code", slog.String("code", code))
		return
	}

	// Browsers must come back on every visit or clicks go uncounted.
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Redirect(http.StatusTemporaryRedirect, redirectTarget(entry.OriginalURL))
}

// redirectTarget prefixes scheme-less URLs with http://.
func redirectTarget(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Scheme != "" {
		return raw
	}
	return "http://" + raw
}

// serviceError maps service errors to HTTP responses. 5xx bodies carry a
// generic message only.
func (h *Handler) serviceError(c *gin.Context, err error, op string, attrs ...any) {
	ctx := c.Request.Context()

	var verr *validation.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Error:   http.StatusText(http.StatusBadRequest),
			Message: verr.Error(),
			Field:   verr.Field,
			Reason:  verr.Reason,
		})
	case errors.Is(err, service.ErrURLNotFound):
		h.errorResponse(c, http.StatusNotFound, "URL not found")
	case errors.Is(err, service.ErrURLExpired):
		h.errorResponse(c, http.StatusGone, "URL has expired")
	default:
		h.logger.ErrorContext(ctx, "unexpected error "+op,
			append([]any{slog.String("error", err.Error())}, attrs...)...)
		h.errorResponse(c, http.StatusInternalServerError, "Internal server error")
	}
}

// errorResponse sends a standardized JSON error response.
func (h *Handler) errorResponse(c *gin.Context, status int, message string) {
	c.JSON(status, model.ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}
