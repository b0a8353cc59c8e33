package httpapi

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lamim/catalogseo/internal/jobs"
)

// APIError is the body of every failed request
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ErrorEnvelope wraps APIError
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// startBody is the JSON accepted by POST /api/tenants/:tenant/start
type startBody struct {
	ShopName           string   `json:"shopName"`
	CatalogToken       string   `json:"catalogToken"`
	GeneratorKey       string   `json:"generatorKey"`
	StartFresh         bool     `json:"startFresh"`
	StartFromProductID *int64   `json:"startFromProductId"`
	SEOTypes           []string `json:"seoTypes"`
}

// Handler serves the tenant job routes
type Handler struct {
	jobs   JobService
	logger *slog.Logger
}

// Start handles POST /api/tenants/:tenant/start
func (h *Handler) Start(c *gin.Context) {
	var body startBody
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", fmt.Errorf("invalid request body: %w", err))
		return
	}

	tenantID := c.Param("tenant")
	runID, err := h.jobs.Start(c.Request.Context(), jobs.StartRequest{
		TenantID: tenantID,
		Credentials: jobs.Credentials{
			ShopName:     body.ShopName,
			CatalogToken: body.CatalogToken,
			GeneratorKey: body.GeneratorKey,
		},
		StartFresh:         body.StartFresh,
		StartFromProductID: body.StartFromProductID,
		SEOTypes:           body.SEOTypes,
	})
	if err != nil {
		h.respondJobError(c, tenantID, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"tenantId": tenantID, "runId": runID})
}

// Stop handles POST /api/tenants/:tenant/stop
func (h *Handler) Stop(c *gin.Context) {
	tenantID := c.Param("tenant")
	if err := h.jobs.Stop(c.Request.Context(), tenantID); err != nil {
		h.respondJobError(c, tenantID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenantId": tenantID, "stopping": true})
}

// Status handles GET /api/tenants/:tenant/status
func (h *Handler) Status(c *gin.Context) {
	tenantID := c.Param("tenant")
	status, err := h.jobs.Status(c.Request.Context(), tenantID)
	if err != nil {
		h.respondJobError(c, tenantID, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) respondJobError(c *gin.Context, tenantID string, err error) {
	switch {
	case errors.Is(err, jobs.ErrInvalidArgument):
		RespondError(c, http.StatusBadRequest, "invalid_argument", err)
	case errors.Is(err, jobs.ErrAlreadyRunning):
		RespondError(c, http.StatusConflict, "already_running", err)
	default:
		h.logger.Error("Job request failed", "tenant_id", tenantID, "path", c.FullPath(), "error", err)
		RespondError(c, http.StatusInternalServerError, "internal", err)
	}
}

// RespondError writes an ErrorEnvelope
func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}
