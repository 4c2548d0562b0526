package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/SIRP996/cao-du-lieu-sub000/internal/domain"
	"github.com/SIRP996/cao-du-lieu-sub000/internal/usecase"
)

const (
	serviceName    = "caodulieu-backend"
	serviceVersion = "1.0.0"

	storeSearchDeadline = 5 * time.Minute
)

// Session is the part of usecase.SessionService the HTTP layer drives
type Session interface {
	StartExtraction(tasks []domain.ExtractionTask) error
	StartClassification(mode usecase.ClassificationMode, all bool) error
	Stop() bool
	Snapshot() usecase.SessionSnapshot
	Records() []domain.RawProductRecord
	Sources() []domain.SourceConfig
	Report(sortBy string) ([]domain.ReportRow, error)
	UpdateSources(ctx context.Context, sources []domain.SourceConfig) error
	SetCredentials(ctx context.Context, raw string) (int, error)
	ClearRecords(ctx context.Context) error
	SearchStores(ctx context.Context, product string, regions []string) ([]domain.StoreRecord, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	session Session
	log     zerolog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(session Session, log zerolog.Logger) *Handler {
	return &Handler{
		session: session,
		log:     log.With().Str("component", "http").Logger(),
	}
}

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// storeSearchErrorResponse carries the stores found before a search failed
type storeSearchErrorResponse struct {
	ErrorResponse
	Stores []domain.StoreRecord `json:"stores"`
}

type extractRequest struct {
	Tasks []domain.ExtractionTask `json:"tasks" binding:"required,min=1,dive"`
}

type classifyRequest struct {
	Mode usecase.ClassificationMode `json:"mode"`
	All  bool                       `json:"all"`
}

type sourcesRequest struct {
	Sources []domain.SourceConfig `json:"sources" binding:"required"`
}

type credentialsRequest struct {
	APIKeys string `json:"apiKeys"`
}

type storeSearchRequest struct {
	Product string   `json:"product" binding:"required"`
	Regions []string `json:"regions" binding:"required,min=1"`
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": serviceName,
		"version": serviceVersion,
	})
}

// GetSources returns the configured retail sources
func (h *Handler) GetSources(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sources": h.session.Sources()})
}

// UpdateSources replaces the source list
func (h *Handler) UpdateSources(c *gin.Context) {
	var req sourcesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	if err := h.session.UpdateSources(c.Request.Context(), req.Sources); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sources": h.session.Sources()})
}

// SetCredentials stores the user-supplied AI credential list. An empty string
// reverts to the credentials from configuration.
func (h *Handler) SetCredentials(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	accepted, err := h.session.SetCredentials(c.Request.Context(), req.APIKeys)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accepted": accepted})
}

// GetRecords returns every raw product record
func (h *Handler) GetRecords(c *gin.Context) {
	records := h.session.Records()
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}

// ClearRecords deletes every record
func (h *Handler) ClearRecords(c *gin.Context) {
	if err := h.session.ClearRecords(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Extract queues extraction tasks and starts a background run
func (h *Handler) Extract(c *gin.Context) {
	var req extractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	h.startExtraction(c, req.Tasks)
}

// ExtensionCapture accepts a page captured by the browser extension as a single task
func (h *Handler) ExtensionCapture(c *gin.Context) {
	var task domain.ExtractionTask
	if err := c.ShouldBindJSON(&task); err != nil {
		h.badRequest(c, err)
		return
	}
	if task.URL == "" && task.HTML == "" {
		h.respondError(c, fmt.Errorf("%w: url or html is required", domain.ErrInvalidRequest))
		return
	}
	h.startExtraction(c, []domain.ExtractionTask{task})
}

func (h *Handler) startExtraction(c *gin.Context, tasks []domain.ExtractionTask) {
	if err := h.session.StartExtraction(tasks); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, h.session.Snapshot())
}

// Classify starts a background classification run
func (h *Handler) Classify(c *gin.Context) {
	var req classifyRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, err)
			return
		}
	}
	if err := h.session.StartClassification(req.Mode, req.All); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, h.session.Snapshot())
}

// StopRun asks the active run to stop at the next task or batch boundary
func (h *Handler) StopRun(c *gin.Context) {
	stopping := h.session.Stop()
	c.JSON(http.StatusOK, gin.H{"stopping": stopping})
}

// RunStatus returns the polling snapshot of the current run
func (h *Handler) RunStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.session.Snapshot())
}

// Report returns the reconciled price comparison
func (h *Handler) Report(c *gin.Context) {
	rows, err := h.session.Report(c.DefaultQuery("sort", usecase.SortByName))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows": rows, "sources": h.session.Sources()})
}

// SearchStores finds physical stores selling a product, region by region
func (h *Handler) SearchStores(c *gin.Context) {
	var req storeSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), storeSearchDeadline)
	defer cancel()

	stores, err := h.session.SearchStores(ctx, req.Product, req.Regions)
	if err != nil && len(stores) > 0 {
		status, code := errorStatus(err)
		c.JSON(status, storeSearchErrorResponse{
			ErrorResponse: ErrorResponse{Error: err.Error(), Code: code},
			Stores:        stores,
		})
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stores": stores})
}

func (h *Handler) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error(), Code: "INVALID_REQUEST"})
}

// respondError maps domain errors to HTTP statuses
func (h *Handler) respondError(c *gin.Context, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrMissingAPIKey):
		return http.StatusPreconditionRequired, usecase.ErrorCodeMissingAPIKey
	case errors.Is(err, domain.ErrRunInProgress):
		return http.StatusConflict, "RUN_IN_PROGRESS"
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrSourceOutOfRange):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, domain.ErrStoreSearchTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT"
	default:
		return http.StatusInternalServerError, ""
	}
}
