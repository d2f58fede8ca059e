// Package api exposes the scout service over HTTP.
package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/geometry"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/leadbook"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/logger"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/scout"
	"github.com/stardaddy2023/ai-real-estate-lead-automation-notes-sub000/internal/types"
)

// AdminKeyHeader carries the admin key on settings writes.
const AdminKeyHeader = "X-Admin-Key"

// Scout is the part of the service the handlers use.
type Scout interface {
	Search(ctx context.Context, f types.SearchFilters) (scout.Response, error)
	Import(ctx context.Context, leads []types.Lead) (leadbook.ImportResult, error)
	SavedLeads() []types.Lead
	LookupParcel(ctx context.Context, apn string) (*types.Lead, error)
	Autocomplete(ctx context.Context, query string, limit int) ([]geometry.Suggestion, error)
	Market(ctx context.Context) (scout.MarketReport, error)
	Settings() scout.Settings
	UpdateSettings(u scout.Settings) (scout.Settings, error)
}

// Handler serves the /scout routes.
type Handler struct {
	svc      Scout
	adminKey string
	log      *logger.Logger
}

// NewHandler creates a handler. An empty adminKey disables settings writes.
func NewHandler(svc Scout, adminKey string, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{svc: svc, adminKey: adminKey, log: log}
}

// NewRouter returns a gin engine with recovery, request logging and every
// route registered.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(h.log))
	h.Register(r)
	return r
}

// Register adds the routes to r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/healthz", func(c *gin.Context) {
		RespondWithSuccess(c, http.StatusOK, gin.H{"status": "ok"})
	})
	g := r.Group("/scout")
	g.POST("/search", h.Search)
	g.POST("/import", h.Import)
	g.GET("/leads", h.Leads)
	g.GET("/parcels/:apn", h.Parcel)
	g.GET("/autocomplete", h.Autocomplete)
	g.POST("/market", h.Market)
	g.GET("/settings", h.GetSettings)
	g.PUT("/settings", h.RequireAdmin, h.PutSettings)
}

// RequestLogger logs one line per request.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(start))
	}
}

// RequireAdmin rejects requests without the admin key.
func (h *Handler) RequireAdmin(c *gin.Context) {
	got := c.GetHeader(AdminKeyHeader)
	if h.adminKey == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.adminKey)) != 1 {
		RespondWithError(c, http.StatusUnauthorized, ErrorCodeUnauthorized, "A valid "+AdminKeyHeader+" header is required.", nil)
		return
	}
	c.Next()
}

// Search runs a lead search. Upstream trouble never fails the request; it
// shows up as missing fields or a warning.
func (h *Handler) Search(c *gin.Context) {
	f, err := types.DecodeFilters(c.Request.Body)
	if err != nil {
		code := ErrorCodeValidation
		if !isFilterError(err) {
			code = ErrorCodeInvalidJSON
		}
		RespondWithError(c, http.StatusBadRequest, code, "Invalid search filters.", gin.H{"reason": err.Error()})
		return
	}
	resp, err := h.svc.Search(c.Request.Context(), f)
	if err != nil {
		RespondWithError(c, http.StatusBadRequest, ErrorCodeValidation, "Invalid search filters.", gin.H{"reason": err.Error()})
		return
	}
	RespondWithSuccess(c, http.StatusOK, resp)
}

// isFilterError separates invalid filter values from malformed JSON.
func isFilterError(err error) bool {
	return errors.Is(err, types.ErrUnknownField) || !strings.HasPrefix(err.Error(), "failed to decode")
}

// Import saves leads to the lead book.
func (h *Handler) Import(c *gin.Context) {
	var leads []types.Lead
	if err := c.ShouldBindJSON(&leads); err != nil {
		RespondWithError(c, http.StatusBadRequest, ErrorCodeInvalidJSON, "Body must be a list of leads.", gin.H{"reason": err.Error()})
		return
	}
	res, err := h.svc.Import(c.Request.Context(), leads)
	switch {
	case errors.Is(err, scout.ErrNoLeadBook):
		RespondWithError(c, http.StatusServiceUnavailable, ErrorCodeServiceUnavailable, "Lead book is not configured.", nil)
		return
	case err != nil:
		h.log.Error("import failed", "leads", len(leads), "err", err)
		RespondWithError(c, http.StatusInternalServerError, ErrorCodeInternal, "Failed to save leads.", nil)
		return
	}
	RespondWithSuccess(c, http.StatusOK, res)
}

// Leads lists the lead book.
func (h *Handler) Leads(c *gin.Context) {
	leads := h.svc.SavedLeads()
	if leads == nil {
		leads = []types.Lead{}
	}
	RespondWithSuccess(c, http.StatusOK, gin.H{"leads": leads})
}

// Parcel looks one assessor parcel up in the parcel snapshot.
func (h *Handler) Parcel(c *gin.Context) {
	apn := strings.TrimSpace(c.Param("apn"))
	l, err := h.svc.LookupParcel(c.Request.Context(), apn)
	switch {
	case errors.Is(err, scout.ErrNoSnapshot):
		RespondWithError(c, http.StatusServiceUnavailable, ErrorCodeServiceUnavailable, "Parcel snapshot is not configured.", nil)
	case err != nil:
		h.log.Error("parcel lookup failed", "apn", apn, "err", err)
		RespondWithError(c, http.StatusInternalServerError, ErrorCodeInternal, "Failed to look up parcel.", nil)
	case l == nil:
		RespondWithError(c, http.StatusNotFound, ErrorCodeNotFound, "Parcel not found.", gin.H{"apn": apn})
	default:
		RespondWithSuccess(c, http.StatusOK, l)
	}
}

// Autocomplete suggests addresses and subdivisions for a prefix.
func (h *Handler) Autocomplete(c *gin.Context) {
	query := strings.TrimSpace(c.Query("query"))
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			RespondWithError(c, http.StatusBadRequest, ErrorCodeValidation, "Invalid limit parameter.", gin.H{"limit": s})
			return
		}
		limit = n
	}
	if query == "" {
		RespondWithSuccess(c, http.StatusOK, gin.H{"suggestions": []geometry.Suggestion{}})
		return
	}
	out, err := h.svc.Autocomplete(c.Request.Context(), query, limit)
	if err != nil {
		h.log.Warn("autocomplete failed", "query", query, "err", err)
	}
	if out == nil {
		out = []geometry.Suggestion{}
	}
	RespondWithSuccess(c, http.StatusOK, gin.H{"suggestions": out})
}

// Market returns the metro market score.
func (h *Handler) Market(c *gin.Context) {
	rep, err := h.svc.Market(c.Request.Context())
	if errors.Is(err, scout.ErrMarketUnavailable) {
		RespondWithError(c, http.StatusServiceUnavailable, ErrorCodeServiceUnavailable, "Market data is unavailable.", gin.H{"missing": rep.Missing})
		return
	}
	if err != nil {
		h.log.Error("market analysis failed", "err", err)
		RespondWithError(c, http.StatusInternalServerError, ErrorCodeInternal, "Market analysis failed.", nil)
		return
	}
	RespondWithSuccess(c, http.StatusOK, rep)
}

// GetSettings returns the runtime settings.
func (h *Handler) GetSettings(c *gin.Context) {
	RespondWithSuccess(c, http.StatusOK, h.svc.Settings())
}

// PutSettings updates the runtime settings.
func (h *Handler) PutSettings(c *gin.Context) {
	var u scout.Settings
	if err := c.ShouldBindJSON(&u); err != nil {
		RespondWithError(c, http.StatusBadRequest, ErrorCodeInvalidJSON, "Invalid settings payload.", gin.H{"reason": err.Error()})
		return
	}
	got, err := h.svc.UpdateSettings(u)
	if err != nil {
		RespondWithError(c, http.StatusBadRequest, ErrorCodeValidation, "Invalid settings.", gin.H{"reason": err.Error()})
		return
	}
	RespondWithSuccess(c, http.StatusOK, got)
}
