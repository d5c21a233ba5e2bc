package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/relink/relink/internal/aggregator"
	"github.com/relink/relink/internal/auth"
	"github.com/relink/relink/internal/handler/dto"
	"github.com/relink/relink/internal/model"
	"github.com/relink/relink/internal/store"
)

const defaultStatsRangeDays = 30

// LinkLookup resolves a short code to its link for ownership checks.
type LinkLookup interface {
	GetLinkByCode(ctx context.Context, shortCode string) (*model.Link, error)
}

// StatsHandler serves analytics queries backed by daily rollups.
type StatsHandler struct {
	agg    *aggregator.Aggregator
	links  LinkLookup
	logger *slog.Logger
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(agg *aggregator.Aggregator, links LinkLookup, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{
		agg:    agg,
		links:  links,
		logger: logger,
	}
}

// LinkTimeSeries handles GET /api/v1/stats/links/{shortCode}/timeseries.
func (h *StatsHandler) LinkTimeSeries(w http.ResponseWriter, r *http.Request) {
	shortCode, ok := h.authorizedShortCode(w, r)
	if !ok {
		return
	}

	days := rangeDays(r)
	series, err := h.agg.TimeSeries(r.Context(), aggregator.Query{ShortCode: shortCode}, days)
	if err != nil {
		h.handleAggregatorError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TimeSeriesResponse{RangeDays: days, Series: series})
}

// LinkBreakdown handles GET /api/v1/stats/links/{shortCode}/breakdown.
func (h *StatsHandler) LinkBreakdown(w http.ResponseWriter, r *http.Request) {
	shortCode, ok := h.authorizedShortCode(w, r)
	if !ok {
		return
	}

	days := rangeDays(r)
	dim := aggregator.Dimension(r.URL.Query().Get("dimension"))
	entries, err := h.agg.ByDimension(r.Context(), aggregator.Query{ShortCode: shortCode}, dim, days)
	if err != nil {
		h.handleAggregatorError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.BreakdownResponse{
		Dimension: string(dim),
		RangeDays: days,
		Entries:   entries,
	})
}

// OwnerTimeSeries handles GET /api/v1/stats/owner/timeseries. The
// owner is always the authenticated key's owner.
func (h *StatsHandler) OwnerTimeSeries(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.OwnerIDFromContext(r.Context())
	if ownerID == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	days := rangeDays(r)
	series, err := h.agg.TimeSeries(r.Context(), aggregator.Query{OwnerID: ownerID}, days)
	if err != nil {
		h.handleAggregatorError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TimeSeriesResponse{RangeDays: days, Series: series})
}

// OwnerBreakdown handles GET /api/v1/stats/owner/breakdown.
func (h *StatsHandler) OwnerBreakdown(w http.ResponseWriter, r *http.Request) {
	ownerID := auth.OwnerIDFromContext(r.Context())
	if ownerID == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	days := rangeDays(r)
	dim := aggregator.Dimension(r.URL.Query().Get("dimension"))
	entries, err := h.agg.ByDimension(r.Context(), aggregator.Query{OwnerID: ownerID}, dim, days)
	if err != nil {
		h.handleAggregatorError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.BreakdownResponse{
		Dimension: string(dim),
		RangeDays: days,
		Entries:   entries,
	})
}

// SystemTotals handles GET /api/v1/stats/system. Admin only; the route
// is gated by RequireAdmin.
func (h *StatsHandler) SystemTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := h.agg.SystemTotals(r.Context())
	if err != nil {
		h.handleAggregatorError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, totals)
}

// authorizedShortCode extracts the short code and enforces that the
// caller owns the link (or is admin). Unknown and forbidden codes both
// read as 404.
func (h *StatsHandler) authorizedShortCode(w http.ResponseWriter, r *http.Request) (string, bool) {
	shortCode := chi.URLParam(r, "shortCode")
	if shortCode == "" {
		writeError(w, http.StatusBadRequest, "MISSING_CODE", "Short code is required")
		return "", false
	}

	link, err := h.links.GetLinkByCode(r.Context(), shortCode)
	if err != nil {
		if errors.Is(err, store.ErrLinkNotFound) {
			writeError(w, http.StatusNotFound, "LINK_NOT_FOUND", "Link not found")
			return "", false
		}
		h.logger.Error("stats link lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
		return "", false
	}

	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || (!authCtx.IsAdmin() && authCtx.OwnerID != link.OwnerID) {
		writeError(w, http.StatusNotFound, "LINK_NOT_FOUND", "Link not found")
		return "", false
	}

	return shortCode, true
}

func (h *StatsHandler) handleAggregatorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, aggregator.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, "INVALID_RANGE", "Range must be between 1 and 366 days")
	case errors.Is(err, aggregator.ErrUnknownDimension):
		writeError(w, http.StatusBadRequest, "INVALID_DIMENSION", "Dimension must be device or location")
	case errors.Is(err, aggregator.ErrInvalidQuery):
		writeError(w, http.StatusBadRequest, "INVALID_QUERY", "Invalid stats query")
	default:
		h.logger.Error("stats query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}

func rangeDays(r *http.Request) int {
	if d := r.URL.Query().Get("days"); d != "" {
		if parsed, err := strconv.Atoi(d); err == nil {
			return parsed
		}
	}
	return defaultStatsRangeDays
}
