package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/relink/relink/internal/auth"
	"github.com/relink/relink/internal/handler/dto"
	"github.com/relink/relink/internal/service"
	"github.com/relink/relink/internal/store"
)

// LinkHandler handles HTTP requests for link management.
type LinkHandler struct {
	svc    *service.LinkService
	logger *slog.Logger
}

// NewLinkHandler creates a new LinkHandler.
func NewLinkHandler(svc *service.LinkService, logger *slog.Logger) *LinkHandler {
	return &LinkHandler{
		svc:    svc,
		logger: logger,
	}
}

// Create handles POST /api/v1/links.
func (h *LinkHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	input := service.CreateLinkInput{
		Destination: req.Destination,
		ShortCode:   req.ShortCode,
		ExpiresAt:   req.ExpiresAt,
		OwnerID:     auth.OwnerIDFromContext(r.Context()),
		Tags:        req.Tags,
	}

	link, err := h.svc.CreateLink(r.Context(), input)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("link_created",
		"link_id", link.ID,
		"short_code", link.ShortCode,
		"has_custom_code", req.ShortCode != "",
		"owner_id", link.OwnerID,
	)

	writeJSON(w, http.StatusCreated, dto.ToLinkResponse(link, h.svc.BaseURL()))
}

// Get handles GET /api/v1/links/{id}.
func (h *LinkHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ID", "Link ID is required")
		return
	}

	link, err := h.svc.GetLink(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	if !h.canAccess(r, link.OwnerID) {
		writeError(w, http.StatusNotFound, "LINK_NOT_FOUND", "Link not found")
		return
	}

	writeJSON(w, http.StatusOK, dto.ToLinkResponse(link, h.svc.BaseURL()))
}

// List handles GET /api/v1/links. Non-admin keys only see their own
// links regardless of the owner_id parameter.
func (h *LinkHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := 20
	if l := query.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	authCtx := auth.FromContext(r.Context())
	ownerID := ""
	if authCtx != nil {
		ownerID = authCtx.OwnerID
		if authCtx.IsAdmin() {
			ownerID = query.Get("owner_id")
		}
	}

	input := service.ListLinksInput{
		OwnerID: ownerID,
		Cursor:  query.Get("cursor"),
		Limit:   limit,
		Tag:     query.Get("tag"),
	}

	if enabled := query.Get("enabled"); enabled != "" {
		if parsed, err := strconv.ParseBool(enabled); err == nil {
			input.Enabled = &parsed
		}
	}
	if after := query.Get("created_after"); after != "" {
		if t, err := time.Parse(time.RFC3339, after); err == nil {
			input.CreatedAfter = &t
		}
	}
	if before := query.Get("created_before"); before != "" {
		if t, err := time.Parse(time.RFC3339, before); err == nil {
			input.CreatedBefore = &t
		}
	}
	if min := query.Get("min_clicks"); min != "" {
		if parsed, err := strconv.ParseInt(min, 10, 64); err == nil {
			input.MinClicks = &parsed
		}
	}
	if max := query.Get("max_clicks"); max != "" {
		if parsed, err := strconv.ParseInt(max, 10, 64); err == nil {
			input.MaxClicks = &parsed
		}
	}

	result, err := h.svc.ListLinks(r.Context(), input)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToLinkListResponse(result.Links, h.svc.BaseURL(), result.NextCursor, result.HasMore))
}

// Update handles PATCH /api/v1/links/{id}.
func (h *LinkHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ID", "Link ID is required")
		return
	}

	if !h.ownsLink(w, r, id) {
		return
	}

	var req dto.UpdateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	link, err := h.svc.UpdateLink(r.Context(), service.UpdateLinkInput{
		ID:          id,
		Destination: req.Destination,
		ExpiresAt:   req.ExpiresAt,
		Enabled:     req.Enabled,
		Tags:        req.Tags,
		ClearExpiry: req.ClearExpiry,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("link_updated",
		"link_id", link.ID,
		"short_code", link.ShortCode,
	)

	writeJSON(w, http.StatusOK, dto.ToLinkResponse(link, h.svc.BaseURL()))
}

// Delete handles DELETE /api/v1/links/{id}. The delete is soft; click
// events already recorded for the code stay in the store.
func (h *LinkHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ID", "Link ID is required")
		return
	}

	if !h.ownsLink(w, r, id) {
		return
	}

	if err := h.svc.DeleteLink(r.Context(), id); err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("link_deleted", "link_id", id)

	w.WriteHeader(http.StatusNoContent)
}

// ownsLink loads the link and enforces ownership; it writes the error
// response itself and reports whether the caller may proceed. Missing
// and forbidden links both read as 404 so codes cannot be enumerated.
func (h *LinkHandler) ownsLink(w http.ResponseWriter, r *http.Request, id string) bool {
	link, err := h.svc.GetLink(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, err)
		return false
	}
	if !h.canAccess(r, link.OwnerID) {
		writeError(w, http.StatusNotFound, "LINK_NOT_FOUND", "Link not found")
		return false
	}
	return true
}

func (h *LinkHandler) canAccess(r *http.Request, ownerID string) bool {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil {
		return false
	}
	return authCtx.IsAdmin() || authCtx.OwnerID == ownerID
}

// handleServiceError maps service errors to HTTP responses.
func (h *LinkHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrLinkNotFound):
		writeError(w, http.StatusNotFound, "LINK_NOT_FOUND", "Link not found")
	case errors.Is(err, service.ErrCodeExists):
		writeError(w, http.StatusConflict, "CODE_TAKEN", "Short code already exists")
	case errors.Is(err, service.ErrInvalidDestination):
		writeError(w, http.StatusBadRequest, "INVALID_DESTINATION", "Invalid destination URL")
	case errors.Is(err, service.ErrInvalidCode):
		writeError(w, http.StatusBadRequest, "INVALID_CODE", "Invalid short code format")
	case errors.Is(err, service.ErrExpiresInPast):
		writeError(w, http.StatusUnprocessableEntity, "EXPIRES_IN_PAST", "Expiry date must be in the future")
	case errors.Is(err, service.ErrURLTooLong):
		writeError(w, http.StatusBadRequest, "URL_TOO_LONG", "Destination URL exceeds maximum length")
	case errors.Is(err, service.ErrTooManyTags):
		writeError(w, http.StatusBadRequest, "TOO_MANY_TAGS", "Too many tags")
	case errors.Is(err, store.ErrInvalidCursor):
		writeError(w, http.StatusBadRequest, "INVALID_CURSOR", "Invalid pagination cursor")
	default:
		h.logger.Error("internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}
