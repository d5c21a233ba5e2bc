package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/relink/relink/internal/recorder"
	"github.com/relink/relink/internal/resolver"
)

// ClickPublisher enqueues click events without blocking the caller.
type ClickPublisher interface {
	PublishAsync(payload recorder.ClickPayload)
}

// RedirectHandler serves the public redirect endpoint.
type RedirectHandler struct {
	resolver  *resolver.Resolver
	publisher ClickPublisher
	logger    *slog.Logger
}

// NewRedirectHandler creates a new RedirectHandler. publisher may be
// nil; redirects then serve without click accounting.
func NewRedirectHandler(res *resolver.Resolver, publisher ClickPublisher, logger *slog.Logger) *RedirectHandler {
	return &RedirectHandler{
		resolver:  res,
		publisher: publisher,
		logger:    logger,
	}
}

// Redirect handles GET /r/{shortCode}. The response is a 302 with the
// destination returned verbatim from the store; click recording is
// fire-and-forget and never delays or fails the redirect.
func (h *RedirectHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	shortCode := chi.URLParam(r, "shortCode")
	if shortCode == "" {
		h.writeError(w, http.StatusNotFound, "LINK_NOT_FOUND", "Link not found")
		return
	}

	start := time.Now()

	link, cacheHit, err := h.resolver.Resolve(r.Context(), shortCode)
	duration := time.Since(start)

	if err != nil {
		h.handleResolveError(w, shortCode, err, duration)
		return
	}

	if h.publisher != nil {
		now := time.Now()
		hint := recorder.HintFromRequest(r, now)
		h.publisher.PublishAsync(recorder.ClickPayload{
			ShortCode:   shortCode,
			DeviceClass: string(hint.DeviceClass),
			CountryCode: hint.CountryCode,
			VisitorHash: hint.VisitorHash,
			OccurredAt:  now.UnixMilli(),
		})
	}

	h.logger.Info("redirect_success",
		"short_code", shortCode,
		"cache_hit", cacheHit,
		"duration_ms", float64(duration.Microseconds())/1000,
	)

	setRedirectHeaders(w)
	http.Redirect(w, r, link.Destination, http.StatusFound)
}

// handleResolveError maps resolution outcomes to HTTP statuses. An
// unavailable backend is a 503, never a 404; clients must be able to
// tell "gone" from "try again".
func (h *RedirectHandler) handleResolveError(w http.ResponseWriter, shortCode string, err error, duration time.Duration) {
	durationMS := float64(duration.Microseconds()) / 1000

	switch {
	case errors.Is(err, resolver.ErrNotFound):
		h.logger.Info("redirect_not_found", "short_code", shortCode, "duration_ms", durationMS)
		h.writeError(w, http.StatusNotFound, "LINK_NOT_FOUND", "Link not found")

	case errors.Is(err, resolver.ErrExpired):
		h.logger.Info("redirect_expired", "short_code", shortCode, "duration_ms", durationMS)
		h.writeError(w, http.StatusGone, "LINK_EXPIRED", "Link has expired")

	case errors.Is(err, resolver.ErrInactive):
		h.logger.Info("redirect_inactive", "short_code", shortCode, "duration_ms", durationMS)
		h.writeError(w, http.StatusForbidden, "LINK_INACTIVE", "Link is disabled")

	case errors.Is(err, resolver.ErrUnavailable):
		h.logger.Error("redirect_unavailable", "short_code", shortCode, "error", err, "duration_ms", durationMS)
		w.Header().Set("Retry-After", "1")
		h.writeError(w, http.StatusServiceUnavailable, "RESOLVE_UNAVAILABLE", "Service temporarily unavailable")

	default:
		h.logger.Error("redirect_error", "short_code", shortCode, "error", err, "duration_ms", durationMS)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}

func (h *RedirectHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	setRedirectHeaders(w)
	writeError(w, status, code, message)
}

func setRedirectHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("Cache-Control", "private, max-age=0")
}
