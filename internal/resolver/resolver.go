// Package resolver maps inbound short codes to destinations on the
// redirect critical path. It enforces link-validity rules and reports
// typed outcomes; recording the click is the caller's concern.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/relink/relink/internal/cache"
	"github.com/relink/relink/internal/metrics"
	"github.com/relink/relink/internal/model"
	"github.com/relink/relink/internal/store"
)

// Resolution outcomes. Unavailable is always kept distinct from
// NotFound: "link doesn't exist" and "couldn't check" must never be
// conflated, or callers would serve 404s during store outages.
var (
	ErrNotFound    = errors.New("link not found")
	ErrExpired     = errors.New("link expired")
	ErrInactive    = errors.New("link inactive")
	ErrUnavailable = errors.New("link store unavailable")
)

// Short codes are 3-50 chars; anything outside that range cannot exist.
const (
	minCodeLength = 3
	maxCodeLength = 50
)

// LinkSource is the durable lookup the resolver falls back to on a
// cache miss.
type LinkSource interface {
	GetLinkByCode(ctx context.Context, shortCode string) (*model.Link, error)
}

// LinkCache is the hot-path cache in front of the LinkSource.
type LinkCache interface {
	GetLink(ctx context.Context, shortCode string) (*model.CachedLink, error)
	SetLink(ctx context.Context, shortCode string, link *model.Link) error
	DeleteLink(ctx context.Context, shortCode string) error
	IsNegativelyCached(ctx context.Context, shortCode string) (bool, error)
	SetNegativeCache(ctx context.Context, shortCode string) error
}

// Resolver resolves short codes with a cache-first, timeout-bounded lookup.
type Resolver struct {
	source  LinkSource
	cache   LinkCache
	timeout time.Duration
	logger  *slog.Logger
	metrics metrics.Recorder
	now     func() time.Time
}

// New creates a Resolver. timeout bounds the store lookup; on expiry the
// resolver reports ErrUnavailable rather than hanging the request.
func New(source LinkSource, linkCache LinkCache, timeout time.Duration, logger *slog.Logger, recorder metrics.Recorder) *Resolver {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Resolver{
		source:  source,
		cache:   linkCache,
		timeout: timeout,
		logger:  logger.With("component", "resolver"),
		metrics: recorder,
		now:     time.Now,
	}
}

// SetNow overrides the clock. Tests only.
func (r *Resolver) SetNow(now func() time.Time) {
	r.now = now
}

// Resolve maps a short code to its link or a typed failure.
// The second return reports whether the cache served the lookup.
//
// Outcomes:
//   - nil error: link is active and unexpired; redirect to Destination.
//   - ErrNotFound: no such code (or the link was deleted).
//   - ErrExpired: the link's expiry has passed, regardless of enabled.
//   - ErrInactive: the link is disabled.
//   - ErrUnavailable: the store could not be consulted in time.
func (r *Resolver) Resolve(ctx context.Context, shortCode string) (link *model.Link, fromCache bool, err error) {
	start := r.now()
	defer func() {
		r.metrics.ObserveResolveDuration(time.Since(start))
		r.metrics.IncResolveOutcome(outcomeLabel(err))
	}()

	if len(shortCode) < minCodeLength || len(shortCode) > maxCodeLength {
		return nil, false, ErrNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// Step 1: cache lookup
	cached, cacheErr := r.cache.GetLink(ctx, shortCode)
	if cacheErr == nil {
		r.metrics.IncResolveCacheHit()
		link, err = r.validate(ctx, cached.ToLink(shortCode), shortCode)
		return link, true, err
	}

	if errors.Is(cacheErr, cache.ErrCacheMiss) {
		r.metrics.IncResolveCacheMiss()

		// Step 2: negative cache
		if isNegative, negErr := r.cache.IsNegativelyCached(ctx, shortCode); negErr == nil && isNegative {
			return nil, false, ErrNotFound
		}
	} else {
		// Redis failure is not fatal for resolution; the store still
		// answers. Log and fall through.
		r.logger.Warn("cache lookup failed", "short_code", shortCode, "error", cacheErr)
	}

	// Step 3: store point lookup
	link, err = r.source.GetLinkByCode(ctx, shortCode)
	if err != nil {
		if errors.Is(err, store.ErrLinkNotFound) {
			_ = r.cache.SetNegativeCache(ctx, shortCode)
			return nil, false, ErrNotFound
		}
		// Timeouts and store errors surface as Unavailable, never NotFound.
		return nil, false, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	// Step 4: backfill cache
	if setErr := r.cache.SetLink(ctx, shortCode, link); setErr != nil {
		r.logger.Warn("cache backfill failed", "short_code", shortCode, "error", setErr)
	}

	link, err = r.validate(ctx, link, shortCode)
	return link, false, err
}

// outcomeLabel maps a resolution result to its metric label.
func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "resolved"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrInactive):
		return "inactive"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "not_found"
	}
}

// validate applies the redirectability rules to a fetched link.
// Expiry is checked before the enabled flag so a disabled link past its
// expiry still reports expired.
func (r *Resolver) validate(ctx context.Context, link *model.Link, shortCode string) (*model.Link, error) {
	if link.DeletedAt != nil {
		return nil, ErrNotFound
	}

	if link.IsExpired(r.now()) {
		// Evict so the next lookup doesn't pay for a dead entry.
		_ = r.cache.DeleteLink(ctx, shortCode)
		return nil, ErrExpired
	}

	if !link.Enabled {
		return nil, ErrInactive
	}

	return link, nil
}
