// Package service provides business logic for link management.
package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/relink/relink/internal/metrics"
	"github.com/relink/relink/internal/model"
	"github.com/relink/relink/internal/store"
)

// Service errors.
var (
	ErrInvalidDestination = errors.New("invalid destination URL")
	ErrInvalidCode        = errors.New("invalid short code format")
	ErrCodeExists         = errors.New("short code already exists")
	ErrLinkNotFound       = errors.New("link not found")
	ErrExpiresInPast      = errors.New("expires_at must be in the future")
	ErrURLTooLong         = errors.New("destination URL too long")
	ErrTooManyTags        = errors.New("too many tags")
)

// Short code format: 3-50 chars, alphanumeric plus hyphen.
var codeRegex = regexp.MustCompile(`^[a-zA-Z0-9-]{3,50}$`)

const (
	maxDestinationLength = 2048
	generatedCodeLength  = 7
	codeAlphabet         = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	maxCodeRetries       = 3
	maxTags              = 20
)

// LinkStore is the persistence surface LinkService needs.
type LinkStore interface {
	CreateLink(ctx context.Context, link *model.Link) error
	GetLinkByID(ctx context.Context, id string) (*model.Link, error)
	ListLinks(ctx context.Context, filter store.LinkFilter, cursor string, limit int) ([]*model.Link, string, error)
	UpdateLink(ctx context.Context, link *model.Link) error
	DeleteLink(ctx context.Context, id string) error
}

// LinkCache invalidates cached link state after mutations.
type LinkCache interface {
	DeleteLink(ctx context.Context, shortCode string) error
}

// LinkService handles link CRUD and short code allocation.
type LinkService struct {
	store   LinkStore
	cache   LinkCache
	baseURL string
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewLinkService creates a new LinkService.
func NewLinkService(st LinkStore, ca LinkCache, baseURL string, logger *slog.Logger, recorder metrics.Recorder) *LinkService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LinkService{
		store:   st,
		cache:   ca,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
		metrics: recorder,
	}
}

// CreateLinkInput defines input for creating a link.
type CreateLinkInput struct {
	Destination string
	ShortCode   string
	ExpiresAt   *time.Time
	OwnerID     string
	Tags        []string
}

// CreateLink creates a new short link. When ShortCode is empty a random
// code is generated; collisions with concurrent creates are handled by
// retrying against the store's unique constraint rather than with a
// check-then-insert race.
func (s *LinkService) CreateLink(ctx context.Context, input CreateLinkInput) (*model.Link, error) {
	if err := ValidateDestination(input.Destination); err != nil {
		return nil, err
	}

	if input.ExpiresAt != nil && input.ExpiresAt.Before(time.Now()) {
		return nil, ErrExpiresInPast
	}

	tags := model.NormalizeTags(input.Tags)
	if len(tags) > maxTags {
		return nil, ErrTooManyTags
	}

	ownerID := input.OwnerID
	if ownerID == "" {
		ownerID = "system"
	}

	custom := input.ShortCode != ""
	if custom && !codeRegex.MatchString(input.ShortCode) {
		return nil, ErrInvalidCode
	}

	attempts := 1
	if !custom {
		attempts = maxCodeRetries
	}

	for i := 0; i < attempts; i++ {
		code := input.ShortCode
		if !custom {
			code = generateRandomCode()
		}

		now := time.Now().UTC()
		link := &model.Link{
			ID:          ulid.Make().String(),
			ShortCode:   code,
			Destination: input.Destination,
			OwnerID:     ownerID,
			Enabled:     true,
			ExpiresAt:   input.ExpiresAt,
			Tags:        tags,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		err := s.store.CreateLink(ctx, link)
		if err == nil {
			s.metrics.IncLinkCreated()
			// A resolve attempt before creation may have negatively
			// cached the code; clear it so the link resolves immediately.
			s.invalidate(ctx, link.ShortCode)
			return link, nil
		}
		if errors.Is(err, store.ErrCodeExists) {
			if custom {
				return nil, ErrCodeExists
			}
			s.logger.Warn("generated code collided, retrying", "attempt", i+1)
			continue
		}
		return nil, fmt.Errorf("create link: %w", err)
	}

	return nil, errors.New("could not allocate unique short code")
}

// GetLink retrieves a link by ID.
func (s *LinkService) GetLink(ctx context.Context, id string) (*model.Link, error) {
	link, err := s.store.GetLinkByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrLinkNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	return link, nil
}

// ListLinksInput defines input for listing links.
type ListLinksInput struct {
	OwnerID       string
	Cursor        string
	Limit         int
	Enabled       *bool
	Tag           string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	MinClicks     *int64
	MaxClicks     *int64
}

// ListLinksOutput defines output for listing links.
type ListLinksOutput struct {
	Links      []*model.Link
	NextCursor string
	HasMore    bool
}

// ListLinks retrieves a filtered, cursor-paginated page of links.
func (s *LinkService) ListLinks(ctx context.Context, input ListLinksInput) (*ListLinksOutput, error) {
	if input.Limit <= 0 || input.Limit > 100 {
		input.Limit = 20
	}

	filter := store.LinkFilter{
		OwnerID:       input.OwnerID,
		Enabled:       input.Enabled,
		Tag:           input.Tag,
		CreatedAfter:  input.CreatedAfter,
		CreatedBefore: input.CreatedBefore,
		MinClicks:     input.MinClicks,
		MaxClicks:     input.MaxClicks,
	}

	links, nextCursor, err := s.store.ListLinks(ctx, filter, input.Cursor, input.Limit)
	if err != nil {
		if errors.Is(err, store.ErrInvalidCursor) {
			return nil, err
		}
		return nil, fmt.Errorf("list links: %w", err)
	}

	return &ListLinksOutput{
		Links:      links,
		NextCursor: nextCursor,
		HasMore:    nextCursor != "",
	}, nil
}

// UpdateLinkInput defines input for updating a link. Nil pointers mean
// "leave unchanged".
type UpdateLinkInput struct {
	ID          string
	Destination *string
	ExpiresAt   *time.Time
	Enabled     *bool
	Tags        []string
	ClearExpiry bool
}

// UpdateLink updates a link's mutable fields. ShortCode, OwnerID and
// ClickCount are never updated here.
func (s *LinkService) UpdateLink(ctx context.Context, input UpdateLinkInput) (*model.Link, error) {
	link, err := s.store.GetLinkByID(ctx, input.ID)
	if err != nil {
		if errors.Is(err, store.ErrLinkNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	if link.DeletedAt != nil {
		return nil, ErrLinkNotFound
	}

	if input.Destination != nil {
		if err := ValidateDestination(*input.Destination); err != nil {
			return nil, err
		}
		link.Destination = *input.Destination
	}

	if input.ClearExpiry {
		link.ExpiresAt = nil
	} else if input.ExpiresAt != nil {
		if input.ExpiresAt.Before(time.Now()) {
			return nil, ErrExpiresInPast
		}
		link.ExpiresAt = input.ExpiresAt
	}

	if input.Enabled != nil {
		link.Enabled = *input.Enabled
	}

	if input.Tags != nil {
		tags := model.NormalizeTags(input.Tags)
		if len(tags) > maxTags {
			return nil, ErrTooManyTags
		}
		link.Tags = tags
	}

	if err := s.store.UpdateLink(ctx, link); err != nil {
		return nil, fmt.Errorf("update link: %w", err)
	}

	s.metrics.IncLinkUpdated()
	s.invalidate(ctx, link.ShortCode)

	return link, nil
}

// DeleteLink soft-deletes a link. Click events recorded for the code
// are retained; the link simply stops resolving.
func (s *LinkService) DeleteLink(ctx context.Context, id string) error {
	link, err := s.store.GetLinkByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrLinkNotFound) {
			return ErrLinkNotFound
		}
		return err
	}

	if err := s.store.DeleteLink(ctx, id); err != nil {
		if errors.Is(err, store.ErrLinkNotFound) {
			return ErrLinkNotFound
		}
		return fmt.Errorf("delete link: %w", err)
	}

	s.metrics.IncLinkDeleted()
	s.invalidate(ctx, link.ShortCode)

	return nil
}

// BaseURL returns the configured base URL.
func (s *LinkService) BaseURL() string {
	return s.baseURL
}

// ShortURL builds the public URL for a short code.
func (s *LinkService) ShortURL(code string) string {
	return s.baseURL + "/r/" + code
}

func (s *LinkService) invalidate(ctx context.Context, shortCode string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteLink(ctx, shortCode); err != nil {
		// Stale cache entries expire on their own TTL.
		s.logger.Warn("cache invalidation failed", "short_code", shortCode, "error", err)
	}
}

// ValidateDestination checks that a destination is an absolute http or
// https URL with a host, within the length limit.
func ValidateDestination(dest string) error {
	if dest == "" {
		return ErrInvalidDestination
	}
	if len(dest) > maxDestinationLength {
		return ErrURLTooLong
	}

	parsed, err := url.Parse(dest)
	if err != nil {
		return ErrInvalidDestination
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ErrInvalidDestination
	}
	if parsed.Host == "" {
		return ErrInvalidDestination
	}

	return nil
}

// ValidCode reports whether a short code matches the accepted format.
func ValidCode(code string) bool {
	return codeRegex.MatchString(code)
}

// generateRandomCode produces a random short code using crypto/rand.
func generateRandomCode() string {
	b := make([]byte, generatedCodeLength)
	for i := range b {
		idx, err := cryptoRandInt(len(codeAlphabet))
		if err != nil {
			idx = 0
		}
		b[i] = codeAlphabet[idx]
	}
	return string(b)
}

func cryptoRandInt(max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}
