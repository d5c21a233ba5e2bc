package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/relink/relink/internal/cache"
	"github.com/relink/relink/internal/model"
	"github.com/relink/relink/internal/resolver"
	"github.com/relink/relink/internal/store"
)

type fakeLinkStore struct {
	links        map[string]*model.Link // by ID
	codes        map[string]bool
	createErrs   []error // popped per CreateLink call
	created      []*model.Link
	deleted      []string
	updateCalled bool
}

func newFakeLinkStore() *fakeLinkStore {
	return &fakeLinkStore{
		links: make(map[string]*model.Link),
		codes: make(map[string]bool),
	}
}

func (f *fakeLinkStore) CreateLink(ctx context.Context, link *model.Link) error {
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		if err != nil {
			return err
		}
	}
	if f.codes[link.ShortCode] {
		return store.ErrCodeExists
	}
	f.codes[link.ShortCode] = true
	f.links[link.ID] = link
	f.created = append(f.created, link)
	return nil
}

func (f *fakeLinkStore) GetLinkByID(ctx context.Context, id string) (*model.Link, error) {
	link, ok := f.links[id]
	if !ok {
		return nil, store.ErrLinkNotFound
	}
	copied := *link
	return &copied, nil
}

func (f *fakeLinkStore) ListLinks(ctx context.Context, filter store.LinkFilter, cursor string, limit int) ([]*model.Link, string, error) {
	var out []*model.Link
	for _, link := range f.links {
		out = append(out, link)
	}
	return out, "", nil
}

func (f *fakeLinkStore) UpdateLink(ctx context.Context, link *model.Link) error {
	if _, ok := f.links[link.ID]; !ok {
		return store.ErrLinkNotFound
	}
	f.links[link.ID] = link
	f.updateCalled = true
	return nil
}

func (f *fakeLinkStore) DeleteLink(ctx context.Context, id string) error {
	link, ok := f.links[id]
	if !ok {
		return store.ErrLinkNotFound
	}
	now := time.Now().UTC()
	link.DeletedAt = &now
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeInvalidator struct {
	invalidated []string
	err         error
}

func (f *fakeInvalidator) DeleteLink(ctx context.Context, shortCode string) error {
	f.invalidated = append(f.invalidated, shortCode)
	return f.err
}

func testService(st LinkStore, ca LinkCache) *LinkService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewLinkService(st, ca, "https://rl.example.com", logger, nil)
}

func TestValidateDestination(t *testing.T) {
	t.Parallel()

	longDest := "https://example.com/" + strings.Repeat("a", maxDestinationLength)

	tests := []struct {
		name    string
		dest    string
		wantErr error
	}{
		{"empty", "", ErrInvalidDestination},
		{"invalid_scheme", "ftp://example.com", ErrInvalidDestination},
		{"javascript_scheme", "javascript:alert(1)", ErrInvalidDestination},
		{"missing_host", "https://", ErrInvalidDestination},
		{"too_long", longDest, ErrURLTooLong},
		{"valid_https", "https://example.com/path?q=1", nil},
		{"valid_http", "http://example.com", nil},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := ValidateDestination(tt.dest); !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCreateLinkValidationErrors(t *testing.T) {
	t.Parallel()

	svc := testService(newFakeLinkStore(), nil)

	now := time.Now().UTC()
	past := now.Add(-1 * time.Hour)

	tests := []struct {
		name    string
		input   CreateLinkInput
		wantErr error
	}{
		{
			name: "invalid_code",
			input: CreateLinkInput{
				Destination: "https://example.com",
				ShortCode:   "!!",
			},
			wantErr: ErrInvalidCode,
		},
		{
			name: "code_too_short",
			input: CreateLinkInput{
				Destination: "https://example.com",
				ShortCode:   "ab",
			},
			wantErr: ErrInvalidCode,
		},
		{
			name: "expires_in_past",
			input: CreateLinkInput{
				Destination: "https://example.com",
				ShortCode:   "valid-code",
				ExpiresAt:   &past,
			},
			wantErr: ErrExpiresInPast,
		},
		{
			name: "bad_destination",
			input: CreateLinkInput{
				Destination: "not a url",
				ShortCode:   "valid-code",
			},
			wantErr: ErrInvalidDestination,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := svc.CreateLink(context.Background(), tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCreateLink_GeneratedCode(t *testing.T) {
	t.Parallel()

	st := newFakeLinkStore()
	svc := testService(st, nil)

	link, err := svc.CreateLink(context.Background(), CreateLinkInput{
		Destination: "https://example.com",
		OwnerID:     "owner-1",
	})
	if err != nil {
		t.Fatalf("CreateLink() error = %v", err)
	}

	if len(link.ShortCode) != generatedCodeLength {
		t.Errorf("generated code length = %d, want %d", len(link.ShortCode), generatedCodeLength)
	}
	if !ValidCode(link.ShortCode) {
		t.Errorf("generated code %q does not match accepted format", link.ShortCode)
	}
	if link.ID == "" {
		t.Error("link ID not assigned")
	}
	if !link.Enabled {
		t.Error("new links must start enabled")
	}
}

func TestCreateLink_CollisionRetries(t *testing.T) {
	t.Parallel()

	st := newFakeLinkStore()
	st.createErrs = []error{store.ErrCodeExists, store.ErrCodeExists, nil}
	svc := testService(st, nil)

	link, err := svc.CreateLink(context.Background(), CreateLinkInput{
		Destination: "https://example.com",
	})
	if err != nil {
		t.Fatalf("CreateLink() error = %v, want success on third attempt", err)
	}
	if link == nil {
		t.Fatal("CreateLink() returned nil link")
	}
}

func TestCreateLink_CustomCodeConflict(t *testing.T) {
	t.Parallel()

	st := newFakeLinkStore()
	st.codes["taken12"] = true
	svc := testService(st, nil)

	_, err := svc.CreateLink(context.Background(), CreateLinkInput{
		Destination: "https://example.com",
		ShortCode:   "taken12",
	})
	if !errors.Is(err, ErrCodeExists) {
		t.Fatalf("CreateLink() error = %v, want ErrCodeExists without retry", err)
	}
}

func TestCreateLink_InvalidatesCache(t *testing.T) {
	t.Parallel()

	st := newFakeLinkStore()
	ca := &fakeInvalidator{}
	svc := testService(st, ca)

	// A 404 probe for a code negatively caches it; creating that code
	// must clear the entry or the new link keeps resolving to not-found.
	if _, err := svc.CreateLink(context.Background(), CreateLinkInput{
		Destination: "https://example.com",
		ShortCode:   "fresh-1",
	}); err != nil {
		t.Fatalf("CreateLink() error = %v", err)
	}

	if len(ca.invalidated) != 1 || ca.invalidated[0] != "fresh-1" {
		t.Errorf("invalidated = %v, want [fresh-1]", ca.invalidated)
	}
}

// roundTripCache backs both the resolver and the service with one
// shared negative cache, the way Redis does in production.
type roundTripCache struct {
	links    map[string]*model.CachedLink
	negative map[string]bool
}

func newRoundTripCache() *roundTripCache {
	return &roundTripCache{
		links:    make(map[string]*model.CachedLink),
		negative: make(map[string]bool),
	}
}

func (c *roundTripCache) GetLink(ctx context.Context, shortCode string) (*model.CachedLink, error) {
	if cached, ok := c.links[shortCode]; ok {
		return cached, nil
	}
	return nil, cache.ErrCacheMiss
}

func (c *roundTripCache) SetLink(ctx context.Context, shortCode string, link *model.Link) error {
	c.links[shortCode] = link.ToCachedLink()
	return nil
}

func (c *roundTripCache) DeleteLink(ctx context.Context, shortCode string) error {
	delete(c.links, shortCode)
	delete(c.negative, shortCode)
	return nil
}

func (c *roundTripCache) IsNegativelyCached(ctx context.Context, shortCode string) (bool, error) {
	return c.negative[shortCode], nil
}

func (c *roundTripCache) SetNegativeCache(ctx context.Context, shortCode string) error {
	c.negative[shortCode] = true
	return nil
}

// codeSource adapts fakeLinkStore to lookups by short code.
type codeSource struct{ st *fakeLinkStore }

func (c codeSource) GetLinkByCode(ctx context.Context, shortCode string) (*model.Link, error) {
	for _, link := range c.st.links {
		if link.ShortCode == shortCode && link.DeletedAt == nil {
			copied := *link
			return &copied, nil
		}
	}
	return nil, store.ErrLinkNotFound
}

func TestCreateLink_ResolvesAfterNegativeCache(t *testing.T) {
	t.Parallel()

	st := newFakeLinkStore()
	ca := newRoundTripCache()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	res := resolver.New(codeSource{st: st}, ca, time.Second, logger, nil)
	svc := testService(st, ca)

	// Probe the code before it exists; the miss is negatively cached.
	if _, _, err := res.Resolve(context.Background(), "round-1"); !errors.Is(err, resolver.ErrNotFound) {
		t.Fatalf("pre-create Resolve() error = %v, want ErrNotFound", err)
	}

	if _, err := svc.CreateLink(context.Background(), CreateLinkInput{
		Destination: "https://example.com/landing",
		ShortCode:   "round-1",
	}); err != nil {
		t.Fatalf("CreateLink() error = %v", err)
	}

	link, _, err := res.Resolve(context.Background(), "round-1")
	if err != nil {
		t.Fatalf("post-create Resolve() error = %v, want immediate success", err)
	}
	if link.Destination != "https://example.com/landing" {
		t.Errorf("Destination = %q, want created destination unchanged", link.Destination)
	}
}

func TestUpdateLink_InvalidatesCache(t *testing.T) {
	t.Parallel()

	st := newFakeLinkStore()
	ca := &fakeInvalidator{}
	svc := testService(st, ca)

	link, err := svc.CreateLink(context.Background(), CreateLinkInput{
		Destination: "https://example.com",
		ShortCode:   "abc-123",
	})
	if err != nil {
		t.Fatalf("CreateLink() error = %v", err)
	}

	ca.invalidated = nil

	enabled := false
	updated, err := svc.UpdateLink(context.Background(), UpdateLinkInput{
		ID:      link.ID,
		Enabled: &enabled,
	})
	if err != nil {
		t.Fatalf("UpdateLink() error = %v", err)
	}
	if updated.Enabled {
		t.Error("Enabled = true, want false")
	}
	if len(ca.invalidated) != 1 || ca.invalidated[0] != "abc-123" {
		t.Errorf("invalidated = %v, want [abc-123]", ca.invalidated)
	}
}

func TestUpdateLink_CacheErrorIgnored(t *testing.T) {
	t.Parallel()

	st := newFakeLinkStore()
	ca := &fakeInvalidator{err: errors.New("redis down")}
	svc := testService(st, ca)

	link, err := svc.CreateLink(context.Background(), CreateLinkInput{
		Destination: "https://example.com",
		ShortCode:   "abc-123",
	})
	if err != nil {
		t.Fatalf("CreateLink() error = %v", err)
	}

	dest := "https://other.example.com"
	if _, err := svc.UpdateLink(context.Background(), UpdateLinkInput{ID: link.ID, Destination: &dest}); err != nil {
		t.Fatalf("UpdateLink() error = %v, cache failure must not fail the update", err)
	}
}

func TestDeleteLink(t *testing.T) {
	t.Parallel()

	st := newFakeLinkStore()
	ca := &fakeInvalidator{}
	svc := testService(st, ca)

	link, err := svc.CreateLink(context.Background(), CreateLinkInput{
		Destination: "https://example.com",
		ShortCode:   "del-123",
	})
	if err != nil {
		t.Fatalf("CreateLink() error = %v", err)
	}
	ca.invalidated = nil

	if err := svc.DeleteLink(context.Background(), link.ID); err != nil {
		t.Fatalf("DeleteLink() error = %v", err)
	}
	if len(ca.invalidated) != 1 {
		t.Errorf("cache invalidations = %d, want 1", len(ca.invalidated))
	}

	if err := svc.DeleteLink(context.Background(), "missing"); !errors.Is(err, ErrLinkNotFound) {
		t.Errorf("DeleteLink(missing) error = %v, want ErrLinkNotFound", err)
	}
}

func TestUpdateLink_DeletedIsNotFound(t *testing.T) {
	t.Parallel()

	st := newFakeLinkStore()
	svc := testService(st, nil)

	link, err := svc.CreateLink(context.Background(), CreateLinkInput{
		Destination: "https://example.com",
		ShortCode:   "gone-12",
	})
	if err != nil {
		t.Fatalf("CreateLink() error = %v", err)
	}
	if err := svc.DeleteLink(context.Background(), link.ID); err != nil {
		t.Fatalf("DeleteLink() error = %v", err)
	}

	enabled := true
	if _, err := svc.UpdateLink(context.Background(), UpdateLinkInput{ID: link.ID, Enabled: &enabled}); !errors.Is(err, ErrLinkNotFound) {
		t.Errorf("UpdateLink() on deleted link error = %v, want ErrLinkNotFound", err)
	}
}

func TestShortURL(t *testing.T) {
	t.Parallel()

	svc := testService(newFakeLinkStore(), nil)
	if got := svc.ShortURL("abc123"); got != "https://rl.example.com/r/abc123" {
		t.Errorf("ShortURL() = %q", got)
	}
}
