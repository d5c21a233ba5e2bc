package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/relink/relink/internal/auth"
	"github.com/relink/relink/internal/handler/dto"
	"github.com/relink/relink/internal/model"
	"github.com/relink/relink/internal/service"
	"github.com/relink/relink/internal/store"
)

type memLinkStore struct {
	links map[string]*model.Link
	codes map[string]bool
}

func newMemLinkStore() *memLinkStore {
	return &memLinkStore{
		links: make(map[string]*model.Link),
		codes: make(map[string]bool),
	}
}

func (m *memLinkStore) CreateLink(ctx context.Context, link *model.Link) error {
	if m.codes[link.ShortCode] {
		return store.ErrCodeExists
	}
	m.codes[link.ShortCode] = true
	m.links[link.ID] = link
	return nil
}

func (m *memLinkStore) GetLinkByID(ctx context.Context, id string) (*model.Link, error) {
	link, ok := m.links[id]
	if !ok {
		return nil, store.ErrLinkNotFound
	}
	copied := *link
	return &copied, nil
}

func (m *memLinkStore) ListLinks(ctx context.Context, filter store.LinkFilter, cursor string, limit int) ([]*model.Link, string, error) {
	var out []*model.Link
	for _, link := range m.links {
		if filter.OwnerID != "" && link.OwnerID != filter.OwnerID {
			continue
		}
		out = append(out, link)
	}
	return out, "", nil
}

func (m *memLinkStore) UpdateLink(ctx context.Context, link *model.Link) error {
	if _, ok := m.links[link.ID]; !ok {
		return store.ErrLinkNotFound
	}
	m.links[link.ID] = link
	return nil
}

func (m *memLinkStore) DeleteLink(ctx context.Context, id string) error {
	link, ok := m.links[id]
	if !ok {
		return store.ErrLinkNotFound
	}
	now := time.Now().UTC()
	link.DeletedAt = &now
	return nil
}

// withAuth injects an authenticated identity, standing in for the auth
// middleware.
func withAuth(authCtx *model.AuthContext, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(auth.ContextWithAuth(r.Context(), authCtx)))
	})
}

func newLinkRouter(st *memLinkStore, authCtx *model.AuthContext) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.NewLinkService(st, nil, "https://rl.example.com", logger, nil)
	h := NewLinkHandler(svc, logger)

	r := chi.NewRouter()
	r.Post("/api/v1/links", h.Create)
	r.Get("/api/v1/links", h.List)
	r.Get("/api/v1/links/{id}", h.Get)
	r.Patch("/api/v1/links/{id}", h.Update)
	r.Delete("/api/v1/links/{id}", h.Delete)

	return withAuth(authCtx, r)
}

func userAuth(ownerID string) *model.AuthContext {
	return &model.AuthContext{KeyID: "key-1", OwnerID: ownerID, Role: model.RoleUser}
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	r := httptest.NewRequest(method, path, &buf)
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	return w
}

func TestLinkCreate(t *testing.T) {
	t.Parallel()

	router := newLinkRouter(newMemLinkStore(), userAuth("owner-1"))

	w := doJSON(t, router, "POST", "/api/v1/links", dto.CreateLinkRequest{
		Destination: "https://example.com/page",
		ShortCode:   "my-code",
		Tags:        []string{"Campaign", "campaign", "launch"},
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}

	var resp dto.LinkResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ShortCode != "my-code" {
		t.Errorf("short_code = %q", resp.ShortCode)
	}
	if resp.OwnerID != "owner-1" {
		t.Errorf("owner_id = %q, want owner from auth context", resp.OwnerID)
	}
	if resp.ShortURL != "https://rl.example.com/r/my-code" {
		t.Errorf("short_url = %q", resp.ShortURL)
	}
	if len(resp.Tags) != 2 {
		t.Errorf("tags = %v, want deduplicated lowercase pair", resp.Tags)
	}
	if resp.Status != string(model.LinkStatusActive) {
		t.Errorf("status = %q, want active", resp.Status)
	}
}

func TestLinkCreate_Errors(t *testing.T) {
	t.Parallel()

	st := newMemLinkStore()
	st.codes["taken12"] = true
	router := newLinkRouter(st, userAuth("owner-1"))

	tests := []struct {
		name string
		req  dto.CreateLinkRequest
		want int
	}{
		{"conflict", dto.CreateLinkRequest{Destination: "https://example.com", ShortCode: "taken12"}, http.StatusConflict},
		{"bad destination", dto.CreateLinkRequest{Destination: "ftp://example.com", ShortCode: "abc-123"}, http.StatusBadRequest},
		{"bad code", dto.CreateLinkRequest{Destination: "https://example.com", ShortCode: "a!"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w := doJSON(t, router, "POST", "/api/v1/links", tt.req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestLinkGet_OwnershipHidesForeignLinks(t *testing.T) {
	t.Parallel()

	st := newMemLinkStore()
	foreign := &model.Link{ID: "link-1", ShortCode: "abc123", Destination: "https://example.com", OwnerID: "someone-else", Enabled: true}
	st.links[foreign.ID] = foreign
	st.codes[foreign.ShortCode] = true

	router := newLinkRouter(st, userAuth("owner-1"))

	w := doJSON(t, router, "GET", "/api/v1/links/link-1", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for foreign link", w.Code)
	}

	adminRouter := newLinkRouter(st, &model.AuthContext{KeyID: "k", OwnerID: "admin-owner", Role: model.RoleAdmin})
	w = doJSON(t, adminRouter, "GET", "/api/v1/links/link-1", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 for admin", w.Code)
	}
}

func TestLinkUpdateAndDelete(t *testing.T) {
	t.Parallel()

	st := newMemLinkStore()
	router := newLinkRouter(st, userAuth("owner-1"))

	w := doJSON(t, router, "POST", "/api/v1/links", dto.CreateLinkRequest{
		Destination: "https://example.com",
		ShortCode:   "upd-123",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d", w.Code)
	}
	var created dto.LinkResponse
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	enabled := false
	w = doJSON(t, router, "PATCH", "/api/v1/links/"+created.ID, dto.UpdateLinkRequest{Enabled: &enabled})
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", w.Code, w.Body.String())
	}
	var updated dto.LinkResponse
	if err := json.Unmarshal(w.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if updated.Enabled {
		t.Error("enabled = true after disabling")
	}
	if updated.Status != string(model.LinkStatusInactive) {
		t.Errorf("status = %q, want inactive", updated.Status)
	}

	w = doJSON(t, router, "DELETE", "/api/v1/links/"+created.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}

	w = doJSON(t, router, "GET", "/api/v1/links/"+created.ID, nil)
	var got dto.LinkResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err == nil && w.Code == http.StatusOK {
		if got.Status != string(model.LinkStatusDeleted) {
			t.Errorf("status = %q, want deleted", got.Status)
		}
	}
}
