package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/relink/relink/internal/aggregator"
	"github.com/relink/relink/internal/model"
	"github.com/relink/relink/internal/store"
)

type statsStore struct {
	daily      []*model.DailyLinkStats
	dimensions []model.DimensionCount
	total      int64
}

func (s *statsStore) GetDailyStats(ctx context.Context, shortCode string, from, to time.Time) ([]*model.DailyLinkStats, error) {
	return s.daily, nil
}
func (s *statsStore) GetDailyStatsByOwner(ctx context.Context, ownerID string, from, to time.Time) ([]*model.DailyLinkStats, error) {
	return s.daily, nil
}
func (s *statsStore) GetDimensionCounts(ctx context.Context, shortCode, column string, from, to time.Time, limit int) ([]model.DimensionCount, error) {
	return s.dimensions, nil
}
func (s *statsStore) GetDimensionCountsByOwner(ctx context.Context, ownerID, column string, from, to time.Time, limit int) ([]model.DimensionCount, error) {
	return s.dimensions, nil
}
func (s *statsStore) GetSystemDimensionCounts(ctx context.Context, column string, limit int) ([]model.DimensionCount, error) {
	return s.dimensions, nil
}
func (s *statsStore) TotalClicks(ctx context.Context) (int64, error) {
	return s.total, nil
}

type linkCounter struct{ active int64 }

func (l linkCounter) CountActiveLinks(ctx context.Context) (int64, error) {
	return l.active, nil
}

type codeLookup struct {
	links map[string]*model.Link
}

func (c codeLookup) GetLinkByCode(ctx context.Context, shortCode string) (*model.Link, error) {
	link, ok := c.links[shortCode]
	if !ok {
		return nil, store.ErrLinkNotFound
	}
	return link, nil
}

func newStatsRouter(src *statsStore, lookup codeLookup, authCtx *model.AuthContext) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	agg := aggregator.New(src, linkCounter{active: 5})
	h := NewStatsHandler(agg, lookup, logger)

	r := chi.NewRouter()
	r.Get("/api/v1/stats/links/{shortCode}/timeseries", h.LinkTimeSeries)
	r.Get("/api/v1/stats/links/{shortCode}/breakdown", h.LinkBreakdown)
	r.Get("/api/v1/stats/owner/timeseries", h.OwnerTimeSeries)
	r.Get("/api/v1/stats/system", h.SystemTotals)

	return withAuth(authCtx, r)
}

func ownedLinkLookup() codeLookup {
	return codeLookup{links: map[string]*model.Link{
		"abc123": {ID: "link-1", ShortCode: "abc123", OwnerID: "owner-1", Enabled: true},
	}}
}

func TestLinkTimeSeries(t *testing.T) {
	t.Parallel()

	router := newStatsRouter(&statsStore{}, ownedLinkLookup(), userAuth("owner-1"))

	r := httptest.NewRequest("GET", "/api/v1/stats/links/abc123/timeseries?days=7", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		RangeDays int                `json:"range_days"`
		Series    []model.DailyCount `json:"series"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.RangeDays != 7 {
		t.Errorf("range_days = %d, want 7", resp.RangeDays)
	}
	if len(resp.Series) != 7 {
		t.Errorf("len(series) = %d, want 7 zero-filled entries", len(resp.Series))
	}
}

func TestLinkStats_Authorization(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		auth *model.AuthContext
		path string
		want int
	}{
		{"owner allowed", userAuth("owner-1"), "/api/v1/stats/links/abc123/timeseries", http.StatusOK},
		{"foreign owner hidden", userAuth("owner-2"), "/api/v1/stats/links/abc123/timeseries", http.StatusNotFound},
		{"admin allowed", &model.AuthContext{KeyID: "k", OwnerID: "adm", Role: model.RoleAdmin}, "/api/v1/stats/links/abc123/timeseries", http.StatusOK},
		{"unknown code", userAuth("owner-1"), "/api/v1/stats/links/zzz999/timeseries", http.StatusNotFound},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			router := newStatsRouter(&statsStore{}, ownedLinkLookup(), tt.auth)
			r := httptest.NewRequest("GET", tt.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, r)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestLinkBreakdown_InvalidDimension(t *testing.T) {
	t.Parallel()

	router := newStatsRouter(&statsStore{}, ownedLinkLookup(), userAuth("owner-1"))

	r := httptest.NewRequest("GET", "/api/v1/stats/links/abc123/breakdown?dimension=browser", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for unknown dimension", w.Code)
	}
}

func TestSystemTotalsEndpoint(t *testing.T) {
	t.Parallel()

	src := &statsStore{
		total:      999,
		dimensions: []model.DimensionCount{{Value: "US", Clicks: 700}},
	}
	router := newStatsRouter(src, ownedLinkLookup(), &model.AuthContext{KeyID: "k", OwnerID: "adm", Role: model.RoleAdmin})

	r := httptest.NewRequest("GET", "/api/v1/stats/system", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var totals model.SystemTotals
	if err := json.Unmarshal(w.Body.Bytes(), &totals); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if totals.TotalClicks != 999 {
		t.Errorf("total_clicks = %d, want 999", totals.TotalClicks)
	}
	if totals.ActiveLinkCount != 5 {
		t.Errorf("active_link_count = %d, want 5", totals.ActiveLinkCount)
	}
}
